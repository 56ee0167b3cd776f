package rule

import "time"

type RuleType string

const (
	TypeLateness  RuleType = "LATENESS"
	TypeShortTime RuleType = "SHORT_TIME"
	TypeOvertime  RuleType = "OVERTIME"
	TypeHoliday   RuleType = "HOLIDAY"
	TypeRestDay   RuleType = "REST_DAY"
)

func AllRuleTypes() []RuleType {
	return []RuleType{TypeLateness, TypeShortTime, TypeOvertime, TypeHoliday, TypeRestDay}
}

func (t RuleType) Valid() bool {
	for _, rt := range AllRuleTypes() {
		if rt == t {
			return true
		}
	}
	return false
}

// IsDayRule reports whether the type classifies whole days.
func (t RuleType) IsDayRule() bool {
	return t == TypeHoliday || t == TypeRestDay
}

type CalculationMethod string

const (
	// Lateness counts minutes past start+grace.
	CalculateFromGraceEnd CalculationMethod = "FROM_GRACE_END"
	// Lateness counts minutes past shift start once grace is exceeded.
	CalculateFromShiftStart CalculationMethod = "FROM_SHIFT_START"
)

func (m CalculationMethod) Valid() bool {
	return m == CalculateFromGraceEnd || m == CalculateFromShiftStart
}

const ScopeGlobal = "global"

// Config is a single attendance rule. At most one active config per (RuleType, Scope).
type Config struct {
	ID                 string
	RuleType           RuleType
	Scope              string
	GracePeriodMinutes int
	CalculationMethod  CalculationMethod
	MinMinutes         int
	RequiresApproval   bool
	IsHoliday          bool
	IsRestDay          bool
	SuppressLateness   bool
	SuppressEarlyLeave bool
	SuppressPenalties  bool
	Dates              []string // YYYY-MM-DD
	Condition          string   // CEL boolean expression
	Active             bool
	Version            int
	CreatedBy          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasDate reports whether date is listed explicitly.
func (c *Config) HasDate(date time.Time) bool {
	d := date.Format("2006-01-02")
	for _, listed := range c.Dates {
		if listed == d {
			return true
		}
	}
	return false
}

// Set is the active rule set the evaluator runs against.
type Set struct {
	Scope     string
	Lateness  *Config
	ShortTime *Config
	Overtime  *Config
	Holiday   *Config
	RestDay   *Config
}

// DayRules returns the day classifiers in precedence order.
func (s Set) DayRules() []*Config {
	var out []*Config
	if s.Holiday != nil {
		out = append(out, s.Holiday)
	}
	if s.RestDay != nil {
		out = append(out, s.RestDay)
	}
	return out
}

// NewSet picks, per rule type, the scope-specific active config over the global one.
func NewSet(scope string, active []Config) Set {
	set := Set{Scope: scope}
	pick := func(current *Config, candidate Config) *Config {
		if current == nil || (candidate.Scope == scope && current.Scope != scope) {
			c := candidate
			return &c
		}
		return current
	}
	for _, c := range active {
		if !c.Active || (c.Scope != scope && c.Scope != ScopeGlobal) {
			continue
		}
		switch c.RuleType {
		case TypeLateness:
			set.Lateness = pick(set.Lateness, c)
		case TypeShortTime:
			set.ShortTime = pick(set.ShortTime, c)
		case TypeOvertime:
			set.Overtime = pick(set.Overtime, c)
		case TypeHoliday:
			set.Holiday = pick(set.Holiday, c)
		case TypeRestDay:
			set.RestDay = pick(set.RestDay, c)
		}
	}
	return set
}

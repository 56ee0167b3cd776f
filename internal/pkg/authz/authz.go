package authz

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
)

type Mode string

const (
	ModeEnforce  Mode = "enforce"
	ModeShadow   Mode = "shadow"
	ModeDisabled Mode = "disabled"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`

// ParseMode validates a configured mode. Empty means enforce.
func ParseMode(raw string) (Mode, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ModeEnforce, nil
	}
	switch Mode(raw) {
	case ModeEnforce, ModeShadow, ModeDisabled:
		return Mode(raw), nil
	default:
		return "", errors.New("authz: invalid mode (expected enforce|shadow|disabled)")
	}
}

// Authorizer resolves a role into the capability set the services check against.
type Authorizer struct {
	enforcer *casbin.Enforcer
	mode     Mode
	logger   *slog.Logger
	cache    sync.Map // user.Role -> user.CapabilitySet
}

// NewAuthorizer builds an enforcer. With an empty policyPath the default
// role policy from user.RolePermissions is loaded.
func NewAuthorizer(policyPath string, mode Mode, logger *slog.Logger) (*Authorizer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse authz model: %w", err)
	}

	var enforcer *casbin.Enforcer
	if policyPath != "" {
		enforcer, err = casbin.NewEnforcer(m, fileadapter.NewAdapter(policyPath))
	} else {
		enforcer, err = casbin.NewEnforcer(m)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}

	if policyPath == "" {
		for role, caps := range user.RolePermissions {
			for _, c := range caps {
				obj, act := splitCapability(c)
				if _, err := enforcer.AddPolicy(SubjectFromRole(role), obj, act); err != nil {
					return nil, fmt.Errorf("failed to add policy for %s: %w", role, err)
				}
			}
		}
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Authorizer{enforcer: enforcer, mode: mode, logger: logger}, nil
}

func SubjectFromRole(role user.Role) string {
	r := strings.TrimSpace(strings.ToLower(string(role)))
	if r == "" {
		r = "anonymous"
	}
	return "role:" + r
}

func splitCapability(c user.Capability) (string, string) {
	obj, act, found := strings.Cut(string(c), ".")
	if !found {
		return obj, "*"
	}
	return obj, act
}

// Authorize checks a single capability for a role.
func (a *Authorizer) Authorize(role user.Role, c user.Capability) (allowed bool, err error) {
	switch a.mode {
	case ModeDisabled:
		return true, nil
	case ModeShadow:
		obj, act := splitCapability(c)
		ok, err := a.enforcer.Enforce(SubjectFromRole(role), obj, act)
		if err != nil {
			return false, err
		}
		if !ok {
			a.logger.Warn("authz shadow deny", "role", role, "capability", c)
		}
		return true, nil
	case ModeEnforce:
		obj, act := splitCapability(c)
		return a.enforcer.Enforce(SubjectFromRole(role), obj, act)
	default:
		return false, errors.New("authz: unknown mode")
	}
}

// Capabilities returns the capability set granted to role. Results are cached
// since policies are loaded once at startup.
func (a *Authorizer) Capabilities(role user.Role) (user.CapabilitySet, error) {
	if cached, ok := a.cache.Load(role); ok {
		return cached.(user.CapabilitySet), nil
	}

	granted := make([]user.Capability, 0)
	for _, c := range user.AllCapabilities() {
		ok, err := a.Authorize(role, c)
		if err != nil {
			return nil, fmt.Errorf("failed to authorize %s for %s: %w", c, role, err)
		}
		if ok {
			granted = append(granted, c)
		}
	}

	set := user.NewCapabilitySet(granted...)
	a.cache.Store(role, set)
	return set, nil
}

// Resolve builds the actor for an authenticated caller.
func (a *Authorizer) Resolve(userID, employeeID string, role user.Role) (user.Actor, error) {
	caps, err := a.Capabilities(role)
	if err != nil {
		return user.Actor{}, err
	}
	return user.Actor{
		UserID:       userID,
		EmployeeID:   employeeID,
		Role:         role,
		Capabilities: caps,
	}, nil
}

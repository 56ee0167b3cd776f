package rule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/rule"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/lock"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/ruleexpr"
)

type fakeTx struct{}

func (fakeTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeRepo struct {
	mu    sync.Mutex
	seq   int
	rules map[string]rule.Config
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rules: make(map[string]rule.Config)}
}

func (f *fakeRepo) Create(_ context.Context, cfg rule.Config) (rule.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	cfg.ID = fmt.Sprintf("rule-%d", f.seq)
	cfg.Version = 1
	f.rules[cfg.ID] = cfg
	return cfg, nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (rule.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rules[id]
	if !ok {
		return rule.Config{}, rule.ErrRuleNotFound
	}
	return c, nil
}

func (f *fakeRepo) List(_ context.Context, filter rule.ListFilter) ([]rule.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []rule.Config
	for _, c := range f.rules {
		if filter.ActiveOnly && !c.Active {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeRepo) ListActive(_ context.Context, scopes []string) ([]rule.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []rule.Config
	for _, c := range f.rules {
		for _, s := range scopes {
			if c.Active && c.Scope == s {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) SetActive(_ context.Context, id string, active bool) (rule.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rules[id]
	if !ok {
		return rule.Config{}, rule.ErrRuleNotFound
	}
	if active {
		for oid, o := range f.rules {
			if oid != id && o.Active && o.RuleType == c.RuleType && o.Scope == c.Scope {
				o.Active = false
				o.Version++
				f.rules[oid] = o
			}
		}
	}
	c.Active = active
	c.Version++
	f.rules[id] = c
	return c, nil
}

func (f *fakeRepo) FindByTypeAndScope(_ context.Context, t rule.RuleType, scope string) (*rule.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found *rule.Config
	for _, c := range f.rules {
		if c.RuleType == t && c.Scope == scope {
			c := c
			if found == nil || c.ID > found.ID {
				found = &c
			}
		}
	}
	return found, nil
}

func (f *fakeRepo) Replace(_ context.Context, cfg rule.Config) (rule.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rules[cfg.ID]; !ok {
		return rule.Config{}, rule.ErrRuleNotFound
	}
	cfg.Version = f.rules[cfg.ID].Version + 1
	f.rules[cfg.ID] = cfg
	return cfg, nil
}

func (f *fakeRepo) activeCount(t rule.RuleType, scope string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.rules {
		if c.Active && c.RuleType == t && c.Scope == scope {
			n++
		}
	}
	return n
}

func newService(t *testing.T) (*RuleServiceImpl, *fakeRepo) {
	t.Helper()
	engine, err := ruleexpr.NewEngine()
	require.NoError(t, err)
	repo := newFakeRepo()
	return NewRuleService(fakeTx{}, repo, engine, lock.NewKeyedMutex(), nil), repo
}

var hrAdmin = user.Actor{
	UserID:       "hr-1",
	EmployeeID:   "hr-1",
	Role:         user.RoleHRAdmin,
	Capabilities: user.NewCapabilitySet(user.RolePermissions[user.RoleHRAdmin]...),
}

func TestCreate_ActivationKeepsOneActivePerSlot(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, hrAdmin, rule.CreateRuleRequest{RuleType: "LATENESS", GracePeriodMinutes: 5, Active: true})
	require.NoError(t, err)
	assert.True(t, first.Active)
	assert.Equal(t, rule.ScopeGlobal, first.Scope)
	assert.Equal(t, rule.CalculateFromGraceEnd, first.CalculationMethod)

	second, err := svc.Create(ctx, hrAdmin, rule.CreateRuleRequest{RuleType: "lateness", GracePeriodMinutes: 10, Active: true})
	require.NoError(t, err)
	assert.True(t, second.Active)
	assert.Equal(t, 1, repo.activeCount(rule.TypeLateness, rule.ScopeGlobal))

	reloaded, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.Active)
}

func TestActivate_ConcurrentActivationsLeaveOneActive(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		c, err := svc.Create(ctx, hrAdmin, rule.CreateRuleRequest{RuleType: "OVERTIME", MinMinutes: i})
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Activate(ctx, hrAdmin, id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, repo.activeCount(rule.TypeOvertime, rule.ScopeGlobal))
}

func TestCreate_RejectsInvalidCondition(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Create(context.Background(), hrAdmin, rule.CreateRuleRequest{
		RuleType:  "REST_DAY",
		IsRestDay: true,
		Condition: "weekday ==",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, rule.ErrInvalidCondition))
}

func TestCreate_RequiresCapability(t *testing.T) {
	svc, _ := newService(t)
	employee := user.Actor{UserID: "e1", Role: user.RoleEmployee, Capabilities: user.NewCapabilitySet(user.RolePermissions[user.RoleEmployee]...)}

	_, err := svc.Create(context.Background(), employee, rule.CreateRuleRequest{RuleType: "LATENESS"})
	assert.True(t, errors.Is(err, user.ErrInsufficientPermissions))
}

func TestSeed_IsIdempotent(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	seeds := []rule.CreateRuleRequest{
		{RuleType: "LATENESS", GracePeriodMinutes: 10, Active: true},
		{RuleType: "REST_DAY", IsRestDay: true, SuppressLateness: true, Condition: "weekday == 0 || weekday == 6", Active: true},
	}

	n, err := svc.Seed(ctx, seeds)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	seeds[0].GracePeriodMinutes = 15
	n, err = svc.Seed(ctx, seeds)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := svc.List(ctx, rule.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	set, err := svc.ActiveSet(ctx, rule.ScopeGlobal)
	require.NoError(t, err)
	require.NotNil(t, set.Lateness)
	assert.Equal(t, 15, set.Lateness.GracePeriodMinutes)
	require.NotNil(t, set.RestDay)
	assert.Equal(t, 1, repo.activeCount(rule.TypeRestDay, rule.ScopeGlobal))
}

func TestActiveSet_ScopeOverridesGlobal(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, hrAdmin, rule.CreateRuleRequest{RuleType: "LATENESS", GracePeriodMinutes: 5, Active: true})
	require.NoError(t, err)
	_, err = svc.Create(ctx, hrAdmin, rule.CreateRuleRequest{RuleType: "LATENESS", Scope: "jakarta", GracePeriodMinutes: 20, Active: true})
	require.NoError(t, err)
	_, err = svc.Create(ctx, hrAdmin, rule.CreateRuleRequest{RuleType: "OVERTIME", MinMinutes: 30, Active: true})
	require.NoError(t, err)

	set, err := svc.ActiveSet(ctx, "jakarta")
	require.NoError(t, err)
	assert.Equal(t, 20, set.Lateness.GracePeriodMinutes)
	assert.Equal(t, 30, set.Overtime.MinMinutes)

	global, err := svc.ActiveSet(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 5, global.Lateness.GracePeriodMinutes)
}

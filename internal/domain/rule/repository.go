package rule

import "context"

type ListFilter struct {
	RuleType   *RuleType
	Scope      *string
	ActiveOnly bool
}

type Repository interface {
	Create(ctx context.Context, cfg Config) (Config, error)
	GetByID(ctx context.Context, id string) (Config, error)
	List(ctx context.Context, filter ListFilter) ([]Config, error)
	// ListActive returns active configs for the given scopes.
	ListActive(ctx context.Context, scopes []string) ([]Config, error)
	// SetActive flips the active flag. Activation deactivates any other active
	// config with the same (RuleType, Scope) in the same write.
	SetActive(ctx context.Context, id string, active bool) (Config, error)
	// FindByTypeAndScope returns the most recent config for the pair, active or not.
	FindByTypeAndScope(ctx context.Context, ruleType RuleType, scope string) (*Config, error)
	// Replace overwrites the settings of an existing config (used by seeding).
	Replace(ctx context.Context, cfg Config) (Config, error)
}

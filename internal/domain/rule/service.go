package rule

import (
	"context"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
)

type Service interface {
	Create(ctx context.Context, actor user.Actor, req CreateRuleRequest) (Config, error)
	Get(ctx context.Context, id string) (Config, error)
	List(ctx context.Context, filter ListFilter) ([]Config, error)
	Activate(ctx context.Context, actor user.Actor, id string) (Config, error)
	Deactivate(ctx context.Context, actor user.Actor, id string) (Config, error)
	Seed(ctx context.Context, seeds []CreateRuleRequest) (int, error)
}

// Store is the read side the evaluator uses.
type Store interface {
	ActiveSet(ctx context.Context, scope string) (Set, error)
}

package employee

import "context"

// Directory is the employee directory collaborator.
type Directory interface {
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	ListActiveIDs(ctx context.Context) ([]string, error)
}

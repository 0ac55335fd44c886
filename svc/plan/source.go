package plan

import (
	"context"
	"errors"
)

var (
	// ErrPlanNotFound is returned when no plan with the requested id exists.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrNoPlans is returned when a source yields an empty plan set.
	ErrNoPlans = errors.New("plan source contains no plans")
)

// Source lists the sellable plans. Implementations must return consistent
// data for the lifetime of the process; plans are immutable once sold against.
type Source interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

// Find resolves one plan by id through a source.
func Find(ctx context.Context, src Source, id string) (Plan, error) {
	plans, err := src.Load(ctx)
	if err != nil {
		return Plan{}, err
	}
	p, ok := plans[id]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

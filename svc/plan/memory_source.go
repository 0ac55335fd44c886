package plan

import (
	"context"
	"maps"
	"sync"
)

type inMemSource struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewInMemSource returns an in-memory Source with a copy of the given plans.
// Panics if no plans are provided to ensure the service always has at least
// one valid plan. Copying prevents external modifications from affecting the
// source's state.
func NewInMemSource(plans ...Plan) Source {
	if len(plans) < 1 {
		panic("at least one plan is required")
	}
	byID := make(map[string]Plan, len(plans))
	for _, p := range plans {
		byID[p.ID] = p
	}
	return &inMemSource{plans: byID}
}

// Load returns a copy of all available plans from memory.
func (s *inMemSource) Load(ctx context.Context) (map[string]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.plans), nil
}

package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository implements Repository for tests and local development.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*Transaction

	// byTransID enforces the (provider, trans_id) unique key.
	byTransID map[string]uuid.UUID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:      make(map[uuid.UUID]*Transaction),
		byTransID: make(map[string]uuid.UUID),
	}
}

func transKey(provider Provider, transID string) string {
	return string(provider) + ":" + transID
}

func (r *MemoryRepository) Create(ctx context.Context, tx *Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := transKey(tx.Provider, tx.TransID)
	if _, exists := r.byTransID[key]; exists {
		return ErrDuplicateTransID
	}

	cp := *tx
	r.byID[tx.ID] = &cp
	r.byTransID[key] = tx.ID
	return nil
}

func (r *MemoryRepository) GetByTransID(ctx context.Context, provider Provider, transID string) (*Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byTransID[transKey(provider, transID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (r *MemoryRepository) FindPending(ctx context.Context, provider Provider, userID uuid.UUID, planID string) (*Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, tx := range r.byID {
		if tx.Provider == provider && tx.UserID == userID && tx.PlanID == planID && tx.State == StatePending {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) Update(ctx context.Context, tx *Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[tx.ID]; !ok {
		return ErrNotFound
	}
	cp := *tx
	r.byID[tx.ID] = &cp
	return nil
}

func (r *MemoryRepository) ListPaidBetween(ctx context.Context, provider Provider, from, to time.Time) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Transaction
	for _, tx := range r.byID {
		if tx.Provider != provider || tx.State != StatePaid || tx.PerformTime == nil {
			continue
		}
		if tx.PerformTime.Before(from) || tx.PerformTime.After(to) {
			continue
		}
		out = append(out, *tx)
	}
	return out, nil
}

package cards

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrymomot/subpay/svc/ledger"
)

// MemoryRepository implements Repository for tests and local development.
type MemoryRepository struct {
	mu      sync.RWMutex
	byOwner map[string]*SavedCard
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byOwner: make(map[string]*SavedCard)}
}

func ownerKey(telegramID int64, provider ledger.Provider) string {
	return fmt.Sprintf("%d:%s", telegramID, provider)
}

func (r *MemoryRepository) Save(ctx context.Context, card *SavedCard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *card
	r.byOwner[ownerKey(card.TelegramID, card.Provider)] = &cp
	return nil
}

func (r *MemoryRepository) GetByOwner(ctx context.Context, telegramID int64, provider ledger.Provider) (*SavedCard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	card, ok := r.byOwner[ownerKey(telegramID, provider)]
	if !ok {
		return nil, ErrCardNotFound
	}
	cp := *card
	return &cp, nil
}

func (r *MemoryRepository) ListUsable(ctx context.Context, telegramID int64) ([]SavedCard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []SavedCard
	for _, card := range r.byOwner {
		if card.TelegramID == telegramID && card.Usable() {
			out = append(out, *card)
		}
	}
	return out, nil
}

func (r *MemoryRepository) Update(ctx context.Context, card *SavedCard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ownerKey(card.TelegramID, card.Provider)
	if _, ok := r.byOwner[key]; !ok {
		return ErrCardNotFound
	}
	cp := *card
	r.byOwner[key] = &cp
	return nil
}

package cards

import (
	"context"
	"errors"

	"github.com/dmitrymomot/subpay/svc/ledger"
)

var (
	// ErrCardNotFound is returned when no saved card matches the lookup.
	ErrCardNotFound = errors.New("saved card not found")
)

// Repository persists saved cards. The (telegram_id, provider) pair is
// unique; revoked rows stay in place.
type Repository interface {
	Save(ctx context.Context, card *SavedCard) error
	GetByOwner(ctx context.Context, telegramID int64, provider ledger.Provider) (*SavedCard, error)
	ListUsable(ctx context.Context, telegramID int64) ([]SavedCard, error)
	Update(ctx context.Context, card *SavedCard) error
}

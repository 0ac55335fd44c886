package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no transaction matches the lookup.
	ErrNotFound = errors.New("transaction not found")

	// ErrDuplicateTransID is returned when a transaction with the same
	// (provider, trans_id) pair already exists. Callers treat this as losing
	// a concurrent prepare race and re-read the winner.
	ErrDuplicateTransID = errors.New("duplicate provider transaction id")

	// ErrIllegalTransition is returned for a state change the ledger does
	// not allow.
	ErrIllegalTransition = errors.New("illegal transaction state transition")
)

// Repository persists transactions. The (provider, trans_id) unique key is
// the serialization point for concurrent provider calls; implementations must
// surface unique-constraint conflicts as ErrDuplicateTransID.
type Repository interface {
	Create(ctx context.Context, tx *Transaction) error
	GetByTransID(ctx context.Context, provider Provider, transID string) (*Transaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	FindPending(ctx context.Context, provider Provider, userID uuid.UUID, planID string) (*Transaction, error)
	Update(ctx context.Context, tx *Transaction) error
	ListPaidBetween(ctx context.Context, provider Provider, from, to time.Time) ([]Transaction, error)
}

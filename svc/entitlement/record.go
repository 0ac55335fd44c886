package entitlement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RecordStatus is the lifecycle of one materialized entitlement period.
type RecordStatus string

const (
	StatusActive    RecordStatus = "active"
	StatusExpired   RecordStatus = "expired"
	StatusCancelled RecordStatus = "cancelled"
	StatusPending   RecordStatus = "pending"
)

// SubscriptionRecord is one entitlement period tied to at most one
// transaction. Multiple historical rows may exist per user; the Activator
// guarantees at most one is active at a time.
type SubscriptionRecord struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	PlanID        string
	TransactionID *uuid.UUID // nil for trial grants, where no money moved
	StartDate     time.Time
	EndDate       time.Time
	IsActive      bool
	AutoRenew     bool
	Status        RecordStatus
	PaidAmount    int64 // minor units; zero for trials
	CreatedAt     time.Time
}

// SubscriptionRepository persists entitlement periods.
type SubscriptionRepository interface {
	Insert(ctx context.Context, rec *SubscriptionRecord) error
	// DeactivateActive flips every active record for the user to the given
	// status and returns how many rows changed.
	DeactivateActive(ctx context.Context, userID uuid.UUID, status RecordStatus, now time.Time) (int, error)
	ListActive(ctx context.Context, userID uuid.UUID) ([]SubscriptionRecord, error)
	// ListExpiring returns active records whose end date falls before the
	// given deadline, for the renewal sweep.
	ListExpiring(ctx context.Context, deadline time.Time) ([]SubscriptionRecord, error)
}

// Payment is the append-only audit record of money actually received,
// independent of the transaction ledger. Written best-effort.
type Payment struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Provider string
	TransID  string
	PlanID   string
	Amount   int64
	PaidAt   time.Time
}

// PaymentRepository appends audit rows.
type PaymentRepository interface {
	Append(ctx context.Context, p *Payment) error
}

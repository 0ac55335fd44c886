package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Provider identifies one of the supported payment networks.
type Provider string

const (
	ProviderClick Provider = "click"
	ProviderPayme Provider = "payme"
	ProviderAtmos Provider = "atmos"
)

// State is the provider-agnostic transaction state.
type State string

const (
	StatePending  State = "pending"
	StatePaid     State = "paid"
	StateCanceled State = "canceled"
	StateFailed   State = "failed"
)

// SubState carries the provider-facing numeric state so check queries can
// replay the exact prior result.
type SubState int32

const (
	SubStatePrepared        SubState = 1
	SubStatePerformed       SubState = 2
	SubStatePendingCanceled SubState = -1
	SubStatePaidCanceled    SubState = -2
)

// Cancellation reason codes, following the RPC provider's numbering.
const (
	ReasonNone            int32 = 0
	ReasonReceiverError   int32 = 3
	ReasonTimeout         int32 = 4
	ReasonRefund          int32 = 5
	ReasonUpstreamFailure int32 = 8
)

// transitions lists the legal state changes. Anything absent here is a
// protocol violation and must surface as ErrIllegalTransition.
var transitions = map[State][]State{
	StatePending: {StatePaid, StateCanceled, StateFailed},
	StatePaid:    {StateCanceled},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transaction is one attempt to pay for one plan by one user via one
// provider. Rows are append-only: they are updated in place through state
// transitions but never deleted.
type Transaction struct {
	ID           uuid.UUID // internal id, echoed to providers as the prepare id
	Provider     Provider
	TransID      string // provider-issued external id, the idempotency key
	UserID       uuid.UUID
	PlanID       string
	Amount       int64 // minor units
	State        State
	SubState     SubState
	CreateTime   time.Time
	PerformTime  *time.Time
	CancelTime   *time.Time
	CancelReason int32
}

// New creates a fresh PENDING transaction in the prepared sub-state.
func New(provider Provider, transID string, userID uuid.UUID, planID string, amount int64, now time.Time) *Transaction {
	return &Transaction{
		ID:         uuid.New(),
		Provider:   provider,
		TransID:    transID,
		UserID:     userID,
		PlanID:     planID,
		Amount:     amount,
		State:      StatePending,
		SubState:   SubStatePrepared,
		CreateTime: now,
	}
}

// MarkPaid transitions the transaction to PAID and stamps the perform time.
func (t *Transaction) MarkPaid(now time.Time) error {
	if !canTransition(t.State, StatePaid) {
		return ErrIllegalTransition
	}
	t.State = StatePaid
	t.SubState = SubStatePerformed
	t.PerformTime = &now
	return nil
}

// Cancel transitions to CANCELED, recording the reason. Allowed from PENDING
// and, refund-style, from PAID.
func (t *Transaction) Cancel(reason int32, now time.Time) error {
	if !canTransition(t.State, StateCanceled) {
		return ErrIllegalTransition
	}
	if t.State == StatePaid {
		t.SubState = SubStatePaidCanceled
	} else {
		t.SubState = SubStatePendingCanceled
	}
	t.State = StateCanceled
	t.CancelTime = &now
	t.CancelReason = reason
	return nil
}

// Fail transitions PENDING to FAILED with the upstream-supplied reason.
func (t *Transaction) Fail(reason int32, now time.Time) error {
	if !canTransition(t.State, StateFailed) {
		return ErrIllegalTransition
	}
	t.State = StateFailed
	t.SubState = SubStatePendingCanceled
	t.CancelTime = &now
	t.CancelReason = reason
	return nil
}

// ExpiredAt reports whether a pending transaction has outlived the timeout.
// A zero timeout disables expiry.
func (t *Transaction) ExpiredAt(now time.Time, timeout time.Duration) bool {
	if timeout <= 0 || t.State != StatePending {
		return false
	}
	return now.Sub(t.CreateTime) > timeout
}

func (t *Transaction) IsPending() bool  { return t.State == StatePending }
func (t *Transaction) IsPaid() bool     { return t.State == StatePaid }
func (t *Transaction) IsCanceled() bool { return t.State == StateCanceled || t.State == StateFailed }

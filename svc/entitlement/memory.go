package entitlement

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryUserRepository implements UserRepository for tests.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[uuid.UUID]*User)}
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryUserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.TelegramID == telegramID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *MemoryUserRepository) Update(ctx context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return ErrUserNotFound
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

// MemorySubscriptionRepository implements SubscriptionRepository for tests.
type MemorySubscriptionRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*SubscriptionRecord
}

func NewMemorySubscriptionRepository() *MemorySubscriptionRepository {
	return &MemorySubscriptionRepository{records: make(map[uuid.UUID]*SubscriptionRecord)}
}

func (r *MemorySubscriptionRepository) Insert(ctx context.Context, rec *SubscriptionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records[rec.ID] = &cp
	return nil
}

func (r *MemorySubscriptionRepository) DeactivateActive(ctx context.Context, userID uuid.UUID, status RecordStatus, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.UserID == userID && rec.IsActive {
			rec.IsActive = false
			rec.Status = status
			rec.EndDate = now
			n++
		}
	}
	return n, nil
}

func (r *MemorySubscriptionRepository) ListActive(ctx context.Context, userID uuid.UUID) ([]SubscriptionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []SubscriptionRecord
	for _, rec := range r.records {
		if rec.UserID == userID && rec.IsActive {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *MemorySubscriptionRepository) ListExpiring(ctx context.Context, deadline time.Time) ([]SubscriptionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []SubscriptionRecord
	for _, rec := range r.records {
		if rec.IsActive && rec.EndDate.Before(deadline) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// MemoryPaymentRepository implements PaymentRepository for tests.
type MemoryPaymentRepository struct {
	mu       sync.RWMutex
	payments []Payment

	// FailNext makes the next Append return an error, for testing the
	// best-effort audit path.
	FailNext error
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{}
}

func (r *MemoryPaymentRepository) Append(ctx context.Context, p *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailNext != nil {
		err := r.FailNext
		r.FailNext = nil
		return err
	}
	r.payments = append(r.payments, *p)
	return nil
}

// Payments returns a snapshot of recorded audit rows.
func (r *MemoryPaymentRepository) Payments() []Payment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Payment, len(r.payments))
	copy(out, r.payments)
	return out
}

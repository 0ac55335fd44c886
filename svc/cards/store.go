package cards

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subpay/svc/ledger"
)

// Store carries the upsert-or-revive rules for verified cards.
type Store struct {
	repo Repository
	now  func() time.Time
}

func NewStore(repo Repository) *Store {
	return &Store{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// HashPAN produces the stored fingerprint of a raw card number. The raw
// number itself never touches the database.
func HashPAN(pan string) string {
	sum := sha256.Sum256([]byte(pan))
	return hex.EncodeToString(sum[:])
}

// SaveVerified records a freshly OTP-verified card token for a user.
// A revoked row for the same physical card is revived instead of replaced.
// The first return value reports whether this is the user's first verified
// card for the provider, which gates the one-off trial grant.
func (s *Store) SaveVerified(ctx context.Context, telegramID int64, provider ledger.Provider, token, panHash, maskedPAN string) (firstTime bool, err error) {
	now := s.now()

	existing, err := s.repo.GetByOwner(ctx, telegramID, provider)
	if err != nil {
		if !errors.Is(err, ErrCardNotFound) {
			return false, err
		}
		card := &SavedCard{
			ID:         uuid.New(),
			TelegramID: telegramID,
			Provider:   provider,
			Token:      token,
			PANHash:    panHash,
			MaskedPAN:  maskedPAN,
			State:      StateActive,
			VerifiedAt: now,
		}
		return true, s.repo.Save(ctx, card)
	}

	if existing.State == StateRevoked && existing.PANHash == panHash {
		existing.Reactivate(token, now)
		return false, s.repo.Update(ctx, existing)
	}

	// Different card, or a re-verification of a live one: replace the token
	// in place, keeping the row identity.
	existing.Token = token
	existing.PANHash = panHash
	existing.MaskedPAN = maskedPAN
	existing.State = StateActive
	existing.VerifiedAt = now
	existing.RevokedAt = nil
	return false, s.repo.Update(ctx, existing)
}

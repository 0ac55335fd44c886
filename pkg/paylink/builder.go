package paylink

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subpay/pkg/qrcode"
	"github.com/dmitrymomot/subpay/pkg/token"
)

// Builder mints signed pay and cancel links rooted at the public base URL.
type Builder struct {
	baseURL string
	secret  string
	ttl     time.Duration
	now     func() time.Time
}

func NewBuilder(baseURL, secret string, ttl time.Duration) *Builder {
	return &Builder{
		baseURL: baseURL,
		secret:  secret,
		ttl:     ttl,
		now:     time.Now,
	}
}

// PayURL builds a signed link that resolves into the provider's checkout
// page for the given plan and user.
func (b *Builder) PayURL(provider, planID string, userID uuid.UUID, amount int64) (string, error) {
	claims := PayClaims{
		Provider: provider,
		PlanID:   planID,
		UserID:   userID,
		Amount:   amount,
	}
	if b.ttl > 0 {
		claims.ExpiresAt = b.now().Add(b.ttl).Unix()
	}
	t, err := token.GenerateToken(claims, b.secret)
	if err != nil {
		return "", fmt.Errorf("sign pay link: %w", err)
	}
	return b.baseURL + "/pay/" + t, nil
}

// CancelURL builds a signed link resolving the user for the cancellation
// flow. Cancel links do not expire.
func (b *Builder) CancelURL(userID uuid.UUID) (string, error) {
	t, err := token.GenerateToken(CancelClaims{UserID: userID, Scope: cancelScope}, b.secret)
	if err != nil {
		return "", fmt.Errorf("sign cancel link: %w", err)
	}
	return b.baseURL + "/cancel/" + t, nil
}

// QR renders a link as a PNG for chat delivery.
func QR(url string, size int) ([]byte, error) {
	return qrcode.Generate(url, size)
}

package click

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrymomot/subpay/svc/cards"
)

const defaultAPITimeout = 10 * time.Second

// Revoker deletes saved card tokens at the provider's merchant API.
// The canceller calls it before soft-revoking the local row; failures are
// tolerated upstream, so the client only needs to be honest about them.
type Revoker struct {
	cfg     Config
	baseURL string
	client  *http.Client
	now     func() time.Time
}

func NewRevoker(cfg Config, baseURL string) *Revoker {
	return &Revoker{
		cfg:     cfg,
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultAPITimeout},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RevokeToken calls the provider's card token deletion endpoint.
func (r *Revoker) RevokeToken(ctx context.Context, card cards.SavedCard) error {
	url := fmt.Sprintf("%s/card_token/%s/%s", r.baseURL, r.cfg.ServiceID, card.Token)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Auth", r.authHeader())

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("card token deletion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("card token deletion: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// authHeader computes the provider's digest auth: user id, SHA-1 of the
// timestamp and secret, and the timestamp itself.
func (r *Revoker) authHeader() string {
	ts := strconv.FormatInt(r.now().Unix(), 10)
	sum := sha1.Sum([]byte(ts + r.cfg.SecretKey))
	return r.cfg.MerchantUserID + ":" + hex.EncodeToString(sum[:]) + ":" + ts
}

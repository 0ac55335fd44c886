package atmos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	// ErrGatewayRejected is returned when the provider answers with a
	// non-OK business code.
	ErrGatewayRejected = errors.New("gateway rejected the request")

	// ErrOTPInvalid is returned when the confirmation code does not match.
	ErrOTPInvalid = errors.New("confirmation code rejected")
)

// BoundCard is the outcome of a successful OTP confirmation.
type BoundCard struct {
	Token     string
	MaskedPAN string
}

// Gateway is the outbound provider API surface the handlers depend on.
// Tests substitute a fake; Client is the production implementation.
type Gateway interface {
	BindInit(ctx context.Context, cardNumber, expiry string) (sessionID string, err error)
	BindConfirm(ctx context.Context, sessionID, otp string) (*BoundCard, error)
	BindResend(ctx context.Context, sessionID string) error
	CreatePay(ctx context.Context, amount int64, account string) (transID string, err error)
	ApplyPay(ctx context.Context, token, transID string) error
	RemoveCard(ctx context.Context, token string) error
}

// Client talks to the provider's partner API. Requests carry a bearer token
// from the client-credentials grant; the oauth2 transport caches it and
// refreshes on expiry.
type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) *Client {
	grant := &clientcredentials.Config{
		ClientID:     cfg.ConsumerKey,
		ClientSecret: cfg.ConsumerSecret,
		TokenURL:     cfg.BaseURL + "/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	// The token endpoint shares the API call timeout.
	base := context.WithValue(context.Background(), oauth2.HTTPClient,
		&http.Client{Timeout: cfg.APITimeout})
	client := grant.Client(base)
	client.Timeout = cfg.APITimeout
	return &Client{cfg: cfg, client: client}
}

// apiResult is the common envelope: a result code, with "OK" meaning
// success, and operation-specific fields alongside.
type apiResult struct {
	Result struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"result"`
	TransactionID json.Number `json:"transaction_id"`
	Data          struct {
		CardToken string `json:"card_token"`
		Pan       string `json:"pan"`
	} `json:"data"`
}

func (c *Client) BindInit(ctx context.Context, cardNumber, expiry string) (string, error) {
	res, err := c.post(ctx, "/partner/bind-card/init", map[string]any{
		"card_number": cardNumber,
		"expiry":      expiry,
	})
	if err != nil {
		return "", err
	}
	return res.TransactionID.String(), nil
}

func (c *Client) BindConfirm(ctx context.Context, sessionID, otp string) (*BoundCard, error) {
	res, err := c.post(ctx, "/partner/bind-card/confirm", map[string]any{
		"transaction_id": sessionID,
		"otp":            otp,
	})
	if err != nil {
		if errors.Is(err, ErrGatewayRejected) {
			return nil, ErrOTPInvalid
		}
		return nil, err
	}
	return &BoundCard{Token: res.Data.CardToken, MaskedPAN: res.Data.Pan}, nil
}

func (c *Client) BindResend(ctx context.Context, sessionID string) error {
	_, err := c.post(ctx, "/partner/bind-card/dial", map[string]any{
		"transaction_id": sessionID,
	})
	return err
}

func (c *Client) CreatePay(ctx context.Context, amount int64, account string) (string, error) {
	res, err := c.post(ctx, "/merchant/pay/create", map[string]any{
		"store_id": c.cfg.StoreID,
		"amount":   amount,
		"account":  account,
	})
	if err != nil {
		return "", err
	}
	return res.TransactionID.String(), nil
}

func (c *Client) ApplyPay(ctx context.Context, token, transID string) error {
	if _, err := c.post(ctx, "/merchant/pay/pre-apply", map[string]any{
		"card_token":     token,
		"store_id":       c.cfg.StoreID,
		"transaction_id": transID,
	}); err != nil {
		return err
	}
	_, err := c.post(ctx, "/merchant/pay/apply", map[string]any{
		"transaction_id": transID,
		"store_id":       c.cfg.StoreID,
	})
	return err
}

func (c *Client) RemoveCard(ctx context.Context, token string) error {
	_, err := c.post(ctx, "/partner/remove-card", map[string]any{
		"token": token,
	})
	return err
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any) (*apiResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway call %s: unexpected status %d", path, resp.StatusCode)
	}

	var res apiResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("gateway call %s: %w", path, err)
	}
	if !strings.EqualFold(res.Result.Code, "OK") {
		return nil, fmt.Errorf("%w: %s %s", ErrGatewayRejected, res.Result.Code, res.Result.Description)
	}
	return &res, nil
}

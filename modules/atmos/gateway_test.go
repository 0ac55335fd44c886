package atmos_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subpay/modules/atmos"
)

func TestClient_BearerAuth(t *testing.T) {
	t.Parallel()

	var tokenCalls atomic.Int64
	var gotBearer atomic.Value

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostFormValue("grant_type"))
		user, pass, ok := r.BasicAuth()
		require.True(t, ok, "consumer key pair is sent as basic auth")
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/partner/bind-card/dial", func(w http.ResponseWriter, r *http.Request) {
		gotBearer.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]string{"code": "OK"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := atmos.NewClient(atmos.Config{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		StoreID:        "store-1",
		APITimeout:     5 * time.Second,
	})

	ctx := context.Background()
	require.NoError(t, client.BindResend(ctx, "session-1"))
	assert.Equal(t, "Bearer tok-1", gotBearer.Load())

	require.NoError(t, client.BindResend(ctx, "session-1"))
	assert.Equal(t, int64(1), tokenCalls.Load(), "unexpired token is reused")
}

func TestClient_RejectedResult(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/partner/remove-card", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]string{"code": "ERR-001", "description": "unknown token"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := atmos.NewClient(atmos.Config{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		StoreID:        "store-1",
		APITimeout:     5 * time.Second,
	})

	err := client.RemoveCard(context.Background(), "tok-x")
	assert.ErrorIs(t, err, atmos.ErrGatewayRejected)
}

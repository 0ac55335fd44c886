package paylink

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/subpay/pkg/logger"
	"github.com/dmitrymomot/subpay/pkg/token"
)

// CheckoutResolver turns resolved pay claims into the provider's checkout
// URL. The server wires it to the provider link builders.
type CheckoutResolver func(provider, planID string, userID uuid.UUID, amount int64) (string, error)

// Cancellation executes the subscription teardown for a resolved user.
type Cancellation interface {
	Cancel(ctx context.Context, userID uuid.UUID) error
}

// Handler resolves signed links: /pay/{token} redirects to the provider
// checkout, /cancel/{token} serves and processes the cancellation form.
type Handler struct {
	secret    string
	resolve   CheckoutResolver
	canceller Cancellation
	log       *slog.Logger
	now       func() time.Time
}

func NewHandler(secret string, resolve CheckoutResolver, canceller Cancellation, log *slog.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		secret:    secret,
		resolve:   resolve,
		canceller: canceller,
		log:       log,
		now:       time.Now,
	}
}

// Handle mounts the link endpoints.
func (h *Handler) Handle() http.Handler {
	r := chi.NewRouter()
	r.Get("/pay/{token}", h.pay)
	r.Get("/cancel/{token}", h.cancelForm)
	r.Post("/cancel/{token}", h.cancelSubmit)
	return r
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	claims, err := token.ParseToken[PayClaims](chi.URLParam(r, "token"), h.secret)
	if err != nil {
		http.Error(w, "invalid link", http.StatusNotFound)
		return
	}
	if claims.Expired(h.now()) {
		http.Error(w, "link expired", http.StatusGone)
		return
	}

	checkout, err := h.resolve(claims.Provider, claims.PlanID, claims.UserID, claims.Amount)
	if err != nil {
		h.log.ErrorContext(r.Context(), "checkout resolution failed",
			logger.Error(err), logger.Provider(claims.Provider), logger.UserID(claims.UserID))
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}
	http.Redirect(w, r, checkout, http.StatusFound)
}

func (h *Handler) cancelForm(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "token")
	claims, err := token.ParseToken[CancelClaims](raw, h.secret)
	if err != nil || claims.Scope != cancelScope {
		http.Error(w, "invalid link", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<html><body>
<form method="post" action="/cancel/%s">
<p>Отменить подписку и отвязать карты?</p>
<button type="submit">Отменить подписку</button>
</form>
</body></html>`, html.EscapeString(raw))
}

func (h *Handler) cancelSubmit(w http.ResponseWriter, r *http.Request) {
	claims, err := token.ParseToken[CancelClaims](chi.URLParam(r, "token"), h.secret)
	if err != nil || claims.Scope != cancelScope {
		http.Error(w, "invalid link", http.StatusNotFound)
		return
	}

	if err := h.canceller.Cancel(r.Context(), claims.UserID); err != nil {
		h.log.ErrorContext(r.Context(), "cancellation failed",
			logger.Error(err), logger.UserID(claims.UserID))
		http.Error(w, "cancellation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<html><body><p>Подписка отменена.</p></body></html>`)
}

package atmos

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/subpay/pkg/logger"
	"github.com/dmitrymomot/subpay/svc/billing"
	"github.com/dmitrymomot/subpay/svc/cards"
	"github.com/dmitrymomot/subpay/svc/entitlement"
	"github.com/dmitrymomot/subpay/svc/ledger"
	"github.com/dmitrymomot/subpay/svc/plan"
)

// pendingTimeout bounds how long a token charge may sit unpaid in the
// ledger before a retry is allowed to start over.
const pendingTimeout = 15 * time.Minute

// Deps bundles the collaborators the card-token endpoints drive.
type Deps struct {
	Gateway   Gateway
	Engine    *billing.Engine
	Store     *cards.Store
	Cards     cards.Repository
	Users     entitlement.UserRepository
	Plans     plan.Source
	Activator *entitlement.Activator
}

// Handler serves the bot-facing card-token REST endpoints. Unlike the
// callback providers, the caller here is our own bot, so responses are a
// plain {success, ...} JSON without provider error codes.
type Handler struct {
	cfg  Config
	deps Deps
	log  *slog.Logger
}

func NewHandler(cfg Config, deps Deps, log *slog.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{cfg: cfg, deps: deps, log: log}
}

// Handle mounts the endpoints.
func (h *Handler) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/create-card-token", h.createToken)
	r.Post("/verify-card-token", h.verifyToken)
	r.Post("/resend-code", h.resendCode)
	r.Post("/charge", h.charge)
	return r
}

type response struct {
	Success      bool   `json:"success"`
	Session      string `json:"session,omitempty"`
	Token        string `json:"token,omitempty"`
	MaskedPAN    string `json:"masked_pan,omitempty"`
	TrialGranted bool   `json:"trial_granted,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (h *Handler) createToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TelegramID int64  `json:"telegram_id"`
		CardNumber string `json:"card_number"`
		Expiry     string `json:"expiry"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CardNumber == "" {
		h.respond(w, response{Error: "bad request"})
		return
	}

	session, err := h.deps.Gateway.BindInit(r.Context(), req.CardNumber, req.Expiry)
	if err != nil {
		h.fail(w, r, "card binding init failed", err)
		return
	}
	h.respond(w, response{Success: true, Session: session})
}

func (h *Handler) verifyToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TelegramID int64  `json:"telegram_id"`
		Session    string `json:"session"`
		OTP        string `json:"otp"`
		PlanID     string `json:"plan_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Session == "" {
		h.respond(w, response{Error: "bad request"})
		return
	}

	bound, err := h.deps.Gateway.BindConfirm(r.Context(), req.Session, req.OTP)
	if err != nil {
		if errors.Is(err, ErrOTPInvalid) {
			h.respond(w, response{Error: "invalid code"})
			return
		}
		h.fail(w, r, "card binding confirm failed", err)
		return
	}

	// The raw PAN never reaches this endpoint; the masked form is stable
	// per physical card and serves as the revive fingerprint.
	firstTime, err := h.deps.Store.SaveVerified(r.Context(), req.TelegramID,
		ledger.ProviderAtmos, bound.Token, cards.HashPAN(bound.MaskedPAN), bound.MaskedPAN)
	if err != nil {
		h.fail(w, r, "saving verified card failed", err)
		return
	}

	resp := response{Success: true, Token: bound.Token, MaskedPAN: bound.MaskedPAN}
	if firstTime {
		resp.TrialGranted = h.grantTrial(r, req.TelegramID, req.PlanID)
	}
	h.respond(w, resp)
}

// grantTrial opens the one-off trial window after a first card
// verification. Failures are logged, never surfaced: the card itself is
// already saved.
func (h *Handler) grantTrial(r *http.Request, telegramID int64, planID string) bool {
	ctx := r.Context()

	p, err := plan.Find(ctx, h.deps.Plans, planID)
	if err != nil || p.TrialDays <= 0 {
		return false
	}
	user, err := h.deps.Users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		h.log.ErrorContext(ctx, "trial grant skipped", logger.Error(err), logger.Provider("atmos"))
		return false
	}
	if user.HasAccess(time.Now().UTC()) {
		return false
	}
	if err := h.deps.Activator.GrantTrial(ctx, user.ID, p, p.TrialDays); err != nil {
		h.log.ErrorContext(ctx, "trial grant failed", logger.Error(err), logger.UserID(user.ID))
		return false
	}
	return true
}

func (h *Handler) resendCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Session string `json:"session"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Session == "" {
		h.respond(w, response{Error: "bad request"})
		return
	}

	if err := h.deps.Gateway.BindResend(r.Context(), req.Session); err != nil {
		h.fail(w, r, "resend code failed", err)
		return
	}
	h.respond(w, response{Success: true})
}

// charge runs a saved-token payment end to end: validate, open a provider
// transaction, debit the token, settle the ledger.
func (h *Handler) charge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TelegramID int64  `json:"telegram_id"`
		PlanID     string `json:"plan_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlanID == "" {
		h.respond(w, response{Error: "bad request"})
		return
	}
	ctx := r.Context()

	user, err := h.deps.Users.GetByTelegramID(ctx, req.TelegramID)
	if err != nil {
		h.respond(w, response{Error: "user not found"})
		return
	}
	card, err := h.deps.Cards.GetByOwner(ctx, req.TelegramID, ledger.ProviderAtmos)
	if err != nil || !card.Usable() {
		h.respond(w, response{Error: "no saved card"})
		return
	}
	p, err := plan.Find(ctx, h.deps.Plans, req.PlanID)
	if err != nil {
		h.respond(w, response{Error: "plan not found"})
		return
	}

	amount := billing.Amount(p.Price)
	if err := h.deps.Engine.Validate(ctx, user.ID, p.ID, amount); err != nil {
		h.respond(w, h.mapChargeError(r, err))
		return
	}

	transID, err := h.deps.Gateway.CreatePay(ctx, p.Price, p.ID+"."+user.ID.String())
	if err != nil {
		h.fail(w, r, "pay create failed", err)
		return
	}

	if _, err := h.deps.Engine.Prepare(ctx, billing.PrepareRequest{
		Provider:       ledger.ProviderAtmos,
		TransID:        transID,
		UserID:         user.ID,
		PlanID:         p.ID,
		Amount:         amount,
		PendingTimeout: pendingTimeout,
	}); err != nil {
		h.respond(w, h.mapChargeError(r, err))
		return
	}

	if err := h.deps.Gateway.ApplyPay(ctx, card.Token, transID); err != nil {
		if _, cancelErr := h.deps.Engine.Cancel(ctx, billing.CancelRequest{
			Provider: ledger.ProviderAtmos,
			TransID:  transID,
			Reason:   ledger.ReasonUpstreamFailure,
		}); cancelErr != nil {
			h.log.ErrorContext(ctx, "cancel after failed debit", logger.Error(cancelErr), logger.TransID(transID))
		}
		h.fail(w, r, "token debit failed", err)
		return
	}

	if _, err := h.deps.Engine.Complete(ctx, billing.CompleteRequest{
		Provider: ledger.ProviderAtmos,
		TransID:  transID,
	}); err != nil {
		h.fail(w, r, "settling paid transaction failed", err)
		return
	}
	h.respond(w, response{Success: true})
}

func (h *Handler) mapChargeError(r *http.Request, err error) response {
	switch {
	case errors.Is(err, billing.ErrAlreadySubscribed):
		return response{Error: "subscription already active"}
	case errors.Is(err, billing.ErrPendingExists):
		return response{Error: "payment already in progress"}
	case errors.Is(err, billing.ErrInvalidAmount):
		return response{Error: "incorrect amount"}
	default:
		h.log.ErrorContext(r.Context(), "charge failed", logger.Error(err), logger.Provider("atmos"))
		return response{Error: "internal error"}
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.log.ErrorContext(r.Context(), msg, logger.Error(err), logger.Provider("atmos"))
	h.respond(w, response{Error: "provider unavailable"})
}

func (h *Handler) respond(w http.ResponseWriter, resp response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("response encoding failed", logger.Error(err))
	}
}

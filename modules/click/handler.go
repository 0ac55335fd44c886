package click

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/subpay/pkg/logger"
	"github.com/dmitrymomot/subpay/svc/billing"
	"github.com/dmitrymomot/subpay/svc/entitlement"
	"github.com/dmitrymomot/subpay/svc/ledger"
	"github.com/dmitrymomot/subpay/svc/plan"
)

// Handler serves the provider's single callback endpoint, translating the
// two-phase action protocol onto the billing engine.
type Handler struct {
	cfg    Config
	engine *billing.Engine
	log    *slog.Logger
}

func NewHandler(cfg Config, engine *billing.Engine, log *slog.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{cfg: cfg, engine: engine, log: log}
}

// Handle mounts the callback endpoint.
func (h *Handler) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.callback)
	return r
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	req, err := parseCallback(r)
	if err != nil {
		h.respond(w, req, respondCode(codeBadRequest, "bad request"))
		return
	}

	// Authenticity first: no repository reads for unsigned callers.
	if !verifySignature(h.cfg.SecretKey, req) {
		h.respond(w, req, respondCode(codeBadSignature, "sign check failed"))
		return
	}

	switch req.Action {
	case actionPrepare:
		h.prepare(w, r, req)
	case actionComplete:
		h.complete(w, r, req)
	default:
		h.respond(w, req, respondCode(codeUnknownAction, "action not found"))
	}
}

func (h *Handler) prepare(w http.ResponseWriter, r *http.Request, req callbackRequest) {
	ref, err := decodeReference(req.MerchantTransID)
	if err != nil {
		h.respond(w, req, respondCode(codeUserNotFound, "user not found"))
		return
	}

	amount, err := billing.ParseAmount(req.Amount)
	if err != nil {
		h.respond(w, req, respondCode(codeBadAmount, "incorrect amount"))
		return
	}

	tx, err := h.engine.Prepare(r.Context(), billing.PrepareRequest{
		Provider:       ledger.ProviderClick,
		TransID:        req.ClickTransID,
		UserID:         ref.UserID,
		PlanID:         ref.PlanID,
		Amount:         amount,
		ReuseOpenOrder: true,
	})
	if err != nil {
		h.respond(w, req, h.mapError(r, req, err))
		return
	}

	h.respond(w, req, callbackResponse{
		MerchantPrepareID: tx.ID.String(),
		Error:             codeSuccess,
		ErrorNote:         "Success",
	})
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request, req callbackRequest) {
	prepareID, err := uuid.Parse(req.MerchantPrepareID)
	if err != nil {
		h.respond(w, req, respondCode(codeTransNotFound, "transaction not found"))
		return
	}

	creq := billing.CompleteRequest{
		Provider:  ledger.ProviderClick,
		PrepareID: prepareID,
	}

	// A non-zero error field means the provider failed the payment upstream;
	// the ledger keeps the provider's own code so the cause stays auditable,
	// and the provider still gets a success-shaped ack.
	if code, convErr := strconv.ParseInt(req.Error, 10, 32); convErr == nil && code != 0 {
		reason := int32(code)
		creq.FailureReason = &reason
	}

	tx, err := h.engine.Complete(r.Context(), creq)
	if err != nil {
		h.respond(w, req, h.mapError(r, req, err))
		return
	}

	h.respond(w, req, callbackResponse{
		MerchantPrepareID: req.MerchantPrepareID,
		MerchantConfirmID: tx.ID.String(),
		Error:             codeSuccess,
		ErrorNote:         "Success",
	})
}

// mapError converts engine failures into the provider's flat error codes.
// Unexpected internal errors become the generic retriable code.
func (h *Handler) mapError(r *http.Request, req callbackRequest, err error) callbackResponse {
	switch {
	case errors.Is(err, plan.ErrPlanNotFound), errors.Is(err, entitlement.ErrUserNotFound):
		return respondCode(codeUserNotFound, "user not found")
	case errors.Is(err, billing.ErrInvalidAmount), errors.Is(err, billing.ErrMalformedAmount):
		return respondCode(codeBadAmount, "incorrect amount")
	case errors.Is(err, billing.ErrAlreadySubscribed), errors.Is(err, billing.ErrAlreadyPaid):
		return respondCode(codeAlreadyPaid, "already paid")
	case errors.Is(err, billing.ErrAlreadyCanceled), errors.Is(err, billing.ErrExpired):
		return respondCode(codeTransCanceled, "transaction cancelled")
	case errors.Is(err, ledger.ErrNotFound):
		return respondCode(codeTransNotFound, "transaction not found")
	default:
		h.log.ErrorContext(r.Context(), "callback processing failed",
			logger.Error(err), logger.Provider("click"), logger.TransID(req.ClickTransID))
		return respondCode(codeInternalError, "internal error")
	}
}

func respondCode(code int32, note string) callbackResponse {
	return callbackResponse{Error: code, ErrorNote: note}
}

func (h *Handler) respond(w http.ResponseWriter, req callbackRequest, resp callbackResponse) {
	resp.ClickTransID = req.ClickTransID
	resp.MerchantTransID = req.MerchantTransID

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("callback response encoding failed", logger.Error(err))
	}
}

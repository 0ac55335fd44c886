package payme

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/subpay/pkg/logger"
	"github.com/dmitrymomot/subpay/svc/billing"
	"github.com/dmitrymomot/subpay/svc/entitlement"
	"github.com/dmitrymomot/subpay/svc/ledger"
	"github.com/dmitrymomot/subpay/svc/plan"
)

// Handler serves the provider's single JSON-RPC endpoint. Every business
// outcome, including failures, is an HTTP 200 with a result or error body.
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

// Handle mounts the endpoint.
func (h *Handler) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.rpc)
	return r
}

func (h *Handler) rpc(w http.ResponseWriter, r *http.Request) {
	// Credentials before anything else: unauthenticated callers never reach
	// the ledger, and the error body deliberately carries no request echo.
	if !h.authorized(r) {
		h.respond(w, rpcResponse{Error: rpcErr(codeUnauthorized, "")})
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respond(w, rpcResponse{Error: rpcErr(codeParseError, "")})
		return
	}

	resp := h.dispatch(r, req)
	resp.ID = req.ID
	h.respond(w, resp)
}

func (h *Handler) authorized(r *http.Request) bool {
	login, password, ok := r.BasicAuth()
	if !ok {
		return false
	}
	loginOK := subtle.ConstantTimeCompare([]byte(login), []byte(h.cfg.Login)) == 1
	keyOK := subtle.ConstantTimeCompare([]byte(password), []byte(h.cfg.Key)) == 1
	return loginOK && keyOK
}

func (h *Handler) dispatch(r *http.Request, req rpcRequest) rpcResponse {
	switch req.Method {
	case "CheckPerformTransaction":
		return h.checkPerform(r, req.Params)
	case "CreateTransaction":
		return h.create(r, req.Params)
	case "PerformTransaction":
		return h.perform(r, req.Params)
	case "CancelTransaction":
		return h.cancel(r, req.Params)
	case "CheckTransaction":
		return h.check(r, req.Params)
	case "GetStatement":
		return h.statement(r, req.Params)
	default:
		return rpcResponse{Error: rpcErr(codeMethodNotFound, req.Method)}
	}
}

func (h *Handler) checkPerform(r *http.Request, raw json.RawMessage) rpcResponse {
	var p checkPerformParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return rpcResponse{Error: rpcErr(codeInvalidRequest, "")}
	}

	userID, err := uuid.Parse(p.Account.UserID)
	if err != nil {
		return rpcResponse{Error: rpcErr(codeMalformedAccount, "account.user_id")}
	}
	amount, err := billing.ParseAmount(p.Amount)
	if err != nil {
		return rpcResponse{Error: rpcErr(codeInvalidAmount, "")}
	}

	if err := h.engine.Validate(r.Context(), userID, p.Account.PlanID, amount); err != nil {
		return h.mapError(r, err)
	}
	return rpcResponse{Result: map[string]any{"allow": true}}
}

func (h *Handler) create(r *http.Request, raw json.RawMessage) rpcResponse {
	var p createParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return rpcResponse{Error: rpcErr(codeInvalidRequest, "")}
	}

	userID, err := uuid.Parse(p.Account.UserID)
	if err != nil {
		return rpcResponse{Error: rpcErr(codeMalformedAccount, "account.user_id")}
	}
	amount, err := billing.ParseAmount(p.Amount)
	if err != nil {
		return rpcResponse{Error: rpcErr(codeInvalidAmount, "")}
	}

	tx, err := h.engine.Prepare(r.Context(), billing.PrepareRequest{
		Provider:       ledger.ProviderPayme,
		TransID:        p.ID,
		UserID:         userID,
		PlanID:         p.Account.PlanID,
		Amount:         amount,
		PendingTimeout: h.cfg.PendingTimeout,
	})
	if err != nil {
		return h.mapError(r, err)
	}

	return rpcResponse{Result: createResult{
		CreateTime:  tx.CreateTime.UnixMilli(),
		Transaction: tx.ID.String(),
		State:       int32(tx.SubState),
	}}
}

func (h *Handler) perform(r *http.Request, raw json.RawMessage) rpcResponse {
	var p transIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return rpcResponse{Error: rpcErr(codeInvalidRequest, "")}
	}

	tx, err := h.engine.Complete(r.Context(), billing.CompleteRequest{
		Provider:       ledger.ProviderPayme,
		TransID:        p.ID,
		PendingTimeout: h.cfg.PendingTimeout,
	})
	if err != nil {
		return h.mapError(r, err)
	}

	return rpcResponse{Result: performResult{
		Transaction: tx.ID.String(),
		PerformTime: ms(tx.PerformTime),
		State:       int32(tx.SubState),
	}}
}

func (h *Handler) cancel(r *http.Request, raw json.RawMessage) rpcResponse {
	var p cancelParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return rpcResponse{Error: rpcErr(codeInvalidRequest, "")}
	}

	tx, err := h.engine.Cancel(r.Context(), billing.CancelRequest{
		Provider: ledger.ProviderPayme,
		TransID:  p.ID,
		Reason:   p.Reason,
	})
	if err != nil {
		return h.mapError(r, err)
	}

	return rpcResponse{Result: cancelResult{
		Transaction: tx.ID.String(),
		CancelTime:  ms(tx.CancelTime),
		State:       int32(tx.SubState),
	}}
}

func (h *Handler) check(r *http.Request, raw json.RawMessage) rpcResponse {
	var p transIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return rpcResponse{Error: rpcErr(codeInvalidRequest, "")}
	}

	tx, err := h.engine.Check(r.Context(), ledger.ProviderPayme, p.ID)
	if err != nil {
		return h.mapError(r, err)
	}

	return rpcResponse{Result: checkResult{
		CreateTime:  tx.CreateTime.UnixMilli(),
		PerformTime: ms(tx.PerformTime),
		CancelTime:  ms(tx.CancelTime),
		Transaction: tx.ID.String(),
		State:       int32(tx.SubState),
		Reason:      reasonPtr(tx),
	}}
}

func (h *Handler) statement(r *http.Request, raw json.RawMessage) rpcResponse {
	var p statementParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return rpcResponse{Error: rpcErr(codeInvalidRequest, "")}
	}

	from := time.UnixMilli(p.From)
	to := time.UnixMilli(p.To)
	txs, err := h.engine.Statement(r.Context(), ledger.ProviderPayme, from, to)
	if err != nil {
		return h.mapError(r, err)
	}

	entries := make([]statementEntry, 0, len(txs))
	for i := range txs {
		tx := &txs[i]
		entries = append(entries, statementEntry{
			ID:          tx.TransID,
			Time:        tx.CreateTime.UnixMilli(),
			Amount:      tx.Amount,
			Account:     account{UserID: tx.UserID.String(), PlanID: tx.PlanID},
			CreateTime:  tx.CreateTime.UnixMilli(),
			PerformTime: ms(tx.PerformTime),
			CancelTime:  ms(tx.CancelTime),
			Transaction: tx.ID.String(),
			State:       int32(tx.SubState),
			Reason:      reasonPtr(tx),
		})
	}
	return rpcResponse{Result: statementResult{Transactions: entries}}
}

// mapError translates engine failures into the provider's error codes.
func (h *Handler) mapError(r *http.Request, err error) rpcResponse {
	switch {
	case errors.Is(err, entitlement.ErrUserNotFound):
		return rpcResponse{Error: rpcErr(codeUserNotFound, "account.user_id")}
	case errors.Is(err, plan.ErrPlanNotFound):
		return rpcResponse{Error: rpcErr(codePlanNotFound, "account.plan_id")}
	case errors.Is(err, billing.ErrAlreadySubscribed):
		return rpcResponse{Error: rpcErr(codeAlreadyActive, "")}
	case errors.Is(err, billing.ErrInvalidAmount), errors.Is(err, billing.ErrMalformedAmount):
		return rpcResponse{Error: rpcErr(codeInvalidAmount, "")}
	case errors.Is(err, billing.ErrPendingExists):
		return rpcResponse{Error: rpcErr(codeOrderHasPending, "")}
	case errors.Is(err, billing.ErrAlreadyPaid),
		errors.Is(err, billing.ErrAlreadyCanceled),
		errors.Is(err, billing.ErrExpired):
		return rpcResponse{Error: rpcErr(codeCannotPerform, "")}
	case errors.Is(err, ledger.ErrNotFound):
		return rpcResponse{Error: rpcErr(codeTransNotFound, "")}
	default:
		h.log.ErrorContext(r.Context(), "rpc processing failed",
			logger.Error(err), logger.Provider("payme"))
		return rpcResponse{Error: rpcErr(codeInternalError, "")}
	}
}

func (h *Handler) respond(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("rpc response encoding failed", logger.Error(err))
	}
}

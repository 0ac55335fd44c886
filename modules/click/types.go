package click

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Action codes carried in the callback's action field.
const (
	actionPrepare  = "0"
	actionComplete = "1"
)

// Provider-defined response codes.
const (
	codeSuccess        int32 = 0
	codeBadSignature   int32 = -1
	codeBadAmount      int32 = -2
	codeUnknownAction  int32 = -3
	codeAlreadyPaid    int32 = -4
	codeUserNotFound   int32 = -5
	codeTransNotFound  int32 = -6
	codeBadRequest     int32 = -8
	codeTransCanceled  int32 = -9
	codeInternalError  int32 = -7
)

// callbackRequest is the strict shape of one provider callback. Every field
// arrives form-encoded; validation happens eagerly at the boundary before
// any business logic runs.
type callbackRequest struct {
	ClickTransID      string
	ServiceID         string
	MerchantTransID   string
	MerchantPrepareID string
	Amount            string
	Action            string
	Error             string
	ErrorNote         string
	SignTime          string
	SignString        string
}

func parseCallback(r *http.Request) (callbackRequest, error) {
	if err := r.ParseForm(); err != nil {
		return callbackRequest{}, err
	}
	get := func(key string) string { return strings.TrimSpace(r.PostFormValue(key)) }

	req := callbackRequest{
		ClickTransID:      get("click_trans_id"),
		ServiceID:         get("service_id"),
		MerchantTransID:   get("merchant_trans_id"),
		MerchantPrepareID: get("merchant_prepare_id"),
		Amount:            get("amount"),
		Action:            get("action"),
		Error:             get("error"),
		ErrorNote:         get("error_note"),
		SignTime:          get("sign_time"),
		SignString:        get("sign_string"),
	}
	if req.ClickTransID == "" || req.ServiceID == "" || req.SignString == "" {
		return req, fmt.Errorf("missing required callback fields")
	}
	return req, nil
}

// reference is the decoded merchant_trans_id: "planID.userID", URL-encoded
// by the link builder.
type reference struct {
	PlanID string
	UserID uuid.UUID
}

func decodeReference(merchantTransID string) (reference, error) {
	decoded, err := url.QueryUnescape(merchantTransID)
	if err != nil {
		return reference{}, fmt.Errorf("undecodable merchant_trans_id: %w", err)
	}
	planID, rawUser, ok := strings.Cut(decoded, ".")
	if !ok || planID == "" {
		return reference{}, fmt.Errorf("malformed merchant_trans_id %q", decoded)
	}
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		return reference{}, fmt.Errorf("malformed user id in merchant_trans_id: %w", err)
	}
	return reference{PlanID: planID, UserID: userID}, nil
}

// callbackResponse is the flat JSON echo the provider expects.
type callbackResponse struct {
	ClickTransID      string `json:"click_trans_id"`
	MerchantTransID   string `json:"merchant_trans_id"`
	MerchantPrepareID string `json:"merchant_prepare_id,omitempty"`
	MerchantConfirmID string `json:"merchant_confirm_id,omitempty"`
	Error             int32  `json:"error"`
	ErrorNote         string `json:"error_note"`
}

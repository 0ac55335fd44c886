package payme

import (
	"encoding/json"
	"time"

	"github.com/dmitrymomot/subpay/svc/ledger"
)

// rpcRequest is the JSON-RPC 2.0 envelope the provider posts. The id is kept
// raw so string and numeric ids echo back unchanged.
type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcResponse struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int32      `json:"code"`
	Message rpcMessage `json:"message"`
	Data    string     `json:"data,omitempty"`
}

// rpcMessage carries the error text in the three languages the protocol
// requires.
type rpcMessage struct {
	Ru string `json:"ru"`
	Uz string `json:"uz"`
	En string `json:"en"`
}

// Transport-level error codes.
const (
	codeParseError     int32 = -32700
	codeInvalidRequest int32 = -32600
	codeMethodNotFound int32 = -32601
	codeUnauthorized   int32 = -32504
	codeInternalError  int32 = -32400
)

// Business error codes. Account problems live in the -31050..-31099 range
// the protocol reserves for merchant-defined checks.
const (
	codeInvalidAmount    int32 = -31001
	codeTransNotFound    int32 = -31003
	codeCannotPerform    int32 = -31008
	codeUserNotFound     int32 = -31050
	codePlanNotFound     int32 = -31051
	codeAlreadyActive    int32 = -31052
	codeOrderHasPending  int32 = -31053
	codeMalformedAccount int32 = -31054
)

var errMessages = map[int32]rpcMessage{
	codeParseError:     {Ru: "Ошибка разбора запроса", Uz: "So'rovni o'qishda xatolik", En: "Could not parse request"},
	codeInvalidRequest: {Ru: "Неверный запрос", Uz: "Noto'g'ri so'rov", En: "Invalid request"},
	codeMethodNotFound: {Ru: "Метод не найден", Uz: "Metod topilmadi", En: "Method not found"},
	codeUnauthorized:   {Ru: "Недостаточно привилегий", Uz: "Huquqlar yetarli emas", En: "Insufficient privileges"},
	codeInternalError:  {Ru: "Внутренняя ошибка", Uz: "Ichki xatolik", En: "Internal error"},

	codeInvalidAmount:    {Ru: "Неверная сумма", Uz: "Noto'g'ri summa", En: "Incorrect amount"},
	codeTransNotFound:    {Ru: "Транзакция не найдена", Uz: "Tranzaksiya topilmadi", En: "Transaction not found"},
	codeCannotPerform:    {Ru: "Невозможно выполнить операцию", Uz: "Amalni bajarib bo'lmaydi", En: "Could not perform operation"},
	codeUserNotFound:     {Ru: "Пользователь не найден", Uz: "Foydalanuvchi topilmadi", En: "User not found"},
	codePlanNotFound:     {Ru: "Тариф не найден", Uz: "Tarif topilmadi", En: "Plan not found"},
	codeAlreadyActive:    {Ru: "Подписка уже активна", Uz: "Obuna allaqachon faol", En: "Subscription already active"},
	codeOrderHasPending:  {Ru: "По заказу уже есть ожидающий платёж", Uz: "Buyurtma bo'yicha kutilayotgan to'lov mavjud", En: "Order already has a pending payment"},
	codeMalformedAccount: {Ru: "Неверные реквизиты счёта", Uz: "Hisob rekvizitlari noto'g'ri", En: "Malformed account details"},
}

func rpcErr(code int32, data string) *rpcError {
	msg, ok := errMessages[code]
	if !ok {
		msg = errMessages[codeInternalError]
	}
	return &rpcError{Code: code, Message: msg, Data: data}
}

// account identifies what is being paid for. The checkout link embeds the
// same two fields as ac.* parameters.
type account struct {
	UserID string `json:"user_id"`
	PlanID string `json:"plan_id"`
}

type checkPerformParams struct {
	Amount  any     `json:"amount"`
	Account account `json:"account"`
}

type createParams struct {
	ID      string  `json:"id"`
	Time    int64   `json:"time"`
	Amount  any     `json:"amount"`
	Account account `json:"account"`
}

type transIDParams struct {
	ID string `json:"id"`
}

type cancelParams struct {
	ID     string `json:"id"`
	Reason int32  `json:"reason"`
}

type statementParams struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type createResult struct {
	CreateTime  int64  `json:"create_time"`
	Transaction string `json:"transaction"`
	State       int32  `json:"state"`
}

type performResult struct {
	Transaction string `json:"transaction"`
	PerformTime int64  `json:"perform_time"`
	State       int32  `json:"state"`
}

type cancelResult struct {
	Transaction string `json:"transaction"`
	CancelTime  int64  `json:"cancel_time"`
	State       int32  `json:"state"`
}

type checkResult struct {
	CreateTime  int64  `json:"create_time"`
	PerformTime int64  `json:"perform_time"`
	CancelTime  int64  `json:"cancel_time"`
	Transaction string `json:"transaction"`
	State       int32  `json:"state"`
	Reason      *int32 `json:"reason"`
}

type statementEntry struct {
	ID          string  `json:"id"`
	Time        int64   `json:"time"`
	Amount      int64   `json:"amount"`
	Account     account `json:"account"`
	CreateTime  int64   `json:"create_time"`
	PerformTime int64   `json:"perform_time"`
	CancelTime  int64   `json:"cancel_time"`
	Transaction string  `json:"transaction"`
	State       int32   `json:"state"`
	Reason      *int32  `json:"reason"`
}

type statementResult struct {
	Transactions []statementEntry `json:"transactions"`
}

// ms converts a timestamp to the millisecond epoch form the protocol uses;
// nil and zero times become 0.
func ms(t *time.Time) int64 {
	if t == nil || t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func reasonPtr(tx *ledger.Transaction) *int32 {
	if tx.CancelReason == ledger.ReasonNone {
		return nil
	}
	r := tx.CancelReason
	return &r
}

// Package payme adapts the JSON-RPC payment protocol: a single POST
// endpoint guarded by basic-auth credentials, dispatching the
// CheckPerformTransaction, CreateTransaction, PerformTransaction,
// CancelTransaction, CheckTransaction and GetStatement methods. Errors
// carry the provider's negative codes with ru/uz/en messages, and every
// response, success or failure, is an HTTP 200.
package payme

// Package ledger is the transaction state machine shared by every payment
// provider. It records payment attempts keyed by the provider-issued external
// transaction id, enforces the legal state transitions
// (PENDING→PAID, PENDING→CANCELED/FAILED, PAID→CANCELED) and keeps the
// provider-facing numeric sub-states so check queries can replay exact prior
// results. Rows are append-only: updated in place, never deleted.
package ledger

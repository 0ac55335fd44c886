// Package billing is the reconciliation engine shared by every payment
// provider. Three incompatible wire protocols (a two-phase merchant
// callback, a JSON-RPC transaction lifecycle and a card-token flow) collapse
// into one state machine here: provider modules authenticate and decode
// their own requests, normalize amounts into minor units, then drive the
// engine's Prepare, Complete, Cancel and Check operations.
//
// The engine guarantees the ledger invariants: external transaction ids are
// idempotency keys, state only moves forward, and the paid transition
// commits atomically with the entitlement grant. Notifications and other
// outbound calls run strictly after commit.
package billing

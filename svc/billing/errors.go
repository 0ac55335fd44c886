package billing

import "errors"

var (
	// ErrMalformedAmount is returned when a wire amount cannot be parsed at all.
	ErrMalformedAmount = errors.New("malformed amount")

	// ErrInvalidAmount is returned when a parsed amount does not equal the
	// plan's authoritative price.
	ErrInvalidAmount = errors.New("amount does not match plan price")

	// ErrAlreadySubscribed is returned when the user already holds an active
	// subscription; providers receive a success-shaped rejection.
	ErrAlreadySubscribed = errors.New("user already has an active subscription")

	// ErrAlreadyPaid is returned when a create call references a transaction
	// that has already been performed.
	ErrAlreadyPaid = errors.New("transaction already paid")

	// ErrAlreadyCanceled is returned when a call references a transaction in
	// a terminal canceled state.
	ErrAlreadyCanceled = errors.New("transaction already canceled")

	// ErrPendingExists is returned when another unexpired pending transaction
	// for the same user and plan blocks a new create.
	ErrPendingExists = errors.New("pending transaction already exists for this order")

	// ErrExpired is returned when a pending transaction outlived its timeout;
	// the row is canceled with a timeout reason as a side effect.
	ErrExpired = errors.New("transaction expired")
)

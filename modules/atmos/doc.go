// Package atmos adapts the card-token payment flow: the bot collects a
// card number, the provider sends an OTP, and a confirmed binding yields a
// reusable debit token. Charges ride the token through the shared ledger
// path, and a first successful verification opens the trial window.
package atmos

// Package paylink mints and resolves signed checkout and cancellation
// links. The payload rides inside an HMAC token, so a forwarded link
// cannot be edited into another plan, price or user.
package paylink

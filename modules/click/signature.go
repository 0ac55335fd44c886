package click

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
)

// signString computes the provider's MD5 over the documented field
// concatenation. The prepare id participates only on the complete action,
// where the provider echoes it back.
func signString(secret string, r callbackRequest) string {
	s := r.ClickTransID + r.ServiceID + secret + r.MerchantTransID
	if r.Action == actionComplete {
		s += r.MerchantPrepareID
	}
	s += r.Amount + r.Action + r.SignTime

	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// verifySignature checks the callback's sign_string in constant time.
// It runs before any repository read so unauthenticated callers learn
// nothing about transaction existence.
func verifySignature(secret string, r callbackRequest) bool {
	expected := signString(secret, r)
	return hmac.Equal([]byte(expected), []byte(r.SignString))
}

// Package token provides compact, signed tokens for embedding JSON payloads.
//
// Tokens use HMAC-SHA256 with truncated 8-byte signatures for balance between
// security and compactness. The payment and cancellation links embed these
// tokens so public URLs never expose raw user or plan identifiers.
//
// Token format: base64url(payload).base64url(signature)
//
// The 8-byte signature provides ~2^32 collision resistance, sufficient for
// short-lived redirect links but not for high-value or long-lived tokens.
//
//	type Payload struct {
//	    UserID string `json:"uid"`
//	    Exp    int64  `json:"exp"`
//	}
//
//	tok, err := token.GenerateToken(Payload{"42", time.Now().Add(time.Hour).Unix()}, secret)
//
//	p, err := token.ParseToken[Payload](tok, secret)
//
// Returns ErrInvalidToken for malformed tokens and ErrSignatureInvalid for
// signature mismatches.
package token

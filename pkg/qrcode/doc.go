// Package qrcode renders content as PNG QR codes, either raw bytes or a
// base64 data URI for inline HTML embedding. Pay links ride through here
// on their way into chat messages.
package qrcode

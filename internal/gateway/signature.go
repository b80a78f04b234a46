package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Verifier checks payment confirmation signatures: a hex encoded
// HMAC-SHA256 over "<order id>|<payment id>" keyed with the account
// secret.  The secret never leaves the server.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier for the given key secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign returns the signature the provider would send for the pair.
func (v *Verifier) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares the supplied signature with the expected one in
// constant time.
func (v *Verifier) Verify(orderID, paymentID, signature string) bool {
	if len(v.secret) == 0 || orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(v.Sign(orderID, paymentID)), []byte(signature))
}

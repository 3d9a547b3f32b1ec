package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the lowercase hex HMAC-SHA256 of "orderID|paymentID" under
// secret. This is the gateway's callback signature scheme.
func Sign(secret []byte, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// signatureMatches compares exactly: no case folding, no trimming.
func signatureMatches(expected, supplied string) bool {
	return hmac.Equal([]byte(expected), []byte(supplied))
}

package midtrans

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Signature computes the notification digest Midtrans attaches to every
// webhook: sha512 over the concatenation of order ID, status code, gross
// amount, and the merchant server key.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// VerifySignature checks a notification's signature_key in constant time.
// Midtrans documents lowercase hex but the comparison tolerates either case.
func VerifySignature(orderID, statusCode, grossAmount, serverKey, signature string) bool {
	if signature == "" {
		return false
	}
	expected := Signature(orderID, statusCode, grossAmount, serverKey)
	got := strings.ToLower(signature)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

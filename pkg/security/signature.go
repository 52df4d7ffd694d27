package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"strings"

	"github.com/shopspring/decimal"
)

// signatureSeparator joins the signed fields. The wallet provider computes the
// same string on its side, so it must not change.
const signatureSeparator = ":::"

// Sign computes the wallet provider signature for a payment:
// base64(HMAC-SHA512(apiSecret, SHA256(amount:::orderID:::apiKey))).
// The HMAC is taken over the raw digest bytes, not their hex form.
func Sign(amount, orderID, apiKey, apiSecret string) string {
	payload := strings.Join([]string{amount, orderID, apiKey}, signatureSeparator)
	digest := sha256.Sum256([]byte(payload))

	mac := hmac.New(sha512.New, []byte(apiSecret))
	mac.Write(digest[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether claimed matches the signature computed from
// the server-held credentials. The comparison is constant time and case
// sensitive. An empty claim or secret never verifies.
func VerifySignature(amount, orderID, apiKey, apiSecret, claimed string) bool {
	if claimed == "" || apiSecret == "" {
		return false
	}
	expected := Sign(amount, orderID, apiKey, apiSecret)
	return hmac.Equal([]byte(expected), []byte(claimed))
}

// FormatAmount renders an amount the way the provider stringifies numbers:
// no trailing zeros and no exponent ("10", "10.5", "0.25").
func FormatAmount(amount decimal.Decimal) string {
	return amount.String()
}

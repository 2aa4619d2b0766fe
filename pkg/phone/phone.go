// Package phone canonicalizes MSISDNs into the two forms the rest of the
// service relies on: E.164 with a leading "+" for routing and storage, and
// bare digits for the WhatsApp provider wire format.
package phone

import "strings"

// ToE164 normalizes a raw phone number to E.164 form with a leading "+".
// Everything except digits is stripped; the result is re-prefixed with "+".
// Returns "" when the input contains no digits.
func ToE164(raw string) string {
	digits := stripNonDigits(raw)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// ToDigits normalizes a raw phone number to bare digits, no "+".
// The provider sandbox expects this form in message payloads.
// Returns "" when the input contains no digits.
func ToDigits(raw string) string {
	return stripNonDigits(raw)
}

func stripNonDigits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Package delivery sends text and media messages through the gateway,
// combining instance resolution, media normalization, and the retry
// executor into one resilient send path.
package delivery

import "strings"

const localNumberDigits = 11

// FormatPhoneNumber canonicalizes a recipient number: every character other
// than digits is stripped (including a leading +), and a bare local number
// of 11 digits is prefixed with the configured default country code. The
// rule goes by digit count alone; an 11-digit number whose area code happens
// to match the country code digits is still local and still gets prefixed.
func FormatPhoneNumber(raw, defaultCountryCode string) string {
	var builder strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			builder.WriteRune(r)
		}
	}
	number := builder.String()
	if len(number) == localNumberDigits {
		number = defaultCountryCode + number
	}
	return number
}

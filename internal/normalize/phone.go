// Package normalize canonicalizes phone numbers and formats claim fields for display.
// Every function here is pure and never fails: input that cannot be formatted is returned as is.
package normalize

import (
	"strings"

	"github.com/ttacon/libphonenumber"
)

// DefaultRegion is used to interpret numbers written without a country code.
const DefaultRegion = "RU"

// Phone strips every non-digit character. Empty input yields "".
func Phone(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneForDisplay renders an 11-digit number as +D (DDD) DDD-DD-DD.
// Any other input is returned unchanged.
func PhoneForDisplay(digits string) string {
	if len(digits) != 11 || Phone(digits) != digits {
		return digits
	}
	return "+" + digits[:1] + " (" + digits[1:4] + ") " + digits[4:7] + "-" + digits[7:9] + "-" + digits[9:11]
}

// ValidPhone reports whether raw parses as a possible phone number, reading
// numbers without a country code as Russian ones.
func ValidPhone(raw string) bool {
	digits := Phone(raw)
	if digits == "" {
		return false
	}
	candidate := raw
	// 8XXXXXXXXXX is the domestic trunk form of +7XXXXXXXXXX.
	if len(digits) == 11 && (digits[0] == '7' || digits[0] == '8') {
		candidate = "+7" + digits[1:]
	}
	num, err := libphonenumber.Parse(candidate, DefaultRegion)
	if err != nil {
		return false
	}
	return libphonenumber.IsPossibleNumber(num)
}

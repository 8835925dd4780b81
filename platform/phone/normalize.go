// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when a number carries no country prefix.
const DefaultRegion = "DE"

// MinDigits is the smallest number of digits accepted for a contact phone.
const MinDigits = 6

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, DefaultRegion)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// DigitCount returns the number of significant digits in input. Parsable
// numbers count their national significant number, anything else counts raw digits.
func DigitCount(input string) int {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0
	}
	if number, err := phonenumbers.Parse(trimmed, DefaultRegion); err == nil {
		return len(phonenumbers.GetNationalSignificantNumber(number))
	}
	count := 0
	for _, r := range trimmed {
		if unicode.IsDigit(r) {
			count++
		}
	}
	return count
}

// HasMinDigits reports whether input carries at least MinDigits digits.
func HasMinDigits(input string) bool {
	return DigitCount(input) >= MinDigits
}

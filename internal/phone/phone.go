package phone

import (
	"regexp"
	"strings"
)

// Best-effort E.164 normalization, no carrier validation:
// accepts +-prefixed international numbers (8-15 digits), US local
// 10-digit numbers (normalized to +1) and US 11-digit numbers starting
// with 1. The result is the participant's identity key, so the same raw
// input must always map to the same output.

var (
	keepRe          = regexp.MustCompile(`[^\d+]`)
	digitsRe        = regexp.MustCompile(`\D`)
	internationalRe = regexp.MustCompile(`^[1-9]\d{7,14}$`)
)

func Normalize(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	sanitized := keepRe.ReplaceAllString(trimmed, "")
	if sanitized == "" {
		return "", false
	}

	// Common international prefix 00 means +.
	if strings.HasPrefix(sanitized, "00") {
		sanitized = "+" + sanitized[2:]
	}

	// A plus anywhere but the front invalidates the whole input.
	if strings.Contains(sanitized[1:], "+") {
		return "", false
	}

	if !strings.HasPrefix(sanitized, "+") {
		digits := digitsRe.ReplaceAllString(sanitized, "")
		if len(digits) == 10 {
			return "+1" + digits, true
		}
		if len(digits) == 11 && strings.HasPrefix(digits, "1") {
			return "+" + digits, true
		}
		return "", false
	}

	digits := sanitized[1:]
	if !internationalRe.MatchString(digits) {
		return "", false
	}
	return "+" + digits, true
}

// Mask renders an E.164 number as +<country>••••••<last4> for display.
func Mask(e164 string) (string, bool) {
	if e164 == "" {
		return "", false
	}

	digits := digitsRe.ReplaceAllString(e164, "")
	if len(digits) < 4 {
		return "", false
	}

	countryLen := len(digits) - 10
	if countryLen < 1 {
		countryLen = 1
	}
	return "+" + digits[:countryLen] + "••••••" + digits[len(digits)-4:], true
}

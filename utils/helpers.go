package utils

import (
	"strings"
)

// CleanPhoneNumber removes all non-digit characters from a phone number.
func CleanPhoneNumber(phone string) string {
	var result strings.Builder
	for _, char := range phone {
		if char >= '0' && char <= '9' {
			result.WriteRune(char)
		}
	}
	return result.String()
}

// NormalizeMSISDN strips formatting so the same number always produces the
// same customer row and cache key. WhatsApp JIDs like 5511999999999@c.us are
// reduced to their digit prefix.
func NormalizeMSISDN(phone string) string {
	if at := strings.IndexByte(phone, '@'); at >= 0 {
		phone = phone[:at]
	}
	return CleanPhoneNumber(phone)
}

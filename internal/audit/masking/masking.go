// Package masking redacts sensitive values (bank account numbers, emails)
// before they reach audit log metadata.
package masking

import "strings"

const maskToken = "****"

// MaskAccountNumber keeps the last four digits of a bank account number.
func MaskAccountNumber(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskEmail hides the local part of an address while keeping the domain.
func MaskEmail(value string) string {
	trimmed := strings.TrimSpace(value)
	at := strings.LastIndex(trimmed, "@")
	if at <= 0 {
		return maskToken
	}
	return maskToken + trimmed[at:]
}

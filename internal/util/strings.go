// Package util provides common utility functions used across the formrelay
// library. These utilities handle string manipulation and log sanitization
// that don't fit into domain-specific packages.
package util

import "strings"

// SafeTruncate safely truncates a string to maxLen characters without
// panicking. Returns the original string if it's shorter than maxLen,
// otherwise returns the first maxLen characters. This prevents index out of
// bounds errors when logging sensitive data, where only a prefix should be
// shown.
//
// If maxLen is negative, it's treated as 0 and returns an empty string.
//
// Example:
//
//	SafeTruncate("very-long-token-abc123", 8) // Returns: "very-lon"
//	SafeTruncate("short", 10)                  // Returns: "short"
//	SafeTruncate("test", -1)                   // Returns: ""
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// MaskEmail reduces an email address to a loggable form that avoids leaking
// the full address: the first three characters of the local part followed by
// "***@" and the domain.
//
// Example:
//
//	MaskEmail("john.doe@example.com") // Returns: "joh***@example.com"
//	MaskEmail("a@example.com")        // Returns: "a***@example.com"
//	MaskEmail("not-an-email")         // Returns: "***"
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	local := email[:at]
	return SafeTruncate(local, 3) + "***@" + email[at+1:]
}

package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactPhone keeps the last two characters of a phone number, device token
// or other opaque address: "+15551234567" → "***67". Values of four
// characters or fewer are fully masked.
func RedactPhone(val string) string {
	if len(val) <= 4 {
		return "***"
	}
	return "***" + val[len(val)-2:]
}

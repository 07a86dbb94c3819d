package billing

import (
	"strings"
	"unicode"
)

// NormalizeEmail lowercases and trims an email address so that it can
// serve as a person identity key. Display-name forms like
// "Jane Doe <jane@firm.com>" are reduced to the address part.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	if open := strings.LastIndex(email, "<"); open != -1 {
		if close := strings.LastIndex(email, ">"); close > open {
			email = email[open+1 : close]
		}
	}
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone reduces a phone number to its digits, keeping a single
// leading + for international prefixes. Returns "" when no digits remain.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range phone {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "+" {
		return ""
	}
	return out
}

// NormalizeOrgName case-folds an organization name and collapses runs of
// whitespace so that "Acme  Corp." and "acme corp." resolve to the same
// node.
func NormalizeOrgName(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	return strings.Join(fields, " ")
}

// NormalizeCaseNumber trims and uppercases a case number; case numbers
// like cv-2025-123 and CV-2025-123 refer to the same case.
func NormalizeCaseNumber(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}

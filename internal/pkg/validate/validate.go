package validate

import "strings"

const (
	UsernameMinLen = 3
	UsernameMaxLen = 50
	PasswordMinLen = 6
)

func Required(value string) bool {
	return strings.TrimSpace(value) != ""
}

// Username trims the value and reports whether it fits the allowed length bounds.
func Username(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) < UsernameMinLen || len(trimmed) > UsernameMaxLen {
		return trimmed, false
	}
	return trimmed, true
}

func Email(value string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" || !strings.Contains(normalized, "@") {
		return normalized, false
	}
	return normalized, true
}

func Password(value string) bool {
	return len(value) >= PasswordMinLen
}

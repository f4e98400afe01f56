package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Eingabevalidierung für die Admin-Oberfläche. Die eigentliche
// Autorisierung liegt beim Erkennungsdienst; hier werden nur offenkundig
// fehlerhafte Eingaben vor dem Netzwerkaufruf abgefangen.

var (
	usernamePattern   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	personNamePattern = regexp.MustCompile(`^[\p{L}][\p{L} .'\-]*$`)
	monthPattern      = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)
)

// Username prüft einen Admin-Benutzernamen
func Username(value string) (string, error) {
	value = strings.TrimSpace(value)
	if len(value) < 3 || len(value) > 50 {
		return "", fmt.Errorf("username must be 3-50 characters")
	}
	if !usernamePattern.MatchString(value) {
		return "", fmt.Errorf("username may only contain letters, digits, underscore and dash")
	}
	return value, nil
}

// Password prüft ein Admin-Passwort auf plausible Länge
func Password(value string) (string, error) {
	if len(value) < 4 || len(value) > 100 {
		return "", fmt.Errorf("password must be 4-100 characters")
	}
	return value, nil
}

// PersonName prüft und normalisiert einen Personennamen
func PersonName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if len([]rune(value)) < 2 || len([]rune(value)) > 100 {
		return "", fmt.Errorf("name must be 2-100 characters")
	}
	if !personNamePattern.MatchString(value) {
		return "", fmt.Errorf("name contains invalid characters")
	}
	return titleCase(value), nil
}

// ID prüft einen numerischen Bezeichner
func ID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", value)
	}
	return id, nil
}

// Month prüft einen Monat im Format YYYY-MM
func Month(value string) (string, error) {
	value = strings.TrimSpace(value)
	if !monthPattern.MatchString(value) {
		return "", fmt.Errorf("month must have the form YYYY-MM")
	}
	return value, nil
}

// titleCase kapitalisiert jedes Wort eines Namens
func titleCase(value string) string {
	words := strings.Fields(value)
	for i, word := range words {
		runes := []rune(strings.ToLower(word))
		if len(runes) > 0 {
			runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
		}
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

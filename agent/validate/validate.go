package validate

import (
	"regexp"
	"strings"
	"unicode/utf8"

	errcodex "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/errcode"
)

const (
	MaxMessageLength = 2000

	// Messages longer than this must contain at least one Latin letter.
	latinCheckThreshold = 10
)

var latinLetter = regexp.MustCompile(`[A-Za-z]`)

// Message checks raw and returns its normalized form. Rejections are
// *errcode.Error values carrying the matching taxonomy entry.
func Message(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errcodex.New(errcodex.InvalidInput, nil)
	}

	length := utf8.RuneCountInString(trimmed)
	if length > MaxMessageLength {
		return "", errcodex.New(errcodex.MessageTooLong, nil)
	}
	if length > latinCheckThreshold && !latinLetter.MatchString(trimmed) {
		return "", errcodex.New(errcodex.UnsupportedLanguage, nil)
	}

	return Normalize(trimmed), nil
}

// Normalize trims, collapses whitespace runs (Unicode spaces included) and
// truncates to MaxMessageLength runes. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	out := strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(out) > MaxMessageLength {
		out = string([]rune(out)[:MaxMessageLength])
	}
	return strings.TrimSpace(out)
}

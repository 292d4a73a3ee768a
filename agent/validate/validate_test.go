package validate

import (
	"errors"
	"strings"
	"testing"

	errcodex "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/errcode"
)

func codeOf(t *testing.T, err error) int {
	t.Helper()
	var coded *errcodex.Error
	if !errors.As(err, &coded) {
		t.Fatalf("expected *errcode.Error, got %T (%v)", err, err)
	}
	return coded.Entry.Code
}

func TestMessageRejectsEmpty(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "   ", "\n\t  \r\n"} {
		_, err := Message(raw)
		if got := codeOf(t, err); got != errcodex.InvalidInput.Code {
			t.Fatalf("Message(%q) code = %d, want %d", raw, got, errcodex.InvalidInput.Code)
		}
	}
}

func TestMessageRejectsTooLong(t *testing.T) {
	t.Parallel()

	_, err := Message(strings.Repeat("a", MaxMessageLength+1))
	if got := codeOf(t, err); got != errcodex.MessageTooLong.Code {
		t.Fatalf("code = %d, want %d", got, errcodex.MessageTooLong.Code)
	}

	out, err := Message(strings.Repeat("a", MaxMessageLength))
	if err != nil {
		t.Fatalf("Message() at limit error = %v", err)
	}
	if len(out) != MaxMessageLength {
		t.Fatalf("len = %d, want %d", len(out), MaxMessageLength)
	}
}

func TestMessageCountsRunesNotBytes(t *testing.T) {
	t.Parallel()

	// 1500 two-byte runes plus a Latin letter stays under the limit.
	raw := "a" + strings.Repeat("é", 1500)
	if _, err := Message(raw); err != nil {
		t.Fatalf("Message() error = %v", err)
	}
}

func TestMessageRejectsNonLatin(t *testing.T) {
	t.Parallel()

	_, err := Message("Привет как дела сегодня")
	if got := codeOf(t, err); got != errcodex.UnsupportedLanguage.Code {
		t.Fatalf("code = %d, want %d", got, errcodex.UnsupportedLanguage.Code)
	}

	// Short messages skip the language check.
	if _, err := Message("😀👍"); err != nil {
		t.Fatalf("short non-latin message rejected: %v", err)
	}
}

func TestMessageNormalizes(t *testing.T) {
	t.Parallel()

	out, err := Message("  How   much\tis a \n wedding cake?  ")
	if err != nil {
		t.Fatalf("Message() error = %v", err)
	}
	if out != "How much is a wedding cake?" {
		t.Fatalf("unexpected normalized text: %q", out)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"hello",
		"  a  b   c ",
		"line\nbreak\ttab",
		strings.Repeat("x ", 1200),
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Fatalf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestNormalizeCollapsesUnicodeSpaces(t *testing.T) {
	t.Parallel()

	out, err := Message(" wedding  cake　　price please ")
	if err != nil {
		t.Fatalf("Message() error = %v", err)
	}
	if out != "wedding cake price please" {
		t.Fatalf("unexpected normalized text: %q", out)
	}
}

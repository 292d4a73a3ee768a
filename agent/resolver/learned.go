package resolver

import (
	"context"
	"strings"

	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
)

const (
	snippetRunes    = 20
	minSnippetRunes = 8
)

// Rand is the subset of *math/rand/v2.Rand the resolver needs.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

type learnedTier struct {
	rng        Rand
	window     int
	acceptance float64
}

func (learnedTier) Name() contractx.Source { return contractx.SourceLearned }

// Try reuses the bot reply given to a similar earlier question found in the
// newest window messages. A hit is only accepted with probability acceptance.
func (t learnedTier) Try(_ context.Context, in Input) (Reply, bool) {
	msgs := in.Conversation.Recent(t.window)
	if len(msgs) == 0 {
		return Reply{}, false
	}

	query := strings.ToLower(strings.TrimSpace(in.Text))
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Sender != contractx.SenderUser || !similar(strings.ToLower(m.Text), query) {
			continue
		}
		reply, ok := replyFor(msgs[i+1:], m.RequestID)
		if !ok {
			continue
		}
		if t.rng.Float64() >= t.acceptance {
			return Reply{}, false
		}
		return Reply{Text: reply, Source: contractx.SourceLearned}, true
	}
	return Reply{}, false
}

func replyFor(after []contractx.Message, requestID string) (string, bool) {
	for _, m := range after {
		if m.Sender != contractx.SenderBot || m.RequestID != requestID {
			continue
		}
		// Fallback and error texts are never worth repeating.
		if m.Metadata.Source == contractx.SourceFallback || m.Metadata.Source == "" {
			return "", false
		}
		if strings.TrimSpace(m.Text) == "" {
			return "", false
		}
		return m.Text, true
	}
	return "", false
}

// similar matches equal questions, or questions where one contains the other's
// leading snippetRunes characters.
func similar(prior, query string) bool {
	if prior == "" || query == "" {
		return false
	}
	if prior == query {
		return true
	}
	if p := snippet(query); p != "" && strings.Contains(prior, p) {
		return true
	}
	if p := snippet(prior); p != "" && strings.Contains(query, p) {
		return true
	}
	return false
}

func snippet(s string) string {
	r := []rune(s)
	if len(r) < minSnippetRunes {
		return ""
	}
	if len(r) > snippetRunes {
		r = r[:snippetRunes]
	}
	return string(r)
}

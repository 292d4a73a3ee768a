package resolver

import (
	"context"
	"strings"

	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
	"github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/knowledge"
)

type Input struct {
	RequestID    string
	Text         string
	Conversation *contractx.Conversation
}

type Reply struct {
	Text   string
	Source contractx.Source
	// ErrorCode is set when Text is the user message of a taxonomy entry.
	ErrorCode int
}

// Tier is one strategy of the resolution chain. Try reports false to let the
// next tier run.
type Tier interface {
	Name() contractx.Source
	Try(ctx context.Context, in Input) (Reply, bool)
}

/* --------------------------------- instant -------------------------------- */

var instantPhrases = map[string]string{
	"hi":        "Hey! What can I help you with?",
	"hello":     "Hi there! How can I help?",
	"hey":       "Hey! What's up?",
	"thanks":    "You're welcome! Anything else?",
	"thank you": "Happy to help! Need anything else?",
	"ok":        "Cool! What else can I do for you?",
	"yes":       "Awesome! What would you like to know?",
	"no":        "No worries! Let me know if you need anything.",
	"bye":       "See you later! Come back anytime!",
	"goodbye":   "Bye! Have a great day!",
}

type instantTier struct{}

func (instantTier) Name() contractx.Source { return contractx.SourceInstant }

func (instantTier) Try(_ context.Context, in Input) (Reply, bool) {
	text, ok := instantPhrases[strings.ToLower(strings.TrimSpace(in.Text))]
	if !ok {
		return Reply{}, false
	}
	return Reply{Text: text, Source: contractx.SourceInstant}, true
}

/* -------------------------------- knowledge ------------------------------- */

type knowledgeTier struct {
	kb *knowledge.Base
}

func (knowledgeTier) Name() contractx.Source { return contractx.SourceKnowledge }

func (t knowledgeTier) Try(_ context.Context, in Input) (Reply, bool) {
	text, _, ok := t.kb.Match(in.Text)
	if !ok {
		return Reply{}, false
	}
	return Reply{Text: text, Source: contractx.SourceKnowledge}, true
}

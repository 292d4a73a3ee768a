package prompt

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
)

//go:embed template/persona.txt
var personaRaw string

// HistoryTurns is how many stored messages accompany the current one.
const HistoryTurns = 5

const historyKey = "history"

// PromptSet holds the chat template for the AI tier.
type PromptSet struct {
	Persona einoprompt.ChatTemplate
}

// LoadPromptSet builds the persona template: system prompt, optional
// history placeholder, then the current user message.
func LoadPromptSet() (PromptSet, error) {
	persona := strings.TrimSpace(personaRaw)
	if persona == "" {
		return PromptSet{}, fmt.Errorf("%w: persona prompt is empty", contractx.ErrValidation)
	}
	return PromptSet{
		Persona: einoprompt.FromMessages(
			schema.GoTemplate,
			schema.SystemMessage(persona),
			schema.MessagesPlaceholder(historyKey, true),
			schema.UserMessage("{{.Message}}"),
		),
	}, nil
}

func MustLoadPromptSet() PromptSet {
	set, err := LoadPromptSet()
	if err != nil {
		panic(err)
	}
	return set
}

// Build assembles the completion request: persona with knowledge and profile,
// the last HistoryTurns stored messages and the current message.
func (p PromptSet) Build(
	ctx context.Context,
	knowledgeJSON string,
	profile map[string]any,
	history []contractx.Message,
	message string,
) (contractx.CompletionRequest, error) {
	profileJSON := "{}"
	if len(profile) > 0 {
		b, err := sonic.ConfigStd.MarshalIndent(profile, "", "  ")
		if err != nil {
			return contractx.CompletionRequest{}, fmt.Errorf("%w: marshal profile: %v", contractx.ErrValidation, err)
		}
		profileJSON = string(b)
	}

	if len(history) > HistoryTurns {
		history = history[len(history)-HistoryTurns:]
	}
	turns := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		if m.Sender == contractx.SenderUser {
			turns = append(turns, schema.UserMessage(m.Text))
		} else {
			turns = append(turns, schema.AssistantMessage(m.Text, nil))
		}
	}

	msgs, err := p.Persona.Format(ctx, map[string]any{
		"Knowledge": knowledgeJSON,
		"Profile":   profileJSON,
		"Message":   message,
		historyKey:  turns,
	})
	if err != nil {
		return contractx.CompletionRequest{}, fmt.Errorf("%w: render persona prompt: %v", contractx.ErrValidation, err)
	}
	return toCompletionRequest(msgs)
}

// toCompletionRequest expects the template's shape: system first, user last.
func toCompletionRequest(msgs []*schema.Message) (contractx.CompletionRequest, error) {
	if len(msgs) < 2 || msgs[0].Role != schema.System || msgs[len(msgs)-1].Role != schema.User {
		return contractx.CompletionRequest{}, fmt.Errorf("%w: unexpected prompt shape (%d messages)", contractx.ErrValidation, len(msgs))
	}

	req := contractx.CompletionRequest{
		SystemPrompt: msgs[0].Content,
		Message:      msgs[len(msgs)-1].Content,
		History:      make([]contractx.CompletionTurn, 0, len(msgs)-2),
	}
	for _, m := range msgs[1 : len(msgs)-1] {
		role := "assistant"
		if m.Role == schema.User {
			role = "user"
		}
		req.History = append(req.History, contractx.CompletionTurn{Role: role, Content: m.Content})
	}
	return req, nil
}

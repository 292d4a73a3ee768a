package prompt

import (
	"context"
	"fmt"
	"strings"
	"testing"

	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
)

func TestBuildKeepsLastFiveTurns(t *testing.T) {
	t.Parallel()

	set := MustLoadPromptSet()

	history := make([]contractx.Message, 0, 8)
	for i := 0; i < 8; i++ {
		sender := contractx.SenderUser
		if i%2 == 1 {
			sender = contractx.SenderBot
		}
		history = append(history, contractx.Message{Sender: sender, Text: fmt.Sprintf("m%d", i)})
	}

	req, err := set.Build(context.Background(), `{"products":[]}`, map[string]any{"name": "Amina"}, history, "current")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(req.History) != HistoryTurns {
		t.Fatalf("history turns = %d, want %d", len(req.History), HistoryTurns)
	}
	if req.History[0].Content != "m3" || req.History[0].Role != "assistant" {
		t.Fatalf("unexpected first turn: %#v", req.History[0])
	}
	if req.History[4].Content != "m7" {
		t.Fatalf("unexpected last turn: %#v", req.History[4])
	}
	if req.Message != "current" {
		t.Fatalf("message = %q", req.Message)
	}
	if !strings.Contains(req.SystemPrompt, `"products"`) {
		t.Fatal("system prompt missing knowledge")
	}
	if !strings.Contains(req.SystemPrompt, "Amina") {
		t.Fatal("system prompt missing profile")
	}
	if !strings.HasPrefix(req.SystemPrompt, "You're Rivan") {
		t.Fatalf("unexpected persona start: %.40q", req.SystemPrompt)
	}
}

func TestBuildEmptyProfile(t *testing.T) {
	t.Parallel()

	req, err := MustLoadPromptSet().Build(context.Background(), "{}", nil, nil, "hi")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(req.History) != 0 {
		t.Fatalf("expected no history, got %d", len(req.History))
	}
	if !strings.Contains(req.SystemPrompt, "**USER PROFILE:**\n{}") {
		t.Fatal("expected empty profile object in prompt")
	}
}

func TestBuildDoesNotExpandUserText(t *testing.T) {
	t.Parallel()

	history := []contractx.Message{
		{Sender: contractx.SenderUser, Text: "{{.Knowledge}}"},
		{Sender: contractx.SenderBot, Text: "ok"},
	}
	req, err := MustLoadPromptSet().Build(context.Background(), `{"k":1}`, nil, history, "{{.Profile}}")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if req.Message != "{{.Profile}}" {
		t.Fatalf("message = %q", req.Message)
	}
	if len(req.History) != 2 || req.History[0].Content != "{{.Knowledge}}" || req.History[0].Role != "user" {
		t.Fatalf("unexpected history: %#v", req.History)
	}
	if req.History[1].Role != "assistant" {
		t.Fatalf("unexpected bot role: %#v", req.History[1])
	}
}

package contract

import (
	"context"
	"time"
)

// ConversationStore owns conversation durability.
type ConversationStore interface {
	GetOrCreate(ctx context.Context, userID string, channel Channel) (*Conversation, error)
	// Append adds msg to conv in memory before persisting; callers treat errors as non-fatal.
	Append(ctx context.Context, conv *Conversation, msg Message) error
	History(ctx context.Context, userID string, channel Channel, limit int) ([]Message, error)
	UpdateProfile(ctx context.Context, userID string, channel Channel, patch map[string]any) error
}

type CompletionTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	SystemPrompt string
	History      []CompletionTurn
	Message      string
}

// Completer is the external AI collaborator. Errors wrap one of ErrAITimeout,
// ErrAIQuotaExceeded, ErrAIUnavailable or ErrAIInvalidResponse.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest, timeout time.Duration) (string, error)
}

// ErrorSink never blocks or fails the response path.
type ErrorSink interface {
	Record(ctx context.Context, rec ErrorRecord)
}

type Resolver interface {
	Resolve(ctx context.Context, requestID string, text string, conv *Conversation) Resolution
}

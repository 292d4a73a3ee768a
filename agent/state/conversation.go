package state

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
)

var (
	ErrInvalidUser = errors.New("user id is empty")
	// ErrUnsavedConversation rejects conversations that were never issued by
	// a store, such as the empty stand-in used when loading fails.
	ErrUnsavedConversation = errors.New("conversation has no id")
)

const DefaultHistoryLimit = 50

func checkKey(userID string, channel contractx.Channel) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUser
	}
	if !channel.Valid() {
		return contractx.ErrInvalidChannel
	}
	return nil
}

func checkConversation(conv *contractx.Conversation) error {
	if conv == nil {
		return contractx.ErrNilConversation
	}
	if strings.TrimSpace(conv.ID) == "" {
		return ErrUnsavedConversation
	}
	return checkKey(conv.UserID, conv.Channel)
}

func isActive(conv *contractx.Conversation) bool {
	return conv.Status == "" || conv.Status == contractx.StatusActive
}

func newConversation(userID string, channel contractx.Channel, now time.Time) *contractx.Conversation {
	return contractx.NewConversation(uuid.NewString(), userID, channel, now)
}

// appendMessage stamps msg when needed and applies it to conv.
func appendMessage(conv *contractx.Conversation, msg contractx.Message, now time.Time) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	msg.Timestamp = msg.Timestamp.UTC()
	conv.AddMessage(msg)
}

func tail(msgs []contractx.Message, limit int) []contractx.Message {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]contractx.Message(nil), msgs...)
}

func normalize(conv *contractx.Conversation) *contractx.Conversation {
	if conv.Messages == nil {
		conv.Messages = []contractx.Message{}
	}
	if conv.UserProfile == nil {
		conv.UserProfile = map[string]any{}
	}
	if conv.Status == "" {
		conv.Status = contractx.StatusActive
	}
	return conv
}

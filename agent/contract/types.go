package contract

import (
	"maps"
	"time"
)

type Channel string

const (
	ChannelWebsite  Channel = "website"
	ChannelTelegram Channel = "telegram"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSystem   Channel = "system"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelWebsite, ChannelTelegram, ChannelWhatsApp:
		return true
	default:
		return false
	}
}

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Source tags which resolver tier produced a reply.
type Source string

const (
	SourceInstant   Source = "instant"
	SourceKnowledge Source = "knowledge"
	SourceLearned   Source = "learned"
	SourceAI        Source = "ai"
	SourceFallback  Source = "fallback"
)

type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"
	StatusClosed   ConversationStatus = "closed"
	StatusArchived ConversationStatus = "archived"
)

// MaxMessages bounds the stored transcript; oldest entries are evicted first.
const MaxMessages = 100

type MessageMetadata struct {
	Intent     string         `json:"intent,omitempty"`
	Emotion    string         `json:"emotion,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
	Source     Source         `json:"source,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

type Message struct {
	RequestID string          `json:"request_id"`
	Sender    Sender          `json:"sender"`
	Text      string          `json:"text"`
	Timestamp time.Time       `json:"timestamp"`
	Metadata  MessageMetadata `json:"metadata"`
}

type Conversation struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
	Channel     Channel            `json:"channel"`
	Messages    []Message          `json:"messages"`
	UserProfile map[string]any     `json:"user_profile"`
	Status      ConversationStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func NewConversation(id, userID string, channel Channel, now time.Time) *Conversation {
	return &Conversation{
		ID:          id,
		UserID:      userID,
		Channel:     channel,
		Messages:    make([]Message, 0, 8),
		UserProfile: make(map[string]any, 4),
		Status:      StatusActive,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
}

// AddMessage appends msg and evicts from the front so at most MaxMessages remain.
func (c *Conversation) AddMessage(msg Message) {
	c.Messages = append(c.Messages, msg)
	if over := len(c.Messages) - MaxMessages; over > 0 {
		c.Messages = append(c.Messages[:0:0], c.Messages[over:]...)
	}
	c.UpdatedAt = msg.Timestamp.UTC()
}

// Recent returns up to n of the newest messages, oldest first.
func (c *Conversation) Recent(n int) []Message {
	if c == nil || n <= 0 {
		return nil
	}
	if len(c.Messages) <= n {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}

func (c *Conversation) MergeProfile(patch map[string]any) {
	if c.UserProfile == nil {
		c.UserProfile = make(map[string]any, len(patch))
	}
	maps.Copy(c.UserProfile, patch)
}

// Clone returns a deep-enough copy for handing to concurrent readers.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	out.UserProfile = maps.Clone(c.UserProfile)
	if out.UserProfile == nil {
		out.UserProfile = map[string]any{}
	}
	return &out
}

// Request is the canonical inbound shape every channel adapter produces.
type Request struct {
	UserID   string         `json:"user_id"`
	Text     string         `json:"message"`
	Channel  Channel        `json:"channel"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Result is the canonical outbound shape returned to channel adapters.
type Result struct {
	Success      bool   `json:"success"`
	RequestID    string `json:"requestId"`
	Response     string `json:"response"`
	ResponseTime int64  `json:"responseTime"`
	Source       Source `json:"source,omitempty"`
	ErrorCode    int    `json:"errorCode,omitempty"`
}

type Resolution struct {
	Text   string
	Source Source
	// ErrorCode is non-zero when Text reports a failure, e.g. AI quota.
	ErrorCode int
	// Tiers lists every tier that was tried, in order.
	Tiers []Source
}

type ErrorRecord struct {
	ErrorCode          int       `json:"error_code"`
	UserFacingMessage  string    `json:"user_facing_message"`
	InternalDiagnostic string    `json:"internal_diagnostic"`
	UserID             string    `json:"user_id"`
	Channel            Channel   `json:"channel"`
	RequestID          string    `json:"request_id"`
	OriginalUserText   string    `json:"original_user_text"`
	Timestamp          time.Time `json:"timestamp"`
	Resolved           bool      `json:"resolved"`
}

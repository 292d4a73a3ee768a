package state

import (
	"context"
	"sync"
	"time"

	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
)

// MemoryStore keeps conversations in process. Writes are last-write-wins.
// Closed and archived conversations stay in convs but leave the active slot.
type MemoryStore struct {
	mu     sync.RWMutex
	convs  map[string]*contractx.Conversation // by conversation id
	active map[string]string                  // (channel, user) -> id
	now    func() time.Time
}

var _ contractx.ConversationStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		convs:  make(map[string]*contractx.Conversation),
		active: make(map[string]string),
		now:    time.Now,
	}
}

func memoryKey(userID string, channel contractx.Channel) string {
	return string(channel) + ":" + userID
}

func (s *MemoryStore) GetOrCreate(_ context.Context, userID string, channel contractx.Channel) (*contractx.Conversation, error) {
	if err := checkKey(userID, channel); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked(userID, channel).Clone(), nil
}

// activeLocked returns the active conversation, creating one when the slot is
// empty or holds a conversation that has since been closed.
func (s *MemoryStore) activeLocked(userID string, channel contractx.Channel) *contractx.Conversation {
	key := memoryKey(userID, channel)
	if id, ok := s.active[key]; ok {
		if conv, ok := s.convs[id]; ok && isActive(conv) {
			return conv
		}
	}
	conv := newConversation(userID, channel, s.now())
	s.convs[conv.ID] = conv
	s.active[key] = conv.ID
	return conv
}

func (s *MemoryStore) Append(_ context.Context, conv *contractx.Conversation, msg contractx.Message) error {
	if err := checkConversation(conv); err != nil {
		return err
	}
	appendMessage(conv, msg, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[conv.ID] = conv.Clone()

	key := memoryKey(conv.UserID, conv.Channel)
	current, hasActive := s.active[key]
	switch {
	case !isActive(conv) && current == conv.ID:
		delete(s.active, key)
	case isActive(conv) && !hasActive:
		s.active[key] = conv.ID
	}
	return nil
}

func (s *MemoryStore) History(_ context.Context, userID string, channel contractx.Channel, limit int) ([]contractx.Message, error) {
	if err := checkKey(userID, channel); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.active[memoryKey(userID, channel)]
	if !ok {
		return []contractx.Message{}, nil
	}
	conv, ok := s.convs[id]
	if !ok || !isActive(conv) {
		return []contractx.Message{}, nil
	}
	return tail(conv.Messages, limit), nil
}

func (s *MemoryStore) UpdateProfile(_ context.Context, userID string, channel contractx.Channel, patch map[string]any) error {
	if err := checkKey(userID, channel); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.activeLocked(userID, channel)
	conv.MergeProfile(patch)
	conv.UpdatedAt = s.now().UTC()
	return nil
}

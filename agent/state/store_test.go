package state

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
)

// runStoreConformance checks behaviour every ConversationStore shares.
func runStoreConformance(t *testing.T, store contractx.ConversationStore) {
	t.Helper()
	ctx := context.Background()

	conv, err := store.GetOrCreate(ctx, "baker", contractx.ChannelWebsite)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < contractx.MaxMessages+1; i++ {
		msg := contractx.Message{
			RequestID: fmt.Sprintf("r%d", i),
			Sender:    contractx.SenderUser,
			Text:      fmt.Sprintf("message %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.Append(ctx, conv, msg); err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
	}

	reloaded, err := store.GetOrCreate(ctx, "baker", contractx.ChannelWebsite)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if got := len(reloaded.Messages); got != contractx.MaxMessages {
		t.Fatalf("messages = %d, want %d", got, contractx.MaxMessages)
	}
	if reloaded.Messages[0].Text != "message 1" {
		t.Fatalf("oldest message = %q, want message 1", reloaded.Messages[0].Text)
	}
	if last := reloaded.Messages[len(reloaded.Messages)-1]; last.Text != "message 100" {
		t.Fatalf("newest message = %q", last.Text)
	}

	history, err := store.History(ctx, "baker", contractx.ChannelWebsite, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != DefaultHistoryLimit || history[len(history)-1].Text != "message 100" {
		t.Fatalf("History() returned %d messages", len(history))
	}

	other, err := store.History(ctx, "baker", contractx.ChannelTelegram, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(other) != 0 {
		t.Fatal("channels must not share conversations")
	}

	if err := store.UpdateProfile(ctx, "baker", contractx.ChannelWebsite, map[string]any{"name": "Amina"}); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if err := store.UpdateProfile(ctx, "baker", contractx.ChannelWebsite, map[string]any{"favourite": "cupcakes"}); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	withProfile, err := store.GetOrCreate(ctx, "baker", contractx.ChannelWebsite)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if withProfile.UserProfile["name"] != "Amina" || withProfile.UserProfile["favourite"] != "cupcakes" {
		t.Fatalf("profile not merged: %#v", withProfile.UserProfile)
	}
	if len(withProfile.Messages) != contractx.MaxMessages {
		t.Fatal("profile update dropped messages")
	}

	if _, err := store.GetOrCreate(ctx, "", contractx.ChannelWebsite); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("GetOrCreate(empty) error = %v", err)
	}
	if err := store.Append(ctx, nil, contractx.Message{}); !errors.Is(err, contractx.ErrNilConversation) {
		t.Fatalf("Append(nil) error = %v", err)
	}

	standIn := contractx.NewConversation("", "baker", contractx.ChannelWebsite, base)
	if err := store.Append(ctx, standIn, contractx.Message{Sender: contractx.SenderUser, Text: "lost"}); !errors.Is(err, ErrUnsavedConversation) {
		t.Fatalf("Append(no id) error = %v, want ErrUnsavedConversation", err)
	}
	kept, err := store.History(ctx, "baker", contractx.ChannelWebsite, contractx.MaxMessages)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(kept) != contractx.MaxMessages {
		t.Fatalf("conversation without id overwrote history: %d messages left", len(kept))
	}

	runClosedConversation(t, store)
}

// runClosedConversation checks that a closed conversation leaves the active
// slot and the next GetOrCreate starts a new one.
func runClosedConversation(t *testing.T, store contractx.ConversationStore) {
	t.Helper()
	ctx := context.Background()

	conv, err := store.GetOrCreate(ctx, "closer", contractx.ChannelWebsite)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if err := store.Append(ctx, conv, contractx.Message{RequestID: "r1", Sender: contractx.SenderUser, Text: "first order"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	conv.Status = contractx.StatusClosed
	if err := store.Append(ctx, conv, contractx.Message{RequestID: "r2", Sender: contractx.SenderBot, Text: "closing"}); err != nil {
		t.Fatalf("Append(closed) error = %v", err)
	}

	history, err := store.History(ctx, "closer", contractx.ChannelWebsite, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("closed conversation still served as history: %d messages", len(history))
	}

	next, err := store.GetOrCreate(ctx, "closer", contractx.ChannelWebsite)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if next.ID == conv.ID {
		t.Fatal("closed conversation returned again")
	}
	if next.Status != contractx.StatusActive || len(next.Messages) != 0 {
		t.Fatalf("unexpected new conversation: status=%s messages=%d", next.Status, len(next.Messages))
	}

	if err := store.Append(ctx, next, contractx.Message{RequestID: "r3", Sender: contractx.SenderUser, Text: "hello again"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	history, err = store.History(ctx, "closer", contractx.ChannelWebsite, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 || history[0].Text != "hello again" {
		t.Fatalf("History() = %#v", history)
	}
}

func TestMemoryStoreConformance(t *testing.T) {
	t.Parallel()
	runStoreConformance(t, NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	conv, err := store.GetOrCreate(ctx, "u", contractx.ChannelTelegram)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	conv.Messages = append(conv.Messages, contractx.Message{Text: "not persisted"})

	fresh, err := store.GetOrCreate(ctx, "u", contractx.ChannelTelegram)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if len(fresh.Messages) != 0 {
		t.Fatal("caller mutation leaked into the store")
	}
	if fresh.ID != conv.ID {
		t.Fatal("one conversation per user and channel expected")
	}
}

func TestTail(t *testing.T) {
	t.Parallel()

	msgs := make([]contractx.Message, 5)
	for i := range msgs {
		msgs[i].Text = fmt.Sprint(i)
	}
	got := tail(msgs, 2)
	if len(got) != 2 || got[0].Text != "3" {
		t.Fatalf("tail() = %#v", got)
	}
	got[0].Text = "changed"
	if msgs[3].Text != "3" {
		t.Fatal("tail must copy")
	}
}

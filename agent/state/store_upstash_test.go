package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
)

type fakeUpstash struct {
	mu       sync.Mutex
	data     map[string]string
	commands [][]any
	fail     bool
}

func newFakeUpstash(t *testing.T) (*fakeUpstash, *httptest.Server) {
	t.Helper()
	f := &fakeUpstash{data: map[string]string{}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var cmd []any
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			t.Errorf("decode command: %v", err)
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		f.commands = append(f.commands, cmd)
		if f.fail {
			fmt.Fprint(w, `{"error":"ERR max requests limit exceeded"}`)
			return
		}
		switch cmd[0] {
		case "GET":
			v, ok := f.data[cmd[1].(string)]
			if !ok {
				fmt.Fprint(w, `{"result":null}`)
				return
			}
			encoded, _ := json.Marshal(v)
			fmt.Fprintf(w, `{"result":%s}`, encoded)
		case "SET":
			f.data[cmd[1].(string)] = cmd[2].(string)
			fmt.Fprint(w, `{"result":"OK"}`)
		case "DEL":
			_, ok := f.data[cmd[1].(string)]
			delete(f.data, cmd[1].(string))
			if ok {
				fmt.Fprint(w, `{"result":1}`)
			} else {
				fmt.Fprint(w, `{"result":0}`)
			}
		default:
			fmt.Fprint(w, `{"error":"unsupported"}`)
		}
	}))
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeUpstash) lastCommand() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commands) == 0 {
		return nil
	}
	return f.commands[len(f.commands)-1]
}

func newTestUpstashStore(t *testing.T, server *httptest.Server, opts ...StoreOption) *UpstashStore {
	t.Helper()
	store, err := NewUpstashStore(
		UpstashConfig{URL: server.URL, Token: "token"},
		append([]StoreOption{WithHTTPClient(server.Client())}, opts...)...,
	)
	if err != nil {
		t.Fatalf("NewUpstashStore() error = %v", err)
	}
	return store
}

func TestUpstashStoreRedisKey(t *testing.T) {
	t.Parallel()

	store := &UpstashStore{keyPrefix: defaultStoreKeyPrefix}
	got, err := store.redisKey("u-1", contractx.ChannelTelegram)
	if err != nil {
		t.Fatalf("redisKey() error = %v", err)
	}
	if want := "bakery:conversation:telegram:u-1"; got != want {
		t.Fatalf("redisKey() = %q, want %q", got, want)
	}

	if _, err := store.redisKey("   ", contractx.ChannelTelegram); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("redisKey() error = %v, want ErrInvalidUser", err)
	}
	if _, err := store.redisKey("u-1", "fax"); !errors.Is(err, contractx.ErrInvalidChannel) {
		t.Fatalf("redisKey() error = %v, want ErrInvalidChannel", err)
	}
}

func TestNewUpstashStoreValidatesConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewUpstashStore(UpstashConfig{Token: "t"}); err == nil {
		t.Fatal("expected error for missing url")
	}
	if _, err := NewUpstashStore(UpstashConfig{URL: "https://x.upstash.io"}); err == nil {
		t.Fatal("expected error for missing token")
	}
	if _, err := NewUpstashStore(UpstashConfig{URL: "https://x.upstash.io", Token: "t"}, WithTTL(-time.Second)); err == nil {
		t.Fatal("expected error for negative ttl")
	}
}

func TestUpstashStoreAppendPersistsAndReloads(t *testing.T) {
	t.Parallel()

	fake, server := newFakeUpstash(t)
	store := newTestUpstashStore(t, server, WithTTL(90*time.Minute+time.Millisecond))
	ctx := context.Background()

	conv, err := store.GetOrCreate(ctx, "u-1", contractx.ChannelWhatsApp)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if conv.ID == "" || len(conv.Messages) != 0 {
		t.Fatalf("unexpected fresh conversation: %#v", conv)
	}

	msg := contractx.Message{RequestID: "r1", Sender: contractx.SenderUser, Text: "hello"}
	if err := store.Append(ctx, conv, msg); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	cmd := fake.lastCommand()
	if cmd[0] != "SET" || cmd[1] != "bakery:conversation:whatsapp:u-1" {
		t.Fatalf("unexpected command: %#v", cmd)
	}
	if len(cmd) != 5 || cmd[3] != "EX" || cmd[4] != float64(5401) {
		t.Fatalf("ttl not rounded up: %#v", cmd)
	}

	again, err := store.GetOrCreate(ctx, "u-1", contractx.ChannelWhatsApp)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if again.ID != conv.ID {
		t.Fatalf("conversation id changed: %s != %s", again.ID, conv.ID)
	}
	if len(again.Messages) != 1 || again.Messages[0].Text != "hello" || again.Messages[0].Timestamp.IsZero() {
		t.Fatalf("unexpected messages: %#v", again.Messages)
	}
}

func TestUpstashStoreErrorResponse(t *testing.T) {
	t.Parallel()

	fake, server := newFakeUpstash(t)
	fake.fail = true
	store := newTestUpstashStore(t, server)

	conv := contractx.NewConversation("c", "u-1", contractx.ChannelWebsite, time.Now())
	err := store.Append(context.Background(), conv, contractx.Message{Text: "hi", Sender: contractx.SenderUser})
	if err == nil {
		t.Fatal("expected error from failing backend")
	}
	if len(conv.Messages) != 1 {
		t.Fatal("in-memory conversation must still be updated")
	}
}

func TestUpstashStoreConformance(t *testing.T) {
	t.Parallel()

	_, server := newFakeUpstash(t)
	runStoreConformance(t, newTestUpstashStore(t, server))
}

func TestUpstashStoreArchivesClosedConversation(t *testing.T) {
	t.Parallel()

	fake, server := newFakeUpstash(t)
	store := newTestUpstashStore(t, server)
	ctx := context.Background()

	conv, err := store.GetOrCreate(ctx, "u-9", contractx.ChannelTelegram)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if err := store.Append(ctx, conv, contractx.Message{Sender: contractx.SenderUser, Text: "hi"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	conv.Status = contractx.StatusArchived
	if err := store.Append(ctx, conv, contractx.Message{Sender: contractx.SenderBot, Text: "bye"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	slot := "bakery:conversation:telegram:u-9"
	if _, ok := fake.data[slot]; ok {
		t.Fatal("active slot still holds the archived conversation")
	}
	archived, ok := fake.data[slot+":archive:"+conv.ID]
	if !ok {
		t.Fatal("archived conversation not kept")
	}
	var stored contractx.Conversation
	if err := json.Unmarshal([]byte(archived), &stored); err != nil {
		t.Fatalf("decode archived conversation: %v", err)
	}
	if stored.Status != contractx.StatusArchived || len(stored.Messages) != 2 {
		t.Fatalf("unexpected archived conversation: status=%s messages=%d", stored.Status, len(stored.Messages))
	}
}

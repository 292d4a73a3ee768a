package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
)

var (
	ErrConversationNotFound = contractx.ErrConversationNotFound
)

const (
	defaultStoreKeyPrefix = "bakery:conversation:"
	maxResponseSizeBytes  = 2 << 20
)

var codec = sonic.ConfigStd

// StoreOption customizes UpstashStore.
type StoreOption func(*UpstashStore)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *UpstashStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

// WithTTL expires idle conversations. Zero keeps them forever.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *UpstashStore) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *UpstashStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

func withClock(now func() time.Time) StoreOption {
	return func(s *UpstashStore) {
		s.now = now
	}
}

// UpstashStore persists conversations in Upstash Redis via its REST API,
// one JSON document per (channel, user).
type UpstashStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
	now        func() time.Time
}

var _ contractx.ConversationStore = (*UpstashStore)(nil)

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashConfig struct {
	URL     string        `envconfig:"URL" split_words:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	TTL     time.Duration `envconfig:"TTL" split_words:"true" default:"0s"`
}

func (c UpstashConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != "" && strings.TrimSpace(c.Token) != ""
}

func NewUpstashStore(cfg UpstashConfig, opts ...StoreOption) (*UpstashStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	store := &UpstashStore{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		keyPrefix: defaultStoreKeyPrefix,
		ttl:       cfg.TTL,
		now:       time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	if store.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}

	return store, nil
}

// GetOrCreate returns the conversation in the active slot. A slot still
// holding a closed conversation is moved to its archive key first.
func (s *UpstashStore) GetOrCreate(ctx context.Context, userID string, channel contractx.Channel) (*contractx.Conversation, error) {
	conv, err := s.load(ctx, userID, channel)
	switch {
	case errors.Is(err, ErrConversationNotFound):
	case err != nil:
		return nil, err
	case isActive(conv):
		return conv, nil
	default:
		if err := s.retire(ctx, conv); err != nil {
			return nil, err
		}
	}
	return newConversation(userID, channel, s.now()), nil
}

func (s *UpstashStore) Append(ctx context.Context, conv *contractx.Conversation, msg contractx.Message) error {
	if err := checkConversation(conv); err != nil {
		return err
	}
	appendMessage(conv, msg, s.now())
	return s.save(ctx, conv)
}

func (s *UpstashStore) History(ctx context.Context, userID string, channel contractx.Channel, limit int) ([]contractx.Message, error) {
	conv, err := s.load(ctx, userID, channel)
	if errors.Is(err, ErrConversationNotFound) {
		return []contractx.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	if !isActive(conv) {
		return []contractx.Message{}, nil
	}
	return tail(conv.Messages, limit), nil
}

func (s *UpstashStore) UpdateProfile(ctx context.Context, userID string, channel contractx.Channel, patch map[string]any) error {
	conv, err := s.GetOrCreate(ctx, userID, channel)
	if err != nil {
		return err
	}
	conv.MergeProfile(patch)
	conv.UpdatedAt = s.now().UTC()
	return s.save(ctx, conv)
}

func (s *UpstashStore) load(ctx context.Context, userID string, channel contractx.Channel) (*contractx.Conversation, error) {
	key, err := s.redisKey(userID, channel)
	if err != nil {
		return nil, err
	}

	resp, err := s.exec(ctx, []any{"GET", key})
	if err != nil {
		return nil, err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, ErrConversationNotFound
	}

	var encoded string
	if err := codec.Unmarshal(result, &encoded); err != nil {
		return nil, fmt.Errorf("decode conversation payload: %w", err)
	}

	var conv contractx.Conversation
	if err := codec.UnmarshalFromString(encoded, &conv); err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}
	return normalize(&conv), nil
}

// save writes active conversations to the (channel, user) slot and anything
// else to its archive key.
func (s *UpstashStore) save(ctx context.Context, conv *contractx.Conversation) error {
	if err := checkConversation(conv); err != nil {
		return err
	}
	if !isActive(conv) {
		return s.retire(ctx, conv)
	}
	key, err := s.redisKey(conv.UserID, conv.Channel)
	if err != nil {
		return err
	}
	return s.set(ctx, key, conv)
}

// retire stores conv under its archive key and frees the active slot if the
// slot still points at conv.
func (s *UpstashStore) retire(ctx context.Context, conv *contractx.Conversation) error {
	key, err := s.redisKey(conv.UserID, conv.Channel)
	if err != nil {
		return err
	}
	if err := s.set(ctx, archiveKey(key, conv.ID), conv); err != nil {
		return err
	}

	current, err := s.load(ctx, conv.UserID, conv.Channel)
	if errors.Is(err, ErrConversationNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if current.ID != conv.ID {
		return nil
	}
	if _, err := s.exec(ctx, []any{"DEL", key}); err != nil {
		return err
	}
	return nil
}

func (s *UpstashStore) set(ctx context.Context, key string, conv *contractx.Conversation) error {
	payload, err := codec.MarshalToString(normalize(conv))
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	cmd := []any{"SET", key, payload}
	if s.ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(s.ttl))
	}

	if _, err := s.exec(ctx, cmd); err != nil {
		return err
	}
	return nil
}

func archiveKey(key, id string) string {
	return key + ":archive:" + id
}

func (s *UpstashStore) redisKey(userID string, channel contractx.Channel) (string, error) {
	if err := checkKey(userID, channel); err != nil {
		return "", err
	}
	return s.keyPrefix + string(channel) + ":" + strings.TrimSpace(userID), nil
}

func (s *UpstashStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if s == nil {
		return nil, errors.New("nil store")
	}
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := codec.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := codec.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}

package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/channel"
)

// Sender delivers a reply to a Telegram chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// BotClient calls the Bot API sendMessage method.
type BotClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewBotClient(cfg Config, httpClient *http.Client) (*BotClient, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, channel.ErrNotConfigured
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.SendTimeout}
	}
	base := strings.TrimRight(cfg.APIBaseURL, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	return &BotClient{baseURL: base, token: cfg.BotToken, httpClient: httpClient}, nil
}

func (b *BotClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	body, err := sonic.Marshal(sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal sendMessage: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", b.baseURL, b.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", channel.ErrSendFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", channel.ErrSendFailed, err)
	}

	var parsed apiResponse
	_ = sonic.Unmarshal(raw, &parsed)
	switch {
	case resp.StatusCode == http.StatusForbidden || parsed.ErrorCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", channel.ErrBlocked, parsed.Description)
	case resp.StatusCode >= http.StatusMultipleChoices || !parsed.OK:
		return fmt.Errorf("%w: status=%d %s", channel.ErrSendFailed, resp.StatusCode, parsed.Description)
	}
	return nil
}

var errNoSender = errors.New("telegram sender not configured")

type noopSender struct{}

func (noopSender) SendMessage(context.Context, int64, string) error { return errNoSender }

// WebhookTimeout bounds how long one update may take before the reply is abandoned.
const WebhookTimeout = 25 * time.Second

package whatsapp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/channel"
)

// Sender delivers a text reply to a WhatsApp number.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
}

type textBody struct {
	Body string `json:"body"`
}

type outbound struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

// GraphClient posts to the Cloud API messages endpoint of one phone number.
type GraphClient struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

func NewGraphClient(cfg Config, httpClient *http.Client) (*GraphClient, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" || strings.TrimSpace(cfg.PhoneNumberID) == "" {
		return nil, channel.ErrNotConfigured
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.SendTimeout}
	}
	base := strings.TrimRight(cfg.APIBaseURL, "/")
	if base == "" {
		base = "https://graph.facebook.com/v18.0"
	}
	return &GraphClient{
		endpoint:   base + "/" + cfg.PhoneNumberID + "/messages",
		token:      cfg.AccessToken,
		httpClient: httpClient,
	}, nil
}

func (g *GraphClient) SendText(ctx context.Context, to, text string) error {
	body, err := sonic.Marshal(outbound{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: text},
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build message request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", channel.ErrSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%w: status=%d body=%s", channel.ErrSendFailed, resp.StatusCode, string(raw))
	}
	return nil
}

type noopSender struct{}

func (noopSender) SendText(context.Context, string, string) error { return channel.ErrNotConfigured }

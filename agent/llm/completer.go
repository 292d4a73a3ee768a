package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
	openrouterx "github.com/tanpawarit/Chative-Bakery-Support-Bot/pkg/openrouter"
)

const quotaErrorCode = "insufficient_quota"

// OpenAICompleter calls an OpenAI compatible chat completions endpoint.
type OpenAICompleter struct {
	client *openaisdk.Client
	cfg    Config
}

var _ contractx.Completer = (*OpenAICompleter)(nil)

func NewOpenAICompleter(cfg Config, opts ...option.RequestOption) (*OpenAICompleter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := openrouterx.NewClient(cfg.OpenRouter(), opts...)
	if client == nil {
		return nil, fmt.Errorf("%w: openai client not created", contractx.ErrValidation)
	}
	return &OpenAICompleter{client: client, cfg: cfg}, nil
}

func (c *OpenAICompleter) Complete(
	ctx context.Context,
	req contractx.CompletionRequest,
	timeout time.Duration,
) (string, error) {
	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	messages = append(messages, openaisdk.SystemMessage(req.SystemPrompt))
	for _, turn := range req.History {
		if turn.Role == "user" {
			messages = append(messages, openaisdk.UserMessage(turn.Content))
		} else {
			messages = append(messages, openaisdk.AssistantMessage(turn.Content))
		}
	}
	messages = append(messages, openaisdk.UserMessage(req.Message))

	// Retries are owned by the resolver.
	reqOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(timeout))
	}

	resp, err := c.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:            openaisdk.ChatModel(c.cfg.Model),
		Messages:         messages,
		MaxTokens:        openaisdk.Int(c.cfg.MaxCompletionToken),
		Temperature:      openaisdk.Float(c.cfg.Temperature),
		PresencePenalty:  openaisdk.Float(c.cfg.PresencePenalty),
		FrequencyPenalty: openaisdk.Float(c.cfg.FrequencyPenalty),
	}, reqOpts...)
	if err != nil {
		return "", Classify(err)
	}

	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in completion", contractx.ErrAIInvalidResponse)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty completion content", contractx.ErrAIInvalidResponse)
	}
	return content, nil
}

// Classify maps transport and API failures onto the collaborator failure classes.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == quotaErrorCode || apiErr.Type == quotaErrorCode:
			return fmt.Errorf("%w: %v", contractx.ErrAIQuotaExceeded, err)
		case apiErr.StatusCode == http.StatusUnauthorized,
			apiErr.StatusCode == http.StatusPaymentRequired,
			apiErr.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: status=%d: %v", contractx.ErrAIQuotaExceeded, apiErr.StatusCode, err)
		case apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode == http.StatusGatewayTimeout:
			return fmt.Errorf("%w: status=%d: %v", contractx.ErrAITimeout, apiErr.StatusCode, err)
		case apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: status=%d: %v", contractx.ErrAIUnavailable, apiErr.StatusCode, err)
		default:
			return fmt.Errorf("%w: status=%d: %v", contractx.ErrAIInvalidResponse, apiErr.StatusCode, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", contractx.ErrAITimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", contractx.ErrAITimeout, err)
	}
	return fmt.Errorf("%w: %v", contractx.ErrAIUnavailable, err)
}

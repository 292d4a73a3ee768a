package openrouter

import (
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type Config struct {
	BaseURL  string `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey   string `envconfig:"API_KEY" split_words:"true" required:"true"`
	SiteURL  string `envconfig:"SITE_URL" split_words:"true"`
	SiteName string `envconfig:"SITE_NAME" split_words:"true"`
}

// NewClient creates a new OpenAI SDK client configured for OpenRouter or any
// OpenAI compatible endpoint. It returns nil when no API key is set.
func NewClient(cfg Config, extra ...option.RequestOption) *openaisdk.Client {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
	}

	if trimmed := strings.TrimRight(cfg.BaseURL, "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}

	// Add OpenRouter specific headers
	if cfg.SiteURL != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.SiteURL))
	}
	if cfg.SiteName != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.SiteName))
	}
	opts = append(opts, extra...)

	client := openaisdk.NewClient(opts...)
	return &client
}

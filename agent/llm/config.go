package llm

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
	openrouterx "github.com/tanpawarit/Chative-Bakery-Support-Bot/pkg/openrouter"
)

type Config struct {
	BaseURL            string  `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string  `envconfig:"API_KEY" split_words:"true"`
	Model              string  `envconfig:"MODEL" split_words:"true" default:"openai/gpt-4"`
	MaxCompletionToken int64   `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"500"`
	Temperature        float64 `envconfig:"TEMPERATURE" split_words:"true" default:"0.7"`
	PresencePenalty    float64 `envconfig:"PRESENCE_PENALTY" split_words:"true" default:"0.6"`
	FrequencyPenalty   float64 `envconfig:"FREQUENCY_PENALTY" split_words:"true" default:"0.3"`
	SiteURL            string  `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string  `envconfig:"SITE_NAME" split_words:"true"`
}

// Enabled reports whether a real completion backend is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: ai api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: ai model is required", contractx.ErrValidation)
	}
	if c.MaxCompletionToken <= 0 {
		return fmt.Errorf("%w: max completion token must be > 0", contractx.ErrValidation)
	}
	return nil
}

func (c Config) OpenRouter() openrouterx.Config {
	return openrouterx.Config{
		BaseURL:  strings.TrimSpace(c.BaseURL),
		APIKey:   strings.TrimSpace(c.APIKey),
		SiteURL:  strings.TrimSpace(c.SiteURL),
		SiteName: strings.TrimSpace(c.SiteName),
	}
}

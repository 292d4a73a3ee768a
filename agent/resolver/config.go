package resolver

import (
	"fmt"
	"time"

	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
)

type Config struct {
	Timeout     time.Duration `split_words:"true" default:"10s"`
	MaxRetries  int           `split_words:"true" default:"2"`
	BackoffBase time.Duration `split_words:"true" default:"1s"`

	// LearnedAcceptance is the probability a learned reply is reused; the
	// remainder falls through so answers get regenerated periodically.
	LearnedAcceptance float64 `split_words:"true" default:"0.7"`
	LearnedWindow     int     `split_words:"true" default:"20"`
	ContextWindow     int     `split_words:"true" default:"10"`

	Seed uint64 `split_words:"true"`
}

func DefaultConfig() Config {
	return Config{
		Timeout:           10 * time.Second,
		MaxRetries:        2,
		BackoffBase:       time.Second,
		LearnedAcceptance: 0.7,
		LearnedWindow:     20,
		ContextWindow:     10,
	}
}

func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: ai timeout must be > 0", contractx.ErrValidation)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be >= 0", contractx.ErrValidation)
	}
	if c.BackoffBase < 0 {
		return fmt.Errorf("%w: backoff base must be >= 0", contractx.ErrValidation)
	}
	if c.LearnedAcceptance < 0 || c.LearnedAcceptance > 1 {
		return fmt.Errorf("%w: learned acceptance must be within [0,1]", contractx.ErrValidation)
	}
	if c.ContextWindow < 5 || c.ContextWindow > 10 {
		return fmt.Errorf("%w: context window must be within [5,10]", contractx.ErrValidation)
	}
	return nil
}

package resolver

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
	errcodex "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/errcode"
	"github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/knowledge"
	promptx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/prompt"
)

type Option func(*Resolver)

// WithRand injects the random source used for learned acceptance and fallback choice.
func WithRand(rng Rand) Option {
	return func(r *Resolver) {
		if rng != nil {
			r.rng = &lockedRand{rng: rng}
		}
	}
}

// WithTiers replaces the tier chain. Fallback always runs last.
func WithTiers(tiers ...Tier) Option {
	return func(r *Resolver) {
		r.tiers = tiers
	}
}

// Resolver runs the tier chain. It never returns an error and never panics.
type Resolver struct {
	tiers []Tier
	kb    *knowledge.Base
	sink  contractx.ErrorSink
	rng   Rand
	cfg   Config
	ai    *aiTier
}

var _ contractx.Resolver = (*Resolver)(nil)

// New builds the default chain: instant, knowledge, learned and, when ai is
// not nil, the AI tier.
func New(
	cfg Config,
	kb *knowledge.Base,
	ai contractx.Completer,
	sink contractx.ErrorSink,
	opts ...Option,
) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if kb == nil {
		return nil, errors.New("knowledge base is required")
	}
	prompts, err := promptx.LoadPromptSet()
	if err != nil {
		return nil, err
	}

	r := &Resolver{
		kb:   kb,
		sink: sink,
		cfg:  cfg,
		rng:  &lockedRand{rng: rand.New(rand.NewPCG(seedOf(cfg), 0x9e3779b97f4a7c15))},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	if r.tiers == nil {
		r.tiers = []Tier{
			instantTier{},
			knowledgeTier{kb: kb},
			learnedTier{rng: r.rng, window: cfg.LearnedWindow, acceptance: cfg.LearnedAcceptance},
		}
		if ai != nil {
			r.ai = &aiTier{ai: ai, prompts: prompts, kb: kb, sink: sink, cfg: cfg}
			r.tiers = append(r.tiers, r.ai)
		}
	}
	return r, nil
}

func seedOf(cfg Config) uint64 {
	if cfg.Seed != 0 {
		return cfg.Seed
	}
	return uint64(time.Now().UnixNano())
}

func (r *Resolver) Resolve(
	ctx context.Context,
	requestID string,
	text string,
	conv *contractx.Conversation,
) (res contractx.Resolution) {
	if conv == nil {
		conv = contractx.NewConversation("", "", "", time.Now())
	}
	in := Input{RequestID: requestID, Text: text, Conversation: conv}
	logger := zerolog.Ctx(ctx)

	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("resolver panic: %v", p)
			logger.Error().Err(err).Strs("tiers", sourcesToStrings(res.Tiers)).Msg("resolver fault, using fallback")
			recordFailure(ctx, r.sink, in, errcodex.Unknown, err)
			res.Text = fallbackText(r.rng, r.kb.Contact().Phone)
			res.Source = contractx.SourceFallback
		}
	}()

	for _, tier := range r.tiers {
		res.Tiers = append(res.Tiers, tier.Name())
		reply, ok := tier.Try(ctx, in)
		if !ok || strings.TrimSpace(reply.Text) == "" {
			continue
		}
		res.Text = reply.Text
		res.Source = reply.Source
		res.ErrorCode = reply.ErrorCode
		if res.Source == "" {
			res.Source = tier.Name()
		}
		logger.Debug().Strs("tiers", sourcesToStrings(res.Tiers)).Str("source", string(res.Source)).Msg("resolved")
		return res
	}

	res.Tiers = append(res.Tiers, contractx.SourceFallback)
	res.Text = fallbackText(r.rng, r.kb.Contact().Phone)
	res.Source = contractx.SourceFallback
	logger.Debug().Strs("tiers", sourcesToStrings(res.Tiers)).Msg("no tier answered, using fallback")
	return res
}

// DefaultTiers returns the configured chain so callers can wrap it.
func (r *Resolver) DefaultTiers() []Tier {
	return append([]Tier(nil), r.tiers...)
}

func sourcesToStrings(in []contractx.Source) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

// lockedRand serializes access; *rand.Rand is not safe for concurrent use.
type lockedRand struct {
	mu  sync.Mutex
	rng Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64()
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.IntN(n)
}

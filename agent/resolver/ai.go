package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
	errcodex "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/errcode"
	"github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/knowledge"
	promptx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/prompt"
)

type aiTier struct {
	ai      contractx.Completer
	prompts promptx.PromptSet
	kb      *knowledge.Base
	sink    contractx.ErrorSink
	cfg     Config

	calls     atomic.Int64
	discarded atomic.Int64
}

func (*aiTier) Name() contractx.Source { return contractx.SourceAI }

func (t *aiTier) Try(ctx context.Context, in Input) (Reply, bool) {
	logger := zerolog.Ctx(ctx)

	req, err := t.prompts.Build(ctx, t.kb.JSON(), in.Conversation.UserProfile, in.Conversation.Recent(t.cfg.ContextWindow), in.Text)
	if err != nil {
		logger.Error().Err(err).Msg("build completion request")
		recordFailure(ctx, t.sink, in, errcodex.AIInvalidResponse, err)
		return Reply{}, false
	}

	text, err := t.completeWithRetry(ctx, req)
	if err == nil {
		return Reply{Text: text, Source: contractx.SourceAI}, true
	}

	entry := errcodex.From(err)
	recordFailure(ctx, t.sink, in, entry, err)
	if errors.Is(err, contractx.ErrAIQuotaExceeded) {
		logger.Error().Err(err).Int("error_code", entry.Code).Msg("ai quota exhausted, not retrying")
		return Reply{Text: entry.Message, Source: contractx.SourceFallback, ErrorCode: entry.Code}, true
	}
	logger.Error().Err(err).Int("error_code", entry.Code).Msg("all ai attempts failed")
	return Reply{}, false
}

// completeWithRetry runs sequential attempts with exponential backoff.
// Quota exhaustion stops immediately.
func (t *aiTier) completeWithRetry(ctx context.Context, req contractx.CompletionRequest) (string, error) {
	logger := zerolog.Ctx(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.cfg.BackoffBase
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = t.cfg.BackoffBase << max(t.cfg.MaxRetries, 0)
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(t.cfg.MaxRetries, 0))), ctx)

	var (
		out     string
		attempt int
	)
	err := backoff.Retry(func() error {
		attempt++
		logger.Debug().Int("attempt", attempt).Int("max_attempts", t.cfg.MaxRetries+1).Msg("ai attempt")

		text, err := t.race(ctx, req)
		if err != nil {
			if errors.Is(err, contractx.ErrAIQuotaExceeded) {
				return backoff.Permanent(err)
			}
			logger.Warn().Err(err).Int("attempt", attempt).Msg("ai attempt failed")
			return err
		}
		out = text
		return nil
	}, policy)
	if err != nil {
		if !isAIFailure(err) {
			err = fmt.Errorf("%w: %v", contractx.ErrAITimeout, err)
		}
		return "", err
	}
	return out, nil
}

type raceOutcome struct {
	text string
	err  error
}

// race runs one completion against a timer. Whichever settles first claims
// the attempt; the other side's result is dropped and counted.
func (t *aiTier) race(ctx context.Context, req contractx.CompletionRequest) (string, error) {
	t.calls.Add(1)

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var settled atomic.Bool
	done := make(chan raceOutcome, 1)

	go func() {
		text, err := t.ai.Complete(callCtx, req, t.cfg.Timeout)
		if !settled.CompareAndSwap(false, true) {
			t.discarded.Add(1)
			zerolog.Ctx(ctx).Debug().Err(err).Msg("discarding late ai result")
			return
		}
		done <- raceOutcome{text: text, err: err}
	}()

	timer := time.NewTimer(t.cfg.Timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.text, res.err
	case <-timer.C:
		if settled.CompareAndSwap(false, true) {
			return "", fmt.Errorf("%w: no reply within %s", contractx.ErrAITimeout, t.cfg.Timeout)
		}
	case <-ctx.Done():
		if settled.CompareAndSwap(false, true) {
			return "", fmt.Errorf("%w: %v", contractx.ErrAITimeout, ctx.Err())
		}
	}
	// The call settled in the same instant; its result is already on the way.
	res := <-done
	return res.text, res.err
}

func isAIFailure(err error) bool {
	return errors.Is(err, contractx.ErrAITimeout) ||
		errors.Is(err, contractx.ErrAIQuotaExceeded) ||
		errors.Is(err, contractx.ErrAIUnavailable) ||
		errors.Is(err, contractx.ErrAIInvalidResponse)
}

func recordFailure(ctx context.Context, sink contractx.ErrorSink, in Input, entry errcodex.Entry, err error) {
	if sink == nil {
		return
	}
	var (
		userID  string
		channel contractx.Channel
	)
	if in.Conversation != nil {
		userID = in.Conversation.UserID
		channel = in.Conversation.Channel
	}
	sink.Record(ctx, contractx.ErrorRecord{
		ErrorCode:          entry.Code,
		UserFacingMessage:  entry.Message,
		InternalDiagnostic: errcodex.Diagnostic(entry, err),
		UserID:             userID,
		Channel:            channel,
		RequestID:          in.RequestID,
		OriginalUserText:   in.Text,
		Timestamp:          time.Now().UTC(),
	})
}

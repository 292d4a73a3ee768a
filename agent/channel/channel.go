// Package channel holds what the website, Telegram and WhatsApp adapters
// share: the orchestrator surface they call, rate limiting and delivery
// failure records.
package channel

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
	errcodex "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/errcode"
	ratelimitx "github.com/tanpawarit/Chative-Bakery-Support-Bot/pkg/ratelimit"
)

var (
	ErrBlocked       = errors.New("recipient blocked the bot")
	ErrSendFailed    = errors.New("outbound send failed")
	ErrNotConfigured = errors.New("channel credentials not configured")
)

// Handler is the orchestrator surface adapters depend on.
type Handler interface {
	Handle(ctx context.Context, req contractx.Request) contractx.Result
	Reject(ctx context.Context, code errcodex.Entry, req contractx.Request, cause error) contractx.Result
}

// Admit reports whether req is within the per-user rate limit. A failing
// limiter lets the message through.
func Admit(ctx context.Context, limiter ratelimitx.Limiter, req contractx.Request) bool {
	if limiter == nil {
		return true
	}
	ok, err := limiter.Allow(ctx, string(req.Channel)+":"+req.UserID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", req.UserID).Msg("rate limiter unavailable, allowing message")
		return true
	}
	return ok
}

// RecordDelivery logs a failed outbound reply against the request that produced it.
func RecordDelivery(
	ctx context.Context,
	sink contractx.ErrorSink,
	entry errcodex.Entry,
	requestID string,
	req contractx.Request,
	err error,
) {
	zerolog.Ctx(ctx).Error().Err(err).Str("request_id", requestID).Int("error_code", entry.Code).Msg("reply delivery failed")
	if sink == nil {
		return
	}
	sink.Record(ctx, contractx.ErrorRecord{
		ErrorCode:          entry.Code,
		UserFacingMessage:  entry.Message,
		InternalDiagnostic: errcodex.Diagnostic(entry, err),
		UserID:             req.UserID,
		Channel:            req.Channel,
		RequestID:          requestID,
		OriginalUserText:   req.Text,
		Timestamp:          time.Now().UTC(),
	})
}

// UserID namespaces a platform id, e.g. telegram_42.
func UserID(channel contractx.Channel, platformID string) string {
	return string(channel) + "_" + platformID
}

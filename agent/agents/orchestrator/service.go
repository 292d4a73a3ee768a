package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
	errcodex "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/errcode"
	nodex "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/nodes/orchestrator"
)

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func WithRequestIDs(next func() string) Option {
	return func(o *Orchestrator) {
		if next != nil {
			o.newID = next
		}
	}
}

// Orchestrator drives one inbound message through validation, context
// loading, resolution and persistence. Handle never returns an error.
type Orchestrator struct {
	store    contractx.ConversationStore
	resolver contractx.Resolver
	sink     contractx.ErrorSink

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now   func() time.Time
	newID func() string
}

func New(
	store contractx.ConversationStore,
	resolver contractx.Resolver,
	sink contractx.ErrorSink,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("conversation store is required")
	}
	if resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if sink == nil {
		sink = noopSink{}
	}

	o := &Orchestrator{
		store:    store,
		resolver: resolver,
		sink:     sink,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	graphRunner, err := o.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

func (o *Orchestrator) Handle(ctx context.Context, req contractx.Request) (res contractx.Result) {
	start := o.now()
	requestID := o.newID()
	ctx = requestLogger(ctx, requestID, req).WithContext(ctx)
	logger := zerolog.Ctx(ctx)

	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("orchestrator panic: %v", p)
			logger.Error().Err(err).Msg("request failed")
			res = o.failure(ctx, requestID, req, errcodex.Unknown, err, start)
		}
	}()

	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{RequestID: requestID, Request: req})
	if err != nil {
		logger.Error().Err(err).Msg("request failed")
		return o.failure(ctx, requestID, req, errcodex.From(err), err, start)
	}

	res = out.Result
	res.ResponseTime = o.now().Sub(start).Milliseconds()
	logger.Info().
		Str("phase", string(out.Phase)).
		Str("source", string(res.Source)).
		Int("error_code", res.ErrorCode).
		Int64("response_time_ms", res.ResponseTime).
		Msg("request handled")
	return res
}

// Reject answers a request that a channel adapter refused before any
// processing, recording code against a fresh request id.
func (o *Orchestrator) Reject(ctx context.Context, code errcodex.Entry, req contractx.Request, cause error) contractx.Result {
	start := o.now()
	requestID := o.newID()
	ctx = requestLogger(ctx, requestID, req).WithContext(ctx)
	zerolog.Ctx(ctx).Warn().Err(cause).Int("error_code", code.Code).Msg("request rejected by channel")
	return o.failure(ctx, requestID, req, code, cause, start)
}

func (o *Orchestrator) failure(
	ctx context.Context,
	requestID string,
	req contractx.Request,
	entry errcodex.Entry,
	err error,
	start time.Time,
) contractx.Result {
	nodex.Record(ctx, o.sink, &nodex.GraphState{
		RequestID: requestID,
		Request:   req,
		Now:       o.now().UTC(),
	}, entry, err)

	return contractx.Result{
		Success:      false,
		RequestID:    requestID,
		Response:     entry.Message,
		ErrorCode:    entry.Code,
		ResponseTime: o.now().Sub(start).Milliseconds(),
	}
}

func requestLogger(ctx context.Context, requestID string, req contractx.Request) zerolog.Logger {
	base := zerolog.Ctx(ctx)
	if base.GetLevel() == zerolog.Disabled {
		base = &log.Logger
	}
	return base.With().
		Str("request_id", requestID).
		Str("user_id", req.UserID).
		Str("channel", string(req.Channel)).
		Logger()
}

type noopSink struct{}

func (noopSink) Record(context.Context, contractx.ErrorRecord) {}

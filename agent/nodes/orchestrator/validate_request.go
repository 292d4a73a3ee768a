package orchestratornode

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
	errcodex "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/errcode"
	validatex "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/validate"
)

var ErrNilGraphState = errors.New("graph state is nil")

type Phase string

const (
	PhaseReceived      Phase = "RECEIVED"
	PhaseValidated     Phase = "VALIDATED"
	PhaseContextLoaded Phase = "CONTEXT_LOADED"
	PhaseResolving     Phase = "RESOLVING"
	PhasePersisted     Phase = "PERSISTED"
	PhaseResponded     Phase = "RESPONDED"
	PhaseError         Phase = "ERROR"
)

type GraphInput struct {
	RequestID string
	Request   contractx.Request
}

type GraphOutput struct {
	Result contractx.Result
	Phase  Phase
}

type GraphState struct {
	RequestID string
	Request   contractx.Request
	Text      string
	Now       time.Time
	Phase     Phase

	Conversation *contractx.Conversation
	// Degraded marks Conversation as an empty stand-in for one that could
	// not be loaded. It must never be written back over the stored one.
	Degraded   bool
	Resolution contractx.Resolution

	// Failure is set once the request has moved to ERROR.
	Failure *errcodex.Entry
}

func (s *GraphState) fail(e errcodex.Entry) {
	s.Failure = &e
	s.Phase = PhaseError
}

func ValidateRequest(
	ctx context.Context,
	in GraphInput,
	sink contractx.ErrorSink,
	nowFn func() time.Time,
) (*GraphState, error) {
	st := &GraphState{
		RequestID: in.RequestID,
		Request:   in.Request,
		Now:       nowFn().UTC(),
		Phase:     PhaseReceived,
	}

	var err error
	switch {
	case strings.TrimSpace(in.Request.UserID) == "":
		err = errcodex.New(errcodex.InvalidInput, errors.New("user id is empty"))
	case !in.Request.Channel.Valid():
		err = errcodex.New(errcodex.InvalidInput, contractx.ErrInvalidChannel)
	default:
		st.Text, err = validatex.Message(in.Request.Text)
	}
	if err != nil {
		entry := errcodex.From(err)
		zerolog.Ctx(ctx).Info().Err(err).Int("error_code", entry.Code).Msg("request rejected by validation")
		Record(ctx, sink, st, entry, err)
		st.fail(entry)
		return st, nil
	}

	st.Phase = PhaseValidated
	return st, nil
}

// Record sends one error record tagged with the request to sink.
func Record(ctx context.Context, sink contractx.ErrorSink, st *GraphState, entry errcodex.Entry, err error) {
	if sink == nil || st == nil {
		return
	}
	sink.Record(ctx, contractx.ErrorRecord{
		ErrorCode:          entry.Code,
		UserFacingMessage:  entry.Message,
		InternalDiagnostic: errcodex.Diagnostic(entry, err),
		UserID:             st.Request.UserID,
		Channel:            st.Request.Channel,
		RequestID:          st.RequestID,
		OriginalUserText:   st.Request.Text,
		Timestamp:          st.Now,
	})
}

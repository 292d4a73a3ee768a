package orchestratornode

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
	errcodex "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/errcode"
)

// PersistTurn stores the user message and the reply. Failures are recorded
// once and swallowed. When the conversation was never loaded, it is fetched
// again and the turn is skipped if that also fails.
func PersistTurn(
	ctx context.Context,
	in *GraphState,
	store contractx.ConversationStore,
	sink contractx.ErrorSink,
	nowFn func() time.Time,
) (*GraphState, error) {
	if in == nil {
		return nil, ErrNilGraphState
	}

	user := contractx.Message{
		RequestID: in.RequestID,
		Sender:    contractx.SenderUser,
		Text:      in.Text,
		Timestamp: in.Now,
		Metadata:  contractx.MessageMetadata{Extra: maps.Clone(in.Request.Metadata)},
	}
	bot := contractx.Message{
		RequestID: in.RequestID,
		Sender:    contractx.SenderBot,
		Text:      in.Resolution.Text,
		Timestamp: nowFn().UTC(),
		Metadata:  contractx.MessageMetadata{Source: in.Resolution.Source},
	}

	if in.Degraded {
		conv, err := store.GetOrCreate(ctx, in.Request.UserID, in.Request.Channel)
		if err != nil || conv == nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("conversation still unavailable, turn not saved")
			if err == nil {
				err = contractx.ErrConversationNotFound
			}
			Record(ctx, sink, in, errcodex.DBSaveError, err)
			in.Phase = PhasePersisted
			return in, nil
		}
		in.Conversation = conv
		in.Degraded = false
	}

	errUser := store.Append(ctx, in.Conversation, user)
	errBot := store.Append(ctx, in.Conversation, bot)
	if err := errors.Join(errUser, errBot); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("persist conversation failed, reply still delivered")
		Record(ctx, sink, in, errcodex.DBSaveError, err)
	}

	in.Phase = PhasePersisted
	return in, nil
}

package orchestratornode

import (
	"context"

	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
	errcodex "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/errcode"
)

// LoadConversation degrades to an empty in-memory conversation when the
// store cannot be read; the reply is still produced.
func LoadConversation(
	ctx context.Context,
	in *GraphState,
	store contractx.ConversationStore,
	sink contractx.ErrorSink,
) (*GraphState, error) {
	if in == nil {
		return nil, ErrNilGraphState
	}

	conv, err := store.GetOrCreate(ctx, in.Request.UserID, in.Request.Channel)
	if err != nil || conv == nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("load conversation failed, continuing without history")
		Record(ctx, sink, in, errcodex.DBQueryError, err)
		conv = contractx.NewConversation("", in.Request.UserID, in.Request.Channel, in.Now)
		in.Degraded = true
	}

	in.Conversation = conv
	in.Phase = PhaseContextLoaded
	return in, nil
}

package orchestratornode

import (
	"context"

	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
)

func ResolveReply(ctx context.Context, in *GraphState, resolver contractx.Resolver) (*GraphState, error) {
	if in == nil {
		return nil, ErrNilGraphState
	}
	in.Phase = PhaseResolving
	in.Resolution = resolver.Resolve(ctx, in.RequestID, in.Text, in.Conversation)
	return in, nil
}

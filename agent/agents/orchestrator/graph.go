package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	nodex "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/nodes/orchestrator"
)

const (
	nodeValidate = "validate_request"
	nodeLoad     = "load_conversation"
	nodeResolve  = "resolve_reply"
	nodePersist  = "persist_turn"
	nodeFinalize = "finalize_reply"
	nodeReject   = "reject_request"
)

// compileHandleMessageGraph wires
// RECEIVED -> VALIDATED -> CONTEXT_LOADED -> RESOLVING -> PERSISTED -> RESPONDED,
// with a branch to reject_request when validation fails.
func (o *Orchestrator) compileHandleMessageGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode(nodeValidate,
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(ctx, in, o.sink, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeValidate, err)
	}

	if err := graph.AddLambdaNode(nodeLoad,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadConversation(ctx, in, o.store, o.sink)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeLoad, err)
	}

	if err := graph.AddLambdaNode(nodeResolve,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ResolveReply(ctx, in, o.resolver)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeResolve, err)
	}

	if err := graph.AddLambdaNode(nodePersist,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.PersistTurn(ctx, in, o.store, o.sink, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodePersist, err)
	}

	if err := graph.AddLambdaNode(nodeFinalize,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeFinalize, err)
	}

	if err := graph.AddLambdaNode(nodeReject,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeReject, err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.GraphState) (string, error) {
			if in == nil {
				return "", nodex.ErrNilGraphState
			}
			if in.Failure != nil {
				return nodeReject, nil
			}
			return nodeLoad, nil
		},
		map[string]bool{
			nodeLoad:   true,
			nodeReject: true,
		},
	)
	if err := graph.AddBranch(nodeValidate, branch); err != nil {
		return nil, fmt.Errorf("add branch after %s: %w", nodeValidate, err)
	}

	edges := [][2]string{
		{compose.START, nodeValidate},
		{nodeLoad, nodeResolve},
		{nodeResolve, nodePersist},
		{nodePersist, nodeFinalize},
		{nodeFinalize, compose.END},
		{nodeReject, compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.handle_message"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}

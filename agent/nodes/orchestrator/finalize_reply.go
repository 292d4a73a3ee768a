package orchestratornode

import (
	"strings"

	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
	errcodex "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/errcode"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, ErrNilGraphState
	}

	if in.Failure != nil {
		return GraphOutput{
			Phase: PhaseError,
			Result: contractx.Result{
				Success:   false,
				RequestID: in.RequestID,
				Response:  in.Failure.Message,
				ErrorCode: in.Failure.Code,
			},
		}, nil
	}

	reply := strings.TrimSpace(in.Resolution.Text)
	if reply == "" {
		// The resolver always answers; this only guards a misbehaving one.
		return GraphOutput{
			Phase: PhaseError,
			Result: contractx.Result{
				RequestID: in.RequestID,
				Response:  errcodex.Unknown.Message,
				ErrorCode: errcodex.Unknown.Code,
			},
		}, nil
	}

	// A coded reply is delivered but still reported as a failure.
	return GraphOutput{
		Phase: PhaseResponded,
		Result: contractx.Result{
			Success:   in.Resolution.ErrorCode == 0,
			RequestID: in.RequestID,
			Response:  reply,
			Source:    in.Resolution.Source,
			ErrorCode: in.Resolution.ErrorCode,
		},
	}, nil
}

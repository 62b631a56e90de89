package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/polaris-nbfc/loan-agent/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil || in.Session == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(strings.Join(in.Segments, "\n\n"))
	if reply == "" {
		return GraphOutput{}, fmt.Errorf("%w: workflow produced an empty reply", contractx.ErrValidation)
	}

	return GraphOutput{
		Reply:    reply,
		Stage:    in.Session.Stage,
		Terminal: in.Session.Terminal,
	}, nil
}

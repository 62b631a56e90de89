package orchestratornode

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/polaris-nbfc/loan-agent/agent/contract"
	statex "github.com/polaris-nbfc/loan-agent/agent/state"
)

func SaveState(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	if in.Echoed {
		return in, nil
	}

	st := in.Session
	st.AddMessage("agent", strings.Join(in.Segments, "\n\n"))

	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrValidation, err)
	}
	if err := store.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("save session=%s: %w", st.SessionID, err)
	}
	return in, nil
}

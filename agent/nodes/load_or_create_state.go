package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	contractx "github.com/polaris-nbfc/loan-agent/agent/contract"
	statex "github.com/polaris-nbfc/loan-agent/agent/state"
)

func LoadOrCreateState(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	st, err := store.Load(ctx, in.SessionID)
	if err != nil {
		if !errors.Is(err, statex.ErrStateNotFound) {
			return nil, err
		}
		st = statex.NewSessionState(in.SessionID, in.Now)
	}

	in.Session = st
	return in, nil
}

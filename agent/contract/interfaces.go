package contract

import (
	"context"

	"github.com/polaris-nbfc/loan-agent/agent/machine"
	statex "github.com/polaris-nbfc/loan-agent/agent/state"
)

// Handler is one workflow stage's worker agent.
type Handler interface {
	Type() HandlerType
	// Inputs returns the identity-relevant fields of this invocation; the
	// orchestrator fingerprints them for the duplicate guard.
	Inputs(st *statex.SessionState, userInput string) map[string]any
	Handle(ctx context.Context, req Request) (Response, error)
}

// Registry binds each stage to the handler responsible for it.
type Registry interface {
	ForStage(stage machine.Stage) (Handler, bool)
}

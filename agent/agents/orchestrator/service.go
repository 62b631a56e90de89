// Package orchestrator owns the conversation loop: it loads the session,
// dispatches the stage's worker handler behind the safeguard tracker, and
// persists the result of each turn.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/polaris-nbfc/loan-agent/agent/contract"
	nodex "github.com/polaris-nbfc/loan-agent/agent/nodes"
	"github.com/polaris-nbfc/loan-agent/agent/safeguard"
	statex "github.com/polaris-nbfc/loan-agent/agent/state"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
)

type Orchestrator struct {
	store    statex.Store
	registry contractx.Registry
	tracker  *safeguard.Tracker

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	// sessionLocks serializes turns per session; concurrent turns for the
	// same customer would race on the stored state.
	sessionLocks sync.Map

	now func() time.Time
}

func New(store statex.Store, registry contractx.Registry, tracker *safeguard.Tracker) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if registry == nil {
		return nil, errors.New("handler registry is required")
	}
	if tracker == nil {
		tracker = safeguard.NewTracker(safeguard.DefaultMaxHandlerCalls)
	}

	o := &Orchestrator{
		store:    store,
		registry: registry,
		tracker:  tracker,
		now:      time.Now,
	}

	graphRunner, err := o.compileAdvanceGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// Advance runs one customer turn and returns the accumulated reply for it.
func (o *Orchestrator) Advance(ctx context.Context, sessionID, text string) (contractx.Turn, error) {
	unlock := o.lockSession(sessionID)
	defer unlock()

	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		SessionID: sessionID,
		Text:      text,
	})
	if err != nil {
		return contractx.Turn{}, err
	}

	if out.Terminal != "" {
		log.Info().
			Str("session_id", sessionID).
			Str("terminal", string(out.Terminal)).
			Msg("conversation reached terminal outcome")
	}

	return contractx.Turn{
		Reply:    out.Reply,
		Stage:    out.Stage,
		Terminal: out.Terminal,
	}, nil
}

func (o *Orchestrator) lockSession(sessionID string) func() {
	v, _ := o.sessionLocks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

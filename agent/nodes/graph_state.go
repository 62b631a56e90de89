// Package orchestratornode holds the lambda nodes of the conversation
// dispatch graph. Each node takes the shared GraphState, does one step, and
// hands it on.
package orchestratornode

import (
	"errors"
	"strings"
	"time"

	"github.com/polaris-nbfc/loan-agent/agent/machine"
	statex "github.com/polaris-nbfc/loan-agent/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = errors.New("session id is empty")
)

type GraphInput struct {
	SessionID string
	Text      string
}

type GraphOutput struct {
	Reply    string
	Stage    machine.Stage
	Terminal machine.TerminalOutcome
}

type GraphState struct {
	SessionID string
	Text      string
	Now       time.Time

	Session *statex.SessionState

	// Segments collects the user-visible text produced across silent
	// transitions within this one turn.
	Segments []string

	// Echoed marks a turn against an already-closed session; nothing is
	// persisted for those.
	Echoed bool
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		SessionID: sessionID,
		Text:      text,
		Now:       nowFn().UTC(),
	}, nil
}

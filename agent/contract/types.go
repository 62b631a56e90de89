package contract

import (
	"github.com/polaris-nbfc/loan-agent/agent/machine"
	statex "github.com/polaris-nbfc/loan-agent/agent/state"
)

type HandlerType string

const (
	HandlerSales        HandlerType = "sales"
	HandlerVerification HandlerType = "verification"
	HandlerUnderwriting HandlerType = "underwriting"
	HandlerSanction     HandlerType = "sanction"
)

// Request is the read-only view a handler receives. Handlers must not mutate
// Session; all proposed changes travel back in Response.Delta.
type Request struct {
	Session   *statex.SessionState
	UserInput string
}

// Response is a handler's structured result: the outcome category feeding
// the transition table, a proposed context delta, and the user-facing text.
// Continue marks a silent transition: the orchestrator keeps advancing on
// the same input instead of waiting for the next external turn.
type Response struct {
	Outcome  machine.Outcome
	Delta    statex.Delta
	Message  string
	Continue bool
}

// Turn is what the external caller gets back from one advance of the
// conversation. Terminal is empty until the session ends.
type Turn struct {
	Reply    string
	Stage    machine.Stage
	Terminal machine.TerminalOutcome
}

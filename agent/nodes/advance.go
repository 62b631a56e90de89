package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/polaris-nbfc/loan-agent/agent/contract"
	"github.com/polaris-nbfc/loan-agent/agent/machine"
	"github.com/polaris-nbfc/loan-agent/agent/safeguard"
)

const breachReply = "It looks like we're going in circles, so I'll pause here for now. A loan officer will reach out to you shortly. Thank you for your patience!"

// meteredStages lists the stages whose handler calls count against the
// session's call ceiling. The scripted steps around them (greeting, phone
// capture, offer lookup, document receipt) are deterministic and cannot spin
// on the model, so they pass the tracker unrecorded; counting them would
// exhaust the ceiling on a normal conversation before the decision stages
// run.
var meteredStages = map[machine.Stage]bool{
	machine.StageOfferPresentation: true,
	machine.StageKYCVerification:   true,
	machine.StageUnderwriting:      true,
	machine.StageSanction:          true,
	machine.StageRejection:         true,
}

// AdvanceWorkflow is the dispatch loop for one customer turn. It invokes the
// stage's handler, resolves the transition, applies the delta, and keeps
// going while handlers mark the transition silent. Metered stages pass
// through the safeguard tracker before their handler runs, so a handler that
// loops without making progress is cut off mid-turn.
func AdvanceWorkflow(
	ctx context.Context,
	in *GraphState,
	registry contractx.Registry,
	tracker *safeguard.Tracker,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	st := in.Session
	if st == nil {
		return nil, fmt.Errorf("%w: session is nil", contractx.ErrValidation)
	}

	if st.IsTerminal() {
		in.Echoed = true
		in.Segments = append(in.Segments, fmt.Sprintf(
			"This application is already closed (outcome: %s). Please start a new session if you'd like to apply again.",
			st.Terminal,
		))
		return in, nil
	}

	st.AddMessage("customer", in.Text)

	for {
		handler, ok := registry.ForStage(st.Stage)
		if !ok {
			return nil, fmt.Errorf("%w: no handler for stage=%s", contractx.ErrUnknownStage, st.Stage)
		}

		name := string(handler.Type())

		if meteredStages[st.Stage] {
			fp := safeguard.Fingerprint(name, handler.Inputs(st, in.Text))
			if err := tracker.Check(st, name, fp); err != nil {
				if !errors.Is(err, safeguard.ErrBreach) {
					return nil, err
				}
				log.Warn().
					Str("session_id", st.SessionID).
					Str("handler", name).
					Str("stage", string(st.Stage)).
					Err(err).
					Msg("safeguard breach, forcing termination")
				if terr := st.SetTerminal(machine.TerminalCustomerDropped, in.Now); terr != nil {
					return nil, terr
				}
				in.Segments = append(in.Segments, breachReply)
				break
			}
			st.RecordCall(name, fp, in.Now)
		}

		resp, err := handler.Handle(ctx, contractx.Request{Session: st, UserInput: in.Text})
		if err != nil {
			return nil, fmt.Errorf("handler=%s stage=%s: %w", name, st.Stage, err)
		}

		next, err := machine.Next(st.Stage, resp.Outcome)
		if err != nil {
			return nil, fmt.Errorf("handler=%s: %w", name, err)
		}

		if err := st.Apply(resp.Delta, in.Now); err != nil {
			return nil, fmt.Errorf("apply delta from handler=%s: %w", name, err)
		}
		if resp.Message != "" {
			in.Segments = append(in.Segments, resp.Message)
		}

		if next != st.Stage {
			st.PushStage(next)
			st.Stage = next
		}

		if term, ok := machine.TerminalFor(resp.Outcome); ok {
			if err := st.SetTerminal(term, in.Now); err != nil {
				return nil, err
			}
			break
		}
		if !resp.Continue || st.Stage == machine.StageEnd {
			break
		}
	}

	return in, nil
}

package worker

import (
	"context"
	"fmt"

	contractx "github.com/polaris-nbfc/loan-agent/agent/contract"
	"github.com/polaris-nbfc/loan-agent/agent/machine"
	statex "github.com/polaris-nbfc/loan-agent/agent/state"
	"github.com/polaris-nbfc/loan-agent/agent/underwriting"
)

// Underwriting applies the credit rules to the captured requirement. On the
// re-entry pass, after income proof arrives, the instalment-to-salary check
// replaces the limit check as the deciding rule.
type Underwriting struct {
	rules underwriting.Config
}

func NewUnderwriting(rules underwriting.Config) *Underwriting {
	return &Underwriting{rules: rules}
}

func (u *Underwriting) Type() contractx.HandlerType { return contractx.HandlerUnderwriting }

func (u *Underwriting) Inputs(st *statex.SessionState, _ string) map[string]any {
	return map[string]any{
		"stage":    string(st.Stage),
		"amount":   st.RequestedAmount,
		"tenure":   st.TenureMonths,
		"document": string(st.Document),
	}
}

func (u *Underwriting) Handle(_ context.Context, req contractx.Request) (contractx.Response, error) {
	st := req.Session
	if st.Stage != machine.StageUnderwriting {
		return contractx.Response{}, fmt.Errorf("%w: underwriting cannot serve stage=%s", contractx.ErrUnknownStage, st.Stage)
	}
	if st.RequestedAmount <= 0 {
		return contractx.Response{}, fmt.Errorf("%w: no requested amount on session", contractx.ErrValidation)
	}

	if st.Document == statex.DocumentReceived {
		return u.decideWithDocument(st)
	}
	return u.decide(st)
}

func (u *Underwriting) decide(st *statex.SessionState) (contractx.Response, error) {
	result := underwriting.Decide(u.rules, st.Customer.CreditScore, st.RequestedAmount, st.Customer.PreapprovedLimit)
	decision := result.Decision

	switch decision {
	case underwriting.DecisionApproved:
		emi := underwriting.EMI(st.RequestedAmount, st.Customer.InterestRate, st.TenureMonths)
		return contractx.Response{
			Outcome: machine.OutcomeApproved,
			Delta: statex.Delta{
				Decision: &decision,
				EMI:      &emi,
			},
			Continue: true,
		}, nil
	case underwriting.DecisionApprovedWithDocument:
		requested := statex.DocumentRequested
		return contractx.Response{
			Outcome: machine.OutcomeApprovedWithDocument,
			Delta: statex.Delta{
				Decision: &decision,
				Document: &requested,
			},
			Message: fmt.Sprintf(
				"₹%.0f is above your instant pre-approved limit of ₹%.0f, but we can still make it work. Please share your latest %s so we can verify your income.",
				st.RequestedAmount, st.Customer.PreapprovedLimit, result.RequiredDocument,
			),
		}, nil
	default:
		return contractx.Response{
			Outcome: machine.OutcomeRejected,
			Delta: statex.Delta{
				Decision:        &decision,
				RejectionReason: &result.Reason,
			},
			Continue: true,
		}, nil
	}
}

// decideWithDocument is the single re-entry pass: amount is already known to
// exceed the instant limit, so affordability against the documented salary
// is what approves or rejects.
func (u *Underwriting) decideWithDocument(st *statex.SessionState) (contractx.Response, error) {
	emi := underwriting.EMI(st.RequestedAmount, st.Customer.InterestRate, st.TenureMonths)
	if underwriting.Affordable(u.rules, emi, st.Customer.MonthlySalary) {
		approved := underwriting.DecisionApproved
		return contractx.Response{
			Outcome: machine.OutcomeApproved,
			Delta: statex.Delta{
				Decision: &approved,
				EMI:      &emi,
			},
			Continue: true,
		}, nil
	}

	rejected := underwriting.DecisionRejected
	reason := fmt.Sprintf(
		"monthly instalment of ₹%.0f exceeds %.0f%% of the verified salary of ₹%.0f",
		emi, u.rules.MaxEMIToSalaryRatio*100, st.Customer.MonthlySalary,
	)
	return contractx.Response{
		Outcome: machine.OutcomeRejected,
		Delta: statex.Delta{
			Decision:        &rejected,
			RejectionReason: &reason,
		},
		Continue: true,
	}, nil
}

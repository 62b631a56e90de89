package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/polaris-nbfc/loan-agent/agent/contract"
	"github.com/polaris-nbfc/loan-agent/agent/crm"
	"github.com/polaris-nbfc/loan-agent/agent/machine"
	statex "github.com/polaris-nbfc/loan-agent/agent/state"
)

// Verification confirms the customer's KYC standing against the CRM before
// any credit decision is made. It runs silently: the customer only hears
// from it when verification cannot proceed.
type Verification struct {
	crm crm.Client
}

func NewVerification(client crm.Client) *Verification {
	return &Verification{crm: client}
}

func (v *Verification) Type() contractx.HandlerType { return contractx.HandlerVerification }

func (v *Verification) Inputs(st *statex.SessionState, userInput string) map[string]any {
	return map[string]any{
		"stage": string(st.Stage),
		"phone": st.Customer.Phone,
		"kyc":   string(st.KYC),
		"input": userInput,
	}
}

func (v *Verification) Handle(ctx context.Context, req contractx.Request) (contractx.Response, error) {
	st := req.Session
	if st.Stage != machine.StageKYCVerification {
		return contractx.Response{}, fmt.Errorf("%w: verification cannot serve stage=%s", contractx.ErrUnknownStage, st.Stage)
	}

	record, err := v.fetch(ctx, st.Customer.Phone)
	if errors.Is(err, crm.ErrCustomerNotFound) {
		return v.fail(st, "no KYC record found for this customer")
	}
	if err != nil {
		log.Error().Err(err).Str("phone", st.Customer.Phone).Msg("crm unreachable after retry")
		return contractx.Response{
			Outcome: machine.OutcomeAwaitingInput,
			Message: "I couldn't reach our verification system just now. Please send any message in a moment and I'll try again.",
		}, nil
	}

	switch record.KYC {
	case crm.KYCResultVerified:
		verified := statex.KYCVerified
		return contractx.Response{
			Outcome:  machine.OutcomeKYCVerified,
			Delta:    statex.Delta{KYC: &verified},
			Continue: true,
		}, nil
	case crm.KYCResultPending:
		pending := statex.KYCPending
		return contractx.Response{
			Outcome: machine.OutcomeKYCPending,
			Delta:   statex.Delta{KYC: &pending},
			Message: fmt.Sprintf("%s, your KYC verification is still in progress. Please complete it and message me once done, and we'll continue from here.", st.Customer.Name),
		}, nil
	default:
		return v.fail(st, "KYC is not verified for this customer")
	}
}

func (v *Verification) fail(st *statex.SessionState, reason string) (contractx.Response, error) {
	unverified := statex.KYCUnverified
	return contractx.Response{
		Outcome: machine.OutcomeKYCFailed,
		Delta: statex.Delta{
			KYC:             &unverified,
			RejectionReason: &reason,
		},
		Continue: true,
	}, nil
}

// fetch retries once; a single CRM hiccup should not fail a live
// conversation.
func (v *Verification) fetch(ctx context.Context, phone string) (*crm.Record, error) {
	record, err := v.crm.FetchCustomer(ctx, phone)
	if err == nil || errors.Is(err, crm.ErrCustomerNotFound) {
		return record, err
	}
	log.Warn().Err(err).Str("phone", phone).Msg("crm fetch failed, retrying")
	return v.crm.FetchCustomer(ctx, phone)
}

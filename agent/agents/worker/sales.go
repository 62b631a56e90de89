package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/polaris-nbfc/loan-agent/agent/contract"
	"github.com/polaris-nbfc/loan-agent/agent/machine"
	"github.com/polaris-nbfc/loan-agent/agent/offermart"
	statex "github.com/polaris-nbfc/loan-agent/agent/state"
	"github.com/polaris-nbfc/loan-agent/agent/underwriting"
)

// Sales runs the customer-facing conversation stages: it greets, captures
// the phone number, looks up the pre-approved offer, and extracts the loan
// requirement. When no model is configured it degrades to regex extraction.
type Sales struct {
	offers offermart.Store
	rules  underwriting.Config
	runner compose.Runnable[map[string]any, salesLLMOutput]
}

type salesLLMOutput struct {
	RequestedAmount *float64 `json:"requested_amount"`
	TenureMonths    *int     `json:"tenure_months"`
	Purpose         *string  `json:"purpose"`
	Reply           string   `json:"reply"`
}

func (o salesLLMOutput) validate() error {
	if o.RequestedAmount != nil && *o.RequestedAmount < 0 {
		return fmt.Errorf("%w: negative requested_amount %.0f", contractx.ErrSchemaViolation, *o.RequestedAmount)
	}
	if o.TenureMonths != nil && *o.TenureMonths < 0 {
		return fmt.Errorf("%w: negative tenure_months %d", contractx.ErrSchemaViolation, *o.TenureMonths)
	}
	return nil
}

func NewSales(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	offers offermart.Store,
	rules underwriting.Config,
) (*Sales, error) {
	s := &Sales{offers: offers, rules: rules}

	if chatModel != nil {
		runner, err := compileStructuredLLMGraph[salesLLMOutput](ctx, chatModel, systemPrompt, "sales.extract_graph")
		if err != nil {
			return nil, fmt.Errorf("%w: compile sales graph: %v", contractx.ErrModelInvoke, err)
		}
		s.runner = runner
	}

	return s, nil
}

func (s *Sales) Type() contractx.HandlerType { return contractx.HandlerSales }

func (s *Sales) Inputs(st *statex.SessionState, userInput string) map[string]any {
	return map[string]any{
		"stage": string(st.Stage),
		"input": userInput,
		"phone": st.Customer.Phone,
	}
}

func (s *Sales) Handle(ctx context.Context, req contractx.Request) (contractx.Response, error) {
	st := req.Session
	switch st.Stage {
	case machine.StageIntro:
		return s.handleIntro(req)
	case machine.StageNeedDiscovery:
		return s.handleNeedDiscovery(ctx, req)
	case machine.StageOfferPresentation:
		return s.handleOfferPresentation(ctx, req)
	case machine.StageDocumentCollection:
		return s.handleDocumentCollection(req)
	default:
		return contractx.Response{}, fmt.Errorf("%w: sales cannot serve stage=%s", contractx.ErrUnknownStage, st.Stage)
	}
}

func (s *Sales) handleIntro(req contractx.Request) (contractx.Response, error) {
	phone, ok := offermart.NormalizePhone(req.UserInput)
	if !ok {
		return contractx.Response{
			Outcome: machine.OutcomeAwaitingInput,
			Message: "Hello! This is Maya from Polaris Finance. You may be eligible for an instant pre-approved personal loan. Could you share your 10-digit registered mobile number so I can check your offer?",
		}, nil
	}

	return contractx.Response{
		Outcome:  machine.OutcomeAdvance,
		Delta:    statex.Delta{Phone: &phone},
		Continue: true,
	}, nil
}

func (s *Sales) handleNeedDiscovery(ctx context.Context, req contractx.Request) (contractx.Response, error) {
	phone := req.Session.Customer.Phone
	offer, err := s.lookupOffer(ctx, phone)
	if errors.Is(err, offermart.ErrOfferNotFound) {
		return contractx.Response{
			Outcome: machine.OutcomeCustomerExit,
			Message: "I'm sorry, I couldn't find a pre-approved offer against that number. Our team will reach out if one becomes available. Thank you for your time!",
		}, nil
	}
	if err != nil {
		log.Error().Err(err).Str("phone", phone).Msg("offer mart unreachable after retry")
		return contractx.Response{
			Outcome: machine.OutcomeAwaitingInput,
			Message: "Sorry, I couldn't process that just now. Please send your number again in a moment and I'll retry.",
		}, nil
	}

	delta := statex.Delta{
		CustomerID:       &offer.CustomerID,
		Name:             &offer.Name,
		CreditScore:      &offer.CreditScore,
		PreapprovedLimit: &offer.PreapprovedLimit,
		InterestRate:     &offer.InterestRate,
		MaxTenureMonths:  &offer.MaxTenureMonths,
		MonthlySalary:    &offer.MonthlySalary,
		Employer:         &offer.Employer,
	}

	// A record can exist without an eligible offer behind it.
	if offer.CreditScore < s.rules.MinCreditScore || offer.PreapprovedLimit <= 0 {
		reason := "no eligible pre-approved amount on record"
		if offer.CreditScore < s.rules.MinCreditScore {
			reason = fmt.Sprintf("credit score %d is below the minimum of %d", offer.CreditScore, s.rules.MinCreditScore)
		}
		delta.RejectionReason = &reason
		return contractx.Response{
			Outcome:  machine.OutcomeRejected,
			Delta:    delta,
			Continue: true,
		}, nil
	}

	msg := fmt.Sprintf(
		"Great news, %s! You are pre-approved for a personal loan of up to ₹%.0f at %.1f%% per annum, with tenures up to %d months. How much would you like to borrow?",
		offer.Name, offer.PreapprovedLimit, offer.InterestRate, offer.MaxTenureMonths,
	)

	return contractx.Response{
		Outcome: machine.OutcomeOfferFound,
		Delta:   delta,
		Message: msg,
	}, nil
}

// lookupOffer retries once; a single offer mart hiccup should not fail a
// live conversation.
func (s *Sales) lookupOffer(ctx context.Context, phone string) (*offermart.Offer, error) {
	offer, err := s.offers.Lookup(ctx, phone)
	if err == nil || errors.Is(err, offermart.ErrOfferNotFound) {
		return offer, err
	}
	log.Warn().Err(err).Str("phone", phone).Msg("offer lookup failed, retrying")
	return s.offers.Lookup(ctx, phone)
}

func (s *Sales) handleOfferPresentation(ctx context.Context, req contractx.Request) (contractx.Response, error) {
	st := req.Session
	if isDecline(req.UserInput) {
		return contractx.Response{
			Outcome: machine.OutcomeCustomerExit,
			Message: "No problem at all. Your pre-approved offer stays active, so feel free to come back any time. Have a great day!",
		}, nil
	}

	out, err := s.extract(ctx, st, req.UserInput)
	if err != nil {
		log.Warn().Err(err).Str("session_id", st.SessionID).Msg("sales extraction degraded to regex")
		out = s.extractFallback(st, req.UserInput)
	}

	if out.RequestedAmount == nil || *out.RequestedAmount <= 0 {
		msg := strings.TrimSpace(out.Reply)
		if msg == "" {
			msg = fmt.Sprintf("Just to confirm, how much would you like to borrow? You are pre-approved for up to ₹%.0f.", st.Customer.PreapprovedLimit)
		}
		return contractx.Response{
			Outcome: machine.OutcomeAwaitingInput,
			Message: msg,
		}, nil
	}

	amount := *out.RequestedAmount
	tenure := st.Customer.MaxTenureMonths
	if out.TenureMonths != nil && *out.TenureMonths > 0 {
		tenure = *out.TenureMonths
	}
	if st.Customer.MaxTenureMonths > 0 && tenure > st.Customer.MaxTenureMonths {
		tenure = st.Customer.MaxTenureMonths
	}

	delta := statex.Delta{
		RequestedAmount: &amount,
		TenureMonths:    &tenure,
	}
	if out.Purpose != nil && strings.TrimSpace(*out.Purpose) != "" {
		delta.Purpose = out.Purpose
	}

	return contractx.Response{
		Outcome:  machine.OutcomeAmountCaptured,
		Delta:    delta,
		Message:  strings.TrimSpace(out.Reply),
		Continue: true,
	}, nil
}

func (s *Sales) handleDocumentCollection(req contractx.Request) (contractx.Response, error) {
	st := req.Session
	input := req.UserInput

	switch {
	case isDefer(input):
		return contractx.Response{
			Outcome: machine.OutcomeDocumentDeferred,
			Message: "Understood. Your application is on hold until we receive your salary slip; share it any time and we will pick up right where we left off.",
		}, nil
	case isDecline(input):
		return contractx.Response{
			Outcome: machine.OutcomeCustomerExit,
			Message: "No problem, we'll close this application for now. You're welcome to reapply whenever it suits you.",
		}, nil
	case mentionsDocument(input):
		received := statex.DocumentReceived
		delta := statex.Delta{Document: &received}
		if salary, ok := extractAmount(input); ok && salary < 1000000 {
			delta.MonthlySalary = &salary
		}
		return contractx.Response{
			Outcome:  machine.OutcomeDocumentReceived,
			Delta:    delta,
			Message:  "Thank you, I've received your salary slip. Give me a moment while we take a fresh look at your application.",
			Continue: true,
		}, nil
	default:
		return contractx.Response{
			Outcome: machine.OutcomeAwaitingInput,
			Message: fmt.Sprintf("To proceed with ₹%.0f we need your latest salary slip as income proof. Could you share it here?", st.RequestedAmount),
		}, nil
	}
}

// extract runs the structured extraction graph, retrying once before giving
// up so a single transient model failure does not derail the turn.
func (s *Sales) extract(ctx context.Context, st *statex.SessionState, userInput string) (salesLLMOutput, error) {
	if s.runner == nil {
		return salesLLMOutput{}, fmt.Errorf("%w: no chat model configured", contractx.ErrModelInvoke)
	}

	payload := map[string]any{
		"user_message":      userInput,
		"preapproved_limit": st.Customer.PreapprovedLimit,
		"interest_rate":     st.Customer.InterestRate,
		"max_tenure_months": st.Customer.MaxTenureMonths,
		"known_amount":      nullableFloat(st.RequestedAmount),
		"known_tenure":      nullableInt(st.TenureMonths),
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return salesLLMOutput{}, fmt.Errorf("%w: marshal sales payload: %v", contractx.ErrValidation, err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		out, err := s.runner.Invoke(ctx, map[string]any{"input": string(input)})
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
			continue
		}
		if err := out.validate(); err != nil {
			lastErr = err
			continue
		}
		return out, nil
	}
	return salesLLMOutput{}, fmt.Errorf("sales extraction: %w", lastErr)
}

// extractFallback is the no-model path: regex over the raw message.
func (s *Sales) extractFallback(st *statex.SessionState, userInput string) salesLLMOutput {
	var out salesLLMOutput
	if amount, ok := extractAmount(userInput); ok {
		out.RequestedAmount = &amount
		out.Reply = fmt.Sprintf("Got it, a loan of ₹%.0f. Let me quickly verify your details.", amount)
	}
	if tenure, ok := extractTenureMonths(userInput); ok {
		out.TenureMonths = &tenure
	}
	return out
}

func nullableFloat(v float64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

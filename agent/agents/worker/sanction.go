package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	openaisdk "github.com/openai/openai-go"
	"github.com/rs/zerolog/log"

	contractx "github.com/polaris-nbfc/loan-agent/agent/contract"
	"github.com/polaris-nbfc/loan-agent/agent/machine"
	statex "github.com/polaris-nbfc/loan-agent/agent/state"
)

// Sanction closes out the conversation: it issues the sanction letter for
// approved loans and the regret notice for rejected ones. When an OpenAI SDK
// client is supplied, the letter opens with a model-written personal note;
// without one the templated letter stands on its own.
type Sanction struct {
	now    func() time.Time
	client *openaisdk.Client
	model  string
}

func NewSanction(now func() time.Time, client *openaisdk.Client, model string) *Sanction {
	if now == nil {
		now = time.Now
	}
	return &Sanction{now: now, client: client, model: model}
}

func (h *Sanction) Type() contractx.HandlerType { return contractx.HandlerSanction }

func (h *Sanction) Inputs(st *statex.SessionState, _ string) map[string]any {
	return map[string]any{
		"stage":    string(st.Stage),
		"decision": string(st.Decision),
		"amount":   st.RequestedAmount,
	}
}

func (h *Sanction) Handle(ctx context.Context, req contractx.Request) (contractx.Response, error) {
	st := req.Session
	switch st.Stage {
	case machine.StageSanction:
		return h.issueSanction(ctx, st)
	case machine.StageRejection:
		return h.issueRejection(st)
	default:
		return contractx.Response{}, fmt.Errorf("%w: sanction cannot serve stage=%s", contractx.ErrUnknownStage, st.Stage)
	}
}

func (h *Sanction) issueSanction(ctx context.Context, st *statex.SessionState) (contractx.Response, error) {
	now := h.now().UTC()
	sanctionID := fmt.Sprintf("POLARIS-%s-%s", now.Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))

	msg := fmt.Sprintf(
		"Congratulations, %s! Your personal loan is sanctioned.\n"+
			"Sanction reference: %s\n"+
			"Amount: ₹%.0f\n"+
			"Interest rate: %.1f%% p.a.\n"+
			"Tenure: %d months\n"+
			"Monthly EMI: ₹%.2f\n"+
			"The amount will be disbursed to your registered account within 24 hours. Thank you for choosing Polaris Finance!",
		st.Customer.Name, sanctionID, st.RequestedAmount, st.Customer.InterestRate, st.TenureMonths, st.EMI,
	)

	if note := h.personalNote(ctx, st); note != "" {
		msg = note + "\n\n" + msg
	}

	return contractx.Response{
		Outcome: machine.OutcomeSanctionIssued,
		Delta:   statex.Delta{SanctionID: &sanctionID},
		Message: msg,
	}, nil
}

// personalNote asks the model for one warm opening sentence. Any failure is
// swallowed: the templated letter never blocks on the model.
func (h *Sanction) personalNote(ctx context.Context, st *statex.SessionState) string {
	if h.client == nil || strings.TrimSpace(h.model) == "" {
		return ""
	}

	purpose := st.Purpose
	if purpose == "" {
		purpose = "their plans"
	}
	prompt := fmt.Sprintf(
		"Write exactly one short, warm sentence congratulating %s on getting their personal loan of ₹%.0f approved for %s. Plain text, no emojis.",
		st.Customer.Name, st.RequestedAmount, purpose,
	)

	resp, err := h.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(h.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage(prompt),
		},
	})
	if err != nil || len(resp.Choices) == 0 {
		log.Warn().Err(err).Str("session_id", st.SessionID).Msg("personal note generation failed, using template only")
		return ""
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content)
}

func (h *Sanction) issueRejection(st *statex.SessionState) (contractx.Response, error) {
	reason := strings.TrimSpace(st.RejectionReason)
	if reason == "" {
		reason = "your application did not meet our current lending criteria"
	}

	name := st.Customer.Name
	if name == "" {
		name = "there"
	}

	msg := fmt.Sprintf(
		"I'm sorry, %s. We are unable to approve your loan application at this time: %s. "+
			"This decision will be reviewed automatically if your profile changes, and you are welcome to reapply after 90 days.",
		name, reason,
	)

	return contractx.Response{
		Outcome: machine.OutcomeRejectionIssued,
		Message: msg,
	}, nil
}

package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/polaris-nbfc/loan-agent/agent/contract"
	"github.com/polaris-nbfc/loan-agent/agent/machine"
	"github.com/polaris-nbfc/loan-agent/agent/offermart"
	statex "github.com/polaris-nbfc/loan-agent/agent/state"
	"github.com/polaris-nbfc/loan-agent/agent/underwriting"
)

// newTestSales builds a sales handler with no chat model, exercising the
// regex fallback path deterministically.
func newTestSales(t *testing.T) *Sales {
	t.Helper()
	s, err := NewSales(context.Background(), nil, "", offermart.NewStaticStore(offermart.SeedOffers()), underwriting.DefaultConfig())
	if err != nil {
		t.Fatalf("NewSales error = %v", err)
	}
	return s
}

func newSession(stage machine.Stage) *statex.SessionState {
	st := statex.NewSessionState("s1", time.Now())
	st.Stage = stage
	return st
}

func TestSalesIntroAsksForPhone(t *testing.T) {
	t.Parallel()

	s := newTestSales(t)
	resp, err := s.Handle(context.Background(), contractx.Request{
		Session:   newSession(machine.StageIntro),
		UserInput: "hi, tell me about loans",
	})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeAwaitingInput {
		t.Fatalf("Outcome = %s, want awaiting_input", resp.Outcome)
	}
	if !strings.Contains(resp.Message, "mobile number") {
		t.Fatalf("greeting does not ask for the phone: %q", resp.Message)
	}
}

func TestSalesIntroCapturesPhone(t *testing.T) {
	t.Parallel()

	s := newTestSales(t)
	resp, err := s.Handle(context.Background(), contractx.Request{
		Session:   newSession(machine.StageIntro),
		UserInput: "sure, it's +91 98765 43210",
	})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeAdvance || !resp.Continue {
		t.Fatalf("Outcome = %s Continue = %v, want silent advance", resp.Outcome, resp.Continue)
	}
	if resp.Delta.Phone == nil || *resp.Delta.Phone != "9876543210" {
		t.Fatalf("Delta.Phone = %v, want 9876543210", resp.Delta.Phone)
	}
}

func TestSalesNeedDiscoveryPresentsOffer(t *testing.T) {
	t.Parallel()

	s := newTestSales(t)
	st := newSession(machine.StageNeedDiscovery)
	st.Customer.Phone = "9876543210"

	resp, err := s.Handle(context.Background(), contractx.Request{Session: st, UserInput: "9876543210"})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeOfferFound {
		t.Fatalf("Outcome = %s, want offer_found", resp.Outcome)
	}
	if resp.Delta.Name == nil || *resp.Delta.Name != "Rahul Sharma" {
		t.Fatalf("Delta.Name = %v", resp.Delta.Name)
	}
	if !strings.Contains(resp.Message, "500000") {
		t.Fatalf("offer message missing limit: %q", resp.Message)
	}
}

func TestSalesNeedDiscoveryUnknownPhoneDropsCustomer(t *testing.T) {
	t.Parallel()

	s := newTestSales(t)
	st := newSession(machine.StageNeedDiscovery)
	st.Customer.Phone = "9999999999"

	resp, err := s.Handle(context.Background(), contractx.Request{Session: st, UserInput: "9999999999"})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeCustomerExit {
		t.Fatalf("Outcome = %s, want customer_exit", resp.Outcome)
	}
}

func TestSalesNeedDiscoveryLowScoreRejects(t *testing.T) {
	t.Parallel()

	s := newTestSales(t)
	st := newSession(machine.StageNeedDiscovery)
	st.Customer.Phone = "9876543213" // Vikram, score 650

	resp, err := s.Handle(context.Background(), contractx.Request{Session: st, UserInput: "9876543213"})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeRejected || !resp.Continue {
		t.Fatalf("Outcome = %s Continue = %v, want silent rejection", resp.Outcome, resp.Continue)
	}
	if resp.Delta.RejectionReason == nil {
		t.Fatal("rejection carries no reason")
	}
}

func TestSalesOfferPresentationCapturesAmount(t *testing.T) {
	t.Parallel()

	s := newTestSales(t)
	st := newSession(machine.StageOfferPresentation)
	st.Customer.PreapprovedLimit = 500000
	st.Customer.MaxTenureMonths = 60

	resp, err := s.Handle(context.Background(), contractx.Request{Session: st, UserInput: "I need 3 lakh for a wedding"})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeAmountCaptured || !resp.Continue {
		t.Fatalf("Outcome = %s Continue = %v, want silent amount_captured", resp.Outcome, resp.Continue)
	}
	if resp.Delta.RequestedAmount == nil || *resp.Delta.RequestedAmount != 300000 {
		t.Fatalf("Delta.RequestedAmount = %v, want 300000", resp.Delta.RequestedAmount)
	}
	if resp.Delta.TenureMonths == nil || *resp.Delta.TenureMonths != 60 {
		t.Fatalf("Delta.TenureMonths = %v, want default 60", resp.Delta.TenureMonths)
	}
}

func TestSalesOfferPresentationClampsTenure(t *testing.T) {
	t.Parallel()

	s := newTestSales(t)
	st := newSession(machine.StageOfferPresentation)
	st.Customer.PreapprovedLimit = 500000
	st.Customer.MaxTenureMonths = 60

	resp, err := s.Handle(context.Background(), contractx.Request{Session: st, UserInput: "50k over 10 years"})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Delta.RequestedAmount == nil || *resp.Delta.RequestedAmount != 50000 {
		t.Fatalf("Delta.RequestedAmount = %v, want 50000", resp.Delta.RequestedAmount)
	}
	if resp.Delta.TenureMonths == nil || *resp.Delta.TenureMonths != 60 {
		t.Fatalf("Delta.TenureMonths = %v, want clamped to 60", resp.Delta.TenureMonths)
	}
}

func TestSalesOfferPresentationNoAmountWaits(t *testing.T) {
	t.Parallel()

	s := newTestSales(t)
	st := newSession(machine.StageOfferPresentation)
	st.Customer.PreapprovedLimit = 500000

	resp, err := s.Handle(context.Background(), contractx.Request{Session: st, UserInput: "hmm what are the charges"})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeAwaitingInput || resp.Continue {
		t.Fatalf("Outcome = %s Continue = %v, want awaiting_input without continue", resp.Outcome, resp.Continue)
	}
	if resp.Message == "" {
		t.Fatal("no follow-up question produced")
	}
}

func TestSalesOfferPresentationDeclineExits(t *testing.T) {
	t.Parallel()

	s := newTestSales(t)
	st := newSession(machine.StageOfferPresentation)

	resp, err := s.Handle(context.Background(), contractx.Request{Session: st, UserInput: "no thanks, not interested"})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeCustomerExit {
		t.Fatalf("Outcome = %s, want customer_exit", resp.Outcome)
	}
}

func TestSalesDocumentCollection(t *testing.T) {
	t.Parallel()

	s := newTestSales(t)

	st := newSession(machine.StageDocumentCollection)
	resp, err := s.Handle(context.Background(), contractx.Request{Session: st, UserInput: "here's my salary slip, I earn 85000"})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeDocumentReceived || !resp.Continue {
		t.Fatalf("Outcome = %s Continue = %v, want silent document_received", resp.Outcome, resp.Continue)
	}
	if resp.Delta.Document == nil || *resp.Delta.Document != statex.DocumentReceived {
		t.Fatalf("Delta.Document = %v, want received", resp.Delta.Document)
	}
	if resp.Delta.MonthlySalary == nil || *resp.Delta.MonthlySalary != 85000 {
		t.Fatalf("Delta.MonthlySalary = %v, want 85000", resp.Delta.MonthlySalary)
	}

	resp, err = s.Handle(context.Background(), contractx.Request{Session: newSession(machine.StageDocumentCollection), UserInput: "I'll send it later"})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeDocumentDeferred {
		t.Fatalf("Outcome = %s, want document_deferred", resp.Outcome)
	}

	resp, err = s.Handle(context.Background(), contractx.Request{Session: newSession(machine.StageDocumentCollection), UserInput: "what charges apply?"})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeAwaitingInput {
		t.Fatalf("Outcome = %s, want awaiting_input", resp.Outcome)
	}
}

type flakyOffers struct {
	failures int
	calls    int
	inner    offermart.Store
}

func (f *flakyOffers) Lookup(ctx context.Context, phone string) (*offermart.Offer, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("offer mart unavailable")
	}
	return f.inner.Lookup(ctx, phone)
}

func TestSalesNeedDiscoveryRetriesLookup(t *testing.T) {
	t.Parallel()

	store := &flakyOffers{failures: 1, inner: offermart.NewStaticStore(offermart.SeedOffers())}
	s, err := NewSales(context.Background(), nil, "", store, underwriting.DefaultConfig())
	if err != nil {
		t.Fatalf("NewSales error = %v", err)
	}

	st := newSession(machine.StageNeedDiscovery)
	st.Customer.Phone = "9876543210"

	resp, err := s.Handle(context.Background(), contractx.Request{Session: st, UserInput: "9876543210"})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeOfferFound {
		t.Fatalf("Outcome = %s, want offer_found after retry", resp.Outcome)
	}
	if store.calls != 2 {
		t.Fatalf("lookup calls = %d, want 2", store.calls)
	}
}

func TestSalesNeedDiscoveryDegradesWhenLookupFails(t *testing.T) {
	t.Parallel()

	store := &flakyOffers{failures: 2, inner: offermart.NewStaticStore(offermart.SeedOffers())}
	s, err := NewSales(context.Background(), nil, "", store, underwriting.DefaultConfig())
	if err != nil {
		t.Fatalf("NewSales error = %v", err)
	}

	st := newSession(machine.StageNeedDiscovery)
	st.Customer.Phone = "9876543210"

	resp, err := s.Handle(context.Background(), contractx.Request{Session: st, UserInput: "9876543210"})
	if err != nil {
		t.Fatalf("Handle error = %v, want degraded response", err)
	}
	if resp.Outcome != machine.OutcomeAwaitingInput || resp.Continue {
		t.Fatalf("Outcome = %s Continue = %v, want blocking awaiting_input", resp.Outcome, resp.Continue)
	}
	if !strings.Contains(resp.Message, "retry") {
		t.Fatalf("degraded message = %q", resp.Message)
	}
	if resp.Delta.Name != nil {
		t.Fatal("degraded response must not carry profile deltas")
	}
}

type fakeChatModel struct {
	responses []*schema.Message
	idx       int
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	if f.idx >= len(f.responses) {
		return nil, errors.New("no fake response left")
	}
	msg := f.responses[f.idx]
	f.idx++
	return msg, nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func newSalesWithModel(t *testing.T, m einomodel.BaseChatModel) *Sales {
	t.Helper()
	s, err := NewSales(context.Background(), m, "extract loan requirements", offermart.NewStaticStore(offermart.SeedOffers()), underwriting.DefaultConfig())
	if err != nil {
		t.Fatalf("NewSales error = %v", err)
	}
	return s
}

func TestSalesModelExtraction(t *testing.T) {
	t.Parallel()

	fake := &fakeChatModel{responses: []*schema.Message{
		{Role: schema.Assistant, Content: `{"requested_amount":450000,"tenure_months":24,"purpose":"home renovation","reply":"Noted, a loan of ₹450000 over 24 months."}`},
	}}
	s := newSalesWithModel(t, fake)

	st := newSession(machine.StageOfferPresentation)
	st.Customer.PreapprovedLimit = 500000
	st.Customer.MaxTenureMonths = 60

	resp, err := s.Handle(context.Background(), contractx.Request{Session: st, UserInput: "four and a half for redoing the house, two years"})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeAmountCaptured {
		t.Fatalf("Outcome = %s, want amount_captured", resp.Outcome)
	}
	if resp.Delta.RequestedAmount == nil || *resp.Delta.RequestedAmount != 450000 {
		t.Fatalf("Delta.RequestedAmount = %v, want 450000", resp.Delta.RequestedAmount)
	}
	if resp.Delta.TenureMonths == nil || *resp.Delta.TenureMonths != 24 {
		t.Fatalf("Delta.TenureMonths = %v, want 24", resp.Delta.TenureMonths)
	}
	if resp.Delta.Purpose == nil || *resp.Delta.Purpose != "home renovation" {
		t.Fatalf("Delta.Purpose = %v", resp.Delta.Purpose)
	}
}

func TestSalesModelSchemaViolation(t *testing.T) {
	t.Parallel()

	badReply := &schema.Message{Role: schema.Assistant, Content: `{"requested_amount":-5000,"reply":"bad"}`}

	s := newSalesWithModel(t, &fakeChatModel{responses: []*schema.Message{badReply, badReply}})
	st := newSession(machine.StageOfferPresentation)
	st.Customer.PreapprovedLimit = 500000
	st.Customer.MaxTenureMonths = 60

	_, err := s.extract(context.Background(), st, "some message")
	if !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("extract error = %v, want ErrSchemaViolation", err)
	}

	// The handler falls back to regex extraction when the model misbehaves.
	s = newSalesWithModel(t, &fakeChatModel{responses: []*schema.Message{badReply, badReply}})
	resp, err := s.Handle(context.Background(), contractx.Request{Session: st, UserInput: "I need 3 lakh for a wedding"})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Delta.RequestedAmount == nil || *resp.Delta.RequestedAmount != 300000 {
		t.Fatalf("Delta.RequestedAmount = %v, want regex fallback 300000", resp.Delta.RequestedAmount)
	}
}

func TestExtractAmount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"I need 3 lakh", 300000, true},
		{"3.5 lakhs please", 350000, true},
		{"give me 50k", 50000, true},
		{"maybe 2,50,000", 250000, true},
		{"500000 rupees", 500000, true},
		{"no numbers here", 0, false},
	}
	for _, c := range cases {
		got, ok := extractAmount(c.in)
		if ok != c.ok || got != c.want {
			t.Fatalf("extractAmount(%q) = %.0f, %v, want %.0f, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

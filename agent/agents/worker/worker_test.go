package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	contractx "github.com/polaris-nbfc/loan-agent/agent/contract"
	"github.com/polaris-nbfc/loan-agent/agent/crm"
	"github.com/polaris-nbfc/loan-agent/agent/machine"
	"github.com/polaris-nbfc/loan-agent/agent/offermart"
	statex "github.com/polaris-nbfc/loan-agent/agent/state"
	"github.com/polaris-nbfc/loan-agent/agent/underwriting"
)

type flakyCRM struct {
	failures int
	record   *crm.Record
	calls    int
}

func (f *flakyCRM) FetchCustomer(ctx context.Context, phone string) (*crm.Record, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("crm unavailable")
	}
	if f.record == nil {
		return nil, crm.ErrCustomerNotFound
	}
	return f.record, nil
}

func TestVerificationVerified(t *testing.T) {
	t.Parallel()

	v := NewVerification(crm.NewStaticClient(crm.SeedRecords()))
	st := newSession(machine.StageKYCVerification)
	st.Customer.Phone = "9876543210"

	resp, err := v.Handle(context.Background(), contractx.Request{Session: st})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeKYCVerified || !resp.Continue {
		t.Fatalf("Outcome = %s Continue = %v, want silent kyc_verified", resp.Outcome, resp.Continue)
	}
	if resp.Delta.KYC == nil || *resp.Delta.KYC != statex.KYCVerified {
		t.Fatalf("Delta.KYC = %v, want verified", resp.Delta.KYC)
	}
}

func TestVerificationUnverifiedFails(t *testing.T) {
	t.Parallel()

	v := NewVerification(crm.NewStaticClient(crm.SeedRecords()))
	st := newSession(machine.StageKYCVerification)
	st.Customer.Phone = "9876543214" // Sneha, KYC never completed

	resp, err := v.Handle(context.Background(), contractx.Request{Session: st})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeKYCFailed || !resp.Continue {
		t.Fatalf("Outcome = %s Continue = %v, want silent kyc_failed", resp.Outcome, resp.Continue)
	}
	if resp.Delta.RejectionReason == nil {
		t.Fatal("kyc failure carries no rejection reason")
	}
}

func TestVerificationRetriesOnce(t *testing.T) {
	t.Parallel()

	client := &flakyCRM{
		failures: 1,
		record:   &crm.Record{CustomerID: "CUST001", Phone: "9876543210", KYC: crm.KYCResultVerified},
	}
	v := NewVerification(client)
	st := newSession(machine.StageKYCVerification)
	st.Customer.Phone = "9876543210"

	resp, err := v.Handle(context.Background(), contractx.Request{Session: st})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeKYCVerified {
		t.Fatalf("Outcome = %s, want kyc_verified after retry", resp.Outcome)
	}
	if client.calls != 2 {
		t.Fatalf("crm calls = %d, want 2", client.calls)
	}
}

func TestVerificationDegradesAfterRetry(t *testing.T) {
	t.Parallel()

	client := &flakyCRM{failures: 2}
	v := NewVerification(client)
	st := newSession(machine.StageKYCVerification)
	st.Customer.Phone = "9876543210"

	resp, err := v.Handle(context.Background(), contractx.Request{Session: st})
	if err != nil {
		t.Fatalf("Handle error = %v, want degraded response", err)
	}
	if resp.Outcome != machine.OutcomeAwaitingInput || resp.Continue {
		t.Fatalf("Outcome = %s Continue = %v, want blocking awaiting_input", resp.Outcome, resp.Continue)
	}
	if !strings.Contains(resp.Message, "try again") {
		t.Fatalf("degraded message = %q", resp.Message)
	}
	if client.calls != 2 {
		t.Fatalf("crm calls = %d, want 2", client.calls)
	}
}

func underwritingSession(amount float64) *statex.SessionState {
	st := newSession(machine.StageUnderwriting)
	st.Customer.CreditScore = 780
	st.Customer.PreapprovedLimit = 500000
	st.Customer.InterestRate = 12.5
	st.Customer.MonthlySalary = 85000
	st.RequestedAmount = amount
	st.TenureMonths = 60
	return st
}

func TestUnderwritingApproves(t *testing.T) {
	t.Parallel()

	u := NewUnderwriting(underwriting.DefaultConfig())
	resp, err := u.Handle(context.Background(), contractx.Request{Session: underwritingSession(300000)})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeApproved || !resp.Continue {
		t.Fatalf("Outcome = %s Continue = %v, want silent approval", resp.Outcome, resp.Continue)
	}
	if resp.Delta.EMI == nil || *resp.Delta.EMI <= 0 {
		t.Fatalf("Delta.EMI = %v, want positive instalment", resp.Delta.EMI)
	}
}

func TestUnderwritingRequestsDocument(t *testing.T) {
	t.Parallel()

	u := NewUnderwriting(underwriting.DefaultConfig())
	resp, err := u.Handle(context.Background(), contractx.Request{Session: underwritingSession(700000)})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeApprovedWithDocument || resp.Continue {
		t.Fatalf("Outcome = %s Continue = %v, want blocking document request", resp.Outcome, resp.Continue)
	}
	if resp.Delta.Document == nil || *resp.Delta.Document != statex.DocumentRequested {
		t.Fatalf("Delta.Document = %v, want requested", resp.Delta.Document)
	}
	if !strings.Contains(resp.Message, "salary slip") {
		t.Fatalf("document request message = %q", resp.Message)
	}
}

func TestUnderwritingRejectsBeyondCeiling(t *testing.T) {
	t.Parallel()

	u := NewUnderwriting(underwriting.DefaultConfig())
	resp, err := u.Handle(context.Background(), contractx.Request{Session: underwritingSession(1200000)})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeRejected {
		t.Fatalf("Outcome = %s, want rejected", resp.Outcome)
	}
}

func TestUnderwritingDocumentReentryAffordable(t *testing.T) {
	t.Parallel()

	u := NewUnderwriting(underwriting.DefaultConfig())
	st := underwritingSession(700000)
	st.Customer.MonthlySalary = 120000
	st.Document = statex.DocumentReceived

	resp, err := u.Handle(context.Background(), contractx.Request{Session: st})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeApproved {
		t.Fatalf("Outcome = %s, want approved after document", resp.Outcome)
	}
}

func TestUnderwritingDocumentReentryUnaffordable(t *testing.T) {
	t.Parallel()

	u := NewUnderwriting(underwriting.DefaultConfig())
	st := underwritingSession(900000)
	st.Customer.MonthlySalary = 20000
	st.Document = statex.DocumentReceived

	resp, err := u.Handle(context.Background(), contractx.Request{Session: st})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeRejected {
		t.Fatalf("Outcome = %s, want rejected on affordability", resp.Outcome)
	}
	if resp.Delta.RejectionReason == nil {
		t.Fatal("affordability rejection carries no reason")
	}
}

func TestSanctionIssuesLetter(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := NewSanction(func() time.Time { return fixed }, nil, "")

	st := newSession(machine.StageSanction)
	st.Customer.Name = "Rahul Sharma"
	st.Customer.InterestRate = 12.5
	st.RequestedAmount = 300000
	st.TenureMonths = 60
	st.EMI = 6748.51

	resp, err := h.Handle(context.Background(), contractx.Request{Session: st})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeSanctionIssued {
		t.Fatalf("Outcome = %s, want sanction_issued", resp.Outcome)
	}
	if resp.Delta.SanctionID == nil || !strings.HasPrefix(*resp.Delta.SanctionID, "POLARIS-20260301-") {
		t.Fatalf("Delta.SanctionID = %v", resp.Delta.SanctionID)
	}
	if !strings.Contains(resp.Message, *resp.Delta.SanctionID) {
		t.Fatal("sanction letter does not quote the sanction reference")
	}
}

func TestSanctionLetterPersonalNote(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cmpl-1","object":"chat.completion","model":"test-model","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"What wonderful news for your wedding plans, Rahul!"}}]}`)
	}))
	defer srv.Close()

	client := openaisdk.NewClient(option.WithBaseURL(srv.URL), option.WithAPIKey("test"))
	h := NewSanction(nil, &client, "test-model")

	st := newSession(machine.StageSanction)
	st.Customer.Name = "Rahul Sharma"
	st.Customer.InterestRate = 12.5
	st.RequestedAmount = 300000
	st.TenureMonths = 60
	st.EMI = 6748.51
	st.Purpose = "wedding"

	resp, err := h.Handle(context.Background(), contractx.Request{Session: st})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if !strings.HasPrefix(resp.Message, "What wonderful news") {
		t.Fatalf("letter does not open with the generated note: %q", resp.Message)
	}
	if !strings.Contains(resp.Message, "Congratulations, Rahul Sharma!") {
		t.Fatal("templated letter body missing from the message")
	}
}

func TestSanctionIssuesRejectionNotice(t *testing.T) {
	t.Parallel()

	h := NewSanction(nil, nil, "")
	st := newSession(machine.StageRejection)
	st.Customer.Name = "Amit Kumar"
	st.RejectionReason = "amount 700000 exceeds maximum eligible limit of 600000"

	resp, err := h.Handle(context.Background(), contractx.Request{Session: st})
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if resp.Outcome != machine.OutcomeRejectionIssued {
		t.Fatalf("Outcome = %s, want rejection_issued", resp.Outcome)
	}
	if !strings.Contains(resp.Message, st.RejectionReason) {
		t.Fatalf("rejection notice missing reason: %q", resp.Message)
	}
}

func TestRegistryStageBinding(t *testing.T) {
	t.Parallel()

	registry, err := NewRegistry(context.Background(), Deps{
		Offers: offermart.NewStaticStore(offermart.SeedOffers()),
		CRM:    crm.NewStaticClient(crm.SeedRecords()),
		Rules:  underwriting.DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("NewRegistry error = %v", err)
	}

	bindings := map[machine.Stage]contractx.HandlerType{
		machine.StageIntro:              contractx.HandlerSales,
		machine.StageNeedDiscovery:      contractx.HandlerSales,
		machine.StageOfferPresentation:  contractx.HandlerSales,
		machine.StageDocumentCollection: contractx.HandlerSales,
		machine.StageKYCVerification:    contractx.HandlerVerification,
		machine.StageUnderwriting:       contractx.HandlerUnderwriting,
		machine.StageSanction:           contractx.HandlerSanction,
		machine.StageRejection:          contractx.HandlerSanction,
	}
	for stage, want := range bindings {
		h, ok := registry.ForStage(stage)
		if !ok {
			t.Fatalf("no handler bound to stage %s", stage)
		}
		if h.Type() != want {
			t.Fatalf("stage %s bound to %s, want %s", stage, h.Type(), want)
		}
	}

	if _, ok := registry.ForStage(machine.StageEnd); ok {
		t.Fatal("END must have no handler")
	}
}

// Package state holds the per-session conversation record and its
// persistence contract. The session is owned by the orchestrator: worker
// handlers only ever read it and hand back a Delta for the orchestrator to
// apply.
package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/polaris-nbfc/loan-agent/agent/machine"
	"github.com/polaris-nbfc/loan-agent/agent/underwriting"
)

var (
	ErrInvalidSession = errors.New("session id is empty")
	ErrSessionEnded   = errors.New("session already reached a terminal outcome")
)

type KYCStatus string

const (
	KYCUnverified KYCStatus = "unverified"
	KYCPending    KYCStatus = "pending"
	KYCVerified   KYCStatus = "verified"
)

type DocumentStatus string

const (
	DocumentNotRequired DocumentStatus = "not_required"
	DocumentRequested   DocumentStatus = "requested"
	DocumentReceived    DocumentStatus = "received"
)

// CustomerProfile is populated after the offer lookup resolves the phone
// number; all fields are absent until then.
type CustomerProfile struct {
	CustomerID       string  `json:"customer_id,omitempty"`
	Name             string  `json:"name,omitempty"`
	Phone            string  `json:"phone,omitempty"`
	CreditScore      int     `json:"credit_score,omitempty"`
	PreapprovedLimit float64 `json:"preapproved_limit,omitempty"`
	InterestRate     float64 `json:"interest_rate,omitempty"`
	MaxTenureMonths  int     `json:"max_tenure_months,omitempty"`
	MonthlySalary    float64 `json:"monthly_salary,omitempty"`
	Employer         string  `json:"employer,omitempty"`
}

// CallRecord is one gated handler invocation. Records are append-only and
// live exactly as long as the session.
type CallRecord struct {
	Handler     string    `json:"handler"`
	Fingerprint string    `json:"fingerprint"`
	Ordinal     int       `json:"ordinal"`
	At          time.Time `json:"at"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionState is the single source of truth for one customer's loan
// conversation.
type SessionState struct {
	SessionID string        `json:"session_id"`
	Stage     machine.Stage `json:"stage"`

	Customer CustomerProfile `json:"customer"`

	RequestedAmount float64 `json:"requested_amount,omitempty"`
	TenureMonths    int     `json:"tenure_months,omitempty"`
	Purpose         string  `json:"purpose,omitempty"`

	KYC             KYCStatus             `json:"kyc"`
	Decision        underwriting.Decision `json:"decision,omitempty"`
	Document        DocumentStatus        `json:"document"`
	EMI             float64               `json:"emi,omitempty"`
	RejectionReason string                `json:"rejection_reason,omitempty"`
	SanctionID      string                `json:"sanction_id,omitempty"`

	Terminal machine.TerminalOutcome `json:"terminal,omitempty"`

	StageHistory []machine.Stage `json:"stage_history,omitempty"`
	Calls        []CallRecord    `json:"calls,omitempty"`
	Transcript   []Message       `json:"transcript,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewSessionState(sessionID string, now time.Time) *SessionState {
	return &SessionState{
		SessionID: sessionID,
		Stage:     machine.StageIntro,
		KYC:       KYCUnverified,
		Document:  DocumentNotRequired,
		UpdatedAt: now.UTC(),
	}
}

func (s *SessionState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// IsTerminal reports whether a terminal outcome has been assigned. Once set,
// the session is frozen and further turns are answered with a stored echo.
func (s *SessionState) IsTerminal() bool {
	return s != nil && s.Terminal != ""
}

// SetTerminal assigns the terminal outcome exactly once.
func (s *SessionState) SetTerminal(outcome machine.TerminalOutcome, now time.Time) error {
	if s.Terminal != "" {
		return fmt.Errorf("%w: terminal=%s", ErrSessionEnded, s.Terminal)
	}
	s.Terminal = outcome
	s.Stage = machine.StageEnd
	s.Touch(now)
	return nil
}

func (s *SessionState) RecordCall(handler, fingerprint string, now time.Time) {
	s.Calls = append(s.Calls, CallRecord{
		Handler:     handler,
		Fingerprint: fingerprint,
		Ordinal:     len(s.Calls) + 1,
		At:          now.UTC(),
	})
}

// HasCall reports whether the same handler was already invoked with an
// identical fingerprint in this session.
func (s *SessionState) HasCall(handler, fingerprint string) bool {
	for _, c := range s.Calls {
		if c.Handler == handler && c.Fingerprint == fingerprint {
			return true
		}
	}
	return false
}

func (s *SessionState) PushStage(stage machine.Stage) {
	s.StageHistory = append(s.StageHistory, stage)
}

// ReenteredUnderwriting reports whether the session already took the
// document-collection detour back into underwriting.
func (s *SessionState) ReenteredUnderwriting() bool {
	seenDocumentCollection := false
	for _, st := range s.StageHistory {
		if st == machine.StageDocumentCollection {
			seenDocumentCollection = true
			continue
		}
		if seenDocumentCollection && st == machine.StageUnderwriting {
			return true
		}
	}
	return false
}

func (s *SessionState) AddMessage(role, content string) {
	if content == "" {
		return
	}
	s.Transcript = append(s.Transcript, Message{Role: role, Content: content})
}

func (s *SessionState) Validate() error {
	if s.SessionID == "" {
		return ErrInvalidSession
	}
	if s.Stage == "" {
		return errors.New("session has no stage")
	}
	if s.Terminal != "" && s.Stage != machine.StageEnd {
		return fmt.Errorf("terminal outcome %s set while stage=%s", s.Terminal, s.Stage)
	}
	for i, c := range s.Calls {
		if c.Ordinal != i+1 {
			return fmt.Errorf("call record %d has ordinal %d", i, c.Ordinal)
		}
	}
	return nil
}

// Delta is a handler's proposed mutation of the session. Nil fields are
// untouched; the orchestrator applies the delta after the stage transition
// is resolved.
type Delta struct {
	Phone            *string                `json:"phone,omitempty"`
	CustomerID       *string                `json:"customer_id,omitempty"`
	Name             *string                `json:"name,omitempty"`
	CreditScore      *int                   `json:"credit_score,omitempty"`
	PreapprovedLimit *float64               `json:"preapproved_limit,omitempty"`
	InterestRate     *float64               `json:"interest_rate,omitempty"`
	MaxTenureMonths  *int                   `json:"max_tenure_months,omitempty"`
	MonthlySalary    *float64               `json:"monthly_salary,omitempty"`
	Employer         *string                `json:"employer,omitempty"`
	RequestedAmount  *float64               `json:"requested_amount,omitempty"`
	TenureMonths     *int                   `json:"tenure_months,omitempty"`
	Purpose          *string                `json:"purpose,omitempty"`
	KYC              *KYCStatus             `json:"kyc,omitempty"`
	Decision         *underwriting.Decision `json:"decision,omitempty"`
	Document         *DocumentStatus        `json:"document,omitempty"`
	EMI              *float64               `json:"emi,omitempty"`
	RejectionReason  *string                `json:"rejection_reason,omitempty"`
	SanctionID       *string                `json:"sanction_id,omitempty"`
}

// Apply merges a handler delta into the session. Terminal sessions reject
// mutation.
func (s *SessionState) Apply(d Delta, now time.Time) error {
	if s.IsTerminal() {
		return fmt.Errorf("%w: cannot apply delta", ErrSessionEnded)
	}
	if d.Phone != nil {
		s.Customer.Phone = *d.Phone
	}
	if d.CustomerID != nil {
		s.Customer.CustomerID = *d.CustomerID
	}
	if d.Name != nil {
		s.Customer.Name = *d.Name
	}
	if d.CreditScore != nil {
		s.Customer.CreditScore = *d.CreditScore
	}
	if d.PreapprovedLimit != nil {
		s.Customer.PreapprovedLimit = *d.PreapprovedLimit
	}
	if d.InterestRate != nil {
		s.Customer.InterestRate = *d.InterestRate
	}
	if d.MaxTenureMonths != nil {
		s.Customer.MaxTenureMonths = *d.MaxTenureMonths
	}
	if d.MonthlySalary != nil {
		s.Customer.MonthlySalary = *d.MonthlySalary
	}
	if d.Employer != nil {
		s.Customer.Employer = *d.Employer
	}
	if d.RequestedAmount != nil {
		s.RequestedAmount = *d.RequestedAmount
	}
	if d.TenureMonths != nil {
		s.TenureMonths = *d.TenureMonths
	}
	if d.Purpose != nil {
		s.Purpose = *d.Purpose
	}
	if d.KYC != nil {
		s.KYC = *d.KYC
	}
	if d.Decision != nil {
		s.Decision = *d.Decision
	}
	if d.Document != nil {
		s.Document = *d.Document
	}
	if d.EMI != nil {
		s.EMI = *d.EMI
	}
	if d.RejectionReason != nil {
		s.RejectionReason = *d.RejectionReason
	}
	if d.SanctionID != nil {
		s.SanctionID = *d.SanctionID
	}
	s.Touch(now)
	return nil
}

// Package machine defines the workflow stages of a loan conversation and the
// transition table between them. Stage movement is monotonic forward, with a
// single permitted backward re-entry from document collection into
// underwriting once a document has been supplied.
package machine

import (
	"errors"
	"fmt"
)

type Stage string

const (
	StageIntro              Stage = "INTRO"
	StageNeedDiscovery      Stage = "NEED_DISCOVERY"
	StageOfferPresentation  Stage = "OFFER_PRESENTATION"
	StageKYCVerification    Stage = "KYC_VERIFICATION"
	StageUnderwriting       Stage = "UNDERWRITING"
	StageDocumentCollection Stage = "DOCUMENT_COLLECTION"
	StageSanction           Stage = "SANCTION"
	StageRejection          Stage = "REJECTION"
	StageEnd                Stage = "END"
)

// Outcome is the category a worker handler reports after a call. The
// transition table is keyed on (stage, outcome); handlers never name a target
// stage themselves.
type Outcome string

const (
	// OutcomeAdvance moves the conversation to the next scripted stage.
	OutcomeAdvance Outcome = "advance"
	// OutcomeAwaitingInput keeps the session in its current stage until the
	// customer supplies what the stage is missing.
	OutcomeAwaitingInput Outcome = "awaiting_input"

	OutcomeOfferFound     Outcome = "offer_found"
	OutcomeAmountCaptured Outcome = "amount_captured"

	OutcomeKYCVerified Outcome = "kyc_verified"
	OutcomeKYCPending  Outcome = "kyc_pending"
	OutcomeKYCFailed   Outcome = "kyc_failed"

	OutcomeApproved             Outcome = "approved"
	OutcomeApprovedWithDocument Outcome = "approved_with_document"
	OutcomeRejected             Outcome = "rejected"

	OutcomeDocumentReceived Outcome = "document_received"
	// OutcomeDocumentDeferred ends the session with the document still
	// outstanding; the customer can reapply once they have it.
	OutcomeDocumentDeferred Outcome = "document_deferred"

	OutcomeSanctionIssued  Outcome = "sanction_issued"
	OutcomeRejectionIssued Outcome = "rejection_issued"

	// OutcomeCustomerExit is legal from every stage: the customer declined,
	// abandoned, or could not be identified.
	OutcomeCustomerExit Outcome = "customer_exit"
)

type TerminalOutcome string

const (
	TerminalLoanSanctioned             TerminalOutcome = "LOAN_SANCTIONED"
	TerminalLoanRejected               TerminalOutcome = "LOAN_REJECTED"
	TerminalAdditionalDocumentRequired TerminalOutcome = "ADDITIONAL_DOCUMENT_REQUIRED"
	TerminalCustomerDropped            TerminalOutcome = "CUSTOMER_DROPPED"
)

var ErrUnmappedTransition = errors.New("unmapped stage transition")

var transitions = map[Stage]map[Outcome]Stage{
	StageIntro: {
		OutcomeAdvance: StageNeedDiscovery,
	},
	StageNeedDiscovery: {
		OutcomeOfferFound: StageOfferPresentation,
		OutcomeRejected:   StageRejection,
	},
	StageOfferPresentation: {
		OutcomeAmountCaptured: StageKYCVerification,
	},
	StageKYCVerification: {
		OutcomeKYCVerified: StageUnderwriting,
		OutcomeKYCFailed:   StageRejection,
		OutcomeKYCPending:  StageKYCVerification,
	},
	StageUnderwriting: {
		OutcomeApproved:             StageSanction,
		OutcomeApprovedWithDocument: StageDocumentCollection,
		OutcomeRejected:             StageRejection,
	},
	StageDocumentCollection: {
		OutcomeDocumentReceived: StageUnderwriting,
		OutcomeDocumentDeferred: StageEnd,
	},
	StageSanction: {
		OutcomeSanctionIssued: StageEnd,
	},
	StageRejection: {
		OutcomeRejectionIssued: StageEnd,
	},
}

// Next resolves the target stage for (current, outcome). OutcomeCustomerExit
// and OutcomeAwaitingInput are legal everywhere; any other pair missing from
// the table is an orchestration contract violation.
func Next(current Stage, outcome Outcome) (Stage, error) {
	switch outcome {
	case OutcomeCustomerExit:
		return StageEnd, nil
	case OutcomeAwaitingInput:
		return current, nil
	}
	targets, ok := transitions[current]
	if !ok {
		return "", fmt.Errorf("%w: stage=%s outcome=%s", ErrUnmappedTransition, current, outcome)
	}
	next, ok := targets[outcome]
	if !ok {
		return "", fmt.Errorf("%w: stage=%s outcome=%s", ErrUnmappedTransition, current, outcome)
	}
	return next, nil
}

// TerminalFor maps an outcome that ends the conversation to its terminal
// classification. The second return is false for non-terminal outcomes.
func TerminalFor(outcome Outcome) (TerminalOutcome, bool) {
	switch outcome {
	case OutcomeSanctionIssued:
		return TerminalLoanSanctioned, true
	case OutcomeRejectionIssued:
		return TerminalLoanRejected, true
	case OutcomeDocumentDeferred:
		return TerminalAdditionalDocumentRequired, true
	case OutcomeCustomerExit:
		return TerminalCustomerDropped, true
	default:
		return "", false
	}
}

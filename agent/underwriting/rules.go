// Package underwriting holds the credit decision rules. Everything here is a
// pure function over numbers so the decision table can be tested exhaustively
// without any conversation plumbing around it.
package underwriting

import (
	"fmt"
	"math"
)

type Decision string

const (
	DecisionApproved             Decision = "APPROVED"
	DecisionApprovedWithDocument Decision = "APPROVED_WITH_DOCUMENT"
	DecisionRejected             Decision = "REJECTED"
)

const DocumentSalarySlip = "salary slip"

type Config struct {
	MinCreditScore      int     `envconfig:"MIN_CREDIT_SCORE" split_words:"true" default:"700"`
	DocumentMultiplier  float64 `envconfig:"DOCUMENT_MULTIPLIER" split_words:"true" default:"2"`
	MaxEMIToSalaryRatio float64 `envconfig:"MAX_EMI_TO_SALARY_RATIO" split_words:"true" default:"0.5"`
}

func DefaultConfig() Config {
	return Config{
		MinCreditScore:      700,
		DocumentMultiplier:  2,
		MaxEMIToSalaryRatio: 0.5,
	}
}

type Result struct {
	Decision         Decision
	ApprovedAmount   float64
	RequiredDocument string
	Reason           string
}

// Decide applies the four-branch decision table. Order matters: a low score
// rejects regardless of amount. Boundary equality resolves to the more
// favorable branch.
func Decide(cfg Config, creditScore int, requestedAmount, preapprovedLimit float64) Result {
	if creditScore < cfg.MinCreditScore {
		return Result{
			Decision: DecisionRejected,
			Reason:   fmt.Sprintf("credit score %d is below the minimum of %d", creditScore, cfg.MinCreditScore),
		}
	}
	if requestedAmount <= preapprovedLimit {
		return Result{
			Decision:       DecisionApproved,
			ApprovedAmount: requestedAmount,
			Reason:         fmt.Sprintf("within pre-approved limit of %.0f", preapprovedLimit),
		}
	}
	if requestedAmount <= cfg.DocumentMultiplier*preapprovedLimit {
		return Result{
			Decision:         DecisionApprovedWithDocument,
			RequiredDocument: DocumentSalarySlip,
			Reason:           fmt.Sprintf("amount %.0f exceeds pre-approved limit %.0f, income proof required", requestedAmount, preapprovedLimit),
		}
	}
	return Result{
		Decision: DecisionRejected,
		Reason:   fmt.Sprintf("amount %.0f exceeds maximum eligible limit of %.0f", requestedAmount, cfg.DocumentMultiplier*preapprovedLimit),
	}
}

// EMI computes the reducing-balance monthly instalment for a principal at an
// annual percentage rate over tenureMonths.
func EMI(principal, annualRate float64, tenureMonths int) float64 {
	if tenureMonths <= 0 {
		return 0
	}
	monthlyRate := annualRate / 12 / 100
	if monthlyRate == 0 {
		return math.Round(principal/float64(tenureMonths)*100) / 100
	}
	factor := math.Pow(1+monthlyRate, float64(tenureMonths))
	emi := principal * monthlyRate * factor / (factor - 1)
	return math.Round(emi*100) / 100
}

// Affordable reports whether the instalment fits the salary ceiling.
func Affordable(cfg Config, emi, monthlySalary float64) bool {
	if monthlySalary <= 0 {
		return false
	}
	return emi <= monthlySalary*cfg.MaxEMIToSalaryRatio
}

// Package offermart resolves a customer's phone number to their pre-approved
// loan offer. A missing entry is a normal domain outcome, not a failure.
package offermart

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

var ErrOfferNotFound = errors.New("no pre-approved offer for phone")

type Offer struct {
	CustomerID       string  `json:"customer_id"`
	Name             string  `json:"name"`
	Phone            string  `json:"phone"`
	CreditScore      int     `json:"credit_score"`
	PreapprovedLimit float64 `json:"preapproved_limit"`
	InterestRate     float64 `json:"interest_rate"`
	MaxTenureMonths  int     `json:"max_tenure_months"`
	MonthlySalary    float64 `json:"monthly_salary"`
	Employer         string  `json:"employer"`
}

type Store interface {
	Lookup(ctx context.Context, phone string) (*Offer, error)
}

var tenDigits = regexp.MustCompile(`\d{10}`)

// NormalizePhone strips country prefixes and separators and extracts the
// first 10-digit run. The second return is false when no number is present.
func NormalizePhone(raw string) (string, bool) {
	cleaned := strings.NewReplacer("+91", "", "-", "", " ", "").Replace(raw)
	match := tenDigits.FindString(cleaned)
	if match == "" {
		return "", false
	}
	return match, true
}

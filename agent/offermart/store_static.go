package offermart

import (
	"context"
	"fmt"
)

// StaticStore serves offers from an in-process dataset. Used for demos and
// tests where no Postgres instance is available.
type StaticStore struct {
	offers map[string]Offer
}

func NewStaticStore(offers []Offer) *StaticStore {
	byPhone := make(map[string]Offer, len(offers))
	for _, o := range offers {
		byPhone[o.Phone] = o
	}
	return &StaticStore{offers: byPhone}
}

func (s *StaticStore) Lookup(ctx context.Context, phone string) (*Offer, error) {
	normalized, ok := NormalizePhone(phone)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrOfferNotFound, phone)
	}
	offer, ok := s.offers[normalized]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOfferNotFound, normalized)
	}
	return &offer, nil
}

// SeedOffers is the demo dataset shipped with the workbench build.
func SeedOffers() []Offer {
	return []Offer{
		{
			CustomerID:       "CUST001",
			Name:             "Rahul Sharma",
			Phone:            "9876543210",
			CreditScore:      780,
			PreapprovedLimit: 500000,
			InterestRate:     12.5,
			MaxTenureMonths:  60,
			MonthlySalary:    85000,
			Employer:         "TCS",
		},
		{
			CustomerID:       "CUST002",
			Name:             "Priya Patel",
			Phone:            "9876543211",
			CreditScore:      820,
			PreapprovedLimit: 750000,
			InterestRate:     11.0,
			MaxTenureMonths:  72,
			MonthlySalary:    120000,
			Employer:         "Infosys",
		},
		{
			CustomerID:       "CUST003",
			Name:             "Amit Kumar",
			Phone:            "9876543212",
			CreditScore:      750,
			PreapprovedLimit: 300000,
			InterestRate:     13.5,
			MaxTenureMonths:  48,
			MonthlySalary:    65000,
			Employer:         "Wipro",
		},
		{
			CustomerID:       "CUST004",
			Name:             "Vikram Singh",
			Phone:            "9876543213",
			CreditScore:      650,
			PreapprovedLimit: 0,
			InterestRate:     18.0,
			MaxTenureMonths:  24,
			MonthlySalary:    45000,
			Employer:         "Self-employed",
		},
		{
			CustomerID:       "CUST005",
			Name:             "Sneha Reddy",
			Phone:            "9876543214",
			CreditScore:      760,
			PreapprovedLimit: 400000,
			InterestRate:     12.0,
			MaxTenureMonths:  48,
			MonthlySalary:    95000,
			Employer:         "Amazon",
		},
	}
}

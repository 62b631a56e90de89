package crm

import (
	"context"
	"fmt"
)

// StaticClient serves records from an in-process dataset, mirroring the
// offer mart's demo seed.
type StaticClient struct {
	records map[string]Record
}

func NewStaticClient(records []Record) *StaticClient {
	byPhone := make(map[string]Record, len(records))
	for _, r := range records {
		byPhone[r.Phone] = r
	}
	return &StaticClient{records: byPhone}
}

func (s *StaticClient) FetchCustomer(ctx context.Context, phone string) (*Record, error) {
	rec, ok := s.records[phone]
	if !ok {
		return nil, fmt.Errorf("%w: phone=%s", ErrCustomerNotFound, phone)
	}
	return &rec, nil
}

// SeedRecords matches the offer mart demo dataset. Sneha Reddy never
// completed KYC, which exercises the verification-failure path.
func SeedRecords() []Record {
	return []Record{
		{
			CustomerID:          "CUST001",
			Name:                "Rahul Sharma",
			Phone:               "9876543210",
			PANNumber:           "ABCDE1234F",
			Employer:            "TCS",
			MonthlyIncome:       85000,
			KYC:                 KYCResultVerified,
			KYCVerificationDate: "2024-06-15",
		},
		{
			CustomerID:          "CUST002",
			Name:                "Priya Patel",
			Phone:               "9876543211",
			PANNumber:           "FGHIJ5678K",
			Employer:            "Infosys",
			MonthlyIncome:       120000,
			KYC:                 KYCResultVerified,
			KYCVerificationDate: "2024-08-20",
		},
		{
			CustomerID:          "CUST003",
			Name:                "Amit Kumar",
			Phone:               "9876543212",
			PANNumber:           "KLMNO9012P",
			Employer:            "Wipro",
			MonthlyIncome:       65000,
			KYC:                 KYCResultVerified,
			KYCVerificationDate: "2024-07-10",
		},
		{
			CustomerID:          "CUST004",
			Name:                "Vikram Singh",
			Phone:               "9876543213",
			PANNumber:           "PQRST3456Q",
			Employer:            "Self-employed",
			MonthlyIncome:       45000,
			KYC:                 KYCResultVerified,
			KYCVerificationDate: "2024-05-05",
		},
		{
			CustomerID:    "CUST005",
			Name:          "Sneha Reddy",
			Phone:         "9876543214",
			PANNumber:     "UVWXY7890R",
			Employer:      "Amazon",
			MonthlyIncome: 95000,
			KYC:           KYCResultUnverified,
		},
	}
}

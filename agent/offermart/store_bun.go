package offermart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type BunConfig struct {
	DSN     string        `envconfig:"DSN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"5s"`
}

type offerRow struct {
	bun.BaseModel `bun:"table:preapproved_offers"`

	CustomerID       string  `bun:"customer_id,pk"`
	Name             string  `bun:"name"`
	Phone            string  `bun:"phone"`
	CreditScore      int     `bun:"credit_score"`
	PreapprovedLimit float64 `bun:"preapproved_limit"`
	InterestRate     float64 `bun:"interest_rate"`
	MaxTenureMonths  int     `bun:"max_tenure_months"`
	MonthlySalary    float64 `bun:"monthly_salary"`
	Employer         string  `bun:"employer"`
}

// BunStore reads offers from Postgres through bun.
type BunStore struct {
	db      *bun.DB
	timeout time.Duration
}

func NewBunStore(cfg BunConfig) (*BunStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("offer mart dsn is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &BunStore{db: db, timeout: timeout}, nil
}

func (s *BunStore) Lookup(ctx context.Context, phone string) (*Offer, error) {
	normalized, ok := NormalizePhone(phone)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrOfferNotFound, phone)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row offerRow
	err := s.db.NewSelect().
		Model(&row).
		Where("phone = ?", normalized).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrOfferNotFound, normalized)
		}
		return nil, fmt.Errorf("offer mart query: %w", err)
	}

	return &Offer{
		CustomerID:       row.CustomerID,
		Name:             row.Name,
		Phone:            row.Phone,
		CreditScore:      row.CreditScore,
		PreapprovedLimit: row.PreapprovedLimit,
		InterestRate:     row.InterestRate,
		MaxTenureMonths:  row.MaxTenureMonths,
		MonthlySalary:    row.MonthlySalary,
		Employer:         row.Employer,
	}, nil
}

func (s *BunStore) Close() error {
	return s.db.Close()
}

// Package crm talks to the customer-records system that owns KYC status.
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrCustomerNotFound = errors.New("customer not found in crm")

type KYCResult string

const (
	KYCResultVerified   KYCResult = "verified"
	KYCResultPending    KYCResult = "pending"
	KYCResultUnverified KYCResult = "unverified"
)

type Record struct {
	CustomerID          string    `json:"customer_id"`
	Name                string    `json:"full_name"`
	Phone               string    `json:"phone"`
	PANNumber           string    `json:"pan_number"`
	Employer            string    `json:"employer"`
	MonthlyIncome       float64   `json:"monthly_income"`
	KYC                 KYCResult `json:"kyc"`
	KYCVerificationDate string    `json:"kyc_verification_date,omitempty"`
}

type Client interface {
	FetchCustomer(ctx context.Context, phone string) (*Record, error)
}

type Config struct {
	BaseURL string        `envconfig:"BASE_URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// HTTPClient fetches records over the CRM's REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("crm base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid crm base url: %w", err)
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("crm token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type crmEnvelope struct {
	Success      bool            `json:"success"`
	Data         json.RawMessage `json:"data"`
	ErrorMessage string          `json:"error_message"`
}

func (c *HTTPClient) FetchCustomer(ctx context.Context, phone string) (*Record, error) {
	endpoint := fmt.Sprintf("%s/customers/%s", c.baseURL, url.PathEscape(phone))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build crm request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute crm request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read crm response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: phone=%s", ErrCustomerNotFound, phone)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("crm http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var envelope crmEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode crm response: %w", err)
	}
	if !envelope.Success {
		if envelope.ErrorMessage != "" {
			return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, envelope.ErrorMessage)
		}
		return nil, fmt.Errorf("%w: phone=%s", ErrCustomerNotFound, phone)
	}

	var rec Record
	if err := json.Unmarshal(envelope.Data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal crm record: %w", err)
	}
	return &rec, nil
}

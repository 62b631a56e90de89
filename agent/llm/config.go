package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/polaris-nbfc/loan-agent/agent/contract"
	openrouterx "github.com/polaris-nbfc/loan-agent/pkg/openrouter"
)

// Config carries the OpenRouter connection settings plus optional per-handler
// model and temperature overrides. The sales handler is the only one that
// talks to the model today, but the override slots keep the env surface
// uniform across handlers. An empty API key is allowed: the workflow then
// runs without a model and the sales handler falls back to regex extraction.
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" default:"x-ai/grok-4.1-fast"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"1000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.3"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	SalesModel          string  `envconfig:"SALES_MODEL" split_words:"true"`
	SalesTemperature    float32 `envconfig:"SALES_TEMPERATURE" split_words:"true" default:"-1"`
	SanctionModel       string  `envconfig:"SANCTION_MODEL" split_words:"true"`
	SanctionTemperature float32 `envconfig:"SANCTION_TEMPERATURE" split_words:"true" default:"-1"`
}

// Configured reports whether a model backend can actually be reached.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

func (c Config) Validate() error {
	if !c.Configured() {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

// OpenRouterFor resolves the effective model settings for one handler,
// falling back to the shared defaults when no override is set.
func (c Config) OpenRouterFor(handlerType contractx.HandlerType) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	switch handlerType {
	case contractx.HandlerSales:
		if v := strings.TrimSpace(c.SalesModel); v != "" {
			modelName = v
		}
		if c.SalesTemperature >= 0 {
			temp = c.SalesTemperature
		}
	case contractx.HandlerSanction:
		if v := strings.TrimSpace(c.SanctionModel); v != "" {
			modelName = v
		}
		if c.SanctionTemperature >= 0 {
			temp = c.SanctionTemperature
		}
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}

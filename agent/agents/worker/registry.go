package worker

import (
	"context"
	"fmt"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	openaisdk "github.com/openai/openai-go"

	contractx "github.com/polaris-nbfc/loan-agent/agent/contract"
	"github.com/polaris-nbfc/loan-agent/agent/crm"
	llmx "github.com/polaris-nbfc/loan-agent/agent/llm"
	"github.com/polaris-nbfc/loan-agent/agent/machine"
	"github.com/polaris-nbfc/loan-agent/agent/offermart"
	promptx "github.com/polaris-nbfc/loan-agent/agent/prompt"
	"github.com/polaris-nbfc/loan-agent/agent/underwriting"
	openrouterx "github.com/polaris-nbfc/loan-agent/pkg/openrouter"
)

type registryImpl struct {
	byStage map[machine.Stage]contractx.Handler
}

func (r *registryImpl) ForStage(stage machine.Stage) (contractx.Handler, bool) {
	h, ok := r.byStage[stage]
	return h, ok
}

// Deps carries everything the handlers need. ChatModel may be nil, in which
// case the sales handler runs in regex-only degraded mode; SanctionClient may
// be nil, in which case sanction letters are template-only.
type Deps struct {
	ChatModel      einomodel.BaseChatModel
	SanctionClient *openaisdk.Client
	SanctionModel  string
	Offers         offermart.Store
	CRM            crm.Client
	Rules          underwriting.Config
	Now            func() time.Time
}

// NewRegistry builds the four workers and binds them to the stages they
// serve.
func NewRegistry(ctx context.Context, deps Deps) (contractx.Registry, error) {
	if deps.Offers == nil {
		return nil, fmt.Errorf("%w: offer store is required", contractx.ErrValidation)
	}
	if deps.CRM == nil {
		return nil, fmt.Errorf("%w: crm client is required", contractx.ErrValidation)
	}

	prompts := promptx.LoadPromptSet()

	sales, err := NewSales(ctx, deps.ChatModel, prompts.Sales, deps.Offers, deps.Rules)
	if err != nil {
		return nil, err
	}
	verification := NewVerification(deps.CRM)
	underwriter := NewUnderwriting(deps.Rules)
	sanction := NewSanction(deps.Now, deps.SanctionClient, deps.SanctionModel)

	return &registryImpl{
		byStage: map[machine.Stage]contractx.Handler{
			machine.StageIntro:              sales,
			machine.StageNeedDiscovery:      sales,
			machine.StageOfferPresentation:  sales,
			machine.StageDocumentCollection: sales,
			machine.StageKYCVerification:    verification,
			machine.StageUnderwriting:       underwriter,
			machine.StageSanction:           sanction,
			machine.StageRejection:          sanction,
		},
	}, nil
}

// NewRegistryFromLLMConfig resolves the chat model from cfg before building
// the registry; the main entrypoint uses this path.
func NewRegistryFromLLMConfig(
	ctx context.Context,
	cfg llmx.Config,
	offers offermart.Store,
	crmClient crm.Client,
	rules underwriting.Config,
) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	salesModelCfg := cfg.OpenRouterFor(contractx.HandlerSales)
	salesModel, err := salesModelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create sales model: %v", contractx.ErrModelInvoke, err)
	}

	sanctionCfg := cfg.OpenRouterFor(contractx.HandlerSanction)

	return NewRegistry(ctx, Deps{
		ChatModel:      salesModel,
		SanctionClient: openrouterx.NewClient(sanctionCfg),
		SanctionModel:  sanctionCfg.Model,
		Offers:         offers,
		CRM:            crmClient,
		Rules:          rules,
	})
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/polaris-nbfc/loan-agent/agent/agents/orchestrator"
	"github.com/polaris-nbfc/loan-agent/agent/agents/worker"
	contractx "github.com/polaris-nbfc/loan-agent/agent/contract"
	"github.com/polaris-nbfc/loan-agent/agent/crm"
	llmx "github.com/polaris-nbfc/loan-agent/agent/llm"
	"github.com/polaris-nbfc/loan-agent/agent/offermart"
	"github.com/polaris-nbfc/loan-agent/agent/safeguard"
	statex "github.com/polaris-nbfc/loan-agent/agent/state"
	"github.com/polaris-nbfc/loan-agent/agent/underwriting"
	configx "github.com/polaris-nbfc/loan-agent/pkg/config"
	_ "github.com/polaris-nbfc/loan-agent/pkg/logger/autoload"
)

type AppConfig struct {
	// Backend selectors; "static"/"memory" run the whole workflow without
	// external services, which is what the demo and the test-suite use.
	OfferMartBackend string `envconfig:"OFFER_MART_BACKEND" split_words:"true" default:"static"`
	CRMBackend       string `envconfig:"CRM_BACKEND" split_words:"true" default:"static"`
	SessionBackend   string `envconfig:"SESSION_BACKEND" split_words:"true" default:"memory"`
}

func main() {
	ctx := context.Background()
	appCfg := configx.MustNew[AppConfig]("")

	offers := buildOfferStore(appCfg.OfferMartBackend)
	crmClient := buildCRMClient(appCfg.CRMBackend)
	store := buildSessionStore(appCfg.SessionBackend)

	rules := *configx.MustNew[underwriting.Config]("UNDERWRITING")
	guardCfg := configx.MustNew[safeguard.Config]("SAFEGUARD")
	tracker := safeguard.NewTracker(guardCfg.MaxHandlerCalls)

	llmCfg := *configx.MustNew[llmx.Config]("OPENROUTER")
	var (
		registry contractx.Registry
		err      error
	)
	if llmCfg.Configured() {
		registry, err = worker.NewRegistryFromLLMConfig(ctx, llmCfg, offers, crmClient, rules)
	} else {
		log.Warn().Msg("OPENROUTER_API_KEY not set, running with regex extraction only")
		registry, err = worker.NewRegistry(ctx, worker.Deps{
			Offers: offers,
			CRM:    crmClient,
			Rules:  rules,
		})
	}
	if err != nil {
		log.Fatal().Err(err).Msg("build handler registry")
	}

	orch, err := orchestrator.New(store, registry, tracker)
	if err != nil {
		log.Fatal().Err(err).Msg("build orchestrator")
	}

	runREPL(ctx, orch)
}

func buildOfferStore(backend string) offermart.Store {
	switch strings.ToLower(backend) {
	case "postgres":
		store, err := offermart.NewBunStore(*configx.MustNew[offermart.BunConfig]("OFFER_MART"))
		if err != nil {
			log.Fatal().Err(err).Msg("connect offer mart")
		}
		return store
	default:
		return offermart.NewStaticStore(offermart.SeedOffers())
	}
}

func buildCRMClient(backend string) crm.Client {
	switch strings.ToLower(backend) {
	case "http":
		client, err := crm.NewHTTPClient(*configx.MustNew[crm.Config]("CRM"))
		if err != nil {
			log.Fatal().Err(err).Msg("build crm client")
		}
		return client
	default:
		return crm.NewStaticClient(crm.SeedRecords())
	}
}

func buildSessionStore(backend string) statex.Store {
	switch strings.ToLower(backend) {
	case "redis":
		store, err := statex.NewUpstashRedisStore(*configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS"))
		if err != nil {
			log.Fatal().Err(err).Msg("connect session store")
		}
		return store
	default:
		return statex.NewMemoryStore()
	}
}

func runREPL(ctx context.Context, orch *orchestrator.Orchestrator) {
	sessionID := uuid.NewString()
	fmt.Printf("Polaris Finance loan assistant (session %s). Type your message, or 'quit' to exit.\n\n", sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("you> ")
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "quit" || text == "exit" {
			return
		}
		if text == "" {
			fmt.Print("you> ")
			continue
		}

		turn, err := orch.Advance(ctx, sessionID, text)
		if err != nil {
			log.Error().Err(err).Msg("turn failed")
			fmt.Print("you> ")
			continue
		}

		fmt.Printf("\nagent> %s\n", turn.Reply)
		if turn.Terminal != "" {
			fmt.Printf("\n[conversation closed: %s]\n", turn.Terminal)
			return
		}
		fmt.Print("\nyou> ")
	}
}

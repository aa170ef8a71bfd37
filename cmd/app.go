package cmd

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/salebot/internal/agent"
	"github.com/nextlevelbuilder/salebot/internal/business"
	"github.com/nextlevelbuilder/salebot/internal/channels"
	"github.com/nextlevelbuilder/salebot/internal/config"
	"github.com/nextlevelbuilder/salebot/internal/guard"
	"github.com/nextlevelbuilder/salebot/internal/inbound"
	"github.com/nextlevelbuilder/salebot/internal/pipeline"
	"github.com/nextlevelbuilder/salebot/internal/store"
	"github.com/nextlevelbuilder/salebot/internal/store/redisstore"
	"github.com/nextlevelbuilder/salebot/internal/store/sqlstore"
	"github.com/nextlevelbuilder/salebot/internal/tasks"
	"github.com/nextlevelbuilder/salebot/internal/tools"
)

const relayTimeout = 10 * time.Second

// app is the assembled request path shared by serve and chat.
type app struct {
	stores   *store.Stores
	resolver *business.Resolver
	guard    *guard.Guard
	router   *pipeline.Orchestrator
	agent    *agent.Loop // nil when no provider is configured
	bus      *redisstore.ReplyBus
	channels *channels.Manager
	service  *inbound.Service
}

// buildApp wires stores, guard, tools, agent, pipeline, delivery and the
// inbound service. db may be nil, which disables the usage/funnel ledger.
func buildApp(cfg *config.Config, rdb *redis.Client, db *sqlstore.DB, runner tasks.Runner) (*app, error) {
	stores := &store.Stores{
		Conversations: redisstore.NewConversations(rdb, cfg.Conversations.Retention, cfg.Conversations.TTL.Std()),
		Flags:         redisstore.NewFlags(rdb, cfg.Flags.MaxPerBusiness, cfg.Flags.TTL.Std()),
	}
	if db != nil {
		stores.Usage = sqlstore.NewUsageStore(db)
		stores.Funnel = sqlstore.NewFunnelStore(db)
	}

	resolver, err := business.NewDirResolver(cfg.Businesses.Dir, cfg.Businesses.DefaultID)
	if err != nil {
		return nil, fmt.Errorf("load businesses: %w", err)
	}

	g := guard.New(rdb, guard.Config{
		MaxMessages:     cfg.Guard.MaxMessages,
		Window:          cfg.Guard.Window.Std(),
		IdempotencyTTL:  cfg.Guard.IdempotencyTTL.Std(),
		OfflineCooldown: cfg.Guard.OfflineCooldown.Std(),
	})

	pcfg := pipeline.Config{
		Layers:       cfg.Pipeline.Layers,
		OffHoursNote: cfg.Pipeline.OffHoursNote,
		Notices:      g,
	}
	var (
		summarizer inbound.Summarizer
		loop       *agent.Loop
	)
	if provider := buildProvider(cfg); provider != nil {
		executor, err := tools.NewExecutor(nil)
		if err != nil {
			return nil, fmt.Errorf("tool executor: %w", err)
		}
		loop = agent.NewLoop(agent.LoopConfig{
			Provider:      provider,
			MaxIterations: cfg.Agent.MaxIterations,
			HistoryLimit:  cfg.Agent.HistoryLimit,
			MaxTokens:     cfg.Agent.MaxTokens,
			Temperature:   cfg.Agent.Temperature,
			Tools:         executor,
			Usage:         stores.Usage,
			Tasks:         runner,
		})
		pcfg.Agent = loop
		summarizer = loop
	}
	router, err := pipeline.NewOrchestrator(pcfg)
	if err != nil {
		return nil, err
	}

	bus := redisstore.NewReplyBus(rdb)
	mgr := channels.NewManager()
	if cfg.Channels.Widget.Enabled {
		mgr.RegisterChannel(channels.NewWidgetChannel(bus))
	}
	for name, rc := range map[string]config.RelayConfig{
		channels.Line:     cfg.Channels.Line,
		channels.Facebook: cfg.Channels.Facebook,
	} {
		if rc.Enabled && rc.RelayURL != "" {
			mgr.RegisterChannel(channels.NewRelayChannel(name, rc.RelayURL, rc.Token, relayTimeout))
		}
	}

	svc := inbound.NewService(inbound.Config{
		HistoryWindow:    cfg.Pipeline.HistoryWindow,
		RequestTimeout:   cfg.Pipeline.RequestTimeout.Std(),
		ApologyMessage:   cfg.Pipeline.ApologyMessage,
		SummaryThreshold: cfg.Conversations.SummaryThreshold,
	}, inbound.Deps{
		Gate:       g,
		Resolver:   resolver,
		Router:     router,
		Stores:     stores,
		Summarizer: summarizer,
		Sender:     mgr,
		Tasks:      runner,
	})

	return &app{
		stores:   stores,
		resolver: resolver,
		guard:    g,
		router:   router,
		agent:    loop,
		bus:      bus,
		channels: mgr,
		service:  svc,
	}, nil
}

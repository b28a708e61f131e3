// Package app is the central wiring point for dependency injection.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/openassist/llm-orchestrator/config"
	"github.com/openassist/llm-orchestrator/models"
	"github.com/openassist/llm-orchestrator/repositories"
	"github.com/openassist/llm-orchestrator/repositories/postgres"
	"github.com/openassist/llm-orchestrator/services/balancer"
	"github.com/openassist/llm-orchestrator/services/batching"
	"github.com/openassist/llm-orchestrator/services/failover"
	"github.com/openassist/llm-orchestrator/services/orchestrator"
	"github.com/openassist/llm-orchestrator/services/providers"
	"github.com/openassist/llm-orchestrator/services/providers/httpapi"
	"github.com/openassist/llm-orchestrator/services/routing"
	"github.com/openassist/llm-orchestrator/services/tracker"
)

// Dependencies holds all application dependencies.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB // nil when the attempt archive is disabled
	Logger *zap.Logger

	// Repositories
	Attempts repositories.AttemptRepository

	// Services
	Registry     *providers.Registry
	Prober       *providers.Prober
	Balancer     *balancer.Service
	Router       *routing.Service
	Executor     *failover.Service
	Batcher      *batching.Service
	Tracker      *tracker.Service
	Orchestrator *orchestrator.Service

	bgCancel context.CancelFunc
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initRegistry(cfg.Orchestrator); err != nil {
		return nil, fmt.Errorf("failed to initialize provider registry: %w", err)
	}

	deps.initServices(cfg.Orchestrator)

	logger.Info("all dependencies initialized successfully",
		zap.Int("providers", deps.Registry.Count()),
		zap.Bool("archive_enabled", deps.DB != nil))
	return deps, nil
}

// initDatabase connects the optional attempt archive. Without a database
// configuration the orchestrator keeps attempt history in memory only.
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if cfg.Database == nil {
		d.Logger.Info("no database configured, attempt archive disabled")
		return nil
	}

	db, err := postgres.NewDB(*cfg.Database, d.Logger)
	if err != nil {
		return err
	}
	if err := db.InitSchema(ctx); err != nil {
		return err
	}

	d.DB = db
	d.Attempts = postgres.NewAttemptRepository(db, d.Logger)
	return nil
}

// initRegistry builds the provider registry from configuration. Providers
// with a base URL get the HTTP adapter; the rest get the in-memory mock,
// useful for local development.
func (d *Dependencies) initRegistry(orch *config.OrchestratorConfig) error {
	registry := providers.NewRegistry(providers.RegistryConfig{}, d.Logger)

	for _, pc := range orch.Providers {
		var adapter providers.Adapter
		if pc.BaseURL != "" {
			adapter = httpapi.New(httpapi.Config{
				ProviderID: pc.ID,
				BaseURL:    pc.BaseURL,
				APIKey:     pc.ResolveAPIKey(),
			})
		} else {
			d.Logger.Warn("provider has no base_url, using mock adapter",
				zap.String("provider", pc.ID))
			adapter = providers.NewMockAdapter()
		}

		languages := make(map[string]bool, len(pc.Languages))
		for _, lang := range pc.Languages {
			languages[lang] = true
		}

		p := providers.Provider{
			ID:       pc.ID,
			Kind:     providers.Kind(pc.Kind),
			Priority: pc.Priority,
			Enabled:  pc.IsEnabled(),
			Capabilities: providers.Capabilities{
				SupportsBatching:  pc.SupportsBatching,
				SupportsStreaming: pc.SupportsStream,
				MaxTokens:         pc.MaxTokens,
				Languages:         languages,
			},
			Timeout:        pc.Timeout(),
			RateLimit:      pc.RateLimitPerMin,
			CostMultiplier: pc.CostMultiplier,
			MaxBatchSize:   pc.MaxBatchSize,
			MaxBatchWait:   pc.MaxBatchWait(),
			Adapter:        adapter,
		}
		if err := registry.Register(p); err != nil {
			return err
		}
	}

	d.Registry = registry
	d.Prober = providers.NewProber(registry, providers.ProberConfig{
		Interval:         orch.HealthProbe.Interval(),
		Timeout:          orch.HealthProbe.Timeout(),
		FailureThreshold: orch.HealthProbe.FailureThreshold,
	}, d.Logger)
	return nil
}

// initServices wires the request pipeline.
func (d *Dependencies) initServices(orch *config.OrchestratorConfig) {
	d.Balancer = balancer.New(d.Registry, balancer.Config{
		RecomputeInterval:   orch.Balancer.RecomputeInterval(),
		MinRequestCount:     orch.Balancer.MinRequestCount,
		PenaltyFactor:       orch.Balancer.PenaltyFactor,
		ExplorationFraction: orch.Balancer.ExplorationFraction,
	}, d.Logger)

	d.Router = routing.New(routingConfig(orch), d.Registry, d.Balancer, d.Logger)

	d.Executor = failover.New(d.Registry, d.Balancer, failover.Config{
		MaxFallbackAttempts: orch.Failover.MaxFallbackAttempts,
	}, d.Logger)

	d.Batcher = batching.New(d.Registry, d.Executor.ExecuteBatch, d.Logger)

	var archive tracker.Archive
	if d.Attempts != nil {
		archive = d.Attempts
	}
	d.Tracker = tracker.New(tracker.Config{RingSize: orch.Tracker.RingSize}, archive, d.Logger)

	d.Orchestrator = orchestrator.New(d.Registry, d.Router, d.Executor, d.Batcher, d.Tracker, d.Logger)
}

// routingConfig maps the YAML routing configuration onto the router's types.
func routingConfig(orch *config.OrchestratorConfig) routing.Config {
	tiers := make(map[string]routing.Tier, len(orch.Tiers))
	for name, tc := range orch.Tiers {
		tiers[name] = routing.Tier{
			Name:             name,
			MinAccuracy:      tc.MinAccuracy,
			MaxLatency:       tc.MaxLatency(),
			AllowedProviders: tc.AllowedProviders,
			CostMultiplier:   tc.Multiplier(),
		}
	}

	taskTable := make(map[models.TaskType][]string, len(orch.Routing.Task))
	for key, ids := range orch.Routing.Task {
		taskTable[models.TaskType(key)] = ids
	}
	sizeTable := make(map[models.SizeClass][]string, len(orch.Routing.Size))
	for key, ids := range orch.Routing.Size {
		sizeTable[models.SizeClass(key)] = ids
	}

	return routing.Config{
		Tiers:         tiers,
		DefaultTier:   orch.DefaultTier,
		TaskTable:     taskTable,
		LanguageTable: orch.Routing.Language,
		SizeTable:     sizeTable,
	}
}

// Start launches the background loops (health prober, balancer recompute).
func (d *Dependencies) Start(ctx context.Context) {
	bgCtx, cancel := context.WithCancel(ctx)
	d.bgCancel = cancel

	go d.Prober.Run(bgCtx)
	go d.Balancer.Run(bgCtx)

	d.Logger.Info("background loops started")
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	if d.bgCancel != nil {
		d.bgCancel()
	}

	var errs []error
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}

package providers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ProberConfig holds out-of-band health probe parameters.
type ProberConfig struct {
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold int
}

// Prober periodically probes every registered provider independent of
// request traffic. A provider failing the configured number of consecutive
// probes is marked unavailable; a single successful probe restores it.
type Prober struct {
	registry *Registry
	cfg      ProberConfig
	logger   *zap.Logger

	mu       sync.Mutex
	failures map[string]int
}

// NewProber creates a new health prober for the given registry.
func NewProber(registry *Registry, cfg ProberConfig, logger *zap.Logger) *Prober {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	return &Prober{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		failures: make(map[string]int),
	}
}

// Run probes on the configured interval until the context is cancelled.
// Intended to be started as a goroutine from the dependency wiring.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("health prober stopped")
			return
		case <-ticker.C:
			p.ProbeAll(ctx)
		}
	}
}

// ProbeAll probes every registered provider once.
func (p *Prober) ProbeAll(ctx context.Context) {
	for _, id := range p.registry.IDs() {
		p.probeOne(ctx, id)
	}
}

func (p *Prober) probeOne(ctx context.Context, id string) {
	provider, err := p.registry.Get(id)
	if err != nil {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	err = provider.Adapter.HealthProbe(probeCtx)
	cancel()

	if err == nil {
		p.mu.Lock()
		p.failures[id] = 0
		p.mu.Unlock()
		_ = p.registry.MarkHealthy(id)
		return
	}

	p.mu.Lock()
	p.failures[id]++
	count := p.failures[id]
	p.mu.Unlock()

	p.logger.Warn("health probe failed",
		zap.String("provider", id),
		zap.Int("consecutive_probe_failures", count),
		zap.Error(err))

	if count >= p.cfg.FailureThreshold {
		_ = p.registry.MarkUnavailable(id)
	}
}

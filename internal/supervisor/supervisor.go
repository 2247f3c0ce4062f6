// Package supervisor composes connector pipelines (aggregator +
// connector + optional dispatchers), runs their health-reporting and
// dispatch-scheduling tasks, and coordinates graceful shutdown.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/marketdata-ingest/internal/connector"
	"github.com/sawpanic/marketdata-ingest/internal/dispatch"
	"github.com/sawpanic/marketdata-ingest/internal/healthhttp"
)

// Aggregator is the subset of aggregate.OHLCAggregator /
// aggregate.UnivariateAggregator the supervisor needs to force-finalize
// on shutdown.
type Aggregator interface {
	ForceFinalizeAll()
}

// Pipeline bundles one connector with its aggregator and the dispatchers
// that serialize its buffers to the causal API, on independent
// schedules.
type Pipeline struct {
	Name            string
	Connector       connector.Connector
	Aggregator      Aggregator
	Dispatchers     []dispatch.Runner
	DispatchCadence time.Duration // default 60s
	HealthCadence   time.Duration // default 30s
}

func (p *Pipeline) withDefaults() *Pipeline {
	if p.DispatchCadence <= 0 {
		p.DispatchCadence = 60 * time.Second
	}
	if p.HealthCadence <= 0 {
		p.HealthCadence = 30 * time.Second
	}
	return p
}

// Supervisor owns a set of pipelines and their background tasks.
type Supervisor struct {
	log zerolog.Logger

	mu        sync.Mutex
	pipelines []*Pipeline

	metrics *healthhttp.Registry
}

// New constructs an empty Supervisor. metrics may be nil if no
// healthhttp server is wired up.
func New(log zerolog.Logger, metrics *healthhttp.Registry) *Supervisor {
	return &Supervisor{
		log:     log.With().Str("component", "supervisor").Logger(),
		metrics: metrics,
	}
}

// Register adds a pipeline. Call before Run.
func (s *Supervisor) Register(p *Pipeline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipelines = append(s.pipelines, p.withDefaults())
}

// HealthSnapshots reports every registered pipeline's connector health,
// suitable for healthhttp.Config.Provider.
func (s *Supervisor) HealthSnapshots() []healthhttp.SourceHealth {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]healthhttp.SourceHealth, 0, len(s.pipelines))
	for _, p := range s.pipelines {
		out = append(out, healthhttp.SourceHealth{Name: p.Name, Health: p.Connector.Health()})
	}
	return out
}

// Run initializes and connects every registered pipeline, starts their
// background dispatch and health-reporting tasks, and blocks until ctx
// is done. On return it force-finalizes every aggregator and shuts down
// every connector — the same cleanup sequence regardless of whether ctx
// was cancelled by a signal or by the caller.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	pipelines := append([]*Pipeline(nil), s.pipelines...)
	s.mu.Unlock()

	active := make([]*Pipeline, 0, len(pipelines))
	for _, p := range pipelines {
		if err := p.Connector.Init(ctx); err != nil {
			s.log.Error().Err(err).Str("pipeline", p.Name).Msg("init failed, skipping pipeline")
			continue
		}
		if err := p.Connector.Connect(ctx); err != nil {
			s.log.Error().Err(err).Str("pipeline", p.Name).Msg("connect failed, skipping pipeline")
			continue
		}
		s.log.Info().Str("pipeline", p.Name).Msg("pipeline connected")
		active = append(active, p)
	}

	if s.metrics != nil {
		s.metrics.ActiveConnectors.Set(float64(len(active)))
	}

	var wg sync.WaitGroup
	for _, p := range active {
		wg.Add(2)
		go func(p *Pipeline) {
			defer wg.Done()
			s.healthLoop(ctx, p)
		}(p)
		go func(p *Pipeline) {
			defer wg.Done()
			s.dispatchLoop(ctx, p)
		}(p)
	}

	<-ctx.Done()
	s.log.Info().Msg("shutdown signal received, finalizing pipelines")

	for _, p := range pipelines {
		p.Aggregator.ForceFinalizeAll()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, p := range pipelines {
		if err := p.Connector.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Str("pipeline", p.Name).Msg("connector shutdown error")
		}
	}

	wg.Wait()
	return nil
}

func (s *Supervisor) healthLoop(ctx context.Context, p *Pipeline) {
	ticker := time.NewTicker(p.HealthCadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h := p.Connector.Health()
			s.log.Info().
				Str("pipeline", p.Name).
				Str("status", h.Status.String()).
				Int64("error_count", h.ErrorCount).
				Dur("uptime", h.Uptime()).
				Msg("health snapshot")
			if s.metrics != nil && h.Status == connector.StatusError {
				s.metrics.ConnectorErrors.WithLabelValues(p.Name, "health_check").Inc()
			}
		}
	}
}

func (s *Supervisor) dispatchLoop(ctx context.Context, p *Pipeline) {
	if len(p.Dispatchers) == 0 {
		return
	}
	ticker := time.NewTicker(p.DispatchCadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, d := range p.Dispatchers {
				if err := d.RunOnce(ctx); err != nil {
					s.log.Warn().Err(err).Str("pipeline", p.Name).Msg("dispatch tick failed")
				}
			}
		}
	}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/marketdata-ingest/internal/config"
	"github.com/sawpanic/marketdata-ingest/internal/healthhttp"
	"github.com/sawpanic/marketdata-ingest/internal/supervisor"
)

const version = "v0.1.0"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     "ingestd",
		Short:   "Market-data ingestion daemon",
		Version: version,
		Long: `ingestd connects to streaming and polling market-data sources,
aggregates ticks into rolling OHLC/univariate timeframe buffers, and
optionally dispatches those buffers to a causal-intelligence API.`,
		RunE: runServe,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the ingestion supervisor (same as the default action)",
		RunE:  runServe,
	})
	rootCmd.AddCommand(healthCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// runServe is the default action: load configuration, build the
// connector pipelines it selects, start the health/metrics surface, and
// run until interrupted.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	networks, err := config.LoadNetworks("")
	if err != nil {
		return err
	}

	registry := healthhttp.NewRegistry()
	sup := supervisor.New(log.Logger, registry)
	healthSrv := buildHealthServer(cfg, sup, registry, log.Logger)

	pipelines := buildPipelines(cfg, networks, registry, log.Logger)
	if len(pipelines) == 0 {
		log.Warn().Str("connector_kind", string(cfg.ConnectorKind)).Msg("no pipelines configured, nothing to ingest")
	}
	for _, p := range pipelines {
		p.DispatchCadence = cfg.DispatchCadence
		p.HealthCadence = cfg.HealthCadence
		sup.Register(p)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthErrCh := make(chan error, 1)
	go func() { healthErrCh <- healthSrv.Start() }()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- sup.Run(ctx) }()

	select {
	case err := <-runErrCh:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := healthSrv.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Warn().Err(shutdownErr).Msg("health server shutdown error")
		}
		return err
	case err := <-healthErrCh:
		stop()
		<-runErrCh
		return err
	}
}

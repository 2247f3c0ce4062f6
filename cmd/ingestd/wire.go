package main

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/sawpanic/marketdata-ingest/internal/aggregate"
	"github.com/sawpanic/marketdata-ingest/internal/config"
	"github.com/sawpanic/marketdata-ingest/internal/connector/pollingrest"
	"github.com/sawpanic/marketdata-ingest/internal/connector/streamsocket"
	"github.com/sawpanic/marketdata-ingest/internal/connector/subsession"
	"github.com/sawpanic/marketdata-ingest/internal/dispatch"
	"github.com/sawpanic/marketdata-ingest/internal/healthhttp"
	"github.com/sawpanic/marketdata-ingest/internal/supervisor"
	"github.com/sawpanic/marketdata-ingest/internal/tick/normalize"
)

func ohlcDispatchers(cfg config.RuntimeConfig, agg *aggregate.OHLCAggregator, network aggregate.Network, registry *healthhttp.Registry, log zerolog.Logger) []dispatch.Runner {
	if !cfg.DispatchEnabled {
		return nil
	}
	runners := make([]dispatch.Runner, 0, len(network))
	for _, tf := range network {
		label := tf.Label
		d := dispatch.New[aggregate.Candle](dispatch.Config{
			URL:              cfg.CausalAPIURL,
			APIKey:           cfg.CausalAPIKey,
			Header:           "datetime,open,high,low,close",
			TimeframeSeconds: tf.Seconds,
			OnOutcome:        dispatchOutcomeRecorder(registry, label),
		}, tf.Label, agg.Buffer(tf.Label), log)
		runners = append(runners, d)
	}
	return runners
}

func univariateDispatchers(cfg config.RuntimeConfig, agg *aggregate.UnivariateAggregator, network aggregate.Network, registry *healthhttp.Registry, log zerolog.Logger) []dispatch.Runner {
	if !cfg.DispatchEnabled {
		return nil
	}
	runners := make([]dispatch.Runner, 0, len(network))
	for _, tf := range network {
		label := tf.Label
		d := dispatch.New[aggregate.Sample](dispatch.Config{
			URL:              cfg.CausalAPIURL,
			APIKey:           cfg.CausalAPIKey,
			Header:           "datetime,value",
			TimeframeSeconds: tf.Seconds,
			OnOutcome:        dispatchOutcomeRecorder(registry, label),
		}, tf.Label, agg.Buffer(tf.Label), log)
		runners = append(runners, d)
	}
	return runners
}

// dispatchOutcomeRecorder closes over registry so dispatch.Config never
// needs to import healthhttp directly.
func dispatchOutcomeRecorder(registry *healthhttp.Registry, timeframeLabel string) func(outcome string) {
	if registry == nil {
		return nil
	}
	return func(outcome string) {
		registry.DispatchOutcomes.WithLabelValues(timeframeLabel, outcome).Inc()
	}
}

// reconnectRecorder closes over registry so streamsocket.Config never
// needs to import healthhttp directly.
func reconnectRecorder(registry *healthhttp.Registry, pipelineName string) func() {
	if registry == nil {
		return nil
	}
	return func() {
		registry.ConnectorReconnects.WithLabelValues(pipelineName).Inc()
	}
}

// buildPipelines constructs one pipeline per requested, credentialed
// connector kind. A single symbol per source is assumed for brevity:
// real deployments run one pipeline per symbol.
func buildPipelines(cfg config.RuntimeConfig, networks config.NetworkSet, registry *healthhttp.Registry, log zerolog.Logger) []*supervisor.Pipeline {
	var pipelines []*supervisor.Pipeline
	eqCryptoNetwork := networks["equities_crypto"]
	weatherNetwork := networks["weather"]

	if wantsSource(cfg.ConnectorKind, config.KindCrypto) && len(cfg.Crypto.Symbols) > 0 {
		symbol := cfg.Crypto.Symbols[0]
		agg := aggregate.NewOHLCAggregator(symbol, eqCryptoNetwork, log)
		conn := streamsocket.New(streamsocket.Config{
			Name:        "crypto",
			BaseURL:     cfg.Crypto.Host,
			Symbols:     cfg.Crypto.Symbols,
			Sink:        agg,
			Normalizer:  normalize.CryptoTrade{Source: "crypto"},
			Protocol:    &streamsocket.CryptoProtocol{StreamKind: "trade"},
			OnReconnect: reconnectRecorder(registry, "crypto"),
		}, log)
		pipelines = append(pipelines, &supervisor.Pipeline{
			Name: "crypto", Connector: conn, Aggregator: agg,
			Dispatchers: ohlcDispatchers(cfg, agg, eqCryptoNetwork, registry, log),
		})
	}

	if wantsSource(cfg.ConnectorKind, config.KindEquities) && cfg.Equities.APIKey != "" && len(cfg.Equities.Symbols) > 0 {
		symbol := cfg.Equities.Symbols[0]
		agg := aggregate.NewOHLCAggregator(symbol, eqCryptoNetwork, log)
		equitiesNormalizer := normalize.EquitiesTrade{Source: "equities"}
		conn := streamsocket.New(streamsocket.Config{
			Name:        "equities",
			BaseURL:     cfg.Equities.Host,
			Symbols:     cfg.Equities.Symbols,
			APIKey:      cfg.Equities.APIKey,
			Sink:        agg,
			Normalizer:  equitiesNormalizer,
			Protocol:    streamsocket.EquitiesProtocol{},
			OnReconnect: reconnectRecorder(registry, "equities"),
			Backfill: &streamsocket.BackfillConfig{
				Fetcher: streamsocket.HTTPBackfillFetcher{
					Client:     http.DefaultClient,
					URL:        cfg.Equities.BackfillURL,
					APIKey:     cfg.Equities.APIKey,
					Normalizer: equitiesNormalizer,
				},
			},
		}, log)
		pipelines = append(pipelines, &supervisor.Pipeline{
			Name: "equities", Connector: conn, Aggregator: agg,
			Dispatchers: ohlcDispatchers(cfg, agg, eqCryptoNetwork, registry, log),
		})
	}

	if wantsSource(cfg.ConnectorKind, config.KindWeather) && len(cfg.Weather.Symbols) > 0 {
		symbol := cfg.Weather.Symbols[0]
		agg := aggregate.NewUnivariateAggregator(symbol, weatherNetwork, log)
		conn := pollingrest.New(pollingrest.Config{
			Name:       "weather",
			Fetcher:    pollingrest.HTTPFetcher{Client: http.DefaultClient, URL: cfg.Weather.Host},
			Sink:       agg,
			Normalizer: normalize.Weather{Source: "weather", Symbol: symbol},
			Interval:   cfg.Weather.PollingInterval,
		}, log)
		pipelines = append(pipelines, &supervisor.Pipeline{
			Name: "weather", Connector: conn, Aggregator: agg,
			Dispatchers: univariateDispatchers(cfg, agg, weatherNetwork, registry, log),
		})
	}

	if wantsSource(cfg.ConnectorKind, config.KindSubsession) && len(cfg.Subsession.Symbols) > 0 {
		symbol := cfg.Subsession.Symbols[0]
		agg := aggregate.NewUnivariateAggregator(symbol, weatherNetwork, log)
		conn := subsession.New(subsession.Config{
			Name:       "subsession",
			Securities: cfg.Subsession.Symbols,
			Sink:       agg,
			Normalizer: normalize.SubSession{Source: "subsession"},
		}, log)
		pipelines = append(pipelines, &supervisor.Pipeline{
			Name: "subsession", Connector: conn, Aggregator: agg,
			Dispatchers: univariateDispatchers(cfg, agg, weatherNetwork, registry, log),
		})
	}

	return pipelines
}

func wantsSource(kind config.ConnectorKind, candidate config.ConnectorKind) bool {
	if kind == config.KindAll {
		return true
	}
	if kind == config.KindBoth {
		return candidate == config.KindEquities || candidate == config.KindCrypto
	}
	return kind == candidate
}

func buildHealthServer(cfg config.RuntimeConfig, sup *supervisor.Supervisor, registry *healthhttp.Registry, log zerolog.Logger) *healthhttp.Server {
	return healthhttp.NewServer(healthhttp.Config{
		Addr:     cfg.HealthHTTPAddr,
		Provider: sup.HealthSnapshots,
		Registry: registry,
	}, log)
}

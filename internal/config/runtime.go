package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketdata-ingest/internal/ingest/errs"
)

// ConnectorKind selects which connector pipeline(s) the supervisor
// constructs.
type ConnectorKind string

const (
	KindEquities   ConnectorKind = "equities"
	KindCrypto     ConnectorKind = "crypto"
	KindWeather    ConnectorKind = "weather"
	KindSubsession ConnectorKind = "subsession"
	KindAll        ConnectorKind = "all"
	KindBoth       ConnectorKind = "both" // the two streaming-socket sources only
)

var validKinds = map[ConnectorKind]bool{
	KindEquities: true, KindCrypto: true, KindWeather: true,
	KindSubsession: true, KindAll: true, KindBoth: true,
}

// SourceConfig holds the per-source credentials and parameters read from
// the environment. Not every field applies to every source.
type SourceConfig struct {
	Host            string
	Port            string
	APIKey          string
	Symbols         []string
	PollingInterval time.Duration
	BackfillURL     string // historical-trades REST endpoint, equities only
}

func (s SourceConfig) hasCredentials() bool {
	return s.APIKey != ""
}

// RuntimeConfig is everything internal/supervisor needs to wire up the
// selected pipelines.
type RuntimeConfig struct {
	ConnectorKind ConnectorKind

	Equities   SourceConfig
	Crypto     SourceConfig
	Weather    SourceConfig
	Subsession SourceConfig

	CausalAPIURL    string
	CausalAPIKey    string
	DispatchEnabled bool
	DispatchCadence time.Duration // default 60s
	HealthCadence   time.Duration // default 30s

	HealthHTTPAddr string // default 127.0.0.1:9090
}

// Load reads RuntimeConfig from the environment. A missing optional
// credential for a selected connector logs a warning and the caller is
// expected to skip that connector; a missing required infrastructure
// variable (the causal API URL when dispatch is enabled) returns
// errs.ErrConfig and aborts startup.
func Load() (RuntimeConfig, error) {
	kind := ConnectorKind(getenv("CONNECTOR_KIND", string(KindAll)))
	if !validKinds[kind] {
		return RuntimeConfig{}, fmt.Errorf("%w: unknown CONNECTOR_KIND %q", errs.ErrConfig, kind)
	}

	cfg := RuntimeConfig{
		ConnectorKind: kind,
		Equities: SourceConfig{
			Host:        getenv("EQUITIES_HOST", "wss://stream.example.test/stocks"),
			APIKey:      os.Getenv("EQUITIES_API_KEY"),
			Symbols:     splitSymbols(os.Getenv("EQUITIES_SYMBOLS")),
			BackfillURL: getenv("EQUITIES_BACKFILL_URL", "https://api.example.test/v2/trades"),
		},
		Crypto: SourceConfig{
			Host:    getenv("CRYPTO_HOST", "wss://stream.example.test/crypto"),
			Symbols: splitSymbols(os.Getenv("CRYPTO_SYMBOLS")),
		},
		Weather: SourceConfig{
			Host:            getenv("WEATHER_HOST", "https://api.example.test/weather"),
			APIKey:          os.Getenv("WEATHER_API_KEY"),
			Symbols:         splitSymbols(os.Getenv("WEATHER_SYMBOLS")),
			PollingInterval: getenvDuration("WEATHER_POLL_INTERVAL", 5*time.Minute),
		},
		Subsession: SourceConfig{
			Symbols: splitSymbols(os.Getenv("SUBSESSION_SECURITIES")),
		},
		CausalAPIURL:    os.Getenv("CAUSAL_API_URL"),
		CausalAPIKey:    os.Getenv("CAUSAL_API_KEY"),
		DispatchCadence: getenvDuration("DISPATCH_CADENCE", 60*time.Second),
		HealthCadence:   getenvDuration("HEALTH_CADENCE", 30*time.Second),
		HealthHTTPAddr:  getenv("HEALTH_HTTP_ADDR", "127.0.0.1:9090"),
	}
	cfg.DispatchEnabled = cfg.CausalAPIURL != ""

	if wantsSource(kind, KindEquities) && !cfg.Equities.hasCredentials() {
		log.Warn().Msg("EQUITIES_API_KEY not set, skipping equities connector")
	}
	if wantsDispatch(cfg) && cfg.CausalAPIURL == "" {
		return RuntimeConfig{}, fmt.Errorf("%w: CAUSAL_API_URL required when dispatch is enabled", errs.ErrConfig)
	}

	return cfg, nil
}

func wantsSource(kind, candidate ConnectorKind) bool {
	if kind == KindAll {
		return true
	}
	if kind == KindBoth {
		return candidate == KindEquities || candidate == KindCrypto
	}
	return kind == candidate
}

// wantsDispatch reports whether the operator has opted into dispatch by
// setting any dispatch-related variable, so a partially configured
// deployment fails loudly rather than silently skipping dispatch.
func wantsDispatch(cfg RuntimeConfig) bool {
	return cfg.CausalAPIKey != "" || os.Getenv("CAUSAL_API_URL") != "" || os.Getenv("DISPATCH_ENABLED") == "true"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid duration, using default")
		return fallback
	}
	return d
}

func splitSymbols(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

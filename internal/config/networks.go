// Package config loads the two configuration layers the runtime needs:
// YAML-declared timeframe networks (internal/aggregate.Network) and
// environment-variable runtime/credential settings.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/marketdata-ingest/internal/aggregate"
	"github.com/sawpanic/marketdata-ingest/internal/ingest/errs"
)

//go:embed networks_default.yaml
var defaultNetworksYAML []byte

// NetworkSet is a named collection of timeframe networks, e.g.
// {"equities_crypto": [...], "weather": [...]}.
type NetworkSet map[string]aggregate.Network

// LoadNetworks parses a timeframe-network YAML document. When path is
// empty, the two canonical embedded networks (equities_crypto, weather)
// are used.
func LoadNetworks(path string) (NetworkSet, error) {
	data := defaultNetworksYAML
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read timeframe network file: %v", errs.ErrConfig, err)
		}
		data = raw
	}

	var set NetworkSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("%w: parse timeframe network YAML: %v", errs.ErrConfig, err)
	}
	for name, network := range set {
		if err := network.Validate(); err != nil {
			return nil, fmt.Errorf("%w: network %q: %v", errs.ErrConfig, name, err)
		}
	}
	return set, nil
}

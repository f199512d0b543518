package searcher

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalidRelay = errors.New("invalid relay config")

type RelayConfig struct {
	Name       string  `yaml:"name"`
	URL        string  `yaml:"url"`
	Simulation bool    `yaml:"simulation"`
	Disabled   bool    `yaml:"disabled"`
	RateLimit  float64 `yaml:"rate_limit"`
}

type RelaysConfig struct {
	Relays []RelayConfig `yaml:"relays"`
}

// LoadRelayConfig parses a relays config from a file
func LoadRelayConfig(file string) (RelaysConfig, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return RelaysConfig{}, err
	}

	var config RelaysConfig
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return RelaysConfig{}, err
	}

	for _, relay := range config.Relays {
		if relay.URL == "" {
			return RelaysConfig{}, ErrInvalidRelay
		}
	}
	return config, nil
}

// Build creates the enabled relays with the shared signer. The simulation relay is the first
// relay marked for simulation, nil if there is none.
func (c RelaysConfig) Build(signer Signer, opts ...RelayOption) (relays []*Relay, simulation *Relay) {
	for _, cfg := range c.Relays {
		if cfg.Disabled {
			continue
		}
		relayOpts := append(append([]RelayOption{}, opts...), WithRateLimit(cfg.RateLimit))
		relay := NewRelay(cfg.URL, signer, relayOpts...)
		relays = append(relays, relay)
		if cfg.Simulation && simulation == nil {
			simulation = relay
		}
	}
	return relays, simulation
}

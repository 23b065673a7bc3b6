package discovery

import (
	"time"

	"deckd/internal/domain"
)

// Config carries the engine's tunables. DefaultConfig fills every field
// from the domain defaults.
type Config struct {
	PassTimeouts  []time.Duration
	HostTimeouts  []time.Duration
	ProbeAttempts []int

	StrategyWorkers int
	SweepWorkers    int
	ProbeWorkers    int

	AgentPorts   []int
	ShellPort    int
	OverlayURL   string
	NeighborPath string
	ServiceTypes []string

	// LocalPort seeds the synthetic loopback and bundled entries.
	LocalPort int
}

func DefaultConfig() Config {
	return Config{
		PassTimeouts:    []time.Duration{domain.DiscoveryPass1Timeout, domain.DiscoveryPass2Timeout},
		HostTimeouts:    []time.Duration{domain.DiscoveryPass1HostTimeout, domain.DiscoveryPass2HostTimeout},
		ProbeAttempts:   []int{domain.DiscoveryPass1Attempts, domain.DiscoveryPass2Attempts},
		StrategyWorkers: domain.DiscoveryStrategyWorkers,
		SweepWorkers:    domain.DiscoverySweepWorkers,
		ProbeWorkers:    domain.DiscoveryProbeWorkers,
		AgentPorts:      append([]int(nil), domain.AgentPorts...),
		ShellPort:       domain.DefaultShellPort,
		OverlayURL:      domain.OverlayPeerStatusURL,
		NeighborPath:    domain.NeighborTablePath,
		ServiceTypes:    []string{domain.ServiceTypeAgent, domain.ServiceTypeWorkstation},
		LocalPort:       domain.DefaultLocalPort,
	}
}

// passBudget is one pass's latency/recall tradeoff.
type passBudget struct {
	index       int
	passTimeout time.Duration
	hostTimeout time.Duration
	attempts    int
}

func (c Config) budgets() []passBudget {
	count := len(c.PassTimeouts)
	budgets := make([]passBudget, 0, count)
	for i := 0; i < count; i++ {
		budgets = append(budgets, passBudget{
			index:       i,
			passTimeout: c.PassTimeouts[i],
			hostTimeout: at(c.HostTimeouts, i, domain.DiscoveryPass1HostTimeout),
			attempts:    atInt(c.ProbeAttempts, i, domain.DiscoveryPass1Attempts),
		})
	}
	return budgets
}

func at(values []time.Duration, i int, fallback time.Duration) time.Duration {
	if i < len(values) {
		return values[i]
	}
	return fallback
}

func atInt(values []int, i int, fallback int) int {
	if i < len(values) {
		return values[i]
	}
	return fallback
}

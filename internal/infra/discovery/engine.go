package discovery

import (
	"context"
	"net"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"deckd/internal/domain"
	"deckd/internal/infra/telemetry"
	"deckd/internal/infra/transport"
)

// Snapshot is one progressive result emission: the full re-ranked list
// as of this moment. Complete is set only on the final emission.
type Snapshot struct {
	Servers  []domain.ServerConfig
	Complete bool
}

// strategy is one independent candidate producer. Strategies are
// best-effort: a total failure contributes nothing and aborts nothing.
type strategy interface {
	name() string
	discover(ctx context.Context, budget passBudget, emit func(Candidate)) error
}

type prober interface {
	probe(ctx context.Context, candidate Candidate, budget passBudget) (probeResult, bool)
}

type probeResult struct {
	port     int
	hasAgent bool
	viaShell bool
}

// Engine locates candidate servers through concurrent strategies and
// merges them into a ranked, deduplicated, progressively emitted list.
type Engine struct {
	config     Config
	logger     *zap.Logger
	metrics    *telemetry.Metrics
	strategies []strategy
	prober     prober
	selfAddrs  func() map[string]bool
}

func New(config Config, logger *zap.Logger, metrics *telemetry.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("discovery")
	e := &Engine{
		config:  config,
		logger:  logger,
		metrics: metrics,
		prober:  &tcpProber{config: config},
		selfAddrs: func() map[string]bool {
			return localAddresses()
		},
	}
	e.strategies = []strategy{
		&bonjourStrategy{serviceTypes: config.ServiceTypes, logger: logger},
		&overlayStrategy{url: config.OverlayURL, logger: logger},
		&subnetStrategy{config: config, logger: logger},
		&neighborStrategy{path: config.NeighborPath, logger: logger},
	}
	return e
}

// Run executes all passes. emit receives a fully re-ranked snapshot
// whenever a new candidate is confirmed; the final ranked list is also
// returned. Results only grow across a run.
func (e *Engine) Run(ctx context.Context, emit func(Snapshot)) []domain.ServerConfig {
	if emit == nil {
		emit = func(Snapshot) {}
	}
	self := e.selfAddrs()

	var mu sync.Mutex
	index := make(map[string]Candidate)
	confirmed := make(map[string]domain.ServerConfig)

	ranked := func() []domain.ServerConfig {
		servers := e.syntheticEntries()
		for _, server := range confirmed {
			servers = append(servers, server)
		}
		domain.SortServers(servers)
		return servers
	}

	// Synthetic entries are visible before any probe returns.
	mu.Lock()
	emit(Snapshot{Servers: ranked()})
	mu.Unlock()

	for _, budget := range e.config.budgets() {
		e.runPass(ctx, budget, self, &mu, index, confirmed, ranked, emit)
		if ctx.Err() != nil {
			break
		}
	}

	mu.Lock()
	final := ranked()
	emit(Snapshot{Servers: final, Complete: true})
	mu.Unlock()
	return final
}

func (e *Engine) runPass(
	ctx context.Context,
	budget passBudget,
	self map[string]bool,
	mu *sync.Mutex,
	index map[string]Candidate,
	confirmed map[string]domain.ServerConfig,
	ranked func() []domain.ServerConfig,
	emit func(Snapshot),
) {
	// The pass context bounds worst-case latency: outstanding probes are
	// force-cancelled when it expires.
	passCtx, cancel := context.WithTimeout(ctx, budget.passTimeout)
	defer cancel()

	candidates := make(chan Candidate, 64)

	producers, producerCtx := errgroup.WithContext(passCtx)
	producers.SetLimit(e.config.StrategyWorkers)
	for _, strat := range e.strategies {
		producers.Go(func() error {
			if err := strat.discover(producerCtx, budget, func(candidate Candidate) {
				select {
				case candidates <- candidate:
				case <-producerCtx.Done():
				}
			}); err != nil {
				e.logger.Debug("strategy failed", zap.String("strategy", strat.name()), zap.Error(err))
			}
			return nil
		})
	}
	go func() {
		_ = producers.Wait()
		close(candidates)
	}()

	probes, probeCtx := errgroup.WithContext(passCtx)
	probes.SetLimit(e.config.ProbeWorkers)
	probing := make(map[string]bool)

	for candidate := range candidates {
		host := canonicalHost(candidate.Host)
		if host == "" || isLoopback(host) || self[host] {
			continue
		}
		candidate.Host = host

		mu.Lock()
		merged := merge(index, candidate)
		if existing, done := confirmed[host]; done {
			// A later, stronger sighting of an already-confirmed host
			// still upgrades the record.
			if upgraded := upgradeConfirmed(existing, merged); upgraded != existing {
				confirmed[host] = upgraded
				emit(Snapshot{Servers: ranked()})
			}
			mu.Unlock()
			continue
		}
		started := probing[host]
		probing[host] = true
		mu.Unlock()
		if started {
			continue
		}

		probes.Go(func() error {
			result, ok := e.prober.probe(probeCtx, merged, budget)
			mu.Lock()
			defer mu.Unlock()
			// Sightings may have upgraded the candidate while the probe
			// was in flight; confirm from the current index record.
			latest := index[merged.Host]
			if !ok {
				// Advertisement-sourced candidates survive a failed
				// probe: the advertisement itself is liveness evidence.
				if latest.Source != domain.SourceBonjour {
					return nil
				}
				result = probeResult{port: latest.PortHint, hasAgent: true}
				if result.port == 0 && len(e.config.AgentPorts) > 0 {
					result.port = e.config.AgentPorts[0]
				}
			}
			if _, exists := confirmed[latest.Host]; !exists {
				server := e.serverFromProbe(latest, result)
				confirmed[latest.Host] = server
				e.metrics.ObserveDiscoveryConfirmed(string(server.Source))
				emit(Snapshot{Servers: ranked()})
			}
			return nil
		})
	}
	_ = probes.Wait()
}

func (e *Engine) serverFromProbe(candidate Candidate, result probeResult) domain.ServerConfig {
	source := candidate.Source
	if result.viaShell && !result.hasAgent {
		// Only the shell answered; upgrade weak scan sources, never
		// downgrade stronger ones.
		if domain.SourcePriority(domain.SourceShell) < domain.SourcePriority(source) {
			source = domain.SourceShell
		}
	}
	port := result.port
	if !result.hasAgent || port == 0 {
		port = candidate.PortHint
		if port == 0 && len(e.config.AgentPorts) > 0 {
			port = e.config.AgentPorts[0]
		}
	}
	name := candidate.Name
	if name == "" {
		name = candidate.Host
	}
	return domain.ServerConfig{
		ID:             transport.HostPort(candidate.Host, port),
		Name:           name,
		Host:           candidate.Host,
		Port:           port,
		Source:         source,
		HasAgentServer: result.hasAgent,
	}
}

// upgradeConfirmed folds a later sighting into an already-confirmed
// entry. Upgrade-only: the probed port and agent flag are kept and the
// source never weakens.
func upgradeConfirmed(server domain.ServerConfig, candidate Candidate) domain.ServerConfig {
	if domain.SourcePriority(candidate.Source) < domain.SourcePriority(server.Source) {
		server.Source = candidate.Source
		if candidate.Name != "" {
			server.Name = candidate.Name
		}
	} else if candidate.Name != "" && (server.Name == "" || server.Name == server.Host) {
		server.Name = candidate.Name
	}
	return server
}

// syntheticEntries are always present regardless of probe outcome.
func (e *Engine) syntheticEntries() []domain.ServerConfig {
	return []domain.ServerConfig{
		{
			ID:             "local",
			Name:           "This device",
			Host:           "127.0.0.1",
			Port:           e.config.LocalPort,
			Source:         domain.SourceLocal,
			HasAgentServer: true,
		},
		{
			ID:             "bundled",
			Name:           "Embedded runtime",
			Host:           "127.0.0.1",
			Port:           e.config.LocalPort,
			Source:         domain.SourceBundled,
			HasAgentServer: true,
		},
	}
}

func canonicalHost(host string) string {
	ip := net.ParseIP(host)
	if ip == nil {
		return host
	}
	return ip.String()
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// localAddresses collects the device's own addresses so discovery never
// reports the device itself.
func localAddresses() map[string]bool {
	self := make(map[string]bool)
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return self
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok {
			self[ipNet.IP.String()] = true
		}
	}
	return self
}

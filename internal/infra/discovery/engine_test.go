package discovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"deckd/internal/domain"
	"deckd/internal/infra/telemetry"
)

type staticStrategy struct {
	candidates []Candidate
}

func (s staticStrategy) name() string { return "static" }

func (s staticStrategy) discover(_ context.Context, _ passBudget, emit func(Candidate)) error {
	for _, candidate := range s.candidates {
		emit(candidate)
	}
	return nil
}

type fakeProber struct {
	results map[string]probeResult
}

func (p fakeProber) probe(_ context.Context, candidate Candidate, _ passBudget) (probeResult, bool) {
	result, ok := p.results[candidate.Host]
	return result, ok
}

func testEngine(strategies []strategy, prober prober) *Engine {
	cfg := DefaultConfig()
	cfg.PassTimeouts = []time.Duration{time.Second}
	cfg.HostTimeouts = []time.Duration{50 * time.Millisecond}
	cfg.ProbeAttempts = []int{1}
	cfg.LocalPort = 8765
	return &Engine{
		config:     cfg,
		logger:     zap.NewNop(),
		metrics:    telemetry.NewMetrics(prometheus.NewRegistry()),
		strategies: strategies,
		prober:     prober,
		selfAddrs: func() map[string]bool {
			return map[string]bool{"192.168.1.2": true}
		},
	}
}

func TestRunWithAllProbesFailingYieldsOnlySyntheticEntries(t *testing.T) {
	engine := testEngine(
		[]strategy{staticStrategy{candidates: []Candidate{
			{Host: "192.168.1.30", Source: domain.SourceLAN},
			{Host: "192.168.1.31", Source: domain.SourceNeighbor},
		}}},
		fakeProber{},
	)

	servers := engine.Run(context.Background(), nil)
	require.Len(t, servers, 2)
	require.Equal(t, domain.SourceLocal, servers[0].Source)
	require.Equal(t, domain.SourceBundled, servers[1].Source)
	require.Equal(t, "127.0.0.1", servers[0].Host)
	require.Equal(t, 8765, servers[0].Port)
}

func TestRunConfirmsReachableCandidates(t *testing.T) {
	engine := testEngine(
		[]strategy{staticStrategy{candidates: []Candidate{
			{Host: "10.0.0.5", Name: "studio.local", Source: domain.SourceBonjour, PortHint: 8765},
		}}},
		fakeProber{results: map[string]probeResult{
			"10.0.0.5": {port: 8765, hasAgent: true},
		}},
	)

	servers := engine.Run(context.Background(), nil)
	require.Len(t, servers, 3)

	confirmed := servers[2]
	require.Equal(t, "10.0.0.5", confirmed.Host)
	require.Equal(t, "studio.local", confirmed.Name)
	require.Equal(t, domain.SourceBonjour, confirmed.Source)
	require.Equal(t, 8765, confirmed.Port)
	require.True(t, confirmed.HasAgentServer)
	require.Equal(t, "10.0.0.5:8765", confirmed.ID)
}

func TestRunExcludesLoopbackAndSelf(t *testing.T) {
	engine := testEngine(
		[]strategy{staticStrategy{candidates: []Candidate{
			{Host: "127.0.0.1", Source: domain.SourceLAN},
			{Host: "192.168.1.2", Source: domain.SourceLAN},
		}}},
		fakeProber{results: map[string]probeResult{
			"127.0.0.1":   {port: 8765, hasAgent: true},
			"192.168.1.2": {port: 8765, hasAgent: true},
		}},
	)

	servers := engine.Run(context.Background(), nil)
	require.Len(t, servers, 2)
}

func TestRunKeepsUnreachableBonjourCandidate(t *testing.T) {
	engine := testEngine(
		[]strategy{staticStrategy{candidates: []Candidate{
			{Host: "10.0.0.8", Name: "sleepy", Source: domain.SourceBonjour, PortHint: 8790},
			{Host: "10.0.0.9", Source: domain.SourceLAN},
		}}},
		fakeProber{},
	)

	servers := engine.Run(context.Background(), nil)
	require.Len(t, servers, 3)
	require.Equal(t, "10.0.0.8", servers[2].Host)
	require.Equal(t, domain.SourceBonjour, servers[2].Source)
	require.Equal(t, 8790, servers[2].Port)
}

func TestRunUpgradesShellOnlyHost(t *testing.T) {
	engine := testEngine(
		[]strategy{staticStrategy{candidates: []Candidate{
			{Host: "192.168.1.40", Source: domain.SourceNeighbor},
		}}},
		fakeProber{results: map[string]probeResult{
			"192.168.1.40": {viaShell: true},
		}},
	)

	servers := engine.Run(context.Background(), nil)
	require.Len(t, servers, 3)
	require.Equal(t, domain.SourceShell, servers[2].Source)
	require.False(t, servers[2].HasAgentServer)
	// Best-guess agent port retained for later manual attempts.
	require.Equal(t, 8765, servers[2].Port)
}

func TestRunEmitsProgressiveSnapshots(t *testing.T) {
	engine := testEngine(
		[]strategy{staticStrategy{candidates: []Candidate{
			{Host: "10.0.0.5", Source: domain.SourceLAN},
		}}},
		fakeProber{results: map[string]probeResult{
			"10.0.0.5": {port: 8765, hasAgent: true},
		}},
	)

	var snapshots []Snapshot
	servers := engine.Run(context.Background(), func(snapshot Snapshot) {
		snapshots = append(snapshots, snapshot)
	})

	require.GreaterOrEqual(t, len(snapshots), 3)
	// First emission carries only the synthetic entries.
	require.Len(t, snapshots[0].Servers, 2)
	require.False(t, snapshots[0].Complete)
	// Last emission is the final ranked list.
	last := snapshots[len(snapshots)-1]
	require.True(t, last.Complete)
	require.Empty(t, cmp.Diff(servers, last.Servers))
	require.Len(t, last.Servers, 3)
}

// stagedStrategy emits one candidate immediately and a second only
// after the gate opens.
type stagedStrategy struct {
	first  Candidate
	second Candidate
	gate   chan struct{}
}

func (s *stagedStrategy) name() string { return "staged" }

func (s *stagedStrategy) discover(ctx context.Context, _ passBudget, emit func(Candidate)) error {
	emit(s.first)
	select {
	case <-s.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	emit(s.second)
	return nil
}

func TestLateAdvertisementUpgradesConfirmedHost(t *testing.T) {
	gate := make(chan struct{})
	staged := &stagedStrategy{
		first:  Candidate{Host: "10.0.0.5", Source: domain.SourceLAN},
		second: Candidate{Host: "10.0.0.5", Name: "studio.local", Source: domain.SourceBonjour, PortHint: 8790},
		gate:   gate,
	}
	engine := testEngine(
		[]strategy{staged},
		fakeProber{results: map[string]probeResult{
			"10.0.0.5": {port: 8765, hasAgent: true},
		}},
	)

	// Open the gate only once the sweep sighting is confirmed, so the
	// advertisement always arrives after confirmation.
	var once sync.Once
	servers := engine.Run(context.Background(), func(snapshot Snapshot) {
		for _, server := range snapshot.Servers {
			if server.Host == "10.0.0.5" {
				once.Do(func() { close(gate) })
			}
		}
	})

	require.Len(t, servers, 3)
	var found *domain.ServerConfig
	for i := range servers {
		if servers[i].Host == "10.0.0.5" {
			found = &servers[i]
		}
	}
	require.NotNil(t, found)
	require.Equal(t, domain.SourceBonjour, found.Source)
	require.Equal(t, "studio.local", found.Name)
	// The probed port and agent flag survive the upgrade.
	require.Equal(t, 8765, found.Port)
	require.True(t, found.HasAgentServer)
}

func TestUpgradeConfirmedNeverWeakens(t *testing.T) {
	confirmed := domain.ServerConfig{
		ID: "10.0.0.5:8765", Name: "studio.local", Host: "10.0.0.5",
		Port: 8765, Source: domain.SourceBonjour, HasAgentServer: true,
	}

	// A weaker sighting changes nothing but a missing name.
	same := upgradeConfirmed(confirmed, Candidate{Host: "10.0.0.5", Source: domain.SourceLAN})
	require.Equal(t, confirmed, same)

	unnamed := confirmed
	unnamed.Name = unnamed.Host
	backfilled := upgradeConfirmed(unnamed, Candidate{Host: "10.0.0.5", Name: "studio.local", Source: domain.SourceLAN})
	require.Equal(t, domain.SourceBonjour, backfilled.Source)
	require.Equal(t, "studio.local", backfilled.Name)
}

func TestRunResultsOnlyGrowAcrossPasses(t *testing.T) {
	engine := testEngine(
		[]strategy{staticStrategy{candidates: []Candidate{
			{Host: "10.0.0.5", Source: domain.SourceLAN},
		}}},
		fakeProber{results: map[string]probeResult{
			"10.0.0.5": {port: 8765, hasAgent: true},
		}},
	)
	engine.config.PassTimeouts = []time.Duration{time.Second, time.Second}
	engine.config.HostTimeouts = []time.Duration{50 * time.Millisecond, 50 * time.Millisecond}
	engine.config.ProbeAttempts = []int{1, 1}

	prev := 0
	servers := engine.Run(context.Background(), func(snapshot Snapshot) {
		require.GreaterOrEqual(t, len(snapshot.Servers), prev)
		prev = len(snapshot.Servers)
	})
	require.Len(t, servers, 3)
}

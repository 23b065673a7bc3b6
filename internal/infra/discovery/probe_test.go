package discovery

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deckd/internal/domain"
)

type probeConn struct {
	net.Conn
}

func (probeConn) Close() error { return nil }

type recordingDialer struct {
	mu    sync.Mutex
	open  map[string]bool
	addrs []string
}

func (d *recordingDialer) dial(addr string, _ time.Duration) (net.Conn, error) {
	d.mu.Lock()
	d.addrs = append(d.addrs, addr)
	open := d.open[addr]
	d.mu.Unlock()
	if open {
		return probeConn{}, nil
	}
	return nil, errors.New("connection refused")
}

func testProber(open map[string]bool) (*tcpProber, *recordingDialer) {
	dialer := &recordingDialer{open: open}
	cfg := DefaultConfig()
	cfg.AgentPorts = []int{8765, 8790}
	cfg.ShellPort = 22
	return &tcpProber{
		config: cfg,
		dial:   dialer.dial,
		sleep:  func(time.Duration) {},
	}, dialer
}

func TestProbeFindsAgentPortInPriorityOrder(t *testing.T) {
	prober, dialer := testProber(map[string]bool{"10.0.0.5:8790": true})

	result, ok := prober.probe(context.Background(), Candidate{Host: "10.0.0.5", Source: domain.SourceLAN}, passBudget{hostTimeout: 50 * time.Millisecond, attempts: 1})
	require.True(t, ok)
	require.Equal(t, 8790, result.port)
	require.True(t, result.hasAgent)
	require.False(t, result.viaShell)
	// Shell first, then agent ports in order.
	require.Equal(t, []string{"10.0.0.5:22", "10.0.0.5:8765", "10.0.0.5:8790"}, dialer.addrs)
}

func TestProbeShellOnlyHost(t *testing.T) {
	prober, _ := testProber(map[string]bool{"10.0.0.6:22": true})

	result, ok := prober.probe(context.Background(), Candidate{Host: "10.0.0.6", Source: domain.SourceLAN}, passBudget{hostTimeout: 50 * time.Millisecond, attempts: 1})
	require.True(t, ok)
	require.True(t, result.viaShell)
	require.False(t, result.hasAgent)
	require.Zero(t, result.port)
}

func TestProbeUnreachableHost(t *testing.T) {
	prober, _ := testProber(nil)

	_, ok := prober.probe(context.Background(), Candidate{Host: "10.0.0.7", Source: domain.SourceLAN}, passBudget{hostTimeout: 50 * time.Millisecond, attempts: 1})
	require.False(t, ok)
}

func TestProbeBonjourGetsExtraAgentAttempts(t *testing.T) {
	prober, dialer := testProber(nil)
	budget := passBudget{hostTimeout: 10 * time.Millisecond, attempts: 1}

	_, ok := prober.probe(context.Background(), Candidate{Host: "10.0.0.8", Source: domain.SourceBonjour}, budget)
	require.False(t, ok)

	perAgentPort := 1 + domain.DiscoveryBonjourExtraAttempts
	require.Len(t, dialer.addrs, 1+2*perAgentPort)
}

func TestProbeRespectsCancelledContext(t *testing.T) {
	prober, dialer := testProber(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := prober.probe(ctx, Candidate{Host: "10.0.0.9", Source: domain.SourceLAN}, passBudget{hostTimeout: 50 * time.Millisecond, attempts: 3})
	require.False(t, ok)
	require.Empty(t, dialer.addrs)
}

package discovery

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deckd/internal/domain"
)

type sweepDialer struct {
	mu   sync.Mutex
	open map[string]bool
}

func (d *sweepDialer) dial(addr string, _ time.Duration) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open[addr] {
		client, server := net.Pipe()
		_ = server.Close()
		return client, nil
	}
	return nil, errors.New("connection refused")
}

func testSubnetStrategy(open map[string]bool) *subnetStrategy {
	cfg := DefaultConfig()
	cfg.ShellPort = 22
	cfg.AgentPorts = []int{8765}
	cfg.SweepWorkers = 8
	return &subnetStrategy{
		config: cfg,
		dial:   (&sweepDialer{open: open}).dial,
		subnet: func() (net.IP, error) {
			return net.IPv4(192, 168, 1, 2).To4(), nil
		},
	}
}

func TestSubnetSweepEmitsHostsWithOpenPorts(t *testing.T) {
	strategy := testSubnetStrategy(map[string]bool{
		"192.168.1.10:22":   true,
		"192.168.1.40:8765": true,
	})

	var mu sync.Mutex
	var hosts []string
	err := strategy.discover(context.Background(), passBudget{hostTimeout: 10 * time.Millisecond}, func(c Candidate) {
		require.Equal(t, domain.SourceLAN, c.Source)
		mu.Lock()
		hosts = append(hosts, c.Host)
		mu.Unlock()
	})
	require.NoError(t, err)

	sort.Strings(hosts)
	require.Equal(t, []string{"192.168.1.10", "192.168.1.40"}, hosts)
}

func TestSubnetSweepSkipsOwnAddress(t *testing.T) {
	strategy := testSubnetStrategy(map[string]bool{
		"192.168.1.2:22": true,
	})

	err := strategy.discover(context.Background(), passBudget{hostTimeout: 10 * time.Millisecond}, func(c Candidate) {
		t.Fatalf("unexpected candidate %s", c.Host)
	})
	require.NoError(t, err)
}

func TestSubnetSweepFailsWithoutPrivateInterface(t *testing.T) {
	strategy := testSubnetStrategy(nil)
	strategy.subnet = func() (net.IP, error) {
		return nil, errors.New("no private IPv4 interface")
	}

	err := strategy.discover(context.Background(), passBudget{hostTimeout: time.Millisecond}, func(Candidate) {})
	require.Error(t, err)
}

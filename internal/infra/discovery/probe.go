package discovery

import (
	"context"
	"net"
	"time"

	"deckd/internal/domain"
	"deckd/internal/infra/transport"
)

// tcpProber verifies candidate reachability by dialing the shell port
// and then the agent ports in priority order.
type tcpProber struct {
	config Config
	dial   func(addr string, timeout time.Duration) (net.Conn, error)
	sleep  func(time.Duration)
}

func (p *tcpProber) probe(ctx context.Context, candidate Candidate, budget passBudget) (probeResult, bool) {
	viaShell := p.open(ctx, candidate.Host, p.config.ShellPort, budget.hostTimeout, budget.attempts)

	agentAttempts := budget.attempts
	if candidate.Source == domain.SourceBonjour {
		agentAttempts += domain.DiscoveryBonjourExtraAttempts
	}
	for _, port := range p.config.AgentPorts {
		if p.open(ctx, candidate.Host, port, budget.hostTimeout, agentAttempts) {
			return probeResult{port: port, hasAgent: true, viaShell: viaShell}, true
		}
	}
	if viaShell {
		return probeResult{viaShell: true}, true
	}
	return probeResult{}, false
}

func (p *tcpProber) open(ctx context.Context, host string, port int, timeout time.Duration, attempts int) bool {
	addr := transport.HostPort(host, port)
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return false
		}
		conn, err := p.dialAddr(addr, timeout)
		if err == nil {
			_ = conn.Close()
			return true
		}
		if attempt+1 < attempts {
			p.pause(domain.DiscoveryProbeRetrySleep)
		}
	}
	return false
}

func (p *tcpProber) dialAddr(addr string, timeout time.Duration) (net.Conn, error) {
	if p.dial != nil {
		return p.dial(addr, timeout)
	}
	return net.DialTimeout("tcp", addr, timeout)
}

func (p *tcpProber) pause(d time.Duration) {
	if p.sleep != nil {
		p.sleep(d)
		return
	}
	time.Sleep(d)
}

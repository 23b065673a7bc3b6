package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"deckd/internal/domain"
	"deckd/internal/infra/transport"
)

// subnetStrategy sweeps the device's /24 for hosts answering on the
// shell or agent ports. A sweep hit is a weak signal; the engine's
// probe still confirms it under the full budget.
type subnetStrategy struct {
	config Config
	logger *zap.Logger
	dial   func(addr string, timeout time.Duration) (net.Conn, error)
	subnet func() (net.IP, error)
}

func (s *subnetStrategy) name() string { return "subnet" }

func (s *subnetStrategy) discover(ctx context.Context, budget passBudget, emit func(Candidate)) error {
	base, err := s.localSubnet()
	if err != nil {
		return fmt.Errorf("determine local subnet: %w", err)
	}
	self := base.String()

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.config.SweepWorkers)
	for octet := 1; octet <= 254; octet++ {
		host := fmt.Sprintf("%d.%d.%d.%d", base[0], base[1], base[2], octet)
		if host == self {
			continue
		}
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return nil
			}
			if s.anyPortOpen(host, budget.hostTimeout) {
				emit(Candidate{Host: host, Source: domain.SourceLAN})
			}
			return nil
		})
	}
	return group.Wait()
}

func (s *subnetStrategy) anyPortOpen(host string, timeout time.Duration) bool {
	ports := append([]int{s.config.ShellPort}, s.config.AgentPorts...)
	for _, port := range ports {
		conn, err := s.dialAddr(transport.HostPort(host, port), timeout)
		if err == nil {
			_ = conn.Close()
			return true
		}
	}
	return false
}

func (s *subnetStrategy) dialAddr(addr string, timeout time.Duration) (net.Conn, error) {
	if s.dial != nil {
		return s.dial(addr, timeout)
	}
	return net.DialTimeout("tcp", addr, timeout)
}

// localSubnet returns the device's primary private IPv4 address; the
// sweep enumerates its /24.
func (s *subnetStrategy) localSubnet() (net.IP, error) {
	if s.subnet != nil {
		return s.subnet()
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil || ip.IsLoopback() || !ip.IsPrivate() {
			continue
		}
		return ip, nil
	}
	return nil, fmt.Errorf("no private IPv4 interface")
}

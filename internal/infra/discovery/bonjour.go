package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"deckd/internal/domain"
)

// bonjourStrategy browses mDNS service advertisements. Only the agent
// service type carries a trustworthy port hint; the workstation type
// merely proves a host exists.
type bonjourStrategy struct {
	serviceTypes []string
	logger       *zap.Logger
}

func (s *bonjourStrategy) name() string { return "bonjour" }

func (s *bonjourStrategy) discover(ctx context.Context, budget passBudget, emit func(Candidate)) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, serviceType := range s.serviceTypes {
		group.Go(func() error {
			return s.browse(groupCtx, serviceType, emit)
		})
	}
	return group.Wait()
}

func (s *bonjourStrategy) browse(ctx context.Context, serviceType string, emit func(Candidate)) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("create mdns resolver: %w", err)
	}
	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := resolver.Browse(ctx, serviceType, domain.ServiceDomain, entries); err != nil {
		return fmt.Errorf("browse %s: %w", serviceType, err)
	}
	for entry := range entries {
		if entry == nil {
			continue
		}
		name := entry.Instance
		if name == "" {
			name = strings.TrimSuffix(entry.HostName, ".")
		}
		hint := 0
		if serviceType == domain.ServiceTypeAgent {
			hint = entry.Port
		}
		for _, ip := range entry.AddrIPv4 {
			emit(Candidate{Host: ip.String(), Name: name, Source: domain.SourceBonjour, PortHint: hint})
		}
		for _, ip := range entry.AddrIPv6 {
			emit(Candidate{Host: ip.String(), Name: name, Source: domain.SourceBonjour, PortHint: hint})
		}
	}
	return nil
}

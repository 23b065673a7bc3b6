package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"go.uber.org/zap"

	"deckd/internal/domain"
)

// overlayStrategy queries the overlay-network daemon's well-known
// self-address for its peer table. Daemons differ on field naming, so
// the decode accepts several shapes.
type overlayStrategy struct {
	url    string
	logger *zap.Logger
	client *http.Client
}

func (s *overlayStrategy) name() string { return "overlay" }

type overlayPeer struct {
	Name      string   `json:"HostName"`
	DNSName   string   `json:"DNSName"`
	IP        string   `json:"IP"`
	Addresses []string `json:"TailscaleIPs"`
	Addrs     []string `json:"Addrs"`
	Online    *bool    `json:"Online"`
}

type overlayStatus struct {
	Peers   []overlayPeer          `json:"Peers"`
	PeerMap map[string]overlayPeer `json:"Peer"`
}

func (s *overlayStrategy) discover(ctx context.Context, budget passBudget, emit func(Candidate)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("build overlay request: %w", err)
	}
	client := s.client
	if client == nil {
		client = &http.Client{Timeout: budget.passTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("query overlay daemon: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("overlay daemon returned %s", resp.Status)
	}

	var status overlayStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decode overlay status: %w", err)
	}
	for _, peer := range status.Peers {
		s.emitPeer(peer, emit)
	}
	for _, peer := range status.PeerMap {
		s.emitPeer(peer, emit)
	}
	return nil
}

func (s *overlayStrategy) emitPeer(peer overlayPeer, emit func(Candidate)) {
	if peer.Online != nil && !*peer.Online {
		return
	}
	name := peer.Name
	if name == "" {
		name = peer.DNSName
	}
	for _, addr := range peerAddresses(peer) {
		if net.ParseIP(addr) == nil {
			continue
		}
		emit(Candidate{Host: addr, Name: name, Source: domain.SourceOverlay})
	}
}

func peerAddresses(peer overlayPeer) []string {
	var addrs []string
	if peer.IP != "" {
		addrs = append(addrs, peer.IP)
	}
	addrs = append(addrs, peer.Addresses...)
	addrs = append(addrs, peer.Addrs...)
	return addrs
}

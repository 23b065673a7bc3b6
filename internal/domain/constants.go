package domain

import "time"

// Well-known discovery endpoints and ports.
const (
	// OverlayPeerStatusURL is the fixed self-address the overlay network
	// daemon answers peer-status queries on.
	OverlayPeerStatusURL = "http://100.100.100.100/api/data"

	// NeighborTablePath is the kernel neighbor table on Linux.
	NeighborTablePath = "/proc/net/arp"

	DefaultShellPort = 22

	ServiceTypeAgent       = "_agentd._tcp"
	ServiceTypeWorkstation = "_workstation._tcp"
	ServiceDomain          = "local."
)

// AgentPorts are the candidate agent-server ports, in probe priority
// order. The first is also the default local runtime port.
var AgentPorts = []int{8765, 8790}

const DefaultLocalPort = 8765

// Sandbox tiers requested when starting or resuming a thread.
const (
	SandboxRestricted = "workspace-write"
	SandboxPermissive = "danger-full-access"
)

// Protocol and timing defaults.
const (
	ProtocolVersion = "1"

	DefaultRequestTimeoutSeconds   = 30
	DefaultHandshakeTimeoutSeconds = 10

	DefaultRuntimeStartTimeout = 20 * time.Second
	DefaultRuntimePollInterval = 250 * time.Millisecond

	// MinRuntimeVersion is the oldest local agent binary the launcher
	// will start.
	MinRuntimeVersion = "v0.4.0"
)

// Discovery pass budgets. Pass 1 favors latency, pass 2 recall.
const (
	DiscoveryPassCount = 2

	DiscoveryPass1Timeout     = 2 * time.Second
	DiscoveryPass2Timeout     = 6 * time.Second
	DiscoveryPass1HostTimeout = 250 * time.Millisecond
	DiscoveryPass2HostTimeout = 750 * time.Millisecond
	DiscoveryPass1Attempts    = 1
	DiscoveryPass2Attempts    = 2

	DiscoveryStrategyWorkers = 4
	DiscoverySweepWorkers    = 32
	DiscoveryProbeWorkers    = 8

	// Extra probe attempts granted to advertisement-sourced candidates:
	// the advertisement is weaker evidence than an open socket.
	DiscoveryBonjourExtraAttempts = 2

	DiscoveryProbeRetrySleep = 100 * time.Millisecond
)

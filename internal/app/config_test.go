package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deckd/internal/domain"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, domain.DefaultLocalPort, cfg.LocalPort)
	require.Equal(t, domain.MinRuntimeVersion, cfg.MinRuntimeVersion)
	require.Equal(t, domain.DefaultRequestTimeoutSeconds, cfg.RequestTimeoutSec)
	require.Equal(t, domain.AgentPorts, cfg.Discovery.AgentPorts)
	require.Equal(t, domain.DefaultShellPort, cfg.Discovery.ShellPort)
	require.NotEmpty(t, cfg.StorePath)
}

func TestLoadConfigMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, domain.DefaultLocalPort, cfg.LocalPort)
}

func TestLoadConfigFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deckd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
localPort: 9999
discovery:
  pass1TimeoutMs: 1500
  agentPorts: [7000, 7001]
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.LocalPort)
	require.Equal(t, 1500, cfg.Discovery.Pass1TimeoutMs)
	require.Equal(t, []int{7000, 7001}, cfg.Discovery.AgentPorts)
	// Untouched knobs keep their defaults.
	require.Equal(t, domain.MinRuntimeVersion, cfg.MinRuntimeVersion)
}

func TestLoadConfigRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deckd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("localPort: [not a port"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestEngineConfigOverrides(t *testing.T) {
	d := DiscoveryConfig{
		Pass1TimeoutMs: 1000,
		Pass2TimeoutMs: 9000,
		SweepWorkers:   8,
		AgentPorts:     []int{7000},
		OverlayURL:     "http://127.0.0.1:4100/peers",
	}
	cfg := d.EngineConfig(9999)

	require.Equal(t, time.Second, cfg.PassTimeouts[0])
	require.Equal(t, 9*time.Second, cfg.PassTimeouts[1])
	require.Equal(t, 8, cfg.SweepWorkers)
	require.Equal(t, []int{7000}, cfg.AgentPorts)
	require.Equal(t, "http://127.0.0.1:4100/peers", cfg.OverlayURL)
	require.Equal(t, 9999, cfg.LocalPort)
	// Zero values leave engine defaults intact.
	require.Equal(t, domain.DiscoveryProbeWorkers, cfg.ProbeWorkers)
	require.Equal(t, domain.DefaultShellPort, cfg.ShellPort)
}

package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"deckd/internal/domain"
	"deckd/internal/infra/discovery"
)

const defaultReloadDebounce = 300 * time.Millisecond

// Config is the application configuration. All fields have defaults;
// the config file is optional.
type Config struct {
	StorePath         string          `mapstructure:"storePath"`
	AgentBinary       string          `mapstructure:"agentBinary"`
	LocalPort         int             `mapstructure:"localPort"`
	MinRuntimeVersion string          `mapstructure:"minRuntimeVersion"`
	RequestTimeoutSec int             `mapstructure:"requestTimeoutSeconds"`
	Discovery         DiscoveryConfig `mapstructure:"discovery"`
}

// DiscoveryConfig carries the runtime-tunable discovery knobs.
type DiscoveryConfig struct {
	Pass1TimeoutMs int      `mapstructure:"pass1TimeoutMs"`
	Pass2TimeoutMs int      `mapstructure:"pass2TimeoutMs"`
	SweepWorkers   int      `mapstructure:"sweepWorkers"`
	ProbeWorkers   int      `mapstructure:"probeWorkers"`
	AgentPorts     []int    `mapstructure:"agentPorts"`
	ShellPort      int      `mapstructure:"shellPort"`
	OverlayURL     string   `mapstructure:"overlayUrl"`
	NeighborPath   string   `mapstructure:"neighborPath"`
	ServiceTypes   []string `mapstructure:"serviceTypes"`
}

// EngineConfig maps the file-level discovery knobs onto the engine's
// config, leaving untouched knobs at their defaults.
func (d DiscoveryConfig) EngineConfig(localPort int) discovery.Config {
	cfg := discovery.DefaultConfig()
	if d.Pass1TimeoutMs > 0 && len(cfg.PassTimeouts) > 0 {
		cfg.PassTimeouts[0] = time.Duration(d.Pass1TimeoutMs) * time.Millisecond
	}
	if d.Pass2TimeoutMs > 0 && len(cfg.PassTimeouts) > 1 {
		cfg.PassTimeouts[1] = time.Duration(d.Pass2TimeoutMs) * time.Millisecond
	}
	if d.SweepWorkers > 0 {
		cfg.SweepWorkers = d.SweepWorkers
	}
	if d.ProbeWorkers > 0 {
		cfg.ProbeWorkers = d.ProbeWorkers
	}
	if len(d.AgentPorts) > 0 {
		cfg.AgentPorts = append([]int(nil), d.AgentPorts...)
	}
	if d.ShellPort > 0 {
		cfg.ShellPort = d.ShellPort
	}
	if d.OverlayURL != "" {
		cfg.OverlayURL = d.OverlayURL
	}
	if d.NeighborPath != "" {
		cfg.NeighborPath = d.NeighborPath
	}
	if len(d.ServiceTypes) > 0 {
		cfg.ServiceTypes = append([]string(nil), d.ServiceTypes...)
	}
	if localPort > 0 {
		cfg.LocalPort = localPort
	}
	return cfg
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setConfigDefaults(v)
	return v
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("storePath", defaultStorePath())
	v.SetDefault("agentBinary", "")
	v.SetDefault("localPort", domain.DefaultLocalPort)
	v.SetDefault("minRuntimeVersion", domain.MinRuntimeVersion)
	v.SetDefault("requestTimeoutSeconds", domain.DefaultRequestTimeoutSeconds)
	v.SetDefault("discovery.pass1TimeoutMs", int(domain.DiscoveryPass1Timeout/time.Millisecond))
	v.SetDefault("discovery.pass2TimeoutMs", int(domain.DiscoveryPass2Timeout/time.Millisecond))
	v.SetDefault("discovery.sweepWorkers", domain.DiscoverySweepWorkers)
	v.SetDefault("discovery.probeWorkers", domain.DiscoveryProbeWorkers)
	v.SetDefault("discovery.agentPorts", domain.AgentPorts)
	v.SetDefault("discovery.shellPort", domain.DefaultShellPort)
	v.SetDefault("discovery.overlayUrl", domain.OverlayPeerStatusURL)
	v.SetDefault("discovery.neighborPath", domain.NeighborTablePath)
	v.SetDefault("discovery.serviceTypes", []string{domain.ServiceTypeAgent, domain.ServiceTypeWorkstation})
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "deckd/servers.db"
	}
	return filepath.Join(home, ".deckd", "servers.db")
}

// LoadConfig reads the config file at path; an empty path or missing
// file yields pure defaults.
func LoadConfig(path string) (Config, error) {
	v := newConfigViper()
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// WatchConfig reloads the config file on change, debounced, and calls
// onReload with each successfully parsed result until ctx ends.
func WatchConfig(ctx context.Context, path string, logger *zap.Logger, onReload func(Config)) {
	if strings.TrimSpace(path) == "" || onReload == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("config watcher failed", zap.Error(err))
		return
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file keep working.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Warn("config watcher add failed", zap.String("path", path), zap.Error(err))
		return
	}

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-watcher.Errors:
			if err != nil {
				logger.Warn("config watcher error", zap.Error(err))
			}
		case event := <-watcher.Events:
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(defaultReloadDebounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(defaultReloadDebounce)
		case <-timerChan(timer):
			timer = nil
			cfg, err := LoadConfig(path)
			if err != nil {
				logger.Warn("config reload failed", zap.Error(err))
				continue
			}
			onReload(cfg)
		}
	}
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}

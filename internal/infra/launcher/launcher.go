package launcher

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"deckd/internal/domain"
	"deckd/internal/infra/transport"
)

// Status is the launcher's whole observable state. It is returned by
// value; there are no process-wide flags.
type Status struct {
	Running   bool
	Ready     bool
	Port      int
	PID       int
	LastError string
}

type CommandRunner func(ctx context.Context, name string, args ...string) (string, error)

type DialFunc func(addr string, timeout time.Duration) (net.Conn, error)

type Options struct {
	BinaryPath   string
	Port         int
	Args         []string
	MinVersion   string
	StartTimeout time.Duration
	PollInterval time.Duration
	Logger       *zap.Logger
	Runner       CommandRunner
	Dial         DialFunc
}

// Launcher starts and supervises the local agent process.
type Launcher struct {
	binaryPath   string
	port         int
	args         []string
	minVersion   string
	startTimeout time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
	runner       CommandRunner
	dial         DialFunc

	mu     sync.Mutex
	cmd    *exec.Cmd
	status Status
}

func New(opts Options) *Launcher {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	port := opts.Port
	if port <= 0 {
		port = domain.DefaultLocalPort
	}
	startTimeout := opts.StartTimeout
	if startTimeout <= 0 {
		startTimeout = domain.DefaultRuntimeStartTimeout
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = domain.DefaultRuntimePollInterval
	}
	minVersion := opts.MinVersion
	if minVersion == "" {
		minVersion = domain.MinRuntimeVersion
	}
	runner := opts.Runner
	if runner == nil {
		runner = execCommand
	}
	dial := opts.Dial
	if dial == nil {
		dial = func(addr string, timeout time.Duration) (net.Conn, error) {
			return net.DialTimeout("tcp", addr, timeout)
		}
	}
	return &Launcher{
		binaryPath:   strings.TrimSpace(opts.BinaryPath),
		port:         port,
		args:         opts.Args,
		minVersion:   minVersion,
		startTimeout: startTimeout,
		pollInterval: pollInterval,
		logger:       logger.Named("launcher"),
		runner:       runner,
		dial:         dial,
		status:       Status{Port: port},
	}
}

// Start spawns the agent process and waits for its port to accept
// connections. Idempotent while the runtime is ready.
func (l *Launcher) Start(ctx context.Context) (Status, error) {
	l.mu.Lock()
	if l.status.Running && l.status.Ready {
		status := l.status
		l.mu.Unlock()
		return status, nil
	}
	l.mu.Unlock()

	// A server may already be listening (started outside the launcher).
	if l.portOpen() {
		return l.setReady(0), nil
	}

	if l.binaryPath == "" {
		return l.setFailed(fmt.Errorf("no agent binary configured: %w", domain.ErrRuntimeUnavailable))
	}

	if err := l.checkVersion(ctx); err != nil {
		return l.setFailed(err)
	}

	args := append([]string{"--port", strconv.Itoa(l.port)}, l.args...)
	cmd := exec.Command(l.binaryPath, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return l.setFailed(fmt.Errorf("start agent process: %w", err))
	}

	l.mu.Lock()
	l.cmd = cmd
	l.status = Status{Running: true, Port: l.port, PID: cmd.Process.Pid}
	l.mu.Unlock()
	l.logger.Info("agent process started", zap.Int("pid", cmd.Process.Pid), zap.Int("port", l.port))

	deadline := time.Now().Add(l.startTimeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			_ = l.Stop(context.Background())
			return l.setFailed(ctx.Err())
		}
		if l.portOpen() {
			return l.setReady(cmd.Process.Pid), nil
		}
		time.Sleep(l.pollInterval)
	}
	_ = l.Stop(context.Background())
	return l.setFailed(fmt.Errorf("agent did not become ready within %s: %w", l.startTimeout, domain.ErrRuntimeUnavailable))
}

// Stop terminates the agent process if the launcher owns one.
func (l *Launcher) Stop(ctx context.Context) error {
	l.mu.Lock()
	cmd := l.cmd
	l.cmd = nil
	l.status = Status{Port: l.port}
	l.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = cmd.Process.Kill()
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
		return nil
	case <-time.After(3 * time.Second):
		_ = cmd.Process.Kill()
		<-done
		return nil
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		return ctx.Err()
	}
}

// Status reports the launcher's current state.
func (l *Launcher) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Port returns the configured listen port.
func (l *Launcher) Port() int {
	return l.port
}

func (l *Launcher) checkVersion(ctx context.Context) error {
	output, err := l.runner(ctx, l.binaryPath, "--version")
	if err != nil {
		return fmt.Errorf("read agent version: %w", err)
	}
	version := parseVersion(output)
	if version == "" {
		return fmt.Errorf("unrecognized agent version output %q", strings.TrimSpace(output))
	}
	if semver.Compare(version, l.minVersion) < 0 {
		return fmt.Errorf("agent version %s is older than required %s: %w", version, l.minVersion, domain.ErrRuntimeUnavailable)
	}
	return nil
}

func (l *Launcher) portOpen() bool {
	conn, err := l.dial(transport.HostPort("127.0.0.1", l.port), 500*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func (l *Launcher) setReady(pid int) Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = Status{Running: true, Ready: true, Port: l.port, PID: pid}
	return l.status
}

func (l *Launcher) setFailed(err error) (Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = Status{Port: l.port, LastError: err.Error()}
	return l.status, err
}

// parseVersion extracts the first semver-looking token from version
// output such as "agentd 0.5.1 (abc123)".
func parseVersion(output string) string {
	for _, field := range strings.Fields(output) {
		candidate := field
		if !strings.HasPrefix(candidate, "v") {
			candidate = "v" + candidate
		}
		if semver.IsValid(candidate) {
			return candidate
		}
	}
	return ""
}

func execCommand(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}

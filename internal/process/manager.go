package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a managed process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// ErrNotRunning is returned by HealthCheck when the process is down.
var ErrNotRunning = errors.New("process: not running")

// maxLogLine bounds a single captured output line.
const maxLogLine = 64 * 1024

// Config describes the supervised command and its restart policy.
type Config struct {
	Name   string
	Binary string
	Args   []string
	// Env is appended to the parent environment.
	Env []string

	RestartOnFailure bool
	// RestartDelay is the first backoff step; each further attempt doubles
	// it up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration
	// StableThreshold is how long a run must last before the attempt
	// counter resets.
	StableThreshold time.Duration
	// MaxRestartAttempts caps consecutive attempts. 0 means unlimited.
	MaxRestartAttempts int
	// GracefulTimeout is the wait between SIGTERM and SIGKILL.
	GracefulTimeout time.Duration

	OnStart func()
	// OnExit receives nil for a requested stop.
	OnExit func(err error)
}

func (c Config) withDefaults() Config {
	if c.RestartDelay <= 0 {
		c.RestartDelay = 5 * time.Second
	}
	if c.MaxRestartDelay <= 0 {
		c.MaxRestartDelay = 5 * time.Minute
	}
	if c.StableThreshold <= 0 {
		c.StableThreshold = 2 * time.Minute
	}
	if c.GracefulTimeout <= 0 {
		c.GracefulTimeout = 10 * time.Second
	}
	return c
}

// Logger defines the logging interface for the process manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager supervises one subprocess: it starts it, logs its output and
// restarts it with exponential backoff until Stop is called.
type Manager struct {
	config  Config
	logger  Logger
	metrics *Metrics

	mu        sync.RWMutex
	cmd       *exec.Cmd
	status    Status
	attempts  int
	lastError error
	startedAt time.Time
	stopping  bool
	done      chan struct{}
}

// NewManager creates a stopped Manager.
func NewManager(cfg Config) *Manager {
	return &Manager{
		config: cfg.withDefaults(),
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// SetMetrics attaches supervisor metrics.
func (m *Manager) SetMetrics(metrics *Metrics) {
	m.metrics = metrics
}

func (m *Manager) setStatus(s Status, err error) {
	m.mu.Lock()
	m.status = s
	if err != nil {
		m.lastError = err
	}
	m.mu.Unlock()
	m.metrics.setUp(m.config.Name, s == StatusRunning)
}

// Start launches the process and supervises it in the background. Only the
// first launch error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting {
		m.mu.Unlock()
		return fmt.Errorf("process %s is already running", m.config.Name)
	}
	m.status = StatusStarting
	m.stopping = false
	m.attempts = 0
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	if err := m.launch(ctx); err != nil {
		m.setStatus(StatusFailed, err)
		close(done)
		return err
	}

	go m.supervise(ctx, done)
	return nil
}

// launch starts one run of the command in its own process group.
func (m *Manager) launch(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if m.config.Env != nil {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.startedAt = time.Now()
	m.mu.Unlock()
	m.setStatus(StatusRunning, nil)

	go m.pipeLines("stdout", stdout)
	go m.pipeLines("stderr", stderr)

	m.logger.Info("process started", "name", m.config.Name, "pid", cmd.Process.Pid, "args", m.config.Args)
	if m.config.OnStart != nil {
		m.config.OnStart()
	}
	return nil
}

func (m *Manager) pipeLines(stream string, r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 4096), maxLogLine)
	for sc.Scan() {
		m.logger.Debug("process output", "name", m.config.Name, "stream", stream, "line", sc.Text())
	}
}

// calculateBackoffDelay returns RestartDelay * 2^(attempt-1), capped at
// MaxRestartDelay.
func (m *Manager) calculateBackoffDelay(attempt int) time.Duration {
	delay := m.config.RestartDelay
	for i := 1; i < attempt && delay < m.config.MaxRestartDelay; i++ {
		delay *= 2
	}
	return min(delay, m.config.MaxRestartDelay)
}

// supervise waits on each run and relaunches it until stopped, out of
// attempts, or ctx is done.
func (m *Manager) supervise(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		m.mu.RLock()
		cmd, startedAt := m.cmd, m.startedAt
		m.mu.RUnlock()

		err := cmd.Wait()

		if m.isStopping() {
			m.setStatus(StatusStopped, nil)
			m.logger.Info("process stopped", "name", m.config.Name)
			m.notifyExit(nil)
			return
		}

		m.setStatus(StatusFailed, exitError(err))
		m.metrics.unexpectedExit(m.config.Name)
		m.logger.Warn("process exited unexpectedly", "name", m.config.Name, "error", err, "ran_for", time.Since(startedAt))
		m.notifyExit(exitError(err))

		if !m.config.RestartOnFailure {
			return
		}
		if time.Since(startedAt) >= m.config.StableThreshold {
			m.mu.Lock()
			m.attempts = 0
			m.mu.Unlock()
		}
		if !m.relaunch(ctx) {
			return
		}
	}
}

// relaunch retries launch with backoff. It reports false when supervision
// should end.
func (m *Manager) relaunch(ctx context.Context) bool {
	for {
		m.mu.Lock()
		m.attempts++
		attempt := m.attempts
		m.mu.Unlock()

		if limit := m.config.MaxRestartAttempts; limit > 0 && attempt > limit {
			m.logger.Error("giving up on process", "name", m.config.Name, "attempts", limit)
			return false
		}

		delay := m.calculateBackoffDelay(attempt)
		m.logger.Info("restarting process", "name", m.config.Name, "attempt", attempt, "delay", delay)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		if m.isStopping() {
			m.setStatus(StatusStopped, nil)
			return false
		}

		m.metrics.restart(m.config.Name)
		err := m.launch(ctx)
		if err == nil {
			return true
		}
		m.setStatus(StatusFailed, err)
		m.logger.Error("failed to restart process", "name", m.config.Name, "error", err)
	}
}

// exitError never returns nil for an unexpected exit.
func exitError(err error) error {
	if err == nil {
		return errors.New("exited with status 0")
	}
	return err
}

func (m *Manager) notifyExit(err error) {
	if m.config.OnExit != nil {
		m.config.OnExit(err)
	}
}

func (m *Manager) isStopping() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stopping
}

// Stop signals the process group with SIGTERM, escalates to SIGKILL after
// GracefulTimeout and waits for supervision to end.
func (m *Manager) Stop() error {
	m.mu.Lock()
	m.stopping = true
	cmd, done, running := m.cmd, m.done, m.status == StatusRunning
	m.mu.Unlock()

	if done == nil {
		return nil
	}
	if !running || cmd == nil || cmd.Process == nil {
		<-done
		return nil
	}

	pid := cmd.Process.Pid
	m.logger.Info("stopping process", "name", m.config.Name, "pid", pid)
	if err := signalGroup(pid, syscall.SIGTERM); err != nil {
		m.logger.Warn("failed to send SIGTERM", "name", m.config.Name, "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(m.config.GracefulTimeout):
	}

	m.logger.Warn("graceful shutdown timed out, sending SIGKILL", "name", m.config.Name, "timeout", m.config.GracefulTimeout)
	if err := signalGroup(pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("killing %s: %w", m.config.Name, err)
	}
	<-done
	return nil
}

// signalGroup signals every process in pid's group. An already gone group
// is not an error.
func signalGroup(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

// Status returns the current status of the managed process.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning returns true if the process is currently running.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// HealthCheck reports ErrNotRunning unless the process is up.
func (m *Manager) HealthCheck(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch {
	case m.status == StatusRunning:
		return nil
	case m.lastError != nil:
		return fmt.Errorf("%w (%s): %v", ErrNotRunning, m.status, m.lastError)
	default:
		return fmt.Errorf("%w (%s)", ErrNotRunning, m.status)
	}
}

// LastError returns the error of the last failed run or launch.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// RestartCount returns consecutive restart attempts since the last stable run.
func (m *Manager) RestartCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempts
}

// PID returns the process ID, or 0 if not running.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != StatusRunning || m.cmd == nil || m.cmd.Process == nil {
		return 0
	}
	return m.cmd.Process.Pid
}

// Stats is a point-in-time view of the managed process.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the process.
func (m *Manager) Stats() Stats {
	pid := m.PID()

	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{Name: m.config.Name, Status: m.status, PID: pid, RestartCount: m.attempts}
	if m.status == StatusRunning {
		st.Uptime = time.Since(m.startedAt)
	}
	if m.lastError != nil {
		st.LastError = m.lastError.Error()
	}
	return st
}

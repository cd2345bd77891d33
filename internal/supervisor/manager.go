package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/agrostack/cosecha/internal/config"
)

// stopGrace is how long a worker gets to exit after SIGTERM before it is
// killed.
const stopGrace = 5 * time.Second

// WorkerState is one supervised process's lifecycle phase.
type WorkerState string

const (
	StateStopped WorkerState = "stopped"
	StateRunning WorkerState = "running"
	StateCrashed WorkerState = "crashed"
)

// WorkerStatus is a point-in-time view of one worker.
type WorkerStatus struct {
	Name     string
	State    WorkerState
	PID      int
	Enabled  bool
	Restarts int
	Health   string
}

// HealthProber asks a worker's admin endpoint for its serving status.
type HealthProber interface {
	Probe(ctx context.Context, address string) (string, error)
}

type exitResult struct {
	err error
	at  time.Time
}

type worker struct {
	cfg      config.WorkerConfig
	cmd      *exec.Cmd
	exited   chan exitResult
	exitedAt time.Time
	crashed  bool
	restarts int
	backoff  time.Duration
}

// state reports the worker's phase, consuming a pending exit notification
// first. A detected exit stays visible as crashed until the worker is
// restarted or explicitly stopped.
func (w *worker) state() WorkerState {
	if w.cmd != nil {
		select {
		case res := <-w.exited:
			w.cmd = nil
			w.crashed = true
			w.exitedAt = res.at
		default:
			return StateRunning
		}
	}
	if w.crashed {
		return StateCrashed
	}
	return StateStopped
}

// Manager spawns and watches the worker fleet. Each worker gets its own
// admin listener addresses through the environment so one config file can
// drive the whole fleet.
type Manager struct {
	cfg    config.SupervisorConfig
	probe  HealthProber
	logger *slog.Logger

	mu      sync.Mutex
	workers map[string]*worker
	order   []string
}

// NewManager builds the fleet from config. The prober may be nil to skip
// health probing.
func NewManager(cfg config.SupervisorConfig, probe HealthProber, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = 30 * time.Second
	}
	if cfg.RestartBackoff <= 0 {
		cfg.RestartBackoff = time.Second
	}
	if cfg.BackoffMax < cfg.RestartBackoff {
		cfg.BackoffMax = cfg.RestartBackoff
	}

	m := &Manager{
		cfg:     cfg,
		probe:   probe,
		logger:  logger,
		workers: make(map[string]*worker, len(cfg.Workers)),
	}
	for _, wc := range cfg.Workers {
		m.workers[wc.Name] = &worker{cfg: wc, backoff: cfg.RestartBackoff}
		m.order = append(m.order, wc.Name)
	}
	return m
}

// StartAll launches every enabled worker with a short pause between starts
// and returns how many came up.
func (m *Manager) StartAll(ctx context.Context) int {
	started := 0
	for _, name := range m.order {
		m.mu.Lock()
		enabled := m.workers[name].cfg.Enabled
		m.mu.Unlock()
		if !enabled {
			m.logger.Info("worker disabled, skipping", slog.String("worker", name))
			continue
		}
		if err := m.Start(name); err != nil {
			m.logger.Error("worker start failed", slog.String("worker", name), slog.Any("error", err))
			continue
		}
		started++
		select {
		case <-ctx.Done():
			return started
		case <-time.After(m.cfg.StartDelay):
		}
	}
	m.logger.Info("fleet started", slog.Int("started", started), slog.Int("configured", len(m.order)))
	return started
}

// Start launches one worker. Disabled and already-running workers are left
// alone.
func (m *Manager) Start(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[name]
	if !ok {
		return fmt.Errorf("unknown worker %q", name)
	}
	if !w.cfg.Enabled {
		m.logger.Info("worker disabled, skipping", slog.String("worker", name))
		return fmt.Errorf("worker %q disabled", name)
	}
	if w.state() == StateRunning {
		m.logger.Warn("worker already running", slog.String("worker", name))
		return nil
	}
	return m.launchLocked(w)
}

func (m *Manager) launchLocked(w *worker) error {
	cmd := exec.Command(w.cfg.Bin, w.cfg.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(),
		"COSECHA_HEALTH_ADDRESS="+w.cfg.HealthAddress,
		"COSECHA_METRICS_ADDRESS="+w.cfg.MetricsAddress,
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", w.cfg.Bin, err)
	}

	exited := make(chan exitResult, 1)
	go func() {
		err := cmd.Wait()
		exited <- exitResult{err: err, at: time.Now()}
	}()

	w.cmd = cmd
	w.exited = exited
	w.crashed = false
	m.logger.Info("worker started",
		slog.String("worker", w.cfg.Name),
		slog.Int("pid", cmd.Process.Pid),
	)
	return nil
}

// Stop terminates one worker: SIGTERM first, SIGKILL when it does not exit
// within the grace period.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[name]
	if !ok {
		return fmt.Errorf("unknown worker %q", name)
	}
	if w.state() != StateRunning {
		w.crashed = false
		m.logger.Info("worker not running", slog.String("worker", name))
		return nil
	}

	pid := w.cmd.Process.Pid
	m.logger.Info("stopping worker", slog.String("worker", name), slog.Int("pid", pid))
	if err := w.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		m.logger.Warn("signal failed", slog.String("worker", name), slog.Any("error", err))
	}

	select {
	case <-w.exited:
		m.logger.Info("worker stopped", slog.String("worker", name))
	case <-time.After(stopGrace):
		m.logger.Warn("worker unresponsive, killing", slog.String("worker", name))
		_ = w.cmd.Process.Kill()
		<-w.exited
	}
	w.cmd = nil
	w.crashed = false
	return nil
}

// StopAll terminates every worker in config order.
func (m *Manager) StopAll() {
	for _, name := range m.order {
		if err := m.Stop(name); err != nil {
			m.logger.Error("worker stop failed", slog.String("worker", name), slog.Any("error", err))
		}
	}
	m.logger.Info("fleet stopped")
}

// Statuses reports every worker in config order. With a prober configured,
// each worker's admin endpoint is checked regardless of who spawned it, so a
// status query from a second process still sees the live fleet.
func (m *Manager) Statuses(ctx context.Context) []WorkerStatus {
	m.mu.Lock()
	statuses := make([]WorkerStatus, 0, len(m.order))
	for _, name := range m.order {
		w := m.workers[name]
		st := WorkerStatus{
			Name:     name,
			State:    w.state(),
			Enabled:  w.cfg.Enabled,
			Restarts: w.restarts,
		}
		if st.State == StateRunning {
			st.PID = w.cmd.Process.Pid
		}
		statuses = append(statuses, st)
	}
	m.mu.Unlock()

	if m.probe == nil {
		return statuses
	}
	for i := range statuses {
		addr := m.workers[statuses[i].Name].cfg.HealthAddress
		if addr == "" {
			continue
		}
		health, err := m.probe.Probe(ctx, addr)
		if err != nil {
			statuses[i].Health = "unreachable"
			continue
		}
		statuses[i].Health = health
	}
	return statuses
}

// Monitor watches the fleet until ctx is cancelled: crashed workers restart
// once their backoff has elapsed, and the combined status is logged every
// interval. The backoff doubles on each restart up to the configured cap and
// resets once a worker is seen running again.
func (m *Manager) Monitor(ctx context.Context) {
	m.logger.Info("monitoring fleet", slog.Duration("interval", m.cfg.MonitorInterval))
	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		m.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) sweep(ctx context.Context) {
	statuses := m.Statuses(ctx)

	m.mu.Lock()
	for _, st := range statuses {
		w := m.workers[st.Name]
		switch w.state() {
		case StateRunning:
			w.backoff = m.cfg.RestartBackoff
		case StateCrashed:
			if !w.cfg.Enabled {
				continue
			}
			if time.Since(w.exitedAt) < w.backoff {
				continue
			}
			m.logger.Warn("worker crashed, restarting",
				slog.String("worker", st.Name),
				slog.Duration("backoff", w.backoff),
			)
			if err := m.launchLocked(w); err != nil {
				m.logger.Error("restart failed", slog.String("worker", st.Name), slog.Any("error", err))
				w.exitedAt = time.Now()
			} else {
				w.restarts++
			}
			w.backoff *= 2
			if w.backoff > m.cfg.BackoffMax {
				w.backoff = m.cfg.BackoffMax
			}
		}
	}
	m.mu.Unlock()

	parts := make([]string, 0, len(statuses))
	for _, st := range statuses {
		part := fmt.Sprintf("%s: %s", st.Name, st.State)
		if st.Health != "" {
			part += fmt.Sprintf(" (%s)", st.Health)
		}
		parts = append(parts, part)
	}
	m.logger.Info("fleet status", slog.String("workers", strings.Join(parts, " | ")))
}

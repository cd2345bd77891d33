package supervisor

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/agrostack/cosecha/internal/config"
)

func requireTool(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	return path
}

func testManager(t *testing.T, workers ...config.WorkerConfig) *Manager {
	t.Helper()
	cfg := config.SupervisorConfig{
		MonitorInterval: 20 * time.Millisecond,
		StartDelay:      time.Millisecond,
		RestartBackoff:  time.Millisecond,
		BackoffMax:      50 * time.Millisecond,
		Workers:         workers,
	}
	m := NewManager(cfg, nil, nil)
	t.Cleanup(m.StopAll)
	return m
}

func waitForState(t *testing.T, m *Manager, name string, want WorkerState) WorkerStatus {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		for _, st := range m.Statuses(context.Background()) {
			if st.Name == name && st.State == want {
				return st
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("worker %s never reached state %s", name, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestManagerStartAndStop(t *testing.T) {
	sleepBin := requireTool(t, "sleep")
	m := testManager(t, config.WorkerConfig{
		Name:    "napper",
		Bin:     sleepBin,
		Args:    []string{"60"},
		Enabled: true,
	})

	if err := m.Start("napper"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	st := waitForState(t, m, "napper", StateRunning)
	if st.PID <= 0 {
		t.Fatalf("expected a real pid, got %d", st.PID)
	}

	if err := m.Stop("napper"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitForState(t, m, "napper", StateStopped)

	// Stopping an already-stopped worker is a no-op.
	if err := m.Stop("napper"); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestManagerDetectsCrash(t *testing.T) {
	trueBin := requireTool(t, "true")
	m := testManager(t, config.WorkerConfig{
		Name:    "flaky",
		Bin:     trueBin,
		Enabled: true,
	})

	if err := m.Start("flaky"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	st := waitForState(t, m, "flaky", StateCrashed)
	if st.Restarts != 0 {
		t.Fatalf("no restarts expected before monitoring, got %d", st.Restarts)
	}

	// An explicit stop clears the crashed marker.
	if err := m.Stop("flaky"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitForState(t, m, "flaky", StateStopped)
}

func TestMonitorRestartsCrashedWorker(t *testing.T) {
	trueBin := requireTool(t, "true")
	m := testManager(t, config.WorkerConfig{
		Name:    "flaky",
		Bin:     trueBin,
		Enabled: true,
	})

	if err := m.Start("flaky"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()
	m.Monitor(ctx)

	var restarts int
	for _, st := range m.Statuses(context.Background()) {
		if st.Name == "flaky" {
			restarts = st.Restarts
		}
	}
	if restarts < 1 {
		t.Fatalf("expected the monitor to restart the worker, restarts=%d", restarts)
	}
}

func TestMonitorLeavesDisabledWorkersDown(t *testing.T) {
	trueBin := requireTool(t, "true")
	m := testManager(t, config.WorkerConfig{
		Name:    "optional",
		Bin:     trueBin,
		Enabled: false,
	})

	ctx := context.Background()
	if started := m.StartAll(ctx); started != 0 {
		t.Fatalf("disabled worker should not start, got %d", started)
	}

	monCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	m.Monitor(monCtx)

	st := waitForState(t, m, "optional", StateStopped)
	if st.Restarts != 0 {
		t.Fatalf("disabled worker restarted %d times", st.Restarts)
	}
}

func TestStartAllCountsLaunches(t *testing.T) {
	sleepBin := requireTool(t, "sleep")
	m := testManager(t,
		config.WorkerConfig{Name: "one", Bin: sleepBin, Args: []string{"60"}, Enabled: true},
		config.WorkerConfig{Name: "two", Bin: sleepBin, Args: []string{"60"}, Enabled: true},
		config.WorkerConfig{Name: "off", Bin: sleepBin, Args: []string{"60"}, Enabled: false},
	)

	if started := m.StartAll(context.Background()); started != 2 {
		t.Fatalf("expected 2 workers started, got %d", started)
	}
	waitForState(t, m, "one", StateRunning)
	waitForState(t, m, "two", StateRunning)
	waitForState(t, m, "off", StateStopped)
}

func TestStartUnknownWorker(t *testing.T) {
	m := testManager(t)
	if err := m.Start("ghost"); err == nil {
		t.Fatal("expected an error for an unknown worker")
	}
}

func TestWorkerEnvCarriesAdminAddresses(t *testing.T) {
	sleepBin := requireTool(t, "sleep")
	m := testManager(t, config.WorkerConfig{
		Name:           "napper",
		Bin:            sleepBin,
		Args:           []string{"60"},
		Enabled:        true,
		HealthAddress:  ":50071",
		MetricsAddress: ":2171",
	})

	if err := m.Start("napper"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	m.mu.Lock()
	env := m.workers["napper"].cmd.Env
	m.mu.Unlock()

	var health, metrics bool
	for _, kv := range env {
		if strings.HasPrefix(kv, "COSECHA_HEALTH_ADDRESS=") {
			health = kv == "COSECHA_HEALTH_ADDRESS=:50071"
		}
		if strings.HasPrefix(kv, "COSECHA_METRICS_ADDRESS=") {
			metrics = kv == "COSECHA_METRICS_ADDRESS=:2171"
		}
	}
	if !health || !metrics {
		t.Fatalf("admin addresses missing from worker env (health=%v metrics=%v)", health, metrics)
	}
}

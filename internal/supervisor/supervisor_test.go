package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"fleet-core/internal/coord"
	"fleet-core/internal/events"
	"fleet-core/internal/worker"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	return New(Deps{
		Registry:    coord.NewRegistry(),
		Coordinator: coord.NewCoordinator(),
		Bus:         events.NewBus(),
	})
}

func TestCreateWorkersRejectsBadInput(t *testing.T) {
	s := newTestSupervisor(t)

	if _, err := s.CreateWorkers(0, worker.Config{}); err == nil {
		t.Fatalf("zero count must be rejected")
	}
	bad := worker.Config{Leverage: 0, Percent: 5, Strategy: worker.Strategy{Kind: worker.DynamicVolume}}
	if _, err := s.CreateWorkers(1, bad); err == nil {
		t.Fatalf("invalid config must be rejected")
	}
	if _, err := s.CreateWorkers(maxWorkers+1, worker.Config{
		Leverage: 10, Percent: 5, Strategy: worker.Strategy{Kind: worker.DynamicVolume},
	}); err == nil {
		t.Fatalf("worker cap must be enforced")
	}
}

func TestStopUnknownWorker(t *testing.T) {
	s := newTestSupervisor(t)
	if err := s.StopWorker("nope", "test"); err == nil {
		t.Fatalf("stopping an unknown worker must error")
	}
	if err := s.StopSymbol("BTCUSDC"); err == nil {
		t.Fatalf("stopping an untraded symbol must error")
	}
	if n := s.StopAllWorkers("test"); n != 0 {
		t.Fatalf("stop-all on empty fleet = %d, want 0", n)
	}
}

func TestLoadPresetsErrors(t *testing.T) {
	s := newTestSupervisor(t)

	if err := s.LoadPresets(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("missing preset file must error")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("fleets: [not a map"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.LoadPresets(bad); err == nil {
		t.Fatalf("malformed YAML must error")
	}

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	content := []byte("fleets:\n  - count: 1\n    config:\n      leverage: 0\n      percent: 5\n      strategy:\n        kind: dynamic_volume\n")
	if err := os.WriteFile(invalid, content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.LoadPresets(invalid); err == nil {
		t.Fatalf("preset with invalid config must error")
	}
}

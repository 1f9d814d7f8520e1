package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"courier_mesh/internal/domain"
	"courier_mesh/internal/policy"
	sqlitestore "courier_mesh/internal/store/sqlite"
)

func TestOperatorErrorsLeaveRegistryUnchanged(t *testing.T) {
	svc, store, shutdown := newHarness(t, Config{})
	defer shutdown()
	ctx := context.Background()

	if _, err := svc.CreateWorker(ctx, testWorker("w-1", 0, 0)); err != nil {
		t.Fatalf("create worker: %v", err)
	}

	if err := svc.ActivateWorker(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.DeactivateJob(ctx, "w-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a worker id used as job, got %v", err)
	}
	if err := svc.DestroyWorker(ctx, "w-1"); !errors.Is(err, ErrNotDeactivated) {
		t.Fatalf("expected ErrNotDeactivated, got %v", err)
	}
	if _, err := svc.CreateWorker(ctx, testWorker("w-1", 3, 3)); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	bad := testWorker("w-2", 0, 0)
	bad.WorkloadLimit = 0
	var verr *policy.ValidationError
	if _, err := svc.CreateWorker(ctx, bad); !errors.As(err, &verr) || verr.Field != "workload_limit" {
		t.Fatalf("expected workload_limit validation error, got %v", err)
	}

	entries, err := svc.Registry(ctx)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "w-1" || !entries[0].Active {
		t.Fatalf("unexpected registry after operator errors: %+v", entries)
	}
	mirrored, err := store.ListAgents(ctx, "")
	if err != nil {
		t.Fatalf("list agents: %v", err)
	}
	if len(mirrored) != 1 {
		t.Fatalf("expected one mirrored agent, got %d", len(mirrored))
	}
}

func TestActivateActiveWorkerIsNoop(t *testing.T) {
	svc, store, shutdown := newHarness(t, Config{})
	defer shutdown()
	ctx := context.Background()

	if _, err := svc.CreateWorker(ctx, testWorker("w-1", 0, 0)); err != nil {
		t.Fatalf("create worker: %v", err)
	}
	if err := svc.ActivateWorker(ctx, "w-1"); err != nil {
		t.Fatalf("activate active worker: %v", err)
	}
	if n := countObservations(t, store, sqlitestore.ObservationFilter{Kind: domain.ObservationWorkerActivated}); n != 0 {
		t.Fatalf("expected no activation record, got %d", n)
	}
	if n := countObservations(t, store, sqlitestore.ObservationFilter{Kind: domain.ObservationReplanSweep}); n != 2 {
		t.Fatalf("expected create and redundant activation sweeps, got %d", n)
	}
	entries, _ := svc.Registry(ctx)
	if len(entries) != 1 || !entries[0].Active || entries[0].Releasing {
		t.Fatalf("unexpected registry: %+v", entries)
	}
}

func TestActivateAssignedJobIsNoop(t *testing.T) {
	svc, store, shutdown := newHarness(t, Config{})
	defer shutdown()
	ctx := context.Background()

	mustCreateWorker(t, svc, testWorker("w-1", 0, 0))
	mustCreateJob(t, svc, testJob("j-1", 1, 0, 2, 0, 20))
	waitJobAssigned(t, svc, "j-1", "w-1")
	before := findJob(mustStatus(t, svc), "j-1")

	if err := svc.ActivateJob(ctx, "j-1"); err != nil {
		t.Fatalf("activate assigned job: %v", err)
	}
	after := findJob(mustStatus(t, svc), "j-1")
	if n := countObservations(t, store, sqlitestore.ObservationFilter{Kind: domain.ObservationJobActivated}); n != 0 {
		t.Fatalf("expected no activation record, got %d", n)
	}
	if after.State != domain.JobStateAssigned || after.Round != before.Round {
		t.Fatalf("expected job to stay assigned in round %d, got %s round %d", before.Round, after.State, after.Round)
	}
	if after.Assignment == nil || *after.Assignment != *before.Assignment {
		t.Fatalf("assignment changed: before %+v after %+v", before.Assignment, after.Assignment)
	}
	if n := countObservations(t, store, sqlitestore.ObservationFilter{Kind: domain.ObservationJobPlanned}); n != 1 {
		t.Fatalf("expected a single planned record, got %d", n)
	}
	w := findWorker(mustStatus(t, svc), "w-1")
	if len(w.Route) != 1 || w.Route[0].JobID != "j-1" {
		t.Fatalf("unexpected route after reactivation: %+v", w.Route)
	}
}

func TestWorkerLifecycleDeactivateDestroy(t *testing.T) {
	svc, store, shutdown := newHarness(t, Config{})
	defer shutdown()
	ctx := context.Background()

	if _, err := svc.CreateWorker(ctx, testWorker("w-1", 0, 0)); err != nil {
		t.Fatalf("create worker: %v", err)
	}
	if err := svc.DeactivateWorker(ctx, "w-1"); err != nil {
		t.Fatalf("deactivate worker: %v", err)
	}
	waitRegistryState(t, svc, "w-1", false)

	if err := svc.DeactivateWorker(ctx, "w-1"); !errors.Is(err, ErrAlreadyInactive) {
		t.Fatalf("expected ErrAlreadyInactive, got %v", err)
	}
	if err := svc.DestroyWorker(ctx, "w-1"); err != nil {
		t.Fatalf("destroy worker: %v", err)
	}
	entries, _ := svc.Registry(ctx)
	if len(entries) != 0 {
		t.Fatalf("expected empty registry, got %+v", entries)
	}
	mirrored, _ := store.ListAgents(ctx, "")
	if len(mirrored) != 0 {
		t.Fatalf("expected empty mirror, got %+v", mirrored)
	}
	if n := countObservations(t, store, sqlitestore.ObservationFilter{Kind: domain.ObservationWorkerDestroyed, WorkerID: "w-1"}); n != 1 {
		t.Fatalf("expected one destroy record, got %d", n)
	}
}

func TestCreateJobGeneratesID(t *testing.T) {
	svc, _, shutdown := newHarness(t, Config{})
	defer shutdown()

	id, err := svc.CreateJob(context.Background(), testJob("", 1, 0, 2, 0, 10))
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated job id")
	}
	entries, _ := svc.Registry(context.Background())
	if len(entries) != 1 || entries[0].ID != id || entries[0].Kind != domain.AgentKindJob {
		t.Fatalf("unexpected registry: %+v", entries)
	}
}

func TestEvictionReplanDebounce(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	svc := New(store, policy.New(policy.Limits{}), Config{ReplanDebounce: time.Hour}, log.New(io.Discard, "", 0))
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	svc.requestReplan(ctx)
	now = now.Add(10 * time.Millisecond)
	svc.requestReplan(ctx)
	svc.requestReplan(ctx)
	defer svc.replanTimer.Stop()

	if n := countObservations(t, store, sqlitestore.ObservationFilter{Kind: domain.ObservationReplanSweep}); n != 1 {
		t.Fatalf("expected one immediate sweep, got %d", n)
	}
	if n := countObservations(t, store, sqlitestore.ObservationFilter{Kind: domain.ObservationReplanDeferred}); n != 1 {
		t.Fatalf("expected requests in the window to coalesce into one deferred sweep, got %d", n)
	}

	svc.handleCoordinatorMessage(ctx, domain.ReplanTick{})
	if svc.replanPending {
		t.Fatalf("expected deferred sweep to clear the pending flag")
	}
	if n := countObservations(t, store, sqlitestore.ObservationFilter{Kind: domain.ObservationReplanSweep}); n != 2 {
		t.Fatalf("expected deferred sweep to run, got %d sweeps", n)
	}

	now = now.Add(2 * time.Hour)
	svc.requestReplan(ctx)
	if n := countObservations(t, store, sqlitestore.ObservationFilter{Kind: domain.ObservationReplanSweep}); n != 3 {
		t.Fatalf("expected immediate sweep after the window, got %d sweeps", n)
	}
}

func TestCommandsFailAfterStop(t *testing.T) {
	svc, _, shutdown := newHarness(t, Config{})
	shutdown()

	if _, err := svc.CreateWorker(context.Background(), testWorker("w-1", 0, 0)); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestRenderStatus(t *testing.T) {
	report := domain.StatusReport{
		Workers: []domain.WorkerStatus{
			{
				ID: "w-1", Name: "Alice", Active: true, Reachable: true,
				Capacity: 5, WorkloadLimit: 3, CostPerDistance: 0.5,
				Route: []domain.Stop{{JobID: "j-1", Job: domain.JobSpec{ID: "j-1", Price: 20}, Income: 17.5}},
				Total: 17.5,
			},
			{ID: "w-2", Name: "Bob", Active: false, Reachable: true},
		},
		Jobs: []domain.JobStatus{
			{ID: "j-1", Active: true, Reachable: true, State: domain.JobStateAssigned, Price: 20, Assignment: &domain.Assignment{WorkerID: "w-1", Income: 17.5}},
			{ID: "j-2", Active: false, Reachable: true},
		},
	}

	text := RenderStatus(report)
	for _, want := range []string{
		"Alice [w-1] lift=5.00 workload=1/3",
		"1. job j-1 income=17.50 price=20.00",
		"total=17.50",
		"Bob [w-2] (unavailable)",
		"state=assigned on w-1",
		"j-2 (unavailable)",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in status dump:\n%s", want, text)
		}
	}
}

func newHarness(t *testing.T, cfg Config) (*Service, *sqlitestore.Store, func()) {
	t.Helper()
	store := newTestStore(t)
	svc := New(store, policy.New(policy.Limits{}), cfg, log.New(io.Discard, "", 0))
	runCtx, cancel := context.WithCancel(context.Background())
	svc.Start(runCtx)
	return svc, store, func() {
		cancel()
		svc.Wait()
		_ = store.Close()
	}
}

func newTestStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	store, err := sqlitestore.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func testWorker(id string, x, y float64) domain.WorkerSpec {
	return domain.WorkerSpec{
		ID:              id,
		Name:            id,
		Origin:          domain.Location{X: x, Y: y},
		Capacity:        5,
		WorkloadLimit:   5,
		CostPerDistance: 0.5,
	}
}

func testJob(id string, px, py, dx, dy, price float64) domain.JobSpec {
	return domain.JobSpec{
		ID:      id,
		Pickup:  domain.Location{X: px, Y: py},
		Dropoff: domain.Location{X: dx, Y: dy},
		Weight:  1,
		Price:   price,
	}
}

func countObservations(t *testing.T, store *sqlitestore.Store, filter sqlitestore.ObservationFilter) int {
	t.Helper()
	n, err := store.CountObservations(context.Background(), filter)
	if err != nil {
		t.Fatalf("count observations: %v", err)
	}
	return n
}

func waitRegistryState(t *testing.T, svc *Service, id string, active bool) {
	t.Helper()
	err := waitForCondition(2*time.Second, func() (bool, error) {
		entries, err := svc.Registry(context.Background())
		if err != nil {
			return false, err
		}
		for _, e := range entries {
			if e.ID == id {
				return e.Active == active && !e.Releasing, nil
			}
		}
		return false, nil
	})
	if err != nil {
		t.Fatalf("wait for %s active=%v: %v", id, active, err)
	}
}

func waitForCondition(timeout time.Duration, fn func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ok, err := fn()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	ok, err := fn()
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return fmt.Errorf("condition timeout after %s", timeout)
}

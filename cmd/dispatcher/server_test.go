package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"courier_mesh/internal/client"
	"courier_mesh/internal/config"
	"courier_mesh/internal/domain"
	"courier_mesh/internal/fs"
	"courier_mesh/internal/orchestrator"
	"courier_mesh/internal/policy"
	sqlitestore "courier_mesh/internal/store/sqlite"
)

func TestDispatcherLifecycleOverHTTP(t *testing.T) {
	srv, reportDir := newTestServer(t)
	c := client.New(srv.URL, 2*time.Second)
	ctx := context.Background()

	if err := c.Health(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
	if _, err := c.CreateWorker(ctx, domain.WorkerSpec{ID: "w-1", Name: "Alice", Capacity: 5, WorkloadLimit: 5, CostPerDistance: 0.5}); err != nil {
		t.Fatalf("create worker: %v", err)
	}
	if _, err := c.CreateJob(ctx, domain.JobSpec{
		ID:      "j-1",
		Pickup:  domain.Location{X: 1, Y: 1},
		Dropoff: domain.Location{X: 4, Y: 5},
		Weight:  2,
		Price:   151,
	}); err != nil {
		t.Fatalf("create job: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		report, err := c.Status(ctx)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if len(report.Jobs) == 1 && report.Jobs[0].Assignment != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job was never planned: %+v", report.Jobs)
		}
		time.Sleep(20 * time.Millisecond)
	}

	text, err := c.StatusText(ctx)
	if err != nil {
		t.Fatalf("status text: %v", err)
	}
	if !strings.Contains(text, "1. job j-1") {
		t.Fatalf("expected route in text dump:\n%s", text)
	}

	planned, err := c.Observations(ctx, client.ObservationQuery{Kind: domain.ObservationJobPlanned})
	if err != nil {
		t.Fatalf("observations: %v", err)
	}
	if len(planned) != 1 || planned[0].JobID != "j-1" || planned[0].WorkerID != "w-1" {
		t.Fatalf("unexpected planned observations: %+v", planned)
	}

	res, err := c.ExportReport(ctx, "daily/status.txt")
	if err != nil {
		t.Fatalf("export report: %v", err)
	}
	written, err := os.ReadFile(filepath.Join(reportDir, "daily", "status.txt"))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if res.Bytes != len(written) || !strings.Contains(string(written), "Alice [w-1]") {
		t.Fatalf("unexpected report %+v:\n%s", res, written)
	}

	logged, err := c.ReportLog(ctx, 5)
	if err != nil {
		t.Fatalf("report log: %v", err)
	}
	if len(logged) != 1 || logged[0].Path != "daily/status.txt" || !logged[0].Allowed {
		t.Fatalf("unexpected report log: %+v", logged)
	}
}

func TestDispatcherMapsOperatorErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	c := client.New(srv.URL, 2*time.Second)
	ctx := context.Background()

	if _, err := c.CreateWorker(ctx, domain.WorkerSpec{ID: "w-1", Capacity: 5, WorkloadLimit: 3}); err != nil {
		t.Fatalf("create worker: %v", err)
	}

	cases := []struct {
		name string
		call func() error
		code int
	}{
		{"unknown worker", func() error { return c.WorkerAction(ctx, "nope", "activate") }, http.StatusNotFound},
		{"destroy active", func() error { return c.WorkerAction(ctx, "w-1", "destroy") }, http.StatusConflict},
		{"unknown action", func() error { return c.WorkerAction(ctx, "w-1", "explode") }, http.StatusNotFound},
		{"invalid spec", func() error {
			_, err := c.CreateWorker(ctx, domain.WorkerSpec{ID: "w-2", Capacity: 5, WorkloadLimit: 0})
			return err
		}, http.StatusBadRequest},
		{"duplicate", func() error {
			_, err := c.CreateWorker(ctx, domain.WorkerSpec{ID: "w-1", Capacity: 5, WorkloadLimit: 3})
			return err
		}, http.StatusConflict},
		{"forbidden report", func() error {
			_, err := c.ExportReport(ctx, "run.sh")
			return err
		}, http.StatusForbidden},
	}
	for _, tc := range cases {
		err := tc.call()
		var apiErr *client.APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != tc.code {
			t.Fatalf("%s: expected http %d, got %v", tc.name, tc.code, err)
		}
	}

	workers, err := c.Workers(ctx)
	if err != nil {
		t.Fatalf("list workers: %v", err)
	}
	if len(workers) != 1 || !workers[0].Active {
		t.Fatalf("expected registry unchanged, got %+v", workers)
	}
}

func TestDeactivateReturnsAccepted(t *testing.T) {
	srv, _ := newTestServer(t)
	c := client.New(srv.URL, 2*time.Second)
	ctx := context.Background()

	if _, err := c.CreateJob(ctx, domain.JobSpec{ID: "j-1", Weight: 1, Price: 10}); err != nil {
		t.Fatalf("create job: %v", err)
	}
	resp, err := http.Post(srv.URL+"/jobs/j-1/deactivate", "application/json", nil)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusAccepted || body["status"] != "release requested" {
		t.Fatalf("unexpected response %d %+v", resp.StatusCode, body)
	}
}

func TestDispatcherServesExportedReportsAndRegistryMirror(t *testing.T) {
	srv, _ := newTestServer(t)
	c := client.New(srv.URL, 2*time.Second)
	ctx := context.Background()

	if _, err := c.CreateWorker(ctx, domain.WorkerSpec{ID: "w-1", Name: "Alice", Capacity: 5, WorkloadLimit: 5, CostPerDistance: 0.5}); err != nil {
		t.Fatalf("create worker: %v", err)
	}
	if _, err := c.CreateJob(ctx, domain.JobSpec{ID: "j-1", Weight: 1, Price: 10}); err != nil {
		t.Fatalf("create job: %v", err)
	}

	mirror, err := c.RegistryMirror(ctx, "")
	if err != nil {
		t.Fatalf("registry mirror: %v", err)
	}
	if len(mirror) != 2 {
		t.Fatalf("expected worker and job in the mirror, got %+v", mirror)
	}
	workers, err := c.RegistryMirror(ctx, domain.AgentKindWorker)
	if err != nil {
		t.Fatalf("registry mirror workers: %v", err)
	}
	if len(workers) != 1 || workers[0].ID != "w-1" || workers[0].Name != "Alice" || !workers[0].Active {
		t.Fatalf("unexpected worker mirror %+v", workers)
	}
	var apiErr *client.APIError
	if _, err := c.RegistryMirror(ctx, "truck"); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %v", err)
	}

	res, err := c.ExportReport(ctx, "snapshots/now.json")
	if err != nil {
		t.Fatalf("export report: %v", err)
	}
	content, err := c.ReadReport(ctx, "snapshots/now.json")
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var report domain.StatusReport
	if err := json.Unmarshal(content, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if len(content) != res.Bytes || len(report.Workers) != 1 || report.Workers[0].ID != "w-1" {
		t.Fatalf("unexpected report %d bytes: %+v", len(content), report)
	}

	if _, err := c.ReadReport(ctx, "snapshots/missing.json"); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for a missing report, got %v", err)
	}
}

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := sqlitestore.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := log.New(io.Discard, "", 0)
	policyEngine := policy.New(policy.Limits{})
	reportDir := filepath.Join(dir, "reports")
	reports, err := fs.NewGateway(reportDir, policyEngine, store)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	coordinator := orchestrator.New(store, policyEngine, orchestrator.Config{}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	coordinator.Start(ctx)

	a := &app{
		cfg:         config.Default(),
		coordinator: coordinator,
		journal:     store,
		reports:     reports,
		logger:      logger,
	}
	srv := httptest.NewServer(loggingMiddleware(logger, a.routes()))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		coordinator.Wait()
		_ = store.Close()
	})
	return srv, reportDir
}

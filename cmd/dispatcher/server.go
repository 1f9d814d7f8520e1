package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"courier_mesh/internal/config"
	"courier_mesh/internal/domain"
	"courier_mesh/internal/fs"
	"courier_mesh/internal/orchestrator"
	"courier_mesh/internal/policy"
	sqlitestore "courier_mesh/internal/store/sqlite"
)

type journalReader interface {
	ListObservations(ctx context.Context, filter sqlitestore.ObservationFilter, limit int) ([]domain.Observation, error)
	ListReportFiles(ctx context.Context, limit int) ([]domain.ReportFileLog, error)
	ListAgents(ctx context.Context, kind domain.AgentKind) ([]domain.RegistryEntry, error)
}

type app struct {
	cfg         config.Config
	coordinator *orchestrator.Service
	journal     journalReader
	reports     *fs.Gateway
	logger      *log.Logger
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/config", a.handleConfig)
	mux.HandleFunc("/workers", a.handleWorkers)
	mux.HandleFunc("/workers/", a.handleAgentAction(domain.AgentKindWorker))
	mux.HandleFunc("/jobs", a.handleJobs)
	mux.HandleFunc("/jobs/", a.handleAgentAction(domain.AgentKindJob))
	mux.HandleFunc("/status", a.handleStatus)
	mux.HandleFunc("/status/text", a.handleStatusText)
	mux.HandleFunc("/reports", a.handleReports)
	mux.HandleFunc("/reports/", a.handleReportFile)
	mux.HandleFunc("/registry", a.handleRegistryMirror)
	mux.HandleFunc("/observations", a.handleObservations)
	return mux
}

func (a *app) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *app) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"path":       a.cfg.Path,
		"dispatcher": a.cfg.Dispatcher,
		"raw":        a.cfg.Raw,
	})
}

func (a *app) handleWorkers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.writeRegistry(w, r, domain.AgentKindWorker)
	case http.MethodPost:
		var spec domain.WorkerSpec
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json body: %w", err))
			return
		}
		id, err := a.coordinator.CreateWorker(r.Context(), spec)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (a *app) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.writeRegistry(w, r, domain.AgentKindJob)
	case http.MethodPost:
		var spec domain.JobSpec
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json body: %w", err))
			return
		}
		id, err := a.coordinator.CreateJob(r.Context(), spec)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (a *app) writeRegistry(w http.ResponseWriter, r *http.Request, kind domain.AgentKind) {
	entries, err := a.coordinator.Registry(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	out := make([]domain.RegistryEntry, 0, len(entries))
	for _, e := range entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAgentAction serves POST /workers/{id}/{action} and /jobs/{id}/{action}.
func (a *app) handleAgentAction(kind domain.AgentKind) http.HandlerFunc {
	prefix := "/" + string(kind) + "s/"
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, prefix), "/")
		if len(parts) != 2 || parts[0] == "" {
			writeError(w, http.StatusNotFound, fmt.Errorf("expected %s{id}/{action}", prefix))
			return
		}
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		id, action := parts[0], parts[1]

		var err error
		code := http.StatusOK
		var status string
		switch {
		case action == "activate" && kind == domain.AgentKindWorker:
			err = a.coordinator.ActivateWorker(r.Context(), id)
			status = "activated"
		case action == "activate":
			err = a.coordinator.ActivateJob(r.Context(), id)
			status = "activated"
		case action == "deactivate" && kind == domain.AgentKindWorker:
			err = a.coordinator.DeactivateWorker(r.Context(), id)
			code, status = http.StatusAccepted, "release requested"
		case action == "deactivate":
			err = a.coordinator.DeactivateJob(r.Context(), id)
			code, status = http.StatusAccepted, "release requested"
		case action == "destroy" && kind == domain.AgentKindWorker:
			err = a.coordinator.DestroyWorker(r.Context(), id)
			status = "destroyed"
		case action == "destroy":
			err = a.coordinator.DestroyJob(r.Context(), id)
			status = "destroyed"
		default:
			writeError(w, http.StatusNotFound, fmt.Errorf("unknown action: %s", action))
			return
		}
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, code, map[string]any{"status": status, "id": id})
	}
}

func (a *app) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	report, err := a.coordinator.DumpStatus(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *app) handleStatusText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	report, err := a.coordinator.DumpStatus(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(orchestrator.RenderStatus(report)))
}

// handleReportFile serves a previously exported report back from the report
// directory.
func (a *app) handleReportFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	relPath := strings.TrimPrefix(r.URL.Path, "/reports/")
	content, err := a.reports.ReadFile(r.Context(), relPath)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, os.ErrNotExist) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	contentType := "application/json"
	if strings.EqualFold(path.Ext(relPath), ".txt") {
		contentType = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

// handleRegistryMirror serves the registry as persisted in sqlite, including
// each entry's timestamps.
func (a *app) handleRegistryMirror(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	kind := domain.AgentKind(strings.TrimSpace(r.URL.Query().Get("kind")))
	switch kind {
	case "", domain.AgentKindWorker, domain.AgentKindJob:
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown agent kind %q", kind))
		return
	}
	items, err := a.journal.ListAgents(r.Context(), kind)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// handleReports writes the current status below the report directory, as
// JSON or as the rendered text dump depending on the file extension.
func (a *app) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		items, err := a.journal.ListReportFiles(r.Context(), queryInt(r, "limit", 50))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json body: %w", err))
		return
	}
	report, err := a.coordinator.DumpStatus(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	relPath := strings.TrimSpace(req.Path)
	if relPath == "" {
		relPath = "status-" + report.GeneratedAt.Format("20060102-150405") + ".json"
	}
	var content []byte
	if strings.EqualFold(path.Ext(relPath), ".txt") {
		content = []byte(orchestrator.RenderStatus(report))
	} else {
		content, err = json.MarshalIndent(report, "", "  ")
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	if err := a.reports.WriteFile(r.Context(), relPath, content); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, fs.ErrForbiddenFileOperation) {
			code = http.StatusForbidden
		}
		writeError(w, code, err)
		return
	}
	a.logger.Printf("status report written path=%s bytes=%d", relPath, len(content))
	writeJSON(w, http.StatusCreated, map[string]any{"path": relPath, "bytes": len(content)})
}

func (a *app) handleObservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	items, err := a.journal.ListObservations(r.Context(), sqlitestore.ObservationFilter{
		Kind:     domain.ObservationKind(strings.TrimSpace(q.Get("kind"))),
		JobID:    strings.TrimSpace(q.Get("job")),
		WorkerID: strings.TrimSpace(q.Get("worker")),
	}, queryInt(r, "limit", 200))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// statusFor maps coordinator errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *policy.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrAlreadyExists),
		errors.Is(err, orchestrator.ErrAlreadyInactive),
		errors.Is(err, orchestrator.ErrReleasePending),
		errors.Is(err, orchestrator.ErrNotDeactivated):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func loggingMiddleware(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

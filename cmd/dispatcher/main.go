package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"courier_mesh/internal/config"
	"courier_mesh/internal/fs"
	"courier_mesh/internal/orchestrator"
	"courier_mesh/internal/policy"
	sqlitestore "courier_mesh/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to courier_mesh.toml (default: ./courier_mesh.toml if present)")
	addrFlag := flag.String("addr", "", "http listen address override")
	dbPathFlag := flag.String("db", "", "sqlite database path override")
	reportDirFlag := flag.String("reports", "", "report directory override")
	noSeed := flag.Bool("no-seed", false, "skip workers and jobs listed in the config file")
	flag.Parse()

	logger := log.New(os.Stderr, "[dispatcher] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	addr := firstNonEmpty(*addrFlag, cfg.Dispatcher.Addr, "127.0.0.1:8092")
	dbPath := filepath.Clean(firstNonEmpty(*dbPathFlag, cfg.Dispatcher.DBPath, "data/courier_mesh.db"))
	reportDir := filepath.Clean(firstNonEmpty(*reportDirFlag, cfg.Dispatcher.ReportDir, "reports"))

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		logger.Fatalf("create db directory: %v", err)
	}

	store, err := sqlitestore.Open(dbPath)
	if err != nil {
		logger.Fatalf("open sqlite store: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		logger.Fatalf("migrate sqlite: %v", err)
	}
	if err := store.ResetRegistry(ctx); err != nil {
		logger.Fatalf("reset registry: %v", err)
	}

	policyEngine := policy.New(policy.Limits{MaxRouteLen: cfg.Dispatcher.MaxRouteLen})
	reports, err := fs.NewGateway(reportDir, policyEngine, store)
	if err != nil {
		logger.Fatalf("create report gateway: %v", err)
	}

	coordinator := orchestrator.New(store, policyEngine, orchestrator.Config{
		ReplanDebounce: cfg.Dispatcher.ReplanDebounce(),
		StatusTimeout:  cfg.Dispatcher.StatusTimeout(),
	}, logger)
	coordinator.Start(ctx)

	if !*noSeed {
		seed(ctx, coordinator, cfg, logger)
	}

	a := &app{
		cfg:         cfg,
		coordinator: coordinator,
		journal:     store,
		reports:     reports,
		logger:      logger,
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           loggingMiddleware(logger, a.routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Printf("courier_mesh started addr=%s db=%s reports=%s max_route_len=%d", addr, dbPath, reports.Root(), policyEngine.MaxRouteLen())

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http server failed: %v", err)
	}
	cancel()
	coordinator.Wait()
}

// seed creates the workers and jobs listed in the config file. Workers go
// first so every seeded job sees the full fleet on its first round.
func seed(ctx context.Context, coordinator *orchestrator.Service, cfg config.Config, logger *log.Logger) {
	for _, w := range cfg.Workers {
		id, err := coordinator.CreateWorker(ctx, w.Spec())
		if err != nil {
			logger.Printf("seed worker %q failed: %v", w.ID, err)
			continue
		}
		logger.Printf("seeded worker %s", id)
	}
	for _, j := range cfg.Jobs {
		id, err := coordinator.CreateJob(ctx, j.Spec())
		if err != nil {
			logger.Printf("seed job %q failed: %v", j.ID, err)
			continue
		}
		logger.Printf("seeded job %s", id)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

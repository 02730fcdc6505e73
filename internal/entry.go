// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/logbridge/internal/api"
	"github.com/starford/logbridge/internal/convert"
	"github.com/starford/logbridge/internal/ledger"
	"github.com/starford/logbridge/internal/mcpserver"
	"github.com/starford/logbridge/internal/runservice"
	"github.com/starford/logbridge/internal/sse"
	"github.com/starford/logbridge/internal/storage"
	"github.com/starford/logbridge/internal/watch"
)

// runtime is everything built from the configuration that the entry points
// share.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	out    io.Writer
	src    *storage.FS
	svc    *runservice.Service
	ledger ledger.Store
}

func (rt *runtime) close() {
	if rt.ledger != nil {
		if err := rt.ledger.Close(); err != nil {
			rt.logger.Warn("ledger close failed", slog.String("error", err.Error()))
		}
	}
}

func setup(opts ...Option) (*runtime, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.out == nil {
		app.out = os.Stdout
	}
	if app.logOut == nil {
		app.logOut = os.Stderr
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("source_path", cfg.Source.Path),
		slog.String("output_path", cfg.Output.Path),
		slog.String("category_tag", cfg.Convert.CategoryTag),
		slog.Bool("dry_run", cfg.Output.DryRun),
		slog.String("ledger_path", cfg.Ledger.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	src, err := storage.NewFS(cfg.Source.Path)
	if err != nil {
		return nil, fmt.Errorf("init source: %w", err)
	}

	// Ensure output directory exists.
	if err := os.MkdirAll(cfg.Output.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	dst, err := storage.NewFS(cfg.Output.Path)
	if err != nil {
		return nil, fmt.Errorf("init output: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger, out: app.out, src: src}

	if cfg.Ledger.Path != "" {
		db, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return nil, fmt.Errorf("init ledger: %w", err)
		}
		rt.ledger = db
	}

	rt.svc = runservice.NewService(pipelineBuilder(cfg, src, dst, logger), rt.ledger, logger)
	return rt, nil
}

// pipelineBuilder turns the configuration into pipeline options. Each run
// gets a fresh pipeline, and with it a fresh resolver and anchor counter.
func pipelineBuilder(cfg *Config, src, dst storage.Provider, logger *slog.Logger) runservice.Builder {
	return func(extra ...convert.Option) *convert.Pipeline {
		opts := []convert.Option{
			convert.WithPromotion(cfg.Convert.PromoteTopLevel),
			convert.WithAssets(cfg.Source.AssetsDir, cfg.Output.AttachmentsDir),
			convert.WithDryRun(cfg.Output.DryRun),
			convert.WithReportFile(cfg.Output.Report),
			convert.WithWorkers(cfg.Convert.Workers),
			convert.WithLogger(logger),
		}
		if cfg.Convert.Categorize() {
			opts = append(opts, convert.WithCategory(cfg.Convert.CategoryTag, cfg.Convert.CategoryFolder))
		}
		return convert.New(src, dst, append(opts, extra...)...)
	}
}

// Run converts the source vault once and prints the summary table.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := setup(opts...)
	if err != nil {
		return err
	}
	defer rt.close()

	report, err := rt.svc.Convert(ctx)
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	fmt.Fprintln(rt.out, report.Table())

	if report.Totals.Failed > 0 {
		rt.logger.Warn("Some documents failed", slog.Int("failed", report.Totals.Failed))
	}
	return nil
}

// Watch converts once, then re-converts the whole corpus whenever the
// source vault changes. The status API runs alongside when a port is set.
func Watch(ctx context.Context, opts ...Option) error {
	rt, err := setup(opts...)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg, logger := rt.cfg, rt.logger

	broker := sse.NewBroker()
	defer broker.Close()

	rt.svc.OnRun(func(r *convert.Report, err error) {
		broker.PublishRun(runSummary(r, err))
	})

	convertOnce := func(ctx context.Context) {
		report, err := rt.svc.Convert(ctx)
		if err != nil {
			logger.Error("Conversion failed", slog.String("error", err.Error()))
			return
		}
		fmt.Fprintln(rt.out, report.Table())
	}
	convertOnce(ctx)

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher.
	g.Go(func() error {
		return watch.Watch(gCtx, rt.src.Root(), watch.DefaultDebounce, logger, convertOnce)
	})

	var httpServer *http.Server
	if cfg.App.HTTP.Enabled() {
		httpServer = &http.Server{
			Addr:    cfg.App.HTTP.Address(),
			Handler: newRouter(cfg, rt.svc, broker),
		}

		// Start HTTP server.
		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
		}
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Watcher stopped successfully")
	return nil
}

// ServeMCP exposes the conversion tools over MCP stdio.
func ServeMCP(_ context.Context, opts ...Option) error {
	rt, err := setup(opts...)
	if err != nil {
		return err
	}
	defer rt.close()

	rt.logger.Info("Serving MCP over stdio")
	return mcpserver.New(rt.svc).ServeStdio()
}

func newRouter(cfg *Config, svc *runservice.Service, events http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := svc.Latest(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"converting"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api; the SSE stream lands on /api/events.
	r.Mount("/api", api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, events))
	return r
}

func runSummary(r *convert.Report, err error) sse.RunSummary {
	if err != nil {
		return sse.RunSummary{Error: err.Error()}
	}
	return sse.RunSummary{
		RunID:      r.RunID,
		Documents:  r.Totals.Documents,
		Converted:  r.Totals.Converted,
		Failed:     r.Totals.Failed,
		Unresolved: r.Totals.Unresolved,
		DryRun:     r.DryRun,
	}
}

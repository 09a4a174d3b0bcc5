package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/creditguard/internal/api"
	"github.com/opensource-finance/creditguard/internal/bus"
	"github.com/opensource-finance/creditguard/internal/domain"
	"github.com/opensource-finance/creditguard/internal/metrics"
	"github.com/opensource-finance/creditguard/internal/pipeline"
	"github.com/opensource-finance/creditguard/internal/repository"
	"github.com/opensource-finance/creditguard/internal/worker"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	slog.Info("starting creditguard",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"state", cfg.State.Backend,
		"eventbus", cfg.EventBus.Type,
		"history", cfg.History.Enabled,
		"worker", cfg.Worker.Enabled,
		"tracing", cfg.Tracing.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	engine, stores, err := newEngine(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer stores.Close()

	var history domain.EvaluationRepository
	if cfg.History.Enabled {
		repo, err := repository.New(cfg.History)
		if err != nil {
			return fmt.Errorf("initialize evaluation history: %w", err)
		}
		defer repo.Close()
		history = repo
		slog.Info("evaluation history initialized", "max_rows", cfg.History.MaxRows)
	}

	eventBus, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer eventBus.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	processor := pipeline.NewProcessor(engine, history, eventBus)

	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(eventBus, processor)
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		}
	}

	opts := api.Options{
		Processor: processor,
		Bus:       eventBus,
		State:     stores,
		Tracer:    newTracer(cfg.Tracing, "api"),
		Version:   Version,
	}
	if m != nil {
		opts.MetricsHandler = m.Handler()
		opts.MetricsPath = cfg.Metrics.Path
	}
	srv := api.NewServer(cfg.Server, opts)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("creditguard is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cmd, cfg, Version)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		slog.Error("server failed", "error", err)
		return err
	}

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("creditguard shutdown complete")
	return nil
}

func printBanner(cmd *cobra.Command, cfg *domain.Config, version string) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  CREDITGUARD  rule-based fraud detection")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Version:  %s\n", version)
	fmt.Fprintf(out, "  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintf(out, "  State:    %s\n", cfg.State.Backend)
	fmt.Fprintf(out, "  Bus:      %s\n", cfg.EventBus.Type)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Endpoints:")
	fmt.Fprintln(out, "    POST /evaluate           - Evaluate a transaction")
	fmt.Fprintln(out, "    POST /batch-evaluate     - Evaluate a batch of transactions")
	fmt.Fprintln(out, "    GET  /rules              - List active rules")
	if cfg.History.Enabled {
		fmt.Fprintln(out, "    GET  /evaluations        - Recent evaluations")
		fmt.Fprintln(out, "    GET  /evaluations/{id}   - Get evaluation by ID")
	}
	fmt.Fprintln(out, "    GET  /ws/evaluations     - Live evaluation feed")
	if cfg.Metrics.Enabled {
		fmt.Fprintf(out, "    GET  %-19s - Prometheus metrics\n", cfg.Metrics.Path)
	}
	fmt.Fprintln(out, "    GET  /health             - Health check")
	fmt.Fprintln(out)
}

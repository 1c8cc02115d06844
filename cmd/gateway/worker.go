package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/intake-gateway/internal/api"
	"github.com/akylbek/payment-system/intake-gateway/internal/config"
	"github.com/akylbek/payment-system/intake-gateway/internal/models"
	"github.com/akylbek/payment-system/intake-gateway/internal/processor"
	"github.com/akylbek/payment-system/intake-gateway/internal/telemetry"
	"github.com/akylbek/payment-system/intake-gateway/internal/worker"
)

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume the payments channel and dispatch payments to processors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runWorker(cfg)
		},
	}
}

func runWorker(cfg *config.Config) error {
	// Initialize telemetry
	if err := telemetry.InitTelemetry("gateway-worker", cfg.OTLPEndpoint); err != nil {
		return err
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting payment worker")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	d, err := newDeps(ctx, cfg, cfg.Worker.PoolSize)
	cancel()
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect dependencies", zap.Error(err))
	}
	defer d.Close()

	processors := processor.NewClient(map[models.Processor]processor.Endpoint{
		models.ProcessorDefault:  {URL: cfg.Processors.DefaultURL, Timeout: cfg.Worker.DefaultTimeout},
		models.ProcessorFallback: {URL: cfg.Processors.FallbackURL, Timeout: cfg.Worker.FallbackTimeout},
	})

	paymentWorker := worker.NewPaymentWorker(d.store, processors, d.broker, worker.Settings{
		MaxAttempts: cfg.Worker.MaxAttempts,
		BackoffBase: cfg.Worker.BackoffBase,
		MaxRetries:  cfg.Worker.MaxRetries,
	}, telemetry.Logger)

	runner := worker.NewRunner(d.broker, paymentWorker, cfg.Worker.Workers, telemetry.Logger)
	if err := runner.Start(context.Background()); err != nil {
		telemetry.Logger.Fatal("Failed to subscribe to payments channel", zap.Error(err))
	}

	// Health and metrics
	srv := &http.Server{
		Addr:    ":" + cfg.WorkerPort,
		Handler: api.NewBaseRouter("worker"),
	}

	go func() {
		telemetry.Logger.Info("Payment worker starting",
			zap.String("port", cfg.WorkerPort),
			zap.Int("workers", cfg.Worker.Workers),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down worker...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	stopped := make(chan struct{})
	go func() {
		runner.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		telemetry.Logger.Error("Workers did not drain in time", zap.Int("pending", runner.Pending()))
	}

	telemetry.Logger.Info("Worker exited")
	return nil
}

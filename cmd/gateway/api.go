package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/intake-gateway/internal/api"
	"github.com/akylbek/payment-system/intake-gateway/internal/config"
	"github.com/akylbek/payment-system/intake-gateway/internal/dispatcher"
	"github.com/akylbek/payment-system/intake-gateway/internal/handlers"
	"github.com/akylbek/payment-system/intake-gateway/internal/telemetry"
)

func newAPICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Accept payments over HTTP and publish them to the payments channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runAPI(cfg)
		},
	}
}

func runAPI(cfg *config.Config) error {
	// Initialize telemetry
	if err := telemetry.InitTelemetry("gateway-api", cfg.OTLPEndpoint); err != nil {
		return err
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting payment API")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	d, err := newDeps(ctx, cfg, cfg.API.PoolSize)
	cancel()
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect dependencies", zap.Error(err))
	}
	defer d.Close()

	paymentHandler := handlers.NewPaymentHandler(d.store, d.broker, telemetry.Logger)
	router := api.NewRouter(paymentHandler)

	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		telemetry.Logger.Fatal("Failed to listen", zap.String("port", cfg.Port), zap.Error(err))
	}

	srv := dispatcher.New(router, cfg.API.Workers, cfg.API.ReadTimeout, telemetry.Logger)

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Payment API starting",
			zap.String("port", cfg.Port),
			zap.Int("workers", cfg.API.Workers),
		)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to serve", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	done := make(chan struct{})
	go func() {
		srv.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		telemetry.Logger.Error("Server forced to shutdown", zap.Int("queued", srv.Queued()))
	}

	telemetry.Logger.Info("Server exited")
	return nil
}

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/notes/backend/internal/api"
	"github.com/wonny/notes/backend/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `Starts the REST API server and the live event feed.

Endpoints:
  GET  /health                        - Health check
  GET  /metrics                       - Prometheus metrics
  GET  /ws/events[?product=ID]        - Live lifecycle events
  GET  /api/products                  - Active products
  GET  /api/products/{id}/evaluation  - Evaluation report (?date=)
  GET  /api/products/{id}/events      - Recorded events
  POST /api/evaluations               - Evaluate an inline product
  POST /api/schedules                 - Generate an inline schedule

Example:
  go run ./cmd/notes api
  go run ./cmd/notes api --port 8080 --with-scheduler`,
	RunE: runAPIServer,
}

var (
	apiPort       string
	withScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default PORT)")
	apiCmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "run the detection and holiday jobs in-process")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Notes API Server ===")

	d, err := bootstrap(cmd.Context(), os.Stdout)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.requireProducts(); err != nil {
		return err
	}

	cfg, log := d.cfg, d.log
	if apiPort != "" {
		cfg.Port = apiPort
	}

	// Event feed, fed by the detector
	hub := api.NewEventHub(log)
	evaluator := d.evaluator(hub.Publish)

	productHandler := handlers.NewProductHandler(d.products, evaluator, d.events, d.holidays, cfg.Engine.PaymentLagDays, log)
	router := api.NewRouter(productHandler, hub, log)
	server := api.New(cfg, log, router, hub)

	if withScheduler {
		sched, err := newScheduler(d, evaluator)
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	// Start server with graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	case <-quit:
	}

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}

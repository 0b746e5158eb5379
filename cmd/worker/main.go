// Command worker runs the background jobs of the scheduling service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/scheduling-api/internal/app"
	"github.com/jwalitptl/scheduling-api/internal/config"
	"github.com/jwalitptl/scheduling-api/internal/email"
	"github.com/jwalitptl/scheduling-api/internal/handler/health"
	promhandler "github.com/jwalitptl/scheduling-api/internal/handler/prometheus"
	"github.com/jwalitptl/scheduling-api/internal/repository/postgres"
	"github.com/jwalitptl/scheduling-api/internal/service/notification"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
	"github.com/jwalitptl/scheduling-api/pkg/worker"
)

func setupHealthCheck(port int, db health.Pinger, reg *prometheus.Registry, logger *logger.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	health.NewHandler(db).RegisterRoutes(engine)
	engine.GET("/metrics", promhandler.New(reg, reg).Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err, "Health check server failed")
		}
	}()
	return srv
}

func main() {
	if err := newRootCmd(runWorker).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(run func(configPath string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "worker",
		Short:        "Run the outbox publisher, reminder sweeper and outbox cleanup",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return run(configPath)
		},
	}
	cmd.Flags().String("config", "", "path to config.yml")
	return cmd
}

func runWorker(configPath string) error {
	// Load config
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := app.NewLogger(cfg.Log)

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		logger.Error(err, "Failed to connect to database")
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker, err := app.NewBroker(ctx, cfg, logger)
	if err != nil {
		logger.Error(err, "Failed to create message broker", "driver", cfg.Messaging.Driver)
		return err
	}
	defer broker.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics("scheduling", reg)

	repos := app.PostgresRepositories(db)

	processor, err := worker.NewOutboxProcessor(repos.Outbox, broker, worker.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
	}, logger, m)
	if err != nil {
		return fmt.Errorf("invalid outbox processor config: %w", err)
	}

	notifier := notification.NewService(repos.Appointments, repos.Directory, email.NewSMTPSender(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}), broker)

	sweeper, err := worker.NewReminderSweeper(repos.Reminders, notifier, worker.ReminderSweeperConfig{
		BatchSize:    cfg.Reminders.BatchSize,
		PollInterval: cfg.Reminders.PollInterval,
		MaxAttempts:  cfg.Reminders.MaxAttempts,
	}, logger, m)
	if err != nil {
		return fmt.Errorf("invalid reminder sweeper config: %w", err)
	}

	cleanup := worker.NewOutboxCleanupWorker(repos.Outbox, cfg.Outbox.Retention, cfg.Outbox.CleanupInterval, logger)

	healthSrv := setupHealthCheck(cfg.Server.WorkerHealthPort, db, reg, logger)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup
	for _, run := range []func(context.Context){processor.Start, sweeper.Start, cleanup.Start} {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "Health check server forced to shutdown")
		return err
	}
	return nil
}

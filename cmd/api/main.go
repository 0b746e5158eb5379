// Command api serves the scheduling HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/scheduling-api/internal/app"
	"github.com/jwalitptl/scheduling-api/internal/config"
	appointmentHandler "github.com/jwalitptl/scheduling-api/internal/handler/appointment"
	doctorHandler "github.com/jwalitptl/scheduling-api/internal/handler/doctor"
	"github.com/jwalitptl/scheduling-api/internal/handler/health"
	medicalHandler "github.com/jwalitptl/scheduling-api/internal/handler/medical"
	promhandler "github.com/jwalitptl/scheduling-api/internal/handler/prometheus"
	"github.com/jwalitptl/scheduling-api/internal/middleware"
	"github.com/jwalitptl/scheduling-api/internal/repository/postgres"
	"github.com/jwalitptl/scheduling-api/internal/router"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
)

func main() {
	if err := newRootCmd(runServer).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(run func(configPath string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "api",
		Short:        "Run the scheduling API server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return run(configPath)
		},
	}
	cmd.Flags().String("config", "", "path to config.yml")
	return cmd
}

func runServer(configPath string) error {
	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := app.NewLogger(cfg.Log)

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		logger.Error(err, "failed to connect to database")
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics("scheduling", reg)

	// Initialize repositories and services
	svcs := app.NewServices(cfg, app.PostgresRepositories(db), logger, m)

	auth := middleware.NewAuthMiddleware(middleware.AuthConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		Leeway:   cfg.JWT.Leeway,
	})

	routerCfg := router.RouterConfig{
		Mode:           cfg.Server.Mode,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	}
	if cfg.RateLimit.Enabled {
		routerCfg.RateLimit = &middleware.RateLimiterConfig{
			Rate:  rate.Limit(cfg.RateLimit.RequestsPerSecond),
			Burst: cfg.RateLimit.Burst,
		}
	}

	r, err := router.NewRouter(
		routerCfg,
		logger,
		auth,
		promhandler.New(reg, reg),
		health.NewHandler(db),
		appointmentHandler.NewHandler(svcs.Appointments, svcs.Availability, logger),
		doctorHandler.NewHandler(svcs.Availability),
		medicalHandler.NewHandler(svcs.Records),
	)
	if err != nil {
		logger.Error(err, "failed to build router")
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting API server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		logger.Error(err, "failed to start server")
		return err
	case <-quit:
	}
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error(err, "server forced to shutdown")
		return err
	}
	return nil
}

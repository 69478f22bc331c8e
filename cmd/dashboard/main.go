package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/melih/lighthouse-boot/internal/adapters/alert"
	"github.com/melih/lighthouse-boot/internal/adapters/http"
	"github.com/melih/lighthouse-boot/internal/adapters/postgres"
	"github.com/melih/lighthouse-boot/internal/config"
	"github.com/melih/lighthouse-boot/internal/core/domain"
	"github.com/melih/lighthouse-boot/internal/core/ports"
	"github.com/melih/lighthouse-boot/internal/core/services/monitor"
	"github.com/melih/lighthouse-boot/internal/logging"
)

type options struct {
	port       int
	address    string
	portEnv    string
	configPath string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "dashboard",
		Short:         "EV vehicle monitor dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.port, "port", 8501, "TCP port to listen on")
	cmd.Flags().StringVar(&opts.address, "address", domain.WildcardAddress, "Address to bind")
	cmd.Flags().StringVar(&opts.portEnv, "port-env", "DASHBOARD_SERVER_PORT",
		"Variable advertising the intended port; --port must agree with it when set")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Config file (default: lighthouse.yaml if present)")
	return cmd
}

func run(ctx context.Context, opts *options) error {
	if err := domain.ValidateBind(opts.port, opts.address, os.Getenv(opts.portEnv)); err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Dashboard.DatabaseURL == "" {
		return errors.New("database URL is not configured (set URL or LIGHTHOUSE_DASHBOARD_DATABASE_URL)")
	}
	db, err := postgres.Open(cfg.Dashboard.DatabaseURL)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	var alerts ports.AlertSender
	if cfg.Dashboard.AlertURL != "" {
		alerts = alert.NewClient(cfg.Dashboard.AlertURL, cfg.Dashboard.AlertAPIKey, cfg.Dashboard.AlertTimeout)
	} else {
		logger.Warn("ALERT_API_URL is not set, low battery alerts are disabled")
	}

	mon := monitor.New(postgres.NewTelemetryRepository(db), alerts, monitor.Config{
		RefreshInterval:     cfg.Dashboard.RefreshInterval,
		HistoryWindow:       cfg.Dashboard.HistoryWindow,
		LowBatteryThreshold: cfg.Dashboard.LowBatteryThreshold,
		AlertCooldown:       cfg.Dashboard.AlertCooldown,
	}, logger.Named("monitor"))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go mon.Run(ctx)

	app := newApp(http.NewDashboardHandler(mon, cfg.Dashboard.RefreshInterval), logger)
	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			logger.Errorw("Server shutdown failed", "error", err)
		}
	}()

	addr := net.JoinHostPort(opts.address, strconv.Itoa(opts.port))
	if err := app.Listen(addr); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return nil
}

func newApp(dashboard *http.DashboardHandler, logger *zap.SugaredLogger) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Hooks().OnListen(func(data fiber.ListenData) error {
		logger.Infow("Dashboard listening", "host", data.Host, "port", data.Port)
		fmt.Fprintln(os.Stdout, "ready")
		return nil
	})

	app.Get("/", dashboard.Index)
	app.Get("/healthz", dashboard.Health)
	app.Get("/api/snapshot", dashboard.Snapshot)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	return app
}

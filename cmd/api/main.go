package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/melih/lighthouse-boot/internal/adapters/http"
	"github.com/melih/lighthouse-boot/internal/config"
	"github.com/melih/lighthouse-boot/internal/logging"
	"github.com/melih/lighthouse-boot/internal/platform"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("LIGHTHOUSE_CONFIG"))
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	recipe, err := config.LoadRecipe(cfg.RecipeFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Initialize Adapters (Infrastructure)
	p, err := platform.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	// 2. Initialize HTTP Handlers (Interface Adapters)
	containerHandler := http.NewContainerHandler(p.Containers, p.Sequencer)
	buildHandler := http.NewBuildHandler(p.Sequencer, recipe)
	proxyHandler := http.NewProxyHandler(p.Containers, cfg.Server.Domain)

	// 3. Setup Framework (Fiber)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(proxyHandler.ProxyRequest)

	// 4. Define Routes
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	api := app.Group("/api")
	v1 := api.Group("/v1")

	builds := v1.Group("/builds")
	builds.Get("/", buildHandler.ListBuilds)
	builds.Post("/", buildHandler.CreateBuild)
	builds.Get("/dockerfile", buildHandler.RenderDockerfile)
	builds.Get("/:id", buildHandler.GetBuild)

	containers := v1.Group("/containers")
	containers.Get("/", containerHandler.ListContainers)
	containers.Post("/", containerHandler.StartContainer)
	containers.Delete("/:id", containerHandler.StopContainer)
	containers.Get("/:id/logs", containerHandler.GetContainerLogs)

	// 5. Start Server
	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			logger.Errorw("Server shutdown failed", "error", err)
		}
	}()

	addr := net.JoinHostPort(cfg.Server.Address, strconv.Itoa(cfg.Server.Port))
	logger.Infow("Server starting", "addr", addr, "recipe", recipe.Name)
	if err := app.Listen(addr); err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

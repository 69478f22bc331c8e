package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/melih/lighthouse-boot/internal/config"
	"github.com/melih/lighthouse-boot/internal/core/domain"
	"github.com/melih/lighthouse-boot/internal/core/ports"
	"github.com/melih/lighthouse-boot/internal/core/services/bootstrap"
	"github.com/melih/lighthouse-boot/internal/logging"
	"github.com/melih/lighthouse-boot/internal/platform"
)

// Runner is what build, up and run need from the platform.
type Runner interface {
	Build(ctx context.Context, in bootstrap.BuildInput) (*domain.Build, error)
	Up(ctx context.Context, in bootstrap.BuildInput, opts bootstrap.StartOptions) (*domain.Build, error)
	StartContainer(ctx context.Context, spec ports.RunSpec) (string, error)
}

// RunnerFactory builds a Runner and the function that releases it.
type RunnerFactory func(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (Runner, func() error, error)

// App represents the CLI application with all wired dependencies
type App struct {
	rootCmd *cobra.Command

	configPath string
	recipePath string
	logLevel   string

	newRunner RunnerFactory

	version string
}

// New creates a new CLI application backed by the docker platform.
func New() *App {
	return NewWithRunner(platformRunner)
}

// NewWithRunner creates a CLI application with a custom runner factory.
func NewWithRunner(factory RunnerFactory) *App {
	app := &App{newRunner: factory}
	app.setupRootCmd()
	return app
}

// Execute runs the CLI application
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// SetVersion sets the version string reported by --version
func (a *App) SetVersion(version string) {
	a.version = version
	a.rootCmd.Version = version
}

// SetArgs and SetOutput exist for tests.
func (a *App) SetArgs(args []string) {
	a.rootCmd.SetArgs(args)
}

func (a *App) SetOutput(w io.Writer) {
	a.rootCmd.SetOut(w)
	a.rootCmd.SetErr(w)
}

func (a *App) setupRootCmd() {
	a.rootCmd = &cobra.Command{
		Use:   "lighthouse",
		Short: "Build and launch dashboard containers from source",
		Long: `Lighthouse renders a pinned, cache-friendly image recipe for an
application, builds it from a local directory or git repository, and starts
it with its declared port published on all interfaces.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	a.rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default: lighthouse.yaml if present)")
	a.rootCmd.PersistentFlags().StringVarP(&a.recipePath, "recipe", "r", "", "Recipe YAML overlaid on the default recipe")
	a.rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the configured log level")

	a.rootCmd.AddCommand(
		NewRenderCmd(a),
		NewPlanCmd(a),
		NewBuildCmd(a),
		NewUpCmd(a),
		NewRunCmd(a),
	)
}

// loadRecipe resolves --recipe, falling back to the configured recipe file.
func (a *App) loadRecipe(cfg *config.Config) (domain.Recipe, error) {
	path := a.recipePath
	if path == "" && cfg != nil {
		path = cfg.RecipeFile
	}
	return config.LoadRecipe(path)
}

// configuredRecipe resolves --recipe, then the configured recipe file, without
// building a runner.
func (a *App) configuredRecipe() (domain.Recipe, error) {
	if a.recipePath != "" {
		return a.loadRecipe(nil)
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return domain.Recipe{}, err
	}
	return a.loadRecipe(cfg)
}

// runner loads config and hands back a runner plus everything to release.
func (a *App) runner(ctx context.Context) (Runner, *config.Config, func(), error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}
	r, closeFn, err := a.newRunner(ctx, cfg, logger)
	if err != nil {
		logger.Sync()
		return nil, nil, nil, err
	}
	release := func() {
		if closeFn != nil {
			closeFn()
		}
		logger.Sync()
	}
	return r, cfg, release, nil
}

type platformAdapter struct {
	*bootstrap.Sequencer
	containers ports.ContainerService
}

func (p platformAdapter) StartContainer(ctx context.Context, spec ports.RunSpec) (string, error) {
	return p.containers.StartContainer(ctx, spec)
}

func platformRunner(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (Runner, func() error, error) {
	p, err := platform.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return platformAdapter{Sequencer: p.Sequencer, containers: p.Containers}, p.Close, nil
}

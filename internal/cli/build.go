package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/melih/lighthouse-boot/internal/core/domain"
	"github.com/melih/lighthouse-boot/internal/core/ports"
	"github.com/melih/lighthouse-boot/internal/core/services/bootstrap"
)

// SourceOptions select the build context.
type SourceOptions struct {
	Dir     string
	RepoURL string
	Image   string
}

func (o *SourceOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Dir, "source", "s", "", "Local build context directory")
	cmd.Flags().StringVar(&o.RepoURL, "repo", "", "Git repository to clone as the build context")
	cmd.Flags().StringVarP(&o.Image, "tag", "t", "", "Image tag (default: derived from recipe and build ID)")
	cmd.MarkFlagsMutuallyExclusive("source", "repo")
	cmd.MarkFlagsOneRequired("source", "repo")
}

func (o *SourceOptions) source() domain.Source {
	return domain.Source{Dir: o.Dir, RepoURL: o.RepoURL}
}

// NewBuildCmd creates the build command
func NewBuildCmd(app *App) *cobra.Command {
	var opts SourceOptions

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build an image from source with the recipe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, cfg, release, err := app.runner(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			recipe, err := app.loadRecipe(cfg)
			if err != nil {
				return err
			}
			build, err := r.Build(cmd.Context(), bootstrap.BuildInput{
				Recipe: recipe,
				Source: opts.source(),
				Image:  opts.Image,
			})
			return report(cmd.OutOrStdout(), build, err)
		},
	}

	opts.register(cmd)
	return cmd
}

// NewUpCmd creates the up command
func NewUpCmd(app *App) *cobra.Command {
	var opts SourceOptions
	var start bootstrap.StartOptions

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Build an image from source and start it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, cfg, release, err := app.runner(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			recipe, err := app.loadRecipe(cfg)
			if err != nil {
				return err
			}
			build, err := r.Up(cmd.Context(), bootstrap.BuildInput{
				Recipe: recipe,
				Source: opts.source(),
				Image:  opts.Image,
			}, start)
			return report(cmd.OutOrStdout(), build, err)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&start.Name, "name", "", "Container name")
	cmd.Flags().StringArrayVarP(&start.Env, "env", "e", nil, "Override a baked variable (KEY=VALUE)")
	return cmd
}

// NewRunCmd creates the run command
func NewRunCmd(app *App) *cobra.Command {
	var spec ports.RunSpec

	cmd := &cobra.Command{
		Use:   "run IMAGE",
		Short: "Start an existing image with the recipe's port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, cfg, release, err := app.runner(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			recipe, err := app.loadRecipe(cfg)
			if err != nil {
				return err
			}
			if err := recipe.Validate(); err != nil {
				return err
			}
			if err := domain.CheckPortOverrides(recipe.PortEnv, recipe.Port, spec.Env); err != nil {
				return err
			}
			spec.Image = args[0]
			spec.Port = recipe.Port

			id, err := r.StartContainer(cmd.Context(), spec)
			if err != nil {
				var startErr *domain.StartError
				if errors.As(err, &startErr) && startErr.Output != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), startErr.Output)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s listening on %s:%d\n", domain.ShortID(id), recipe.BindAddress, recipe.Port)
			return nil
		},
	}

	cmd.Flags().StringVar(&spec.Name, "name", "", "Container name")
	cmd.Flags().StringArrayVarP(&spec.Env, "env", "e", nil, "Override a baked variable (KEY=VALUE)")
	cmd.Flags().BoolVar(&spec.Pull, "pull", false, "Pull the image before starting")
	return cmd
}

// report prints the build record and returns err unchanged so the process
// exits non-zero on any failure.
func report(w io.Writer, build *domain.Build, err error) error {
	if build != nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(build); encErr != nil {
			return errors.Join(err, encErr)
		}
	}
	var buildErr *domain.BuildError
	if errors.As(err, &buildErr) && buildErr.Output != "" {
		fmt.Fprintln(w, buildErr.Output)
	}
	return err
}

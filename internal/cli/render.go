package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/melih/lighthouse-boot/internal/core/services/bootstrap"
)

// NewRenderCmd creates the render command
func NewRenderCmd(app *App) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the Dockerfile for the recipe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recipe, err := app.configuredRecipe()
			if err != nil {
				return err
			}
			dockerfile, err := bootstrap.Render(recipe)
			if err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(dockerfile)
				return err
			}
			if err := os.WriteFile(output, dockerfile, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

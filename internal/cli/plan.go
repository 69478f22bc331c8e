package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/melih/lighthouse-boot/internal/core/domain"
	"github.com/melih/lighthouse-boot/internal/core/services/bootstrap"
)

// PlanOptions holds flags for the plan command
type PlanOptions struct {
	Source string // Build context to compute layer keys against
	JSON   bool
}

type planEntry struct {
	bootstrap.Step
	Key string `json:"key,omitempty"`
}

// NewPlanCmd creates the plan command
func NewPlanCmd(app *App) *cobra.Command {
	var opts PlanOptions

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the ordered bootstrap steps and their cache keys",
		Long: `Show the ordered bootstrap steps. With --source, each step also gets
the cache key the build would produce, so the effect of a change on layer
reuse can be checked before building.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recipe, err := app.configuredRecipe()
			if err != nil {
				return err
			}
			if err := recipe.Validate(); err != nil {
				return err
			}

			steps := bootstrap.Plan(recipe)
			var layers []domain.Layer
			if opts.Source != "" {
				if _, err := domain.ReadManifest(joinManifest(opts.Source, recipe.Manifest), recipe.Format()); err != nil {
					return err
				}
				digests, err := bootstrap.ContextDigests(opts.Source, recipe.Manifest)
				if err != nil {
					return err
				}
				layers = bootstrap.LayerKeys(steps, digests)
			}

			entries := make([]planEntry, len(steps))
			for i, step := range steps {
				entries[i] = planEntry{Step: step}
				if layers != nil {
					entries[i].Key = layers[i].Key
				}
			}

			out := cmd.OutOrStdout()
			if opts.JSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			for i, e := range entries {
				fmt.Fprintf(out, "%d. %s", i+1, e.Name)
				if e.Key != "" {
					fmt.Fprintf(out, " [%s]", e.Key)
				}
				fmt.Fprintln(out)
				for _, ins := range e.Instructions {
					fmt.Fprintf(out, "   %s\n", ins)
				}
				if len(e.Instructions) == 0 {
					fmt.Fprintln(out, "   (nothing to do)")
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Source, "source", "s", "", "Build context directory")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output as JSON")
	return cmd
}

func joinManifest(dir, manifest string) string {
	return filepath.Join(dir, filepath.FromSlash(manifest))
}

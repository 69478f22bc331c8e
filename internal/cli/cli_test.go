package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/melih/lighthouse-boot/internal/config"
	"github.com/melih/lighthouse-boot/internal/core/domain"
	"github.com/melih/lighthouse-boot/internal/core/ports"
	"github.com/melih/lighthouse-boot/internal/core/services/bootstrap"
)

type fakeRunner struct {
	buildErr error
	inputs   []bootstrap.BuildInput
	starts   []bootstrap.StartOptions
	specs    []ports.RunSpec
	released bool
}

func (f *fakeRunner) Build(_ context.Context, in bootstrap.BuildInput) (*domain.Build, error) {
	f.inputs = append(f.inputs, in)
	b := &domain.Build{ID: "b1", Recipe: in.Recipe.Name, Source: in.Source, Image: in.Image, Port: in.Recipe.Port, State: domain.StateBuilt}
	if f.buildErr != nil {
		b.State = domain.StateFailed
		return b, f.buildErr
	}
	return b, nil
}

func (f *fakeRunner) Up(ctx context.Context, in bootstrap.BuildInput, opts bootstrap.StartOptions) (*domain.Build, error) {
	b, err := f.Build(ctx, in)
	if err != nil {
		return b, err
	}
	f.starts = append(f.starts, opts)
	b.State = domain.StateRunning
	b.ContainerID = "c0ffee"
	return b, nil
}

func (f *fakeRunner) StartContainer(_ context.Context, spec ports.RunSpec) (string, error) {
	f.specs = append(f.specs, spec)
	return "0123456789abcdef", nil
}

func newTestApp(t *testing.T, runner *fakeRunner) (*App, *bytes.Buffer) {
	t.Helper()
	chdir(t, t.TempDir())

	app := NewWithRunner(func(context.Context, *config.Config, *zap.SugaredLogger) (Runner, func() error, error) {
		return runner, func() error { runner.released = true; return nil }, nil
	})
	var out bytes.Buffer
	app.SetOutput(&out)
	return app, &out
}

func run(app *App, args ...string) error {
	app.SetArgs(args)
	return app.Execute()
}

func writeContext(t *testing.T, manifest string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"), []byte("import streamlit\n"), 0o644))
	return dir
}

func TestRenderCmd_Stdout(t *testing.T) {
	app, out := newTestApp(t, &fakeRunner{})

	require.NoError(t, run(app, "render"))

	expected, err := bootstrap.Render(domain.DefaultRecipe())
	require.NoError(t, err)
	assert.Equal(t, string(expected), out.String())
}

func TestRenderCmd_RecipeAndOutputFile(t *testing.T) {
	app, _ := newTestApp(t, &fakeRunner{})
	dir := t.TempDir()
	recipePath := filepath.Join(dir, "recipe.yaml")
	require.NoError(t, os.WriteFile(recipePath, []byte("port: 9000\n"), 0o644))
	outPath := filepath.Join(dir, "Dockerfile")

	require.NoError(t, run(app, "render", "--recipe", recipePath, "-o", outPath))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "EXPOSE 9000\n")
}

func TestRenderCmd_InvalidRecipe(t *testing.T) {
	app, _ := newTestApp(t, &fakeRunner{})
	recipePath := filepath.Join(t.TempDir(), "recipe.yaml")
	require.NoError(t, os.WriteFile(recipePath, []byte("base_image: python:latest\n"), 0o644))

	err := run(app, "render", "-r", recipePath)
	assert.ErrorIs(t, err, domain.ErrUnpinnedImage)
}

func TestPlanCmd_Text(t *testing.T) {
	app, out := newTestApp(t, &fakeRunner{})

	require.NoError(t, run(app, "plan"))

	lines := strings.Split(out.String(), "\n")
	assert.Equal(t, "1. select-base", lines[0])
	assert.Equal(t, "   FROM python:3.11.9-slim", lines[1])
	assert.Contains(t, out.String(), "9. start\n")
}

func TestPlanCmd_JSONWithKeys(t *testing.T) {
	app, out := newTestApp(t, &fakeRunner{})
	dir := writeContext(t, "streamlit==1.38.0\n")

	require.NoError(t, run(app, "plan", "--json", "--source", dir))

	var entries []planEntry
	require.NoError(t, json.Unmarshal(out.Bytes(), &entries))
	require.Len(t, entries, 9)
	assert.Equal(t, bootstrap.StepDependencies, entries[4].Name)
	for _, e := range entries {
		assert.NotEmpty(t, e.Key, e.Name)
	}
}

func TestPlanCmd_RejectsUnpinnedManifest(t *testing.T) {
	app, _ := newTestApp(t, &fakeRunner{})
	dir := writeContext(t, "streamlit\n")

	err := run(app, "plan", "--source", dir)
	assert.ErrorIs(t, err, domain.ErrUnpinnedRequirement)
}

func TestBuildCmd(t *testing.T) {
	runner := &fakeRunner{}
	app, out := newTestApp(t, runner)

	require.NoError(t, run(app, "build", "--source", "./app", "--tag", "dashboard:1.0.0"))

	require.Len(t, runner.inputs, 1)
	assert.Equal(t, domain.Source{Dir: "./app"}, runner.inputs[0].Source)
	assert.Equal(t, "dashboard:1.0.0", runner.inputs[0].Image)
	assert.True(t, runner.released)

	var build domain.Build
	require.NoError(t, json.Unmarshal(out.Bytes(), &build))
	assert.Equal(t, domain.StateBuilt, build.State)
}

func TestBuildCmd_RequiresSource(t *testing.T) {
	runner := &fakeRunner{}
	app, _ := newTestApp(t, runner)

	assert.Error(t, run(app, "build"))
	assert.Empty(t, runner.inputs)
}

func TestBuildCmd_SourceAndRepoExclusive(t *testing.T) {
	runner := &fakeRunner{}
	app, _ := newTestApp(t, runner)

	assert.Error(t, run(app, "build", "--source", ".", "--repo", "https://github.com/example/app.git"))
	assert.Empty(t, runner.inputs)
}

func TestBuildCmd_FailureIsReported(t *testing.T) {
	runner := &fakeRunner{buildErr: &domain.BuildError{Image: "x", Output: "E: Unable to locate package", Err: errors.New("exit code 100")}}
	app, out := newTestApp(t, runner)

	err := run(app, "build", "--repo", "https://github.com/example/app.git")
	assert.Error(t, err)
	assert.Contains(t, out.String(), `"state": "failed"`)
	assert.Contains(t, out.String(), "E: Unable to locate package")
}

func TestUpCmd(t *testing.T) {
	runner := &fakeRunner{}
	app, out := newTestApp(t, runner)

	require.NoError(t, run(app, "up", "--repo", "https://github.com/example/app.git", "--name", "dash", "-e", "TZ=UTC"))

	require.Len(t, runner.starts, 1)
	assert.Equal(t, bootstrap.StartOptions{Name: "dash", Env: []string{"TZ=UTC"}}, runner.starts[0])
	assert.Contains(t, out.String(), `"state": "running"`)
}

func TestRunCmd(t *testing.T) {
	runner := &fakeRunner{}
	app, out := newTestApp(t, runner)

	require.NoError(t, run(app, "run", "dashboard:1.0.0", "--pull"))

	require.Len(t, runner.specs, 1)
	assert.Equal(t, ports.RunSpec{Image: "dashboard:1.0.0", Port: 8501, Pull: true}, runner.specs[0])
	assert.Equal(t, "0123456789ab listening on 0.0.0.0:8501\n", out.String())
}

func TestConfiguredRecipe_RenderPlanAndBuildAgree(t *testing.T) {
	recipePath := filepath.Join(t.TempDir(), "recipe.yaml")
	require.NoError(t, os.WriteFile(recipePath, []byte("port: 9000\n"), 0o644))
	t.Setenv("LIGHTHOUSE_RECIPE_FILE", recipePath)

	app, rendered := newTestApp(t, &fakeRunner{})
	require.NoError(t, run(app, "render"))
	assert.Contains(t, rendered.String(), "EXPOSE 9000\n")

	app, planned := newTestApp(t, &fakeRunner{})
	require.NoError(t, run(app, "plan"))
	assert.Contains(t, planned.String(), "   EXPOSE 9000\n")

	runner := &fakeRunner{}
	app, _ = newTestApp(t, runner)
	require.NoError(t, run(app, "build", "--source", "./app"))
	require.Len(t, runner.inputs, 1)
	assert.Equal(t, 9000, runner.inputs[0].Recipe.Port)

	built, err := bootstrap.Render(runner.inputs[0].Recipe)
	require.NoError(t, err)
	assert.Equal(t, string(built), rendered.String())
}

func TestRunCmd_RejectsPortOverride(t *testing.T) {
	runner := &fakeRunner{}
	app, _ := newTestApp(t, runner)

	err := run(app, "run", "dashboard:1.0.0", "-e", "STREAMLIT_SERVER_PORT=9000")
	assert.ErrorIs(t, err, domain.ErrPortMismatch)
	assert.Empty(t, runner.specs)

	app, _ = newTestApp(t, runner)
	require.NoError(t, run(app, "run", "dashboard:1.0.0", "-e", "STREAMLIT_SERVER_PORT=8501"))
	require.Len(t, runner.specs, 1)
	assert.Equal(t, []string{"STREAMLIT_SERVER_PORT=8501"}, runner.specs[0].Env)
}

// chdir is the Go 1.21 equivalent of testing.T.Chdir (added in Go 1.24):
// it switches the working directory for the rest of the test and restores
// it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	t.Setenv("PWD", abs)
	require.NoError(t, os.Chdir(abs))
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}

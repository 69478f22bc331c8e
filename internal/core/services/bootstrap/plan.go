// Package bootstrap turns a recipe into an ordered build plan, renders it as a
// Dockerfile and drives a build through to a running container.
package bootstrap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/melih/lighthouse-boot/internal/core/domain"
)

// Step names, in execution order.
const (
	StepBaseImage    = "select-base"
	StepBootEnv      = "boot-env"
	StepWorkDir      = "workdir"
	StepOSPackages   = "os-packages"
	StepDependencies = "dependencies"
	StepSource       = "source"
	StepExpose       = "expose"
	StepRuntimeEnv   = "runtime-env"
	StepStart        = "start"
)

// Build context inputs a step can depend on.
const (
	InputManifest = "manifest"
	InputSource   = "source"
)

// Step is one stage of the bootstrap and the instructions it contributes.
type Step struct {
	Name         string   `json:"name"`
	Instructions []string `json:"instructions"`
	// Inputs are build context digests that feed this step's cache key.
	Inputs []string `json:"inputs,omitempty"`
}

// Plan lays out the nine bootstrap steps for r. The order is fixed: the boot
// environment precedes every RUN, and the manifest is installed before the
// rest of the source is copied so source edits keep the install layer cached.
func Plan(r domain.Recipe) []Step {
	return []Step{
		{Name: StepBaseImage, Instructions: []string{"FROM " + r.BaseImage}},
		{Name: StepBootEnv, Instructions: envInstruction(r.BootEnv)},
		{Name: StepWorkDir, Instructions: []string{"WORKDIR " + r.WorkDir}},
		{Name: StepOSPackages, Instructions: packageInstruction(r.OSPackages)},
		{
			Name: StepDependencies,
			Instructions: []string{
				fmt.Sprintf("COPY %s %s", r.Manifest, manifestDest(r.Manifest)),
				"RUN " + execForm(r.InstallCmd),
			},
			Inputs: []string{InputManifest},
		},
		{Name: StepSource, Instructions: []string{"COPY . ."}, Inputs: []string{InputSource}},
		{Name: StepExpose, Instructions: []string{"EXPOSE " + strconv.Itoa(r.Port)}},
		{Name: StepRuntimeEnv, Instructions: envInstruction(r.FrameworkEnv())},
		{Name: StepStart, Instructions: []string{"CMD " + execForm(r.Command())}},
	}
}

// Render validates r and produces its Dockerfile.
func Render(r domain.Recipe) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# generated by lighthouse for %s\n", r.Name)
	for _, step := range Plan(r) {
		for _, ins := range step.Instructions {
			buf.WriteString(ins)
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}

func envInstruction(env []domain.EnvVar) []string {
	if len(env) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(env))
	for _, e := range env {
		pairs = append(pairs, e.Key+"="+quoteEnv(e.Value))
	}
	return []string{"ENV " + strings.Join(pairs, " ")}
}

// envEscaper escapes what the Dockerfile parser interprets inside double quotes.
var envEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`)

func quoteEnv(v string) string {
	if v == "" || strings.ContainsAny(v, " \t\"'\\$") {
		return `"` + envEscaper.Replace(v) + `"`
	}
	return v
}

// packageInstruction installs and purges the package index in one RUN so the
// index never lands in a committed layer.
func packageInstruction(pkgs []string) []string {
	if len(pkgs) == 0 {
		return nil
	}
	return []string{
		"RUN apt-get update" +
			" && apt-get install -y --no-install-recommends " + strings.Join(pkgs, " ") +
			" && rm -rf /var/lib/apt/lists/*",
	}
}

func manifestDest(manifest string) string {
	dir := path.Dir(path.Clean(manifest))
	if dir == "." {
		return "./"
	}
	return dir + "/"
}

func execForm(args []string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// a []string always encodes
	_ = enc.Encode(args)
	return strings.TrimSpace(buf.String())
}

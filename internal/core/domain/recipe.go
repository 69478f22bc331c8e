package domain

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/distribution/reference"
	"github.com/go-playground/validator/v10"
)

// WildcardAddress binds a listener on every interface of the container namespace.
const WildcardAddress = "0.0.0.0"

var (
	ErrUnpinnedImage   = errors.New("base image must be pinned to an explicit tag or digest")
	ErrPortMismatch    = errors.New("start command port does not match exposed port")
	ErrLoopbackBind    = errors.New("bind address must be the wildcard address")
	ErrRelativeWorkDir = errors.New("working directory must be an absolute path")
	ErrDuplicateEnv    = errors.New("environment variable declared more than once")
	ErrLineBreak       = errors.New("value must not contain a line break")
	ErrInstallManifest = errors.New("install command does not reference the manifest")
)

// Manifest formats.
const (
	ManifestRequirements = "requirements"
	ManifestGoMod        = "go.mod"
)

var osPackagePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9+.:=~_-]*$`)

var validate = validator.New(validator.WithRequiredStructEnabled())

// EnvVar is a single baked environment variable. Order is preserved when rendered.
type EnvVar struct {
	Key   string `json:"key" yaml:"key" validate:"required"`
	Value string `json:"value" yaml:"value"`
}

// Recipe describes how a source tree becomes a running container.
// Fields are consumed by the bootstrap sequence in declaration order.
type Recipe struct {
	Name string `json:"name" yaml:"name" validate:"required"`

	// BaseImage is the pinned runtime image, e.g. python:3.11.9-slim.
	BaseImage string `json:"base_image" yaml:"base_image" validate:"required"`

	// BootEnv is set before any other step so every later tool inherits it.
	BootEnv []EnvVar `json:"boot_env" yaml:"boot_env" validate:"dive"`

	WorkDir string `json:"workdir" yaml:"workdir" validate:"required"`

	OSPackages []string `json:"os_packages" yaml:"os_packages" validate:"dive,required"`

	// Manifest is the dependency manifest path relative to the build context.
	Manifest string `json:"manifest" yaml:"manifest" validate:"required"`
	// ManifestFormat selects the manifest parser. Empty means requirements.
	ManifestFormat string `json:"manifest_format,omitempty" yaml:"manifest_format,omitempty" validate:"omitempty,oneof=requirements go.mod"`

	InstallCmd []string `json:"install_cmd" yaml:"install_cmd" validate:"required,min=1,dive,required"`

	Port int `json:"port" yaml:"port" validate:"min=1,max=65535"`

	// PortEnv names the variable advertising Port to in-process readers.
	PortEnv    string   `json:"port_env" yaml:"port_env"`
	RuntimeEnv []EnvVar `json:"runtime_env" yaml:"runtime_env" validate:"dive"`

	Entrypoint  []string `json:"entrypoint" yaml:"entrypoint" validate:"required,min=1,dive,required"`
	PortFlag    string   `json:"port_flag" yaml:"port_flag" validate:"required"`
	AddressFlag string   `json:"address_flag" yaml:"address_flag" validate:"required"`
	BindAddress string   `json:"bind_address" yaml:"bind_address" validate:"required,ip"`

	// StartPort overrides the port passed on the start command. Zero means Port.
	StartPort int `json:"start_port,omitempty" yaml:"start_port,omitempty"`
}

// DefaultRecipe returns the streamlit dashboard bootstrap.
func DefaultRecipe() Recipe {
	return Recipe{
		Name:      "dashboard",
		BaseImage: "python:3.11.9-slim",
		BootEnv: []EnvVar{
			{Key: "PYTHONDONTWRITEBYTECODE", Value: "1"},
			{Key: "PYTHONUNBUFFERED", Value: "1"},
		},
		WorkDir:    "/app",
		OSPackages: []string{"build-essential", "curl", "libpq-dev"},
		Manifest:   "requirements.txt",
		InstallCmd: []string{"pip", "install", "--no-cache-dir", "-r", "requirements.txt"},
		Port:       8501,
		PortEnv:    "STREAMLIT_SERVER_PORT",
		RuntimeEnv: []EnvVar{
			{Key: "STREAMLIT_BROWSER_GATHER_USAGE_STATS", Value: "false"},
			{Key: "STREAMLIT_SERVER_HEADLESS", Value: "true"},
		},
		Entrypoint:  []string{"streamlit", "run", "app.py"},
		PortFlag:    "--server.port",
		AddressFlag: "--server.address",
		BindAddress: WildcardAddress,
	}
}

// Validate checks field constraints and the cross-field contract between the
// exposed port, the advertised port and the start command.
func (r Recipe) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid recipe %q: %w", r.Name, err)
	}
	if err := checkPinned(r.BaseImage); err != nil {
		return err
	}
	if !path.IsAbs(r.WorkDir) {
		return fmt.Errorf("%w: %q", ErrRelativeWorkDir, r.WorkDir)
	}
	if r.BindAddress != WildcardAddress {
		return fmt.Errorf("%w: got %q", ErrLoopbackBind, r.BindAddress)
	}
	if r.StartPort != 0 && r.StartPort != r.Port {
		return fmt.Errorf("%w: exposed %d, start %d", ErrPortMismatch, r.Port, r.StartPort)
	}
	for field, v := range map[string]string{"name": r.Name, "workdir": r.WorkDir, "manifest": r.Manifest} {
		if hasLineBreak(v) {
			return fmt.Errorf("%w: %s %q", ErrLineBreak, field, v)
		}
	}
	for _, pkg := range r.OSPackages {
		if !osPackagePattern.MatchString(pkg) {
			return fmt.Errorf("invalid OS package name %q", pkg)
		}
	}
	if err := r.checkManifest(); err != nil {
		return err
	}

	seen := make(map[string]struct{})
	for _, env := range r.Env() {
		if env.Key == "" || strings.ContainsAny(env.Key, " =\t\r\n") {
			return fmt.Errorf("invalid environment key %q", env.Key)
		}
		if hasLineBreak(env.Value) {
			return fmt.Errorf("%w: %s", ErrLineBreak, env.Key)
		}
		if _, ok := seen[env.Key]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateEnv, env.Key)
		}
		seen[env.Key] = struct{}{}
	}
	return nil
}

// checkManifest ties the install command to the manifest the dependency step copies.
func (r Recipe) checkManifest() error {
	manifest := path.Clean(r.Manifest)
	if r.Format() == ManifestGoMod {
		if manifest != "go.mod" {
			return fmt.Errorf("go.mod manifest must sit at the context root, got %q", r.Manifest)
		}
		return nil
	}
	for _, arg := range r.InstallCmd {
		if path.Clean(arg) == manifest || strings.HasSuffix(arg, "="+manifest) || arg == "-r"+manifest {
			return nil
		}
	}
	return fmt.Errorf("%w: %q not in %q", ErrInstallManifest, r.Manifest, r.InstallCmd)
}

// Format is the manifest format with the default applied.
func (r Recipe) Format() string {
	if r.ManifestFormat == "" {
		return ManifestRequirements
	}
	return r.ManifestFormat
}

func hasLineBreak(s string) bool {
	return strings.ContainsAny(s, "\r\n")
}

func checkPinned(image string) error {
	named, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return fmt.Errorf("invalid base image %q: %w", image, err)
	}
	if _, ok := named.(reference.Digested); ok {
		return nil
	}
	tagged, ok := named.(reference.Tagged)
	if !ok || tagged.Tag() == "latest" {
		return fmt.Errorf("%w: %q", ErrUnpinnedImage, image)
	}
	return nil
}

// EffectiveStartPort is the port the start command binds.
func (r Recipe) EffectiveStartPort() int {
	if r.StartPort != 0 {
		return r.StartPort
	}
	return r.Port
}

// FrameworkEnv is the runtime env block: the advertised port first, then RuntimeEnv.
func (r Recipe) FrameworkEnv() []EnvVar {
	env := make([]EnvVar, 0, len(r.RuntimeEnv)+1)
	if r.PortEnv != "" {
		env = append(env, EnvVar{Key: r.PortEnv, Value: strconv.Itoa(r.Port)})
	}
	return append(env, r.RuntimeEnv...)
}

// Env is every variable baked into the image, in the order it is set.
func (r Recipe) Env() []EnvVar {
	env := make([]EnvVar, 0, len(r.BootEnv)+len(r.RuntimeEnv)+1)
	env = append(env, r.BootEnv...)
	return append(env, r.FrameworkEnv()...)
}

// Command is the exec-form start command with explicit port and address flags.
func (r Recipe) Command() []string {
	cmd := make([]string, 0, len(r.Entrypoint)+2)
	cmd = append(cmd, r.Entrypoint...)
	return append(cmd,
		fmt.Sprintf("%s=%d", r.PortFlag, r.EffectiveStartPort()),
		fmt.Sprintf("%s=%s", r.AddressFlag, r.BindAddress),
	)
}

// CheckPortOverrides rejects KEY=VALUE start-time overrides that would
// advertise a port other than the one the image exposes.
func CheckPortOverrides(portEnv string, port int, env []string) error {
	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("malformed environment override %q", kv)
		}
		if portEnv == "" || key != portEnv {
			continue
		}
		if value != strconv.Itoa(port) {
			return fmt.Errorf("%w: %s=%s but image exposes %d", ErrPortMismatch, key, value, port)
		}
	}
	return nil
}

// ValidateBind checks the arguments an entry point receives at start time.
// declared is the value of the advertised port variable, empty when unset.
func ValidateBind(port int, address, declared string) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d out of range", port)
	}
	if address == "" {
		return errors.New("bind address is required")
	}
	if declared == "" {
		return nil
	}
	want, err := strconv.Atoi(declared)
	if err != nil {
		return fmt.Errorf("declared port %q is not a number: %w", declared, err)
	}
	if want != port {
		return fmt.Errorf("%w: declared %d, start %d", ErrPortMismatch, want, port)
	}
	return nil
}

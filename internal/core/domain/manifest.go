package domain

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/mod/modfile"
)

var (
	ErrUnpinnedRequirement  = errors.New("requirement is not pinned with ==")
	ErrDuplicateRequirement = errors.New("requirement listed more than once")
	ErrEmptyManifest        = errors.New("manifest declares no requirements")
	ErrLocalReplace         = errors.New("replace directive points outside the module cache")
)

var (
	requirementPattern = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)(\[[A-Za-z0-9,._ -]*\])?\s*(===|==|~=|!=|<=|>=|<|>)?\s*(.*)$`)
	separatorRun       = regexp.MustCompile(`[-_.]+`)
)

// Requirement is one pinned dependency from the manifest.
type Requirement struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Extras  string `json:"extras,omitempty"`
}

func (r Requirement) String() string {
	return r.Name + r.Extras + "==" + r.Version
}

// Manifest is the ordered dependency list read from the manifest file.
type Manifest struct {
	Path         string        `json:"path"`
	Requirements []Requirement `json:"requirements"`
}

// ParseManifestFile reads and parses the manifest at path.
func ParseManifestFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	m, err := ParseManifest(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// ReadManifest reads the manifest at path in the given format.
func ReadManifest(path, format string) (*Manifest, error) {
	switch format {
	case "", ManifestRequirements:
		return ParseManifestFile(path)
	case ManifestGoMod:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open manifest: %w", err)
		}
		m, err := ParseGoMod(path, data)
		if err != nil {
			return nil, err
		}
		m.Path = path
		return m, nil
	}
	return nil, fmt.Errorf("unknown manifest format %q", format)
}

// ParseGoMod reads the require block of a go.mod. Module versions are exact by
// construction; a replace onto a local directory is rejected because the
// directory is not in the context when dependencies are downloaded.
func ParseGoMod(name string, data []byte) (*Manifest, error) {
	f, err := modfile.Parse(name, data, nil)
	if err != nil {
		return nil, err
	}
	for _, rep := range f.Replace {
		if rep.New.Version == "" {
			return nil, fmt.Errorf("line %d: %w: %s => %s", rep.Syntax.Start.Line, ErrLocalReplace, rep.Old.Path, rep.New.Path)
		}
	}

	m := &Manifest{}
	seen := make(map[string]int)
	for _, req := range f.Require {
		line := req.Syntax.Start.Line
		if prev, ok := seen[req.Mod.Path]; ok {
			return nil, fmt.Errorf("line %d: %w: %s (first on line %d)", line, ErrDuplicateRequirement, req.Mod.Path, prev)
		}
		seen[req.Mod.Path] = line
		m.Requirements = append(m.Requirements, Requirement{Name: req.Mod.Path, Version: req.Mod.Version})
	}
	return m, nil
}

// ParseManifest parses a requirements-style manifest. Every entry must be pinned
// to an exact version; ranges, wildcards and installer options are rejected so
// that an install never resolves to something the manifest did not name.
func ParseManifest(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	seen := make(map[string]int)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		// environment markers do not change the pin
		if i := strings.Index(line, ";"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "-") {
			return nil, fmt.Errorf("line %d: installer option %q is not supported", lineNo, line)
		}

		req, err := parseRequirement(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if prev, ok := seen[req.Name]; ok {
			return nil, fmt.Errorf("line %d: %w: %s (first on line %d)", lineNo, ErrDuplicateRequirement, req.Name, prev)
		}
		seen[req.Name] = lineNo
		m.Requirements = append(m.Requirements, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if len(m.Requirements) == 0 {
		return nil, ErrEmptyManifest
	}
	return m, nil
}

func parseRequirement(line string) (Requirement, error) {
	match := requirementPattern.FindStringSubmatch(line)
	if match == nil {
		return Requirement{}, fmt.Errorf("malformed requirement %q", line)
	}
	name, extras, op, version := match[1], match[2], match[3], strings.TrimSpace(match[4])
	if op != "==" && op != "===" {
		return Requirement{}, fmt.Errorf("%w: %q", ErrUnpinnedRequirement, line)
	}
	if version == "" || strings.ContainsAny(version, "*, ") {
		return Requirement{}, fmt.Errorf("%w: %q", ErrUnpinnedRequirement, line)
	}
	return Requirement{
		Name:    NormalizeName(name),
		Version: version,
		Extras:  extras,
	}, nil
}

// NormalizeName folds a package name so that Foo_Bar and foo-bar compare equal.
func NormalizeName(name string) string {
	return separatorRun.ReplaceAllString(strings.ToLower(name), "-")
}

// Set returns name -> version for every requirement.
func (m *Manifest) Set() map[string]string {
	set := make(map[string]string, len(m.Requirements))
	for _, req := range m.Requirements {
		set[req.Name] = req.Version
	}
	return set
}

// Fingerprint identifies the installed dependency set independent of line order
// and formatting.
func (m *Manifest) Fingerprint() string {
	lines := make([]string, 0, len(m.Requirements))
	for _, req := range m.Requirements {
		lines = append(lines, req.String())
	}
	sort.Strings(lines)
	return strconv.FormatUint(xxhash.Sum64String(strings.Join(lines, "\n")), 16)
}

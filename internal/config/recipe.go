package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/melih/lighthouse-boot/internal/core/domain"
)

// LoadRecipe returns the default recipe overlaid with the YAML file at path.
// Fields absent from the file keep their defaults; lists in the file replace
// the default lists. An empty path returns the default recipe.
func LoadRecipe(path string) (domain.Recipe, error) {
	recipe := domain.DefaultRecipe()
	if path == "" {
		return recipe, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return recipe, fmt.Errorf("failed to read recipe: %w", err)
	}
	return ParseRecipe(data)
}

// ParseRecipe overlays YAML data on the default recipe and validates the result.
func ParseRecipe(data []byte) (domain.Recipe, error) {
	recipe := domain.DefaultRecipe()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&recipe); err != nil && !errors.Is(err, io.EOF) {
		return recipe, fmt.Errorf("failed to parse recipe: %w", err)
	}
	if err := recipe.Validate(); err != nil {
		return recipe, err
	}
	return recipe, nil
}

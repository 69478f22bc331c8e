package bootstrap

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/melih/lighthouse-boot/internal/core/domain"
)

// LayerKeys chains each step's instructions with the digests of its inputs.
// A change to one step invalidates that step and every later one, which is
// how the daemon decides whether a cached layer can be reused.
func LayerKeys(steps []Step, digests map[string]string) []domain.Layer {
	layers := make([]domain.Layer, 0, len(steps))
	parent := ""
	for _, step := range steps {
		h := xxhash.New()
		h.WriteString(parent)
		h.WriteString("\x00" + step.Name)
		for _, ins := range step.Instructions {
			h.WriteString("\x00" + ins)
		}
		for _, in := range step.Inputs {
			h.WriteString("\x00" + in + "=" + digests[in])
		}
		key := strconv.FormatUint(h.Sum64(), 16)
		layers = append(layers, domain.Layer{Step: step.Name, Key: key})
		parent = key
	}
	return layers
}

package pipeline

import (
	"fmt"

	"github.com/stitts-dev/pick-research/internal/catalog"
	"github.com/stitts-dev/pick-research/internal/models"
	"github.com/stitts-dev/pick-research/pkg/config"
)

// FilterFor maps a generator's candidate loading strategy onto a catalog filter.
func FilterFor(gen config.GeneratorConfig) catalog.Filter {
	f := catalog.Filter{IncludeAlt: gen.IncludeAltLines}
	for _, k := range gen.EntityKinds {
		f.Kinds = append(f.Kinds, models.EntityKind(k))
	}
	return f
}

// ResolveGenerator looks up a generator by name. An unknown name is a setup error.
func ResolveGenerator(gens map[string]config.GeneratorConfig, name string) (config.GeneratorConfig, error) {
	gen, ok := gens[name]
	if !ok {
		return config.GeneratorConfig{}, &config.SetupError{
			Field:  "generator",
			Reason: fmt.Sprintf("%q is not defined (have %v)", name, config.GeneratorNames(gens)),
		}
	}
	return gen, nil
}

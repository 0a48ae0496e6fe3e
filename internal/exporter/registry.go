package exporter

import (
	"fmt"
	"sort"
)

// Constructor builds an Exporter from its resolved configuration.
// Constructors validate settings and return user-facing errors naming the
// offending field.
type Constructor func(cfg Config) (Exporter, error)

var registry = map[string]Constructor{}

// Register adds an exporter constructor under the given sink type.
// Sink packages call this from init.
func Register(typ string, ctor Constructor) {
	registry[typ] = ctor
}

// Get returns the constructor for the given sink type.
func Get(typ string) (Constructor, error) {
	ctor, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("unknown exporter type: %s", typ)
	}
	return ctor, nil
}

// Types returns the registered sink types, sorted.
func Types() []string {
	types := make([]string, 0, len(registry))
	for typ := range registry {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

// Build constructs an Exporter per config entry. The first constructor
// failure aborts the build and closes any exporters already constructed, so
// a bad config never leaks half a set.
func Build(cfgs []Config) ([]Exporter, error) {
	built := make([]Exporter, 0, len(cfgs))
	for _, cfg := range cfgs {
		ctor, err := Get(cfg.Type)
		if err != nil {
			closeAll(built)
			return nil, fmt.Errorf("exporter %q: %w", cfg.Name, err)
		}
		exp, err := ctor(cfg)
		if err != nil {
			closeAll(built)
			return nil, err
		}
		built = append(built, exp)
	}
	return built, nil
}

func closeAll(exps []Exporter) {
	for _, exp := range exps {
		exp.Close()
	}
}

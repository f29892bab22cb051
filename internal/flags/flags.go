// Package flags gates optional site features. Flags are read-only after
// initialization and unknown names read as disabled.
package flags

import (
	"maps"
	"sort"

	"github.com/zjrosen/milspecs/internal/log"
)

const (
	// FlagToolsExpansion registers the MIL-STD-202/883 and superseding
	// lookup tools.
	FlagToolsExpansion = "tools-expansion"

	// FlagSTPViewer enables the standard test procedure viewer route. While
	// off, /specs/stp resolves to the not-found page.
	FlagSTPViewer = "stp-viewer"

	// FlagInflightDedup shares one loader call between concurrent loads of
	// the same registry member.
	FlagInflightDedup = "inflight-dedup"
)

// Defaults returns the flag values used when configuration sets none.
func Defaults() map[string]bool {
	return map[string]bool{
		FlagToolsExpansion: true,
		FlagSTPViewer:      false,
		FlagInflightDedup:  true,
	}
}

// Registry holds the flag state.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from a config map. A nil map disables every flag.
func New(flags map[string]bool) *Registry {
	r := &Registry{flags: make(map[string]bool, len(flags))}
	maps.Copy(r.flags, flags)
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(r.flags), "enabled", r.EnabledNames())
	return r
}

// WithDefaults creates a Registry from Defaults overlaid with flags.
func WithDefaults(flags map[string]bool) *Registry {
	merged := Defaults()
	maps.Copy(merged, flags)
	return New(merged)
}

// Enabled reports whether the named flag is on. Unknown flags and a nil
// registry read as off.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	value, exists := r.flags[name]
	if !exists {
		log.Debug(log.CatConfig, "Unknown flag accessed", "flag", name)
		return false
	}
	return value
}

// All returns a copy of every flag.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return make(map[string]bool)
	}
	return maps.Clone(r.flags)
}

// EnabledNames returns the enabled flags sorted by name.
func (r *Registry) EnabledNames() []string {
	var names []string
	for name, on := range r.All() {
		if on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

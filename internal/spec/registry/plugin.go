package registry

import (
	"context"
	"time"

	"github.com/a-h/templ"

	"github.com/zjrosen/milspecs/internal/lazy"
	"github.com/zjrosen/milspecs/internal/router"
	"github.com/zjrosen/milspecs/internal/spec/adapter"
)

// Defaults applied to optional plugin fields at registration.
const (
	DefaultVersion = "1.0"
	DefaultIcon    = "mdi-file-document"
)

// DataLoader fetches the raw data of one named section of a spec.
type DataLoader interface {
	LoadSection(ctx context.Context, section string) (any, error)
}

// DataLoaderFunc adapts a function to DataLoader.
type DataLoaderFunc func(ctx context.Context, section string) (any, error)

// LoadSection implements DataLoader.
func (f DataLoaderFunc) LoadSection(ctx context.Context, section string) (any, error) {
	return f(ctx, section)
}

// Plugin is one spec bundle: its metadata, routes, lazily loaded views and
// services, data loader and adapter.
type Plugin struct {
	ID               string                                 `json:"id"`
	Name             string                                 `json:"name"`
	Version          string                                 `json:"version"`
	Description      string                                 `json:"description"`
	Icon             string                                 `json:"icon"`
	Routes           []router.Route                         `json:"routes"`
	Components       map[string]lazy.Value[templ.Component] `json:"-"`
	Composables      map[string]lazy.Value[any]             `json:"-"`
	DataLoader       DataLoader                             `json:"-"`
	Adapter          adapter.Adapter                        `json:"-"`
	FieldDefinitions any                                    `json:"fieldDefinitions"`
	IsDefault        bool                                   `json:"isDefault"`
	RegisteredAt     time.Time                              `json:"registeredAt"`
}

// ComponentNames returns the declared component names.
func (p *Plugin) ComponentNames() []string {
	return sortedKeys(p.Components)
}

// ComposableNames returns the declared composable names.
func (p *Plugin) ComposableNames() []string {
	return sortedKeys(p.Composables)
}

// normalized returns a copy with optional fields defaulted. Maps and slices
// are copied so later changes to the caller's plugin do not leak into the
// registry.
func (p *Plugin) normalized(now time.Time) *Plugin {
	out := *p
	if out.Name == "" {
		out.Name = out.ID
	}
	if out.Version == "" {
		out.Version = DefaultVersion
	}
	if out.Icon == "" {
		out.Icon = DefaultIcon
	}

	out.Routes = append([]router.Route{}, p.Routes...)

	out.Components = make(map[string]lazy.Value[templ.Component], len(p.Components))
	for k, v := range p.Components {
		out.Components[k] = v
	}
	out.Composables = make(map[string]lazy.Value[any], len(p.Composables))
	for k, v := range p.Composables {
		out.Composables[k] = v
	}

	if out.FieldDefinitions == nil {
		out.FieldDefinitions = map[string]any{}
	}
	out.RegisteredAt = now
	return &out
}

// Entry is an index record of one component or composable.
type Entry[T any] struct {
	SpecID string
	Name   string
	Loader lazy.Value[T]
	Loaded bool
	Value  T
}

// Stats summarizes registry contents.
type Stats struct {
	TotalSpecs       int      `json:"totalSpecs"`
	TotalComponents  int      `json:"totalComponents"`
	TotalComposables int      `json:"totalComposables"`
	TotalRoutes      int      `json:"totalRoutes"`
	Specs            []string `json:"specs"`
}

// Tool is a /tools/ route paired with the spec its path names.
type Tool struct {
	router.Route
	SpecID string `json:"specId"`
}

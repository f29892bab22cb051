// Package plugins holds what the built-in spec bundles share: their
// dependencies and the bundle function type the loader resolves.
package plugins

import (
	"context"

	"github.com/zjrosen/milspecs/internal/spec/adapter"
	"github.com/zjrosen/milspecs/internal/spec/registry"
	"github.com/zjrosen/milspecs/internal/specstore"
)

// Deps are the services bundles are built from.
type Deps struct {
	// Source serves spec data files (embedded datasets, overrides, remote).
	Source adapter.Source
	// Store caches section rows for the views and services.
	Store *specstore.Store
}

// Bundle produces one plugin. Bundles may do I/O, so the loader resolves
// them concurrently.
type Bundle func(ctx context.Context) (*registry.Plugin, error)

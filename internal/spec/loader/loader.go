// Package loader bootstraps the spec registry from plugin bundles.
package loader

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/milspecs/internal/flags"
	"github.com/zjrosen/milspecs/internal/log"
	"github.com/zjrosen/milspecs/internal/spec/plugins"
	"github.com/zjrosen/milspecs/internal/spec/plugins/dd2326"
	"github.com/zjrosen/milspecs/internal/spec/plugins/milstd2073"
	"github.com/zjrosen/milspecs/internal/spec/plugins/toolsexpansion"
	"github.com/zjrosen/milspecs/internal/spec/registry"
)

// Builtins returns the bundles shipped with the site, in registration
// order. The tools expansion bundle is gated by its feature flag.
func Builtins(deps plugins.Deps, fl *flags.Registry) []plugins.Bundle {
	bundles := []plugins.Bundle{
		milstd2073.Bundle(deps),
		dd2326.Bundle(deps),
	}
	if fl.Enabled(flags.FlagToolsExpansion) {
		bundles = append(bundles, toolsexpansion.Bundle(deps))
	}
	return bundles
}

// LoadSpecPlugins resolves bundles concurrently and registers the ones that
// succeed in the order they were given. Failures and panics are logged and
// the bundle skipped. The registered plugins are returned.
func LoadSpecPlugins(ctx context.Context, reg *registry.Registry, bundles ...plugins.Bundle) []*registry.Plugin {
	start := time.Now()
	resolved := make([]*registry.Plugin, len(bundles))

	var g errgroup.Group
	for i, bundle := range bundles {
		g.Go(func() error {
			p, err := resolve(ctx, bundle)
			if err != nil {
				log.ErrorErr(log.CatLoader, "Error loading plugin bundle", err, "index", i)
				return nil
			}
			resolved[i] = p
			return nil
		})
	}
	_ = g.Wait()

	loaded := make([]*registry.Plugin, 0, len(resolved))
	for _, p := range resolved {
		if p == nil {
			continue
		}
		RegisterSpecPlugin(reg, p)
		loaded = append(loaded, p)
	}

	log.Info(log.CatLoader, "Spec plugins loaded", "loaded", len(loaded), "bundles", len(bundles), "duration", time.Since(start))
	return loaded
}

func resolve(ctx context.Context, bundle plugins.Bundle) (p *registry.Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bundle panicked: %v", r)
		}
	}()
	if bundle == nil {
		return nil, fmt.Errorf("nil bundle")
	}
	return bundle(ctx)
}

// RegisterSpecPlugin registers a single plugin.
func RegisterSpecPlugin(reg *registry.Registry, p *registry.Plugin) {
	reg.Register(p)
}

// Package toolsexpansion contributes the test method and superseding lookup
// tools, which render placeholder pages until their data lands.
package toolsexpansion

import (
	"context"

	"github.com/a-h/templ"

	"github.com/zjrosen/milspecs/internal/lazy"
	"github.com/zjrosen/milspecs/internal/router"
	"github.com/zjrosen/milspecs/internal/spec/plugins"
	"github.com/zjrosen/milspecs/internal/spec/registry"
	"github.com/zjrosen/milspecs/internal/views"
)

// ID is the plugin id, also the feature flag gating the bundle.
const ID = "tools-expansion"

type tool struct {
	path, name, title, description string
}

var tools = []tool{
	{"/tools/mil-std-202", "mil-std-202-tool", "MIL-STD-202 Viewer", "Test Method Standard for Electronic Parts"},
	{"/tools/mil-std-883", "mil-std-883", "MIL-STD-883", "Test Methods and Procedures for Microelectronics"},
	{"/tools/superseding-lookup", "superseding-lookup", "Spec Superseding Lookup", "Check if a specification has been superseded"},
}

// Bundle returns the tools expansion plugin bundle.
func Bundle(plugins.Deps) plugins.Bundle {
	return func(ctx context.Context) (*registry.Plugin, error) {
		routes := make([]router.Route, 0, len(tools))
		for _, t := range tools {
			routes = append(routes, router.Route{
				Path: t.path,
				Name: t.name,
				View: lazy.Lazy(func(context.Context) (templ.Component, error) {
					return views.ToolPlaceholder(t.title, t.description), nil
				}),
				Meta: router.Meta{Title: t.title + " - " + router.SiteTitle, ToolID: t.name},
			})
		}

		return &registry.Plugin{
			ID:          ID,
			Name:        "Tools Expansion",
			Version:     "1.0",
			Description: "Additional utility tools for MIL-STD-202 and Spec Superseding",
			Icon:        "mdi-toolbox",
			Routes:      routes,
		}, nil
	}
}

// Package dd2326 is the DD Form 2326 bundle: the generator and decoder
// tools and the form reference page.
package dd2326

import (
	"context"

	"github.com/a-h/templ"

	"github.com/zjrosen/milspecs/internal/lazy"
	"github.com/zjrosen/milspecs/internal/router"
	"github.com/zjrosen/milspecs/internal/spec/adapter"
	"github.com/zjrosen/milspecs/internal/spec/plugins"
	"github.com/zjrosen/milspecs/internal/spec/registry"
	"github.com/zjrosen/milspecs/internal/views"
)

// Route paths.
const (
	GeneratorPath = "/tools/dd2326/generator"
	DecoderPath   = "/tools/dd2326/decoder"
	ReferencePath = "/specs/dd2326"
)

// Bundle returns the DD Form 2326 plugin bundle. Field definitions come from
// the data source override when present.
func Bundle(deps plugins.Deps) plugins.Bundle {
	return func(ctx context.Context) (*registry.Plugin, error) {
		a := adapter.NewDD2326Adapter(deps.Source)
		if _, err := a.LoadData(ctx); err != nil {
			return nil, err
		}
		svc := NewService(a)

		resolved := func(c templ.Component) lazy.Value[templ.Component] {
			return lazy.Lazy(func(context.Context) (templ.Component, error) { return c, nil })
		}

		return &registry.Plugin{
			ID:          adapter.DD2326ID,
			Name:        adapter.DD2326Name,
			Version:     adapter.DD2326Version,
			Description: "DoD Preservation and Packing Data Form",
			Icon:        "mdi-file-document",
			Routes: []router.Route{
				{
					Path: GeneratorPath,
					Name: "dd2326-generator",
					View: resolved(svc.GeneratorPage()),
					Meta: router.Meta{Title: "DD Form 2326 Generator - " + router.SiteTitle, ToolID: "dd2326-generator"},
				},
				{
					Path: DecoderPath,
					Name: "dd2326-decoder",
					View: resolved(svc.DecoderPage()),
					Meta: router.Meta{Title: "DD Form 2326 Decoder - " + router.SiteTitle, ToolID: "dd2326-decoder"},
				},
				{
					Path: ReferencePath,
					Name: "dd2326-spec",
					View: resolved(svc.ReferencePage()),
					Meta: router.Meta{Title: "DD Form 2326 Reference - " + router.SiteTitle, SpecID: adapter.DD2326ID},
				},
			},
			Components: map[string]lazy.Value[templ.Component]{
				"DD2326Form":    resolved(svc.GeneratorPage()),
				"DD2326Header":  resolved(views.DD2326Header()),
				"DD2326Footer":  resolved(views.DD2326Footer()),
				"FormGridInput": resolved(svc.FieldGrid()),
				"RawDataGrid":   resolved(svc.RawGrid()),
			},
			Composables: map[string]lazy.Value[any]{
				"useDD2326": lazy.Resolved[any](svc),
			},
			DataLoader: registry.DataLoaderFunc(func(ctx context.Context, section string) (any, error) {
				return a.Fields(), nil
			}),
			Adapter:          a,
			FieldDefinitions: a.Fields(),
		}, nil
	}
}

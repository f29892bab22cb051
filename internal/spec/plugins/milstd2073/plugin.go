// Package milstd2073 is the MIL-STD-2073 packaging standard bundle.
package milstd2073

import (
	"context"

	"github.com/a-h/templ"

	"github.com/zjrosen/milspecs/internal/lazy"
	"github.com/zjrosen/milspecs/internal/router"
	"github.com/zjrosen/milspecs/internal/spec/adapter"
	"github.com/zjrosen/milspecs/internal/spec/plugins"
	"github.com/zjrosen/milspecs/internal/spec/registry"
)

// Path is the spec viewer route.
const Path = "/specs/" + adapter.MilSpecID

// Column describes one table column of a section.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Width string `json:"width"`
}

// FieldDefinitions returns the table columns of the sections that have
// curated labels.
func FieldDefinitions() map[string][]Column {
	return map[string][]Column{
		"methods": {
			{Key: "code", Label: "Method Code", Width: "100px"},
			{Key: "description", Label: "Description", Width: "400px"},
			{Key: "category", Label: "Category", Width: "120px"},
			{Key: "specReference", Label: "MIL-STD Reference", Width: "120px"},
		},
		"cleaning": {
			{Key: "code", Label: "Code", Width: "100px"},
			{Key: "description", Label: "Description", Width: "500px"},
			{Key: "type", Label: "Type", Width: "150px"},
		},
		"preservation": {
			{Key: "code", Label: "Code", Width: "100px"},
			{Key: "description", Label: "Description", Width: "400px"},
			{Key: "materialType", Label: "Material Type", Width: "150px"},
			{Key: "application", Label: "Application", Width: "200px"},
		},
	}
}

// Bundle returns the MIL-STD-2073 plugin bundle.
func Bundle(deps plugins.Deps) plugins.Bundle {
	return func(ctx context.Context) (*registry.Plugin, error) {
		a := adapter.NewMilSpecAdapter(deps.Source)
		svc := NewService(a, deps.Store)

		page := lazy.Lazy(func(ctx context.Context) (templ.Component, error) {
			return svc.Page(), nil
		})

		return &registry.Plugin{
			ID:          adapter.MilSpecID,
			Name:        adapter.MilSpecName,
			Version:     adapter.MilSpecVersion,
			Description: "Military Packaging Standard - Preservation, Packing, and Marking",
			Icon:        "mdi-package-variant",
			IsDefault:   true,
			Routes: []router.Route{{
				Path: Path,
				Name: adapter.MilSpecID,
				View: page,
				Meta: router.Meta{Title: "MIL-STD-2073 Viewer - " + router.SiteTitle, SpecID: adapter.MilSpecID},
			}},
			Components: map[string]lazy.Value[templ.Component]{
				"SpecTable": page,
			},
			Composables: map[string]lazy.Value[any]{
				"useMilSpec": lazy.Resolved[any](svc),
			},
			DataLoader: registry.DataLoaderFunc(func(ctx context.Context, section string) (any, error) {
				return a.LoadSectionData(ctx, section)
			}),
			Adapter:          a,
			FieldDefinitions: FieldDefinitions(),
		}, nil
	}
}

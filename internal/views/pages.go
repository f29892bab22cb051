package views

import (
	"context"

	"github.com/a-h/templ"
)

// SpecCard summarizes a registered spec on the index pages.
type SpecCard struct {
	ID          string
	Name        string
	Version     string
	Description string
	Icon        string
	Path        string
}

// ToolLink is one entry of the tools index.
type ToolLink struct {
	Name   string
	Title  string
	Path   string
	SpecID string
}

// Home is the landing page listing the registered specs.
func Home(specs func(ctx context.Context) []SpecCard) templ.Component {
	return component(func(ctx context.Context, w *writer) {
		w.raw("<section class=\"hero\"><h1>")
		w.text("Military packaging specifications")
		w.raw("</h1><p>")
		w.text("Reference tables and form tools for packaging and preservation data.")
		w.raw("</p></section>")
		specCards(ctx, w, specs)
	})
}

// SpecsIndex lists every registered spec.
func SpecsIndex(specs func(ctx context.Context) []SpecCard) templ.Component {
	return component(func(ctx context.Context, w *writer) {
		w.raw("<h1>Specifications</h1>")
		specCards(ctx, w, specs)
	})
}

func specCards(ctx context.Context, w *writer, specs func(ctx context.Context) []SpecCard) {
	var cards []SpecCard
	if specs != nil {
		cards = specs(ctx)
	}
	if len(cards) == 0 {
		w.raw("<p class=\"empty\">No specifications are registered.</p>")
		return
	}
	w.raw("<ul class=\"spec-cards\">")
	for _, c := range cards {
		w.rawf("<li class=\"spec-card\" data-spec=\"%s\"><i class=\"mdi %s\"></i>", attr(c.ID), attr(c.Icon))
		w.rawf("<a href=\"%s\">", attr(c.Path))
		w.text(c.Name)
		w.raw("</a> <span class=\"version\">v")
		w.text(c.Version)
		w.raw("</span>")
		if c.Description != "" {
			w.raw("<p>")
			w.text(c.Description)
			w.raw("</p>")
		}
		w.raw("</li>")
	}
	w.raw("</ul>")
}

// ToolsIndex lists every tool route plugins contributed.
func ToolsIndex(tools func(ctx context.Context) []ToolLink) templ.Component {
	return component(func(ctx context.Context, w *writer) {
		w.raw("<h1>Tools</h1>")
		var links []ToolLink
		if tools != nil {
			links = tools(ctx)
		}
		if len(links) == 0 {
			w.raw("<p class=\"empty\">No tools are available.</p>")
			return
		}
		w.raw("<ul class=\"tools\">")
		for _, l := range links {
			w.rawf("<li data-spec=\"%s\"><a href=\"%s\">", attr(l.SpecID), attr(l.Path))
			w.text(l.Title)
			w.raw("</a></li>")
		}
		w.raw("</ul>")
	})
}

// About describes the site.
func About() templ.Component {
	return component(func(ctx context.Context, w *writer) {
		w.raw("<h1>About</h1><p>")
		w.text("mil-specs.com collects military packaging specification data and the tools to work with it.")
		w.raw("</p>")
	})
}

// NotFound is rendered for unknown and disabled paths.
func NotFound() templ.Component {
	return component(func(ctx context.Context, w *writer) {
		w.raw("<h1>Page Not Found</h1><p><a href=\"/\">")
		w.text("Back to home")
		w.raw("</a></p>")
	})
}

// ToolPlaceholder stands in for a tool that has a route but no
// implementation yet.
func ToolPlaceholder(title, description string) templ.Component {
	return component(func(ctx context.Context, w *writer) {
		w.raw("<section class=\"tool-placeholder\"><h1>")
		w.text(title)
		w.raw("</h1><p>")
		w.text(description)
		w.raw("</p><p class=\"coming-soon\">Coming soon</p></section>")
	})
}

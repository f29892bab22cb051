// Package router owns the site route tree: its static sections, the merge of
// plugin-declared routes into those sections, and the HTTP handler that
// resolves a request path to a view.
package router

import (
	"errors"
	"strings"

	"github.com/a-h/templ"

	"github.com/zjrosen/milspecs/internal/lazy"
)

// Section names of the static tree that accept plugin routes.
const (
	SectionTools = "tools"
	SectionSpecs = "specs"
)

// Path prefixes routed into the matching section.
const (
	ToolsPrefix = "/tools/"
	SpecsPrefix = "/specs/"
)

// NotFoundName is the name of the catch-all route.
const NotFoundName = "not-found"

// ErrSectionNotFound is returned when appending to a section the tree does
// not have.
var ErrSectionNotFound = errors.New("router: section not found")

// Meta carries per-route page metadata.
type Meta struct {
	Title    string `json:"title,omitempty"`
	SpecID   string `json:"specId,omitempty"`
	ToolID   string `json:"toolId,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// Route is one page of the site. Paths are absolute; a segment starting with
// ':' matches any single segment and binds it by name. Redirect targets may
// reference bound segments the same way.
type Route struct {
	Path     string                      `json:"path"`
	Name     string                      `json:"name"`
	View     lazy.Value[templ.Component] `json:"-"`
	Meta     Meta                        `json:"meta"`
	Children []Route                     `json:"children,omitempty"`
	Redirect string                      `json:"redirect,omitempty"`
}

// Router is the external route tree plugin routes are spliced into.
type Router interface {
	// AppendChild adds route under the named section unless a child with the
	// same path exists. added reports whether the route was appended.
	AppendChild(section string, route Route) (added bool, err error)
}

// RouteSource supplies the routes to merge, in registration order.
type RouteSource interface {
	GetAllRoutes() []Route
}

// SectionFor returns the section a plugin route belongs to, or "" when the
// path is under neither /specs/ nor /tools/.
func SectionFor(path string) string {
	switch {
	case strings.HasPrefix(path, SpecsPrefix):
		return SectionSpecs
	case strings.HasPrefix(path, ToolsPrefix):
		return SectionTools
	default:
		return ""
	}
}

package router

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/a-h/templ"
	"golang.org/x/sync/singleflight"

	"github.com/zjrosen/milspecs/internal/lazy"
)

// SiteTitle is used when a route has no title of its own.
const SiteTitle = "mil-specs.com"

// StaticViews are the pages the tree declares itself.
type StaticViews struct {
	Home       templ.Component
	ToolsIndex templ.Component
	SpecsIndex templ.Component
	About      templ.Component
	NotFound   templ.Component
	// STP enables /specs/stp. While nil the route stays disabled.
	STP templ.Component
}

// Match is the outcome of resolving a request path.
type Match struct {
	Route   Route
	Params  map[string]string
	Section string
	Query   url.Values
}

// Tree is the site router. Top-level routes are matched after the children
// of the tools and specs sections, and the not-found route last.
type Tree struct {
	mu       sync.RWMutex
	routes   []Route
	notFound Route

	viewMu  sync.Mutex
	views   map[string]templ.Component
	loading singleflight.Group
}

var _ Router = (*Tree)(nil)

func view(c templ.Component) lazy.Value[templ.Component] {
	if c == nil {
		return lazy.Value[templ.Component]{}
	}
	return lazy.Resolved(c)
}

// NewTree builds the static site layout: home, the tools and specs sections,
// about, the legacy redirects and the not-found catch-all.
func NewTree(v StaticViews) *Tree {
	notFound := Route{
		Path: "/:pathMatch(.*)*",
		Name: NotFoundName,
		View: view(v.NotFound),
		Meta: Meta{Title: "Page Not Found - " + SiteTitle},
	}

	return &Tree{
		views:    make(map[string]templ.Component),
		notFound: notFound,
		routes: []Route{
			{Path: "/", Name: "home", View: view(v.Home), Meta: Meta{Title: "Home - " + SiteTitle}},
			{
				Path: "/tools",
				Name: SectionTools,
				View: view(v.ToolsIndex),
				Meta: Meta{Title: "Tools - " + SiteTitle},
			},
			{
				Path: "/specs",
				Name: SectionSpecs,
				View: view(v.SpecsIndex),
				Meta: Meta{Title: "Specifications - " + SiteTitle},
				Children: []Route{
					{
						Path:     "/specs/mil-std-2073/:section",
						Name:     "mil-std-2073-section",
						Redirect: "/specs/mil-std-2073?section=:section",
					},
					stpRoute(v),
				},
			},
			{Path: "/specs/:section", Name: "legacy-spec-section", Redirect: "/specs/mil-std-2073?section=:section"},
			{Path: "/form-generator", Name: "legacy-form-generator", Redirect: "/tools/dd2326/generator"},
			{Path: "/decoder", Name: "legacy-decoder", Redirect: "/tools/dd2326/decoder"},
			{Path: "/about", Name: "about", View: view(v.About), Meta: Meta{Title: "About - " + SiteTitle}},
		},
	}
}

func stpRoute(v StaticViews) Route {
	if v.STP != nil {
		return Route{Path: "/specs/stp", Name: "stp-reference", View: view(v.STP), Meta: Meta{Title: "STP Reference - " + SiteTitle}}
	}
	return Route{
		Path: "/specs/stp",
		Name: "stp-reference",
		View: view(v.NotFound),
		Meta: Meta{Title: "STP Reference - Coming Soon", Disabled: true},
	}
}

// AppendChild implements Router.
func (t *Tree) AppendChild(section string, route Route) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := slices.IndexFunc(t.routes, func(r Route) bool { return r.Name == section })
	if idx < 0 {
		return false, fmt.Errorf("%w: %s", ErrSectionNotFound, section)
	}

	parent := &t.routes[idx]
	if slices.ContainsFunc(parent.Children, func(c Route) bool { return c.Path == route.Path }) {
		return false, nil
	}
	parent.Children = append(parent.Children, route)
	return true, nil
}

// Routes returns a copy of the top-level routes with their children.
func (t *Tree) Routes() []Route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Route, len(t.routes))
	for i, r := range t.routes {
		r.Children = slices.Clone(r.Children)
		out[i] = r
	}
	return out
}

// Section returns the named top-level route.
func (t *Tree) Section(name string) (Route, bool) {
	for _, r := range t.Routes() {
		if r.Name == name {
			return r, true
		}
	}
	return Route{}, false
}

// NotFound returns the catch-all route.
func (t *Tree) NotFound() Route {
	return t.notFound
}

// View resolves the view of r. A lazy view is loaded once per route path and
// kept; concurrent first requests share one load and failures are retried
// on the next request.
func (t *Tree) View(ctx context.Context, r Route) (templ.Component, error) {
	if !r.View.IsLazy() {
		return r.View.Resolve(ctx)
	}

	t.viewMu.Lock()
	c, ok := t.views[r.Path]
	t.viewMu.Unlock()
	if ok {
		return c, nil
	}

	v, err, _ := t.loading.Do(r.Path, func() (any, error) {
		c, err := r.View.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, lazy.ErrEmpty
		}
		t.viewMu.Lock()
		t.views[r.Path] = c
		t.viewMu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(templ.Component), nil
}

// Match resolves p to a route. It never fails: unknown paths resolve to the
// not-found route.
func (t *Tree) Match(p string) Match {
	p = cleanPath(p)

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, parent := range t.routes {
		if params, ok := matchAny(parent.Children, p); ok {
			return Match{Route: params.route, Params: params.params, Section: parent.Name}
		}
	}
	if params, ok := matchAny(t.routes, p); ok {
		return Match{Route: params.route, Params: params.params}
	}
	return Match{Route: t.notFound, Params: map[string]string{"pathMatch": strings.TrimPrefix(p, "/")}}
}

type matched struct {
	route  Route
	params map[string]string
}

// matchAny prefers literal routes over parameterized ones.
func matchAny(routes []Route, p string) (matched, bool) {
	for _, r := range routes {
		if !strings.Contains(r.Path, ":") && r.Path == p {
			return matched{route: r, params: map[string]string{}}, true
		}
	}
	for _, r := range routes {
		if !strings.Contains(r.Path, ":") {
			continue
		}
		if params, ok := matchPattern(r.Path, p); ok {
			return matched{route: r, params: params}, true
		}
	}
	return matched{}, false
}

func matchPattern(pattern, p string) (map[string]string, bool) {
	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(p, "/"), "/")
	if len(want) != len(got) {
		return nil, false
	}

	params := make(map[string]string)
	for i, seg := range want {
		if name, ok := strings.CutPrefix(seg, ":"); ok {
			if got[i] == "" {
				return nil, false
			}
			params[name] = got[i]
			continue
		}
		if seg != got[i] {
			return nil, false
		}
	}
	return params, true
}

// ExpandRedirect substitutes bound segments into a redirect target.
func ExpandRedirect(target string, params map[string]string) string {
	for name, value := range params {
		target = strings.ReplaceAll(target, ":"+name, url.QueryEscape(value))
	}
	return target
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

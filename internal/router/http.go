package router

import (
	"bytes"
	"context"
	"net/http"

	"github.com/a-h/templ"

	"github.com/zjrosen/milspecs/internal/log"
)

// Layout wraps a page body with the site chrome.
type Layout func(title string, current Match, body templ.Component) templ.Component

type matchKey struct{}

// WithMatch returns ctx carrying m for the views rendered under it.
func WithMatch(ctx context.Context, m Match) context.Context {
	return context.WithValue(ctx, matchKey{}, m)
}

// MatchFromContext returns the route match of the request being rendered.
func MatchFromContext(ctx context.Context) (Match, bool) {
	m, ok := ctx.Value(matchKey{}).(Match)
	return m, ok
}

// Title returns the page title of a route.
func Title(r Route) string {
	if r.Meta.Title != "" {
		return r.Meta.Title
	}
	return SiteTitle
}

// Guard applies the navigation rules to a match: disabled routes resolve to
// the not-found route.
func (t *Tree) Guard(m Match) Match {
	if m.Route.Meta.Disabled {
		log.Debug(log.CatRouter, "disabled route requested", "path", m.Route.Path)
		return Match{Route: t.notFound, Params: m.Params}
	}
	return m
}

// Handler serves site pages from the tree.
func (t *Tree) Handler(layout Layout) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		m := t.Guard(t.Match(r.URL.Path))
		m.Query = r.URL.Query()

		if m.Route.Redirect != "" {
			http.Redirect(w, r, ExpandRedirect(m.Route.Redirect, m.Params), http.StatusFound)
			return
		}

		status := http.StatusOK
		if m.Route.Name == NotFoundName {
			status = http.StatusNotFound
		}

		ctx := WithMatch(r.Context(), m)
		body, err := t.View(ctx, m.Route)
		if err != nil || body == nil {
			log.ErrorErr(log.CatRouter, "view unavailable", err, "path", r.URL.Path, "route", m.Route.Name)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		page := body
		if layout != nil {
			page = layout(Title(m.Route), m, body)
		}

		var buf bytes.Buffer
		if err := page.Render(ctx, &buf); err != nil {
			log.ErrorErr(log.CatRouter, "render failed", err, "path", r.URL.Path, "route", m.Route.Name)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(buf.Bytes())
	})
}

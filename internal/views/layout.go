package views

import (
	"context"

	"github.com/a-h/templ"

	"github.com/zjrosen/milspecs/internal/router"
)

// NavItem is one link of the top navigation.
type NavItem struct {
	Label string
	Path  string
}

// DefaultNav is the primary site navigation.
var DefaultNav = []NavItem{
	{Label: "Home", Path: "/"},
	{Label: "Specifications", Path: "/specs"},
	{Label: "Tools", Path: "/tools"},
	{Label: "About", Path: "/about"},
}

// Layout returns the site chrome used by the router handler.
func Layout(nav []NavItem) router.Layout {
	return func(title string, current router.Match, body templ.Component) templ.Component {
		return component(func(ctx context.Context, w *writer) {
			w.raw("<!DOCTYPE html>\n<html lang=\"en\"><head><meta charset=\"utf-8\">")
			w.raw("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">")
			w.raw("<title>")
			w.text(title)
			w.raw("</title><link rel=\"stylesheet\" href=\"/static/site.css\"></head><body>")

			w.raw("<header class=\"app-bar\"><a class=\"brand\" href=\"/\">")
			w.text(router.SiteTitle)
			w.raw("</a><nav>")
			for _, item := range nav {
				class := ""
				if isActive(item.Path, current.Route.Path) {
					class = " class=\"active\""
				}
				w.rawf("<a href=\"%s\"%s>", attr(item.Path), class)
				w.text(item.Label)
				w.raw("</a>")
			}
			w.raw("</nav></header><main>")
			w.render(ctx, body)
			w.raw("</main><footer>")
			w.text(router.SiteTitle)
			w.raw("</footer></body></html>")
		})
	}
}

func isActive(navPath, routePath string) bool {
	if navPath == "/" {
		return routePath == "/"
	}
	return routePath == navPath || len(routePath) > len(navPath) && routePath[:len(navPath)+1] == navPath+"/"
}

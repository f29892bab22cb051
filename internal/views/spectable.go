package views

import (
	"context"
	"net/url"

	"github.com/a-h/templ"

	"github.com/zjrosen/milspecs/internal/spec/adapter"
)

// SpecTableProps is the data of one spec section page.
type SpecTableProps struct {
	SpecID   string
	SpecName string
	BasePath string
	Sections []string
	Active   string
	Columns  []string
	Records  []adapter.Record
	Query    string
	Error    string
}

// SpecTable renders the section tabs, search box and rows of a spec section.
func SpecTable(p SpecTableProps) templ.Component {
	return component(func(ctx context.Context, w *writer) {
		w.rawf("<section class=\"spec-table\" data-spec=\"%s\"><h1>", attr(p.SpecID))
		w.text(p.SpecName)
		w.raw("</h1><nav class=\"tabs\">")
		for _, s := range p.Sections {
			class := ""
			if s == p.Active {
				class = " class=\"active\""
			}
			w.rawf("<a href=\"%s?section=%s\"%s>", attr(p.BasePath), attr(url.QueryEscape(s)), class)
			w.text(TitleCase(s))
			w.raw("</a>")
		}
		w.raw("</nav>")

		w.rawf("<form method=\"get\" action=\"%s\"><input type=\"hidden\" name=\"section\" value=\"%s\">", attr(p.BasePath), attr(p.Active))
		w.rawf("<input type=\"search\" name=\"q\" placeholder=\"Search\" value=\"%s\"></form>", attr(p.Query))

		if p.Error != "" {
			w.raw("<p class=\"error\">")
			w.text(p.Error)
			w.raw("</p></section>")
			return
		}
		if len(p.Records) == 0 {
			w.raw("<p class=\"empty\">No matching entries.</p></section>")
			return
		}

		w.raw("<table><thead><tr>")
		for _, c := range p.Columns {
			w.raw("<th>")
			w.text(TitleCase(c))
			w.raw("</th>")
		}
		w.raw("</tr></thead><tbody>")
		for _, r := range p.Records {
			w.raw("<tr>")
			for _, c := range p.Columns {
				w.raw("<td>")
				w.text(r.String(c))
				w.raw("</td>")
			}
			w.raw("</tr>")
		}
		w.raw("</tbody></table></section>")
	})
}

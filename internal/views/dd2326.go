package views

import (
	"context"
	"fmt"

	"github.com/a-h/templ"

	"github.com/zjrosen/milspecs/internal/spec/adapter"
)

// DD2326FormProps is the state of the DD Form 2326 generator page.
type DD2326FormProps struct {
	Fields  adapter.FieldDefinitions
	Form    adapter.FormData
	RawData string
	Errors  []string
	Action  string
}

// DD2326Header is the form title block.
func DD2326Header() templ.Component {
	return component(func(ctx context.Context, w *writer) {
		w.raw("<header class=\"dd2326-header\"><h1>")
		w.text(adapter.DD2326Name)
		w.raw("</h1><p>")
		w.text("Preservation and Packing Data, " + adapter.DD2326Version)
		w.raw("</p></header>")
	})
}

// DD2326Footer carries the form edition line.
func DD2326Footer() templ.Component {
	return component(func(ctx context.Context, w *writer) {
		w.raw("<footer class=\"dd2326-footer\">")
		w.text("DD FORM 2326, " + adapter.DD2326Version)
		w.raw("</footer>")
	})
}

// FormGridInput renders one labelled form field.
func FormGridInput(part string, f adapter.FieldDef, value string) templ.Component {
	return component(func(ctx context.Context, w *writer) {
		name := part + "." + f.Key
		w.rawf("<label class=\"grid-input\" for=\"%s\"><span>", attr(name))
		w.text(f.Label)
		if f.Required {
			w.raw(" <abbr title=\"required\">*</abbr>")
		}
		w.rawf("</span><input id=\"%s\" name=\"%s\" value=\"%s\"", attr(name), attr(name), attr(value))
		if f.MaxLength > 0 {
			w.rawf(" maxlength=\"%d\"", f.MaxLength)
		}
		if f.Required {
			w.raw(" required")
		}
		w.raw("></label>")
	})
}

// RawDataGrid shows the generated raw text of a form.
func RawDataGrid(raw string) templ.Component {
	return component(func(ctx context.Context, w *writer) {
		w.raw("<pre class=\"raw-data\">")
		w.text(raw)
		w.raw("</pre>")
	})
}

// DD2326Form renders the generator: every part's inputs, validation errors
// and the raw output.
func DD2326Form(p DD2326FormProps) templ.Component {
	return component(func(ctx context.Context, w *writer) {
		w.render(ctx, DD2326Header())
		if len(p.Errors) > 0 {
			w.raw("<ul class=\"errors\">")
			for _, e := range p.Errors {
				w.raw("<li>")
				w.text(e)
				w.raw("</li>")
			}
			w.raw("</ul>")
		}

		w.rawf("<form method=\"get\" action=\"%s\">", attr(p.Action))
		for _, part := range p.Fields.PartNames() {
			fields, _ := p.Fields.Part(part)
			w.rawf("<fieldset data-part=\"%s\"><legend>", attr(part))
			w.text(partTitle(part))
			w.raw("</legend>")
			for _, f := range fields {
				w.render(ctx, FormGridInput(part, f, p.Form[part][f.Key]))
			}
			w.raw("</fieldset>")
		}
		w.raw("<button type=\"submit\">Generate</button></form>")

		if p.RawData != "" {
			w.render(ctx, RawDataGrid(p.RawData))
		}
		w.render(ctx, DD2326Footer())
	})
}

// DD2326Decoder renders the raw text input and the decoded parts.
func DD2326Decoder(action, raw string, decoded adapter.FormData) templ.Component {
	return component(func(ctx context.Context, w *writer) {
		w.raw("<h1>DD Form 2326 Decoder</h1>")
		w.rawf("<form method=\"get\" action=\"%s\"><textarea name=\"raw\" rows=\"12\">", attr(action))
		w.text(raw)
		w.raw("</textarea><button type=\"submit\">Decode</button></form>")
		if len(decoded) == 0 {
			return
		}
		for _, part := range adapter.DefaultFieldDefinitions().PartNames() {
			fields := decoded[part]
			if len(fields) == 0 {
				continue
			}
			w.rawf("<table data-part=\"%s\"><caption>", attr(part))
			w.text(partTitle(part))
			w.raw("</caption><tbody>")
			for _, k := range sortedFieldKeys(fields) {
				w.raw("<tr><th>")
				w.text(k)
				w.raw("</th><td>")
				w.text(fields[k])
				w.raw("</td></tr>")
			}
			w.raw("</tbody></table>")
		}
	})
}

func partTitle(part string) string {
	if part == adapter.PartTop {
		return "Top Fields"
	}
	return fmt.Sprintf("Part %s", part[len(part)-1:])
}

package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"

	"github.com/zjrosen/milspecs/internal/spec/adapter"
	"github.com/zjrosen/milspecs/internal/spec/registry"
)

// MaxCellWidth truncates wide record cells in table output.
const MaxCellWidth = 48

// noMarginStyle removes glamour's document margins.
const noMarginStyle = `{
	"document": {
		"margin": 0,
		"block_prefix": "",
		"block_suffix": ""
	}
}`

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
	json   bool
}

// NewFormatter creates a new formatter. With asJSON every Format method
// writes indented JSON instead of a table.
func NewFormatter(writer io.Writer, asJSON bool) *Formatter {
	return &Formatter{
		writer: writer,
		json:   asJSON,
	}
}

// FormatJSON writes v as indented JSON
func (f *Formatter) FormatJSON(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// FormatSpecs formats a list of specs
func (f *Formatter) FormatSpecs(specs []SpecDTO) error {
	if f.json {
		return f.FormatJSON(specs)
	}
	rows := make([][]string, 0, len(specs))
	for _, s := range specs {
		id := s.ID
		if s.IsDefault {
			id += " *"
		}
		rows = append(rows, []string{id, s.Name, s.Version, strings.Join(s.Paths, ", ")})
	}
	return f.table([]string{"ID", "NAME", "VERSION", "PATHS"}, rows)
}

// FormatTools formats a list of tools
func (f *Formatter) FormatTools(tools []ToolDTO) error {
	if f.json {
		return f.FormatJSON(tools)
	}
	rows := make([][]string, 0, len(tools))
	for _, t := range tools {
		rows = append(rows, []string{t.Name, t.Path, t.SpecID})
	}
	return f.table([]string{"NAME", "PATH", "SPEC"}, rows)
}

// FormatStats formats registry totals
func (f *Formatter) FormatStats(stats registry.Stats) error {
	if f.json {
		return f.FormatJSON(stats)
	}
	rows := [][]string{
		{"specs", fmt.Sprint(stats.TotalSpecs)},
		{"components", fmt.Sprint(stats.TotalComponents)},
		{"composables", fmt.Sprint(stats.TotalComposables)},
		{"routes", fmt.Sprint(stats.TotalRoutes)},
	}
	return f.table([]string{"REGISTRY", "TOTAL"}, rows)
}

// FormatRecords formats section rows with one column per field of the
// first record.
func (f *Formatter) FormatRecords(records []adapter.Record) error {
	if f.json {
		return f.FormatJSON(records)
	}
	if len(records) == 0 {
		_, err := fmt.Fprintln(f.writer, "No records.")
		return err
	}
	keys := records[0].Keys()
	headers := make([]string, len(keys))
	for i, k := range keys {
		headers[i] = strings.ToUpper(k)
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		row := make([]string, len(keys))
		for i, k := range keys {
			v, _ := r.Get(k)
			row[i] = Truncate(fmt.Sprint(orEmpty(v)), MaxCellWidth)
		}
		rows = append(rows, row)
	}
	return f.table(headers, rows)
}

// FormatMarkdown renders markdown for the terminal, or writes it untouched
// in JSON mode wrapped as {"markdown": ...}.
func (f *Formatter) FormatMarkdown(markdown string, width int) error {
	if f.json {
		return f.FormatJSON(map[string]string{"markdown": markdown})
	}
	out, err := RenderMarkdown(markdown, width)
	if err != nil {
		return err
	}
	_, err = io.WriteString(f.writer, out)
	return err
}

func (f *Formatter) table(headers []string, rows [][]string) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	_, err := fmt.Fprintln(f.writer, t.String())
	return err
}

// RenderMarkdown renders markdown with the dark style and no margins.
func RenderMarkdown(markdown string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithStylesFromJSONBytes([]byte(noMarginStyle)),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(markdown)
}

// Truncate shortens s to at most width display cells.
func Truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

func orEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}

package presentation

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sergi/go-diff/diffmatchpatch"
)

var (
	insertStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Underline(true)
	deleteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Strikethrough(true)
)

// Diff compares two raw data strings. Equal reports whether they match; Text
// marks insertions with {+...+} and deletions with [-...-] so the result
// reads without color.
type Diff struct {
	Equal bool   `json:"equal"`
	Text  string `json:"diff,omitempty"`
	diffs []diffmatchpatch.Diff
}

// CompareRaw diffs want against got at character granularity, cleaned up to
// semantic boundaries.
func CompareRaw(want, got string) Diff {
	if want == got {
		return Diff{Equal: true}
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(want, got, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			b.WriteString("{+" + d.Text + "+}")
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + d.Text + "-]")
		default:
			b.WriteString(d.Text)
		}
	}
	return Diff{Text: b.String(), diffs: diffs}
}

// Styled renders the diff for a terminal.
func (d Diff) Styled() string {
	if d.Equal {
		return ""
	}
	var b strings.Builder
	for _, seg := range d.diffs {
		switch seg.Type {
		case diffmatchpatch.DiffInsert:
			b.WriteString(insertStyle.Render(seg.Text))
		case diffmatchpatch.DiffDelete:
			b.WriteString(deleteStyle.Render(seg.Text))
		default:
			b.WriteString(seg.Text)
		}
	}
	return b.String()
}

package presentation

import (
	"fmt"
	"strings"

	"github.com/zjrosen/milspecs/internal/spec/adapter"
)

// SpecMarkdown describes a spec and its data schema as markdown.
func SpecMarkdown(s SpecDTO, schema adapter.Schema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", s.Name)
	fmt.Fprintf(&b, "`%s` version **%s**", s.ID, s.Version)
	if s.IsDefault {
		b.WriteString(" (default)")
	}
	b.WriteString("\n\n")
	if s.Description != "" {
		b.WriteString(s.Description + "\n\n")
	}

	if len(s.Paths) > 0 {
		b.WriteString("## Pages\n\n")
		for _, p := range s.Paths {
			fmt.Fprintf(&b, "- `%s`\n", p)
		}
		b.WriteString("\n")
	}
	if len(s.Tools) > 0 {
		b.WriteString("## Tools\n\n")
		for _, t := range s.Tools {
			fmt.Fprintf(&b, "- %s\n", t)
		}
		b.WriteString("\n")
	}

	if len(schema.Parts) == 0 {
		return b.String()
	}
	b.WriteString("## Schema\n\n| Part | Fields |\n|---|---|\n")
	for _, part := range schema.Parts {
		fmt.Fprintf(&b, "| %s | %s |\n", part.Name, strings.Join(part.Fields, ", "))
	}
	return b.String()
}

package milstd2073

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/zjrosen/milspecs/internal/log"
	"github.com/zjrosen/milspecs/internal/router"
	"github.com/zjrosen/milspecs/internal/spec/adapter"
	"github.com/zjrosen/milspecs/internal/specstore"
	"github.com/zjrosen/milspecs/internal/views"
)

// Section is one tab of the viewer.
type Section struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// Sections lists the viewer tabs in display order.
var Sections = []Section{
	{ID: "methods", Name: "Methods of Preservation", Icon: "mdi-cog"},
	{ID: "cleaning", Name: "Cleaning & Drying", Icon: "mdi-broom"},
	{ID: "preservation", Name: "Preservative Materials", Icon: "mdi-shield-outline"},
	{ID: "wrapping", Name: "Wrapping Materials", Icon: "mdi-wrap"},
	{ID: "cushioning", Name: "Cushioning Materials", Icon: "mdi-cushion"},
	{ID: "containers", Name: "Containers", Icon: "mdi-box"},
}

// DefaultSection is shown when a request names none.
const DefaultSection = "methods"

// Service is the MIL-STD-2073 view model: section loading, search, lookup
// and export over the shared section store.
type Service struct {
	adapter *adapter.MilSpecAdapter
	store   *specstore.Store
}

// NewService returns a service reading through store.
func NewService(a *adapter.MilSpecAdapter, store *specstore.Store) *Service {
	return &Service{adapter: a, store: store}
}

// Adapter returns the spec adapter.
func (s *Service) Adapter() *adapter.MilSpecAdapter { return s.adapter }

// LoadSection refreshes one section.
func (s *Service) LoadSection(ctx context.Context, section string) ([]adapter.Record, error) {
	rows, err := s.store.LoadSection(ctx, adapter.MilSpecID, section)
	if err != nil {
		log.ErrorErr(log.CatAdapter, "Error loading section", err, "spec", adapter.MilSpecID, "section", section)
	}
	return rows, err
}

// LoadAllSections loads every section.
func (s *Service) LoadAllSections(ctx context.Context) (map[string][]adapter.Record, error) {
	return s.store.LoadAllSections(ctx, adapter.MilSpecID)
}

// Search filters a section by code or description.
func (s *Service) Search(ctx context.Context, section, query string) ([]adapter.Record, error) {
	return s.store.Search(ctx, adapter.MilSpecID, section, query)
}

// GetItemByCode looks up one entry.
func (s *Service) GetItemByCode(ctx context.Context, section, code string) (adapter.Record, bool, error) {
	return s.store.GetItemByCode(ctx, adapter.MilSpecID, section, code)
}

// ExportSection renders a whole section as json or csv.
func (s *Service) ExportSection(ctx context.Context, section, format string) (string, error) {
	rows, err := s.store.Section(ctx, adapter.MilSpecID, section)
	if err != nil {
		return "", err
	}
	out, err := s.adapter.Export(rows, format)
	if err != nil {
		return "", err
	}
	str, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("unsupported export format %q", format)
	}
	return str, nil
}

// Columns returns the table columns of a section: the curated definitions
// when present, else the schema fields.
func (s *Service) Columns(section string) []string {
	if defs, ok := FieldDefinitions()[section]; ok {
		keys := make([]string, len(defs))
		for i, d := range defs {
			keys[i] = d.Key
		}
		return keys
	}
	fields, _ := s.adapter.GetSchema().Fields(section)
	return fields
}

// Page renders the viewer for the section and query of the current
// request.
func (s *Service) Page() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		section, query := DefaultSection, ""
		if m, ok := router.MatchFromContext(ctx); ok {
			if v := m.Query.Get("section"); v != "" {
				section = v
			}
			query = m.Query.Get("q")
		}

		props := views.SpecTableProps{
			SpecID:   adapter.MilSpecID,
			SpecName: adapter.MilSpecName,
			BasePath: Path,
			Sections: s.adapter.Sections(),
			Active:   section,
			Columns:  s.Columns(section),
			Query:    query,
		}
		if !s.adapter.HasSection(section) {
			props.Error = fmt.Sprintf("Unknown section: %s", section)
		} else if rows, err := s.Search(ctx, section, query); err != nil {
			props.Error = err.Error()
		} else {
			props.Records = rows
		}
		return views.SpecTable(props).Render(ctx, w)
	})
}

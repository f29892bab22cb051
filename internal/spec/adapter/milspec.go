package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/zjrosen/milspecs/internal/log"
)

// MIL-STD-2073 identity.
const (
	MilSpecID      = "mil-std-2073"
	MilSpecName    = "MIL-STD-2073"
	MilSpecVersion = "1E"
)

var milSpecSchema = Schema{Parts: []SchemaPart{
	{Name: "methods", Fields: []string{"code", "description", "category", "specReference"}},
	{Name: "cleaning", Fields: []string{"code", "description", "type"}},
	{Name: "preservation", Fields: []string{"code", "description", "materialType", "application"}},
	{Name: "wrapping", Fields: []string{"code", "description", "material", "thickness"}},
	{Name: "cushioning", Fields: []string{"code", "description", "material", "thickness", "shockAbsorption"}},
	{Name: "containers", Fields: []string{"code", "description", "type", "dimensions", "material"}},
}}

// MilSpecAdapter serves the MIL-STD-2073 section tables.
type MilSpecAdapter struct {
	Base
	source Source
}

var _ Adapter = (*MilSpecAdapter)(nil)

// NewMilSpecAdapter returns an adapter reading section files from source.
func NewMilSpecAdapter(source Source) *MilSpecAdapter {
	return &MilSpecAdapter{
		Base:   Base{Name: MilSpecName, Version: MilSpecVersion},
		source: source,
	}
}

// Sections returns the section ids in display order.
func (a *MilSpecAdapter) Sections() []string {
	return milSpecSchema.Names()
}

// HasSection reports whether id names a MIL-STD-2073 section.
func (a *MilSpecAdapter) HasSection(id string) bool {
	return slices.Contains(a.Sections(), id)
}

// SectionPath returns the data file path of a section.
func SectionPath(section string) string {
	return MilSpecID + "/" + section + ".json"
}

// LoadSectionData fetches and decodes one section table.
func (a *MilSpecAdapter) LoadSectionData(ctx context.Context, section string) ([]Record, error) {
	if !a.HasSection(section) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSection, section)
	}

	ctx, span := tracer.Start(ctx, "adapter.load_section")
	defer span.End()
	span.SetAttributes(
		attribute.String("spec.id", MilSpecID),
		attribute.String("spec.section", section),
	)

	path := SectionPath(section)
	body, err := a.source.Fetch(ctx, path)
	if err != nil {
		log.ErrorErr(log.CatAdapter, "section load failed", err, "spec", MilSpecID, "section", section)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("load %s: %w", section, err)
	}

	var rows []Record
	if err := json.Unmarshal(body, &rows); err != nil {
		lerr := &LoadError{Path: path, Err: err}
		log.ErrorErr(log.CatAdapter, "section decode failed", lerr, "spec", MilSpecID, "section", section)
		span.RecordError(lerr)
		span.SetStatus(codes.Error, lerr.Error())
		return nil, fmt.Errorf("load %s: %w", section, lerr)
	}
	span.SetAttributes(attribute.Int("spec.rows", len(rows)))
	return rows, nil
}

// LoadData loads every section in order and stops at the first failure.
func (a *MilSpecAdapter) LoadData(ctx context.Context) (any, error) {
	data := make(map[string][]Record, len(milSpecSchema.Parts))
	for _, section := range a.Sections() {
		rows, err := a.LoadSectionData(ctx, section)
		if err != nil {
			return nil, err
		}
		data[section] = rows
	}
	return data, nil
}

// GetSchema returns the section field lists.
func (a *MilSpecAdapter) GetSchema() Schema {
	return milSpecSchema
}

// Validate checks records against the section schemas. With a section scope
// data is a list of records (or one record); otherwise it is a map of
// section id to records and sections absent from the map are skipped.
func (a *MilSpecAdapter) Validate(data any, scope string) ValidationResult {
	var errs []string

	if scope != "" && scope != ScopeAll {
		if !a.HasSection(scope) {
			return newResult([]string{"Unknown section: " + scope})
		}

		if isSingleRecord(data) {
			rows, _ := toRecords(data)
			return newResult(a.validateItem(rows[0], scope))
		}

		rows, err := toRecords(data)
		if err != nil {
			return newResult([]string{"Invalid data: expected a list of records"})
		}
		for i, row := range rows {
			for _, e := range a.validateItem(row, scope) {
				errs = append(errs, fmt.Sprintf("[%d]: %s", i, e))
			}
		}
		return newResult(errs)
	}

	sections, ok := toSectionMap(data)
	if !ok {
		return newResult([]string{"Invalid data: expected a map of section to records"})
	}
	for _, section := range a.Sections() {
		rows, present := sections[section]
		if !present {
			continue
		}
		for i, row := range rows {
			for _, e := range a.validateItem(row, section) {
				errs = append(errs, fmt.Sprintf("[%s][%d]: %s", section, i, e))
			}
		}
	}
	return newResult(errs)
}

func (a *MilSpecAdapter) validateItem(item Record, section string) []string {
	fields, ok := milSpecSchema.Fields(section)
	if !ok {
		return nil
	}

	var errs []string
	for _, field := range fields {
		v, present := item.Get(field)
		if !present || v == nil {
			continue
		}
		if _, isString := v.(string); !isString {
			errs = append(errs, field+" must be a string")
		}
	}

	code, present := item.Get("code")
	if !present || code == nil || code == "" {
		errs = append(errs, "code is required")
	}
	return errs
}

// Normalize trims surrounding whitespace from string fields of a record
// list or a section map. Other shapes are returned unchanged.
func (a *MilSpecAdapter) Normalize(raw any) any {
	switch v := raw.(type) {
	case []Record:
		return trimRecords(v)
	case map[string][]Record:
		out := make(map[string][]Record, len(v))
		for section, rows := range v {
			out[section] = trimRecords(rows)
		}
		return out
	default:
		return raw
	}
}

func trimRecords(rows []Record) []Record {
	out := make([]Record, len(rows))
	for i, row := range rows {
		var r Record
		for _, k := range row.Keys() {
			v, _ := row.Get(k)
			if s, ok := v.(string); ok {
				v = strings.TrimSpace(s)
			}
			r.Set(k, v)
		}
		out[i] = r
	}
	return out
}

func isSingleRecord(data any) bool {
	switch data.(type) {
	case Record, map[string]any, map[string]string:
		return true
	default:
		return false
	}
}

func toSectionMap(data any) (map[string][]Record, bool) {
	switch v := data.(type) {
	case map[string][]Record:
		return v, true
	case map[string]any:
		out := make(map[string][]Record, len(v))
		for section, value := range v {
			switch value.(type) {
			case []Record, []any, []map[string]any:
			default:
				continue
			}
			rows, err := toRecords(value)
			if err != nil {
				return nil, false
			}
			out[section] = rows
		}
		return out, true
	default:
		return nil, false
	}
}

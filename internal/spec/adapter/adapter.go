// Package adapter defines the capability set every spec exposes for loading,
// validating, normalizing and exporting its data, plus the two concrete
// adapters for MIL-STD-2073 tables and the DD Form 2326.
package adapter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Export formats understood by Base.Export.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ScopeAll validates every section or part a schema declares.
const ScopeAll = "all"

var (
	// ErrUnknownSection is returned when a section or part is not in the schema.
	ErrUnknownSection = errors.New("unknown section")
	// ErrInvalidData is returned when data does not have the expected shape.
	ErrInvalidData = errors.New("invalid data")
)

// Adapter normalizes load, validate and export operations across spec types.
type Adapter interface {
	LoadData(ctx context.Context) (any, error)
	GetSchema() Schema
	Validate(data any, scope string) ValidationResult
	Normalize(raw any) any
	Export(data any, format string) (any, error)
	GetName() string
	GetVersion() string
}

// FormValidator is implemented by adapters whose whole-document check
// covers more than the "all" scope.
type FormValidator interface {
	ValidateForm(data any) ValidationResult
}

// ValidateDocument validates data as a whole: with ValidateForm when a
// implements it, otherwise with the "all" scope.
func ValidateDocument(a Adapter, data any) ValidationResult {
	if fv, ok := a.(FormValidator); ok {
		return fv.ValidateForm(data)
	}
	return a.Validate(data, ScopeAll)
}

// SchemaPart lists the ordered field names of one section or form part.
type SchemaPart struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

// Schema is the static structure of a spec's data.
type Schema struct {
	Parts []SchemaPart `json:"parts"`
}

// Fields returns the field names of the named part.
func (s Schema) Fields(name string) ([]string, bool) {
	for _, p := range s.Parts {
		if p.Name == name {
			return p.Fields, true
		}
	}
	return nil, false
}

// Names returns the part names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Parts))
	for i, p := range s.Parts {
		names[i] = p.Name
	}
	return names
}

// ValidationResult reports validation problems as data.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

func newResult(errs []string) ValidationResult {
	if errs == nil {
		errs = []string{}
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// Base carries the adapter metadata and the default Normalize and Export.
// It deliberately leaves LoadData, GetSchema and Validate to the embedding
// type.
type Base struct {
	Name    string
	Version string
}

func (b Base) GetName() string    { return b.Name }
func (b Base) GetVersion() string { return b.Version }

// Normalize returns raw unchanged.
func (b Base) Normalize(raw any) any { return raw }

// Export renders data as pretty JSON or CSV. Unknown formats return data
// unchanged.
func (b Base) Export(data any, format string) (any, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("export json: %w", err)
		}
		return string(out), nil
	case FormatCSV:
		return ExportCSV(data)
	default:
		return data, nil
	}
}

// ExportCSV writes records as CSV with a header taken from the first
// record's keys. A single record is treated as a one-row table and an empty
// table yields "". Missing values render as empty cells; fields are quoted
// only when they contain a delimiter, quote or line break.
func ExportCSV(data any) (string, error) {
	rows, err := toRecords(data)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}

	headers := rows[0].Keys()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return "", fmt.Errorf("export csv: %w", err)
	}
	for _, row := range rows {
		cells := make([]string, len(headers))
		for i, h := range headers {
			cells[i] = cellString(row, h)
		}
		if err := w.Write(cells); err != nil {
			return "", fmt.Errorf("export csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("export csv: %w", err)
	}

	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func cellString(r Record, key string) string {
	v, ok := r.Get(key)
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if !val {
			return ""
		}
		return "true"
	default:
		return fmt.Sprint(val)
	}
}

func toRecords(data any) ([]Record, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case []Record:
		return v, nil
	case Record:
		return []Record{v}, nil
	case []map[string]any:
		out := make([]Record, len(v))
		for i, m := range v {
			out[i] = RecordFromMap(m)
		}
		return out, nil
	case map[string]any:
		return []Record{RecordFromMap(v)}, nil
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
		return []Record{RecordFromMap(m)}, nil
	case []any:
		out := make([]Record, 0, len(v))
		for i, item := range v {
			rows, err := toRecords(item)
			if err != nil || len(rows) != 1 {
				return nil, fmt.Errorf("%w: row %d is not an object", ErrInvalidData, i)
			}
			out = append(out, rows[0])
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: cannot export %T as csv", ErrInvalidData, data)
	}
}

// Records converts section data (decoded JSON, maps or records) to rows.
func Records(data any) ([]Record, error) {
	return toRecords(data)
}

package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/zjrosen/milspecs/internal/log"
)

// DD Form 2326 identity.
const (
	DD2326ID      = "dd2326"
	DD2326Name    = "DD Form 2326"
	DD2326Version = "SEP1997"

	// DD2326FieldsPath is the optional field definition override file.
	DD2326FieldsPath = "dd2326/fields.json"
)

// Form part keys.
const (
	PartTop = "topFields"
	PartA   = "partA"
	PartB   = "partB"
	PartC   = "partC"
	PartD   = "partD"
)

// FormParts lists the lettered parts in form order.
var FormParts = []string{"A", "B", "C", "D"}

// FieldDef describes one form field.
type FieldDef struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	Required  bool   `json:"required"`
	MaxLength int    `json:"maxLength,omitempty"`
}

// FieldDefinitions holds the fields of every form part.
type FieldDefinitions struct {
	TopFields []FieldDef `json:"topFields"`
	PartA     []FieldDef `json:"partA"`
	PartB     []FieldDef `json:"partB"`
	PartC     []FieldDef `json:"partC"`
	PartD     []FieldDef `json:"partD"`
}

// Part returns the field list of a part key such as "partB".
func (d FieldDefinitions) Part(name string) ([]FieldDef, bool) {
	switch name {
	case PartTop:
		return d.TopFields, true
	case PartA:
		return d.PartA, true
	case PartB:
		return d.PartB, true
	case PartC:
		return d.PartC, true
	case PartD:
		return d.PartD, true
	default:
		return nil, false
	}
}

// PartNames returns the part keys in form order, top fields first.
func (d FieldDefinitions) PartNames() []string {
	return []string{PartTop, PartA, PartB, PartC, PartD}
}

// DefaultFieldDefinitions returns the built-in DD Form 2326 fields.
func DefaultFieldDefinitions() FieldDefinitions {
	return FieldDefinitions{
		TopFields: []FieldDef{
			{Key: "qup", Label: "Quality per Unit Pack", Required: true, MaxLength: 4},
			{Key: "methodOfPreservation", Label: "Method of Preservation", Required: true},
			{Key: "cleaningDrying", Label: "Cleaning & Drying"},
			{Key: "preservativeMaterial", Label: "Preservative Materials"},
			{Key: "wrappingMaterial", Label: "Wrapping Material"},
			{Key: "cushioningMaterial", Label: "Cushioning Material"},
			{Key: "cushioningThickness", Label: "Cushioning Thickness"},
			{Key: "unitIntermediateContainer", Label: "Unit/Intermediate Container"},
			{Key: "packingCode", Label: "Packing Code", MaxLength: 4},
		},
		PartA: []FieldDef{
			{Key: "a1", Label: "Contract No."},
			{Key: "a2", Label: "Control No."},
			{Key: "a3", Label: "Date"},
			{Key: "a4", Label: "Requisition No."},
			{Key: "a5", Label: "Project No."},
		},
		PartB: []FieldDef{
			{Key: "b1", Label: "Name of Contractor"},
			{Key: "b2", Label: "Address"},
			{Key: "b3", Label: "Cage Code"},
		},
		PartC: []FieldDef{
			{Key: "c1", Label: "Item Name"},
			{Key: "c2", Label: "Part No."},
			{Key: "c3", Label: "NSN"},
			{Key: "c4", Label: "Quantity"},
			{Key: "c5", Label: "Unit"},
		},
		PartD: []FieldDef{
			{Key: "d1", Label: "Remarks"},
		},
	}
}

// FormData is a DD Form 2326 keyed by part ("topFields", "partA", ...) then
// field key.
type FormData map[string]map[string]string

// NewFormData returns a form with every part present and empty.
func NewFormData() FormData {
	return FormData{PartTop: {}, PartA: {}, PartB: {}, PartC: {}, PartD: {}}
}

// AsFormData converts decoded JSON or a FormData value. Non-string field
// values are formatted with fmt.
func AsFormData(data any) (FormData, bool) {
	switch v := data.(type) {
	case FormData:
		return v, true
	case map[string]map[string]string:
		return FormData(v), true
	case map[string]any:
		out := make(FormData, len(v))
		for part, raw := range v {
			fields, ok := raw.(map[string]any)
			if !ok {
				if raw == nil {
					continue
				}
				return nil, false
			}
			m := make(map[string]string, len(fields))
			for k, fv := range fields {
				switch s := fv.(type) {
				case nil:
					m[k] = ""
				case string:
					m[k] = s
				default:
					m[k] = fmt.Sprint(s)
				}
			}
			out[part] = m
		}
		return out, true
	default:
		return nil, false
	}
}

// DD2326Adapter validates and serializes DD Form 2326 data.
type DD2326Adapter struct {
	Base
	source Source

	mu     sync.RWMutex
	fields FieldDefinitions
}

var _ Adapter = (*DD2326Adapter)(nil)

// NewDD2326Adapter returns an adapter with the default field definitions.
// source may be nil, in which case LoadData always returns the defaults.
func NewDD2326Adapter(source Source) *DD2326Adapter {
	return &DD2326Adapter{
		Base:   Base{Name: DD2326Name, Version: DD2326Version},
		source: source,
		fields: DefaultFieldDefinitions(),
	}
}

// Fields returns the field definitions currently in effect.
func (a *DD2326Adapter) Fields() FieldDefinitions {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fields
}

// LoadData returns the field definitions, preferring the override file.
// A missing or malformed override falls back to the defaults.
func (a *DD2326Adapter) LoadData(ctx context.Context) (any, error) {
	defaults := DefaultFieldDefinitions()
	if a.source == nil {
		return defaults, nil
	}

	body, err := a.source.Fetch(ctx, DD2326FieldsPath)
	if err != nil {
		log.Debug(log.CatAdapter, "using default dd2326 fields", "reason", err.Error())
		a.setFields(defaults)
		return defaults, nil
	}

	var loaded FieldDefinitions
	if err := json.Unmarshal(body, &loaded); err != nil {
		log.ErrorErr(log.CatAdapter, "malformed dd2326 fields override", err, "path", DD2326FieldsPath)
		a.setFields(defaults)
		return defaults, nil
	}

	a.setFields(loaded)
	return loaded, nil
}

func (a *DD2326Adapter) setFields(f FieldDefinitions) {
	a.mu.Lock()
	a.fields = f
	a.mu.Unlock()
}

// GetSchema returns the field keys of every part.
func (a *DD2326Adapter) GetSchema() Schema {
	defs := a.Fields()
	schema := Schema{}
	for _, name := range defs.PartNames() {
		list, _ := defs.Part(name)
		keys := make([]string, len(list))
		for i, f := range list {
			keys[i] = f.Key
		}
		schema.Parts = append(schema.Parts, SchemaPart{Name: name, Fields: keys})
	}
	return schema
}

// Validate applies required and maxLength rules. A known part scope checks
// that part only; any other scope checks parts A through D. Parts missing
// from the form are skipped.
func (a *DD2326Adapter) Validate(data any, scope string) ValidationResult {
	form, ok := AsFormData(data)
	if !ok {
		return newResult([]string{"Invalid data: expected form parts"})
	}

	defs := a.Fields()
	var errs []string

	validatePart := func(part string) {
		values, present := form[part]
		if !present || values == nil {
			return
		}
		list, _ := defs.Part(part)
		for _, f := range list {
			value := values[f.Key]
			if f.Required && value == "" {
				errs = append(errs, fmt.Sprintf("%s.%s is required", part, f.Key))
			}
			if f.MaxLength > 0 && utf8.RuneCountInString(value) > f.MaxLength {
				errs = append(errs, fmt.Sprintf("%s.%s exceeds max length of %d", part, f.Key, f.MaxLength))
			}
		}
	}

	if _, known := defs.Part(scope); known {
		validatePart(scope)
		return newResult(errs)
	}

	for _, part := range defs.PartNames() {
		if part == PartTop {
			continue
		}
		validatePart(part)
	}
	return newResult(errs)
}

// ValidateForm checks the top fields and then parts A through D. Like
// Validate, parts missing from the form are skipped.
func (a *DD2326Adapter) ValidateForm(data any) ValidationResult {
	top := a.Validate(data, PartTop)
	if _, ok := AsFormData(data); !ok {
		return top
	}
	parts := a.Validate(data, ScopeAll)
	return newResult(append(top.Errors, parts.Errors...))
}

// GenerateRawData serializes a form to the line-oriented raw text layout.
func (a *DD2326Adapter) GenerateRawData(form FormData, date time.Time) string {
	defs := a.Fields()
	lines := []string{
		"DD FORM 2326",
		"DATE: " + date.Format("1/2/2006"),
		"",
	}

	if top, ok := form[PartTop]; ok {
		lines = append(lines, "TOP FIELDS")
		lines = appendFieldLines(lines, top, defs.TopFields)
		lines = append(lines, "")
	}

	for _, letter := range FormParts {
		part := "part" + letter
		values, ok := form[part]
		if !ok {
			continue
		}
		list, _ := defs.Part(part)
		lines = append(lines, "PART "+letter)
		lines = appendFieldLines(lines, values, list)
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n")
}

// appendFieldLines writes known keys in definition order, then the rest
// alphabetically.
func appendFieldLines(lines []string, values map[string]string, defs []FieldDef) []string {
	seen := make(map[string]bool, len(values))
	for _, f := range defs {
		if v, ok := values[f.Key]; ok {
			lines = append(lines, strings.ToUpper(f.Key)+": "+v)
			seen[f.Key] = true
		}
	}

	var rest []string
	for k := range values {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		lines = append(lines, strings.ToUpper(k)+": "+values[k])
	}
	return lines
}

// DecodeRawData parses raw text back into form parts. Keys come back
// lower-cased and empty values are dropped, so camelCase keys do not survive
// a round trip unchanged.
func (a *DD2326Adapter) DecodeRawData(raw string) FormData {
	result := NewFormData()
	current := PartTop

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if letter, ok := strings.CutPrefix(line, "PART "); ok {
			current = ""
			letter = strings.TrimSpace(letter)
			if slices.Contains(FormParts, letter) {
				current = "part" + letter
			}
			continue
		}
		if strings.TrimSpace(line) == "TOP FIELDS" {
			current = PartTop
			continue
		}

		idx := strings.Index(line, ":")
		if idx <= 0 || current == "" {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		if key != "" && value != "" {
			result[current][key] = value
		}
	}

	return result
}

// Package forms stores the user's saved forms, decoded results and form
// templates, and moves them in and out as one JSON export.
package forms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Defaults applied when callers leave metadata empty.
const (
	DefaultSpecID = "dd2326"
	DefaultName   = "Untitled Form"
	DefaultSource = "manual"

	// ExportVersion is the version field of export files.
	ExportVersion = "1.0"
	// ExportFilePrefix names export files: mil-specs-forms-<date>.json.
	ExportFilePrefix = "mil-specs-forms-"
)

// ErrNotFound is returned when an id matches nothing.
var ErrNotFound = errors.New("not found")

// ErrInvalidImport is returned for an import payload that carries none of
// the export collections.
var ErrInvalidImport = errors.New("invalid import data")

// Data is a form payload as JSON decodes it.
type Data = map[string]any

// Form is a saved form.
type Form struct {
	ID        string    `json:"id"`
	SpecID    string    `json:"specId"`
	Name      string    `json:"name"`
	Data      Data      `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DecodedResult is the output of one decode, kept for later reference.
type DecodedResult struct {
	ID        string    `json:"id"`
	SpecID    string    `json:"specId"`
	Source    string    `json:"source"`
	Data      Data      `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
}

// Template is a reusable set of prefilled form values.
type Template struct {
	ID          string    `json:"id"`
	SpecID      string    `json:"specId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Data        Data      `json:"data"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
}

// Export is the full store contents.
type Export struct {
	SavedForms     []Form          `json:"savedForms"`
	DecodedResults []DecodedResult `json:"decodedResults"`
	FormTemplates  []Template      `json:"formTemplates"`
	ExportedAt     time.Time       `json:"exportedAt"`
	Version        string          `json:"version"`
}

// ImportData is an import payload. Nil collections are left untouched.
type ImportData struct {
	SavedForms     []Form          `json:"savedForms"`
	DecodedResults []DecodedResult `json:"decodedResults"`
	FormTemplates  []Template      `json:"formTemplates"`
}

// ExportFileName returns the default export file name for day.
func ExportFileName(day time.Time) string {
	return ExportFilePrefix + day.Format("2006-01-02") + ".json"
}

// ValidationError reports form data the spec adapter rejected.
type ValidationError struct {
	SpecID string
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s form: %s", e.SpecID, strings.Join(e.Errors, "; "))
}

// Repository persists forms, decoded results and templates. Save methods
// insert or replace by id. List methods return newest first; an empty
// specID lists every spec.
type Repository interface {
	SaveForm(ctx context.Context, f *Form) error
	GetForm(ctx context.Context, id string) (*Form, error)
	ListForms(ctx context.Context, specID string) ([]*Form, error)
	DeleteForm(ctx context.Context, id string) error

	SaveDecoded(ctx context.Context, d *DecodedResult) error
	GetDecoded(ctx context.Context, id string) (*DecodedResult, error)
	ListDecoded(ctx context.Context, specID string) ([]*DecodedResult, error)
	DeleteDecoded(ctx context.Context, id string) error
	ClearDecoded(ctx context.Context) error

	SaveTemplate(ctx context.Context, t *Template) error
	GetTemplate(ctx context.Context, id string) (*Template, error)
	ListTemplates(ctx context.Context, specID string) ([]*Template, error)
	DeleteTemplate(ctx context.Context, id string) error

	ClearAll(ctx context.Context) error
}

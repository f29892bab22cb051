package forms

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/milspecs/internal/log"
	"github.com/zjrosen/milspecs/internal/spec/adapter"
)

// AdapterSource resolves the adapter that validates a spec's forms.
type AdapterSource interface {
	GetAdapter(id string) adapter.Adapter
}

// Service applies defaults, ids, timestamps and validation on top of a
// Repository.
type Service struct {
	repo     Repository
	adapters AdapterSource
	now      func() time.Time
	newID    func() string
}

// Option configures a Service.
type Option func(*Service)

// WithValidation validates saved form data with the spec's adapter.
func WithValidation(src AdapterSource) Option {
	return func(s *Service) { s.adapters = src }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService returns a service over repo.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FormMeta is the optional metadata of a new form.
type FormMeta struct {
	SpecID string `json:"specId"`
	Name   string `json:"name"`
}

// SaveForm stores a new form and returns it.
func (s *Service) SaveForm(ctx context.Context, data Data, meta FormMeta) (*Form, error) {
	specID := orDefault(meta.SpecID, DefaultSpecID)
	if err := s.validate(specID, data); err != nil {
		return nil, err
	}

	now := s.now()
	f := &Form{
		ID:        s.newID(),
		SpecID:    specID,
		Name:      orDefault(meta.Name, DefaultName),
		Data:      maps.Clone(data),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.SaveForm(ctx, f); err != nil {
		return nil, fmt.Errorf("save form: %w", err)
	}
	log.Debug(log.CatForms, "form saved", "id", f.ID, "spec", f.SpecID)
	return f, nil
}

// UpdateForm replaces the data of an existing form.
func (s *Service) UpdateForm(ctx context.Context, id string, data Data) (*Form, error) {
	f, err := s.repo.GetForm(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validate(f.SpecID, data); err != nil {
		return nil, err
	}
	f.Data = maps.Clone(data)
	f.UpdatedAt = s.now()
	if err := s.repo.SaveForm(ctx, f); err != nil {
		return nil, fmt.Errorf("update form: %w", err)
	}
	return f, nil
}

// DeleteForm removes a form.
func (s *Service) DeleteForm(ctx context.Context, id string) error {
	return s.repo.DeleteForm(ctx, id)
}

// GetForm returns a form by id.
func (s *Service) GetForm(ctx context.Context, id string) (*Form, error) {
	return s.repo.GetForm(ctx, id)
}

// ListForms returns every form.
func (s *Service) ListForms(ctx context.Context) ([]*Form, error) {
	return s.repo.ListForms(ctx, "")
}

// FormsBySpec returns the forms of one spec.
func (s *Service) FormsBySpec(ctx context.Context, specID string) ([]*Form, error) {
	return s.repo.ListForms(ctx, specID)
}

// DuplicateForm copies a form under a new id. An empty name appends
// " (Copy)" to the original's.
func (s *Service) DuplicateForm(ctx context.Context, id, name string) (*Form, error) {
	src, err := s.repo.GetForm(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	dup := &Form{
		ID:        s.newID(),
		SpecID:    src.SpecID,
		Name:      orDefault(name, src.Name+" (Copy)"),
		Data:      maps.Clone(src.Data),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.SaveForm(ctx, dup); err != nil {
		return nil, fmt.Errorf("duplicate form: %w", err)
	}
	return dup, nil
}

// DecodedMeta is the optional metadata of a decoded result.
type DecodedMeta struct {
	SpecID string `json:"specId"`
	Source string `json:"source"`
}

// SaveDecoded stores a decode result.
func (s *Service) SaveDecoded(ctx context.Context, data Data, meta DecodedMeta) (*DecodedResult, error) {
	d := &DecodedResult{
		ID:        s.newID(),
		SpecID:    orDefault(meta.SpecID, DefaultSpecID),
		Source:    orDefault(meta.Source, DefaultSource),
		Data:      maps.Clone(data),
		CreatedAt: s.now(),
	}
	if err := s.repo.SaveDecoded(ctx, d); err != nil {
		return nil, fmt.Errorf("save decoded result: %w", err)
	}
	return d, nil
}

// GetDecoded returns a decoded result by id.
func (s *Service) GetDecoded(ctx context.Context, id string) (*DecodedResult, error) {
	return s.repo.GetDecoded(ctx, id)
}

// ListDecoded returns every decoded result.
func (s *Service) ListDecoded(ctx context.Context) ([]*DecodedResult, error) {
	return s.repo.ListDecoded(ctx, "")
}

// DeleteDecoded removes a decoded result.
func (s *Service) DeleteDecoded(ctx context.Context, id string) error {
	return s.repo.DeleteDecoded(ctx, id)
}

// ClearDecoded removes every decoded result.
func (s *Service) ClearDecoded(ctx context.Context) error {
	return s.repo.ClearDecoded(ctx)
}

// SaveTemplate stores a new template.
func (s *Service) SaveTemplate(ctx context.Context, t Template) (*Template, error) {
	t.ID = s.newID()
	t.SpecID = orDefault(t.SpecID, DefaultSpecID)
	t.Name = orDefault(t.Name, DefaultName)
	t.Data = maps.Clone(t.Data)
	t.CreatedAt = s.now()
	t.UpdatedAt = time.Time{}
	if err := s.repo.SaveTemplate(ctx, &t); err != nil {
		return nil, fmt.Errorf("save template: %w", err)
	}
	return &t, nil
}

// TemplatePatch lists the template fields an update changes. Nil fields
// are kept.
type TemplatePatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Data        Data    `json:"data"`
}

// UpdateTemplate applies patch to a template.
func (s *Service) UpdateTemplate(ctx context.Context, id string, patch TemplatePatch) (*Template, error) {
	t, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		t.Name = *patch.Name
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Data != nil {
		t.Data = maps.Clone(patch.Data)
	}
	t.UpdatedAt = s.now()
	if err := s.repo.SaveTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return t, nil
}

// GetTemplate returns a template by id.
func (s *Service) GetTemplate(ctx context.Context, id string) (*Template, error) {
	return s.repo.GetTemplate(ctx, id)
}

// DeleteTemplate removes a template.
func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	return s.repo.DeleteTemplate(ctx, id)
}

// TemplatesBySpec returns the templates of one spec.
func (s *Service) TemplatesBySpec(ctx context.Context, specID string) ([]*Template, error) {
	return s.repo.ListTemplates(ctx, specID)
}

// Export returns the whole store.
func (s *Service) Export(ctx context.Context) (*Export, error) {
	forms, err := s.repo.ListForms(ctx, "")
	if err != nil {
		return nil, err
	}
	decoded, err := s.repo.ListDecoded(ctx, "")
	if err != nil {
		return nil, err
	}
	templates, err := s.repo.ListTemplates(ctx, "")
	if err != nil {
		return nil, err
	}
	return &Export{
		SavedForms:     deref(forms),
		DecodedResults: deref(decoded),
		FormTemplates:  deref(templates),
		ExportedAt:     s.now(),
		Version:        ExportVersion,
	}, nil
}

// Import upserts every entry of the collections present in data. Entries
// without an id get a new one.
func (s *Service) Import(ctx context.Context, data ImportData) error {
	if data.SavedForms == nil && data.DecodedResults == nil && data.FormTemplates == nil {
		return ErrInvalidImport
	}

	now := s.now()
	for i := range data.SavedForms {
		f := data.SavedForms[i]
		s.fillImported(&f.ID, &f.SpecID, &f.CreatedAt, now)
		if f.UpdatedAt.IsZero() {
			f.UpdatedAt = f.CreatedAt
		}
		f.Name = orDefault(f.Name, DefaultName)
		if err := s.repo.SaveForm(ctx, &f); err != nil {
			return fmt.Errorf("import form %s: %w", f.ID, err)
		}
	}
	for i := range data.DecodedResults {
		d := data.DecodedResults[i]
		s.fillImported(&d.ID, &d.SpecID, &d.CreatedAt, now)
		d.Source = orDefault(d.Source, DefaultSource)
		if err := s.repo.SaveDecoded(ctx, &d); err != nil {
			return fmt.Errorf("import decoded result %s: %w", d.ID, err)
		}
	}
	for i := range data.FormTemplates {
		t := data.FormTemplates[i]
		s.fillImported(&t.ID, &t.SpecID, &t.CreatedAt, now)
		t.Name = orDefault(t.Name, DefaultName)
		if err := s.repo.SaveTemplate(ctx, &t); err != nil {
			return fmt.Errorf("import template %s: %w", t.ID, err)
		}
	}

	log.Info(log.CatForms, "Import complete",
		"forms", len(data.SavedForms), "decoded", len(data.DecodedResults), "templates", len(data.FormTemplates))
	return nil
}

// ClearAll removes everything.
func (s *Service) ClearAll(ctx context.Context) error {
	return s.repo.ClearAll(ctx)
}

func (s *Service) fillImported(id, specID *string, created *time.Time, now time.Time) {
	if *id == "" {
		*id = s.newID()
	}
	*specID = orDefault(*specID, DefaultSpecID)
	if created.IsZero() {
		*created = now
	}
}

func (s *Service) validate(specID string, data Data) error {
	if s.adapters == nil {
		return nil
	}
	a := s.adapters.GetAdapter(specID)
	if a == nil {
		return nil
	}
	result := adapter.ValidateDocument(a, data)
	if result.Valid {
		return nil
	}
	return &ValidationError{SpecID: specID, Errors: result.Errors}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func deref[T any](items []*T) []T {
	out := make([]T, len(items))
	for i, it := range items {
		out[i] = *it
	}
	return out
}

package dd2326

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/zjrosen/milspecs/internal/router"
	"github.com/zjrosen/milspecs/internal/spec/adapter"
	"github.com/zjrosen/milspecs/internal/views"
)

// Service generates, decodes and validates DD Form 2326 data.
type Service struct {
	adapter *adapter.DD2326Adapter
	now     func() time.Time
}

// NewService returns a service over a.
func NewService(a *adapter.DD2326Adapter) *Service {
	return &Service{adapter: a, now: time.Now}
}

// Adapter returns the form adapter.
func (s *Service) Adapter() *adapter.DD2326Adapter { return s.adapter }

// Fields returns the current field definitions.
func (s *Service) Fields() adapter.FieldDefinitions { return s.adapter.Fields() }

// Generate renders form as raw text dated today.
func (s *Service) Generate(form adapter.FormData) string {
	return s.adapter.GenerateRawData(form, s.now())
}

// Decode parses raw text into form parts.
func (s *Service) Decode(raw string) adapter.FormData {
	return s.adapter.DecodeRawData(raw)
}

// Validate checks form against the field rules of scope.
func (s *Service) Validate(form adapter.FormData, scope string) adapter.ValidationResult {
	return s.adapter.Validate(form, scope)
}

// ValidateForm checks a complete form. The top fields are always checked,
// even when none were filled in.
func (s *Service) ValidateForm(form adapter.FormData) adapter.ValidationResult {
	if _, ok := form[adapter.PartTop]; !ok {
		withTop := make(adapter.FormData, len(form)+1)
		for k, v := range form {
			withTop[k] = v
		}
		withTop[adapter.PartTop] = map[string]string{}
		form = withTop
	}
	return s.adapter.ValidateForm(form)
}

// UpdateField sets one field, creating the part when needed.
func UpdateField(form adapter.FormData, part, key, value string) {
	if form[part] == nil {
		form[part] = map[string]string{}
	}
	form[part][key] = value
}

// FormFromValues reads "part.key" parameters into a form, keeping only
// keys the field definitions declare.
func (s *Service) FormFromValues(values url.Values) adapter.FormData {
	fields := s.Fields()
	form := adapter.NewFormData()
	for _, part := range fields.PartNames() {
		defs, _ := fields.Part(part)
		for _, f := range defs {
			if v := strings.TrimSpace(values.Get(part + "." + f.Key)); v != "" {
				UpdateField(form, part, f.Key, v)
			}
		}
	}
	return form
}

func query(ctx context.Context) url.Values {
	if m, ok := router.MatchFromContext(ctx); ok && m.Query != nil {
		return m.Query
	}
	return url.Values{}
}

// GeneratorPage renders the generator with the submitted fields, their
// validation errors and the generated text.
func (s *Service) GeneratorPage() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		values := query(ctx)
		form := s.FormFromValues(values)
		props := views.DD2326FormProps{
			Fields: s.Fields(),
			Form:   form,
			Action: GeneratorPath,
		}
		if len(values) > 0 {
			result := s.ValidateForm(form)
			props.Errors = result.Errors
			if result.Valid {
				props.RawData = s.Generate(form)
			}
		}
		return views.DD2326Form(props).Render(ctx, w)
	})
}

// DecoderPage renders the decoder with the submitted raw text decoded.
func (s *Service) DecoderPage() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		raw := query(ctx).Get("raw")
		var decoded adapter.FormData
		if strings.TrimSpace(raw) != "" {
			decoded = s.Decode(raw)
		}
		return views.DD2326Decoder(DecoderPath, raw, decoded).Render(ctx, w)
	})
}

// ReferencePage renders the empty form as a field reference.
func (s *Service) ReferencePage() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return views.DD2326Form(views.DD2326FormProps{
			Fields: s.Fields(),
			Form:   adapter.NewFormData(),
			Action: GeneratorPath,
		}).Render(ctx, w)
	})
}

// FieldGrid renders every field input of an empty form.
func (s *Service) FieldGrid() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		fields := s.Fields()
		for _, part := range fields.PartNames() {
			defs, _ := fields.Part(part)
			for _, f := range defs {
				if err := views.FormGridInput(part, f, "").Render(ctx, w); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// RawGrid renders the raw text of an empty form.
func (s *Service) RawGrid() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return views.RawDataGrid(s.Generate(adapter.NewFormData())).Render(ctx, w)
	})
}

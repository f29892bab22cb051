package dd2326

import (
	"bytes"
	"context"
	"net/url"
	"testing"
	"testing/fstest"
	"time"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/milspecs/internal/router"
	"github.com/zjrosen/milspecs/internal/spec/adapter"
	"github.com/zjrosen/milspecs/internal/spec/plugins"
	"github.com/zjrosen/milspecs/internal/spec/registry"
)

func newService(t *testing.T, fsys fstest.MapFS) (*registry.Plugin, *Service) {
	t.Helper()
	p, err := Bundle(plugins.Deps{Source: adapter.FSSource{FS: fsys}})(context.Background())
	require.NoError(t, err)
	svc, err := p.Composables["useDD2326"].Resolve(context.Background())
	require.NoError(t, err)
	s := svc.(*Service)
	s.now = func() time.Time { return time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC) }
	return p, s
}

func render(t *testing.T, c templ.Component, q url.Values) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(router.WithMatch(context.Background(), router.Match{Query: q}), &buf))
	return buf.String()
}

func TestBundle_Metadata(t *testing.T) {
	p, _ := newService(t, fstest.MapFS{})

	require.Equal(t, adapter.DD2326ID, p.ID)
	require.Equal(t, []string{"DD2326Footer", "DD2326Form", "DD2326Header", "FormGridInput", "RawDataGrid"}, p.ComponentNames())
	require.Len(t, p.Routes, 3)
	require.Equal(t, "/specs/dd2326", p.Routes[2].Path)
	require.Equal(t, adapter.DefaultFieldDefinitions(), p.FieldDefinitions)

	fields, err := p.DataLoader.LoadSection(context.Background(), "anything")
	require.NoError(t, err)
	require.Equal(t, adapter.DefaultFieldDefinitions(), fields)
}

func TestBundle_FieldOverride(t *testing.T) {
	p, svc := newService(t, fstest.MapFS{
		adapter.DD2326FieldsPath: {Data: []byte(`{"topFields":[{"key":"qup","label":"QUP","required":true}]}`)},
	})

	require.Len(t, svc.Fields().TopFields, 1)
	require.Equal(t, svc.Fields(), p.FieldDefinitions)
}

func TestService_GenerateDecode(t *testing.T) {
	_, svc := newService(t, fstest.MapFS{})

	form := adapter.NewFormData()
	UpdateField(form, adapter.PartTop, "qup", "001")
	UpdateField(form, adapter.PartTop, "methodOfPreservation", "41")
	UpdateField(form, adapter.PartC, "c1", "Valve")

	raw := svc.Generate(form)
	require.Contains(t, raw, "DATE: 3/4/2026")
	require.Contains(t, raw, "QUP: 001")

	decoded := svc.Decode(raw)
	require.Equal(t, "001", decoded[adapter.PartTop]["qup"])
	require.Equal(t, "Valve", decoded[adapter.PartC]["c1"])
}

func TestFormFromValues(t *testing.T) {
	_, svc := newService(t, fstest.MapFS{})

	form := svc.FormFromValues(url.Values{
		"topFields.qup": {" 002 "},
		"partB.b3":      {"1ABC2"},
		"partB.unknown": {"x"},
	})
	require.Equal(t, "002", form[adapter.PartTop]["qup"])
	require.Equal(t, "1ABC2", form[adapter.PartB]["b3"])
	require.NotContains(t, form[adapter.PartB], "unknown")
}

func TestGeneratorPage(t *testing.T) {
	_, svc := newService(t, fstest.MapFS{})

	out := render(t, svc.GeneratorPage(), url.Values{})
	require.NotContains(t, out, "raw-data")

	out = render(t, svc.GeneratorPage(), url.Values{"topFields.qup": {"1"}})
	require.Contains(t, out, "topFields.methodOfPreservation is required")
	require.NotContains(t, out, "raw-data")

	out = render(t, svc.GeneratorPage(), url.Values{"topFields.qup": {"123456789"}})
	require.Contains(t, out, "topFields.qup exceeds max length of 4")
	require.Contains(t, out, "topFields.methodOfPreservation is required")
	require.NotContains(t, out, "raw-data")

	// A form with no top fields filled in still needs them.
	out = render(t, svc.GeneratorPage(), url.Values{"partA.a1": {"N00019"}})
	require.Contains(t, out, "topFields.qup is required")
	require.NotContains(t, out, "raw-data")

	out = render(t, svc.GeneratorPage(), url.Values{"topFields.qup": {"1"}, "topFields.methodOfPreservation": {"41"}})
	require.Contains(t, out, "raw-data")
	require.Contains(t, out, "QUP: 1")
}

func TestDecoderPage(t *testing.T) {
	_, svc := newService(t, fstest.MapFS{})

	out := render(t, svc.DecoderPage(), url.Values{"raw": {"TOP FIELDS\nQUP: 7"}})
	require.Contains(t, out, "<caption>Top Fields</caption>")
	require.Contains(t, out, "<td>7</td>")
}

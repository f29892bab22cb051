package milstd2073

import (
	"bytes"
	"context"
	"net/url"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/milspecs/internal/dataset"
	"github.com/zjrosen/milspecs/internal/router"
	"github.com/zjrosen/milspecs/internal/spec/adapter"
	"github.com/zjrosen/milspecs/internal/spec/plugins"
	"github.com/zjrosen/milspecs/internal/spec/registry"
	"github.com/zjrosen/milspecs/internal/specstore"
)

func newService(t *testing.T) (*registry.Registry, *Service) {
	t.Helper()
	reg := registry.New()
	deps := plugins.Deps{
		Source: adapter.FSSource{FS: dataset.FS()},
		Store:  specstore.New(reg, 0, 0),
	}
	p, err := Bundle(deps)(context.Background())
	require.NoError(t, err)
	reg.Register(p)

	svc, ok := reg.LoadComposable(context.Background(), adapter.MilSpecID, "useMilSpec").(*Service)
	require.True(t, ok)
	return reg, svc
}

func renderWithQuery(t *testing.T, c templ.Component, q url.Values) string {
	t.Helper()
	ctx := router.WithMatch(context.Background(), router.Match{Query: q})
	var buf bytes.Buffer
	require.NoError(t, c.Render(ctx, &buf))
	return buf.String()
}

func TestBundle_Metadata(t *testing.T) {
	reg, _ := newService(t)

	p := reg.Get(adapter.MilSpecID)
	require.True(t, p.IsDefault)
	require.Equal(t, "1E", p.Version)
	require.Equal(t, []string{"SpecTable"}, p.ComponentNames())
	require.Equal(t, []string{"useMilSpec"}, p.ComposableNames())
	require.Equal(t, Path, p.Routes[0].Path)
	require.NotNil(t, reg.GetAdapter(adapter.MilSpecID))
	require.Len(t, p.FieldDefinitions.(map[string][]Column)["methods"], 4)
}

func TestBundle_DataLoaderRejectsUnknownSection(t *testing.T) {
	reg, _ := newService(t)

	loader := reg.GetDataLoader(adapter.MilSpecID)
	rows, err := loader.LoadSection(context.Background(), "cleaning")
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	_, err = loader.LoadSection(context.Background(), "labels")
	require.ErrorIs(t, err, adapter.ErrUnknownSection)
}

func TestService_SearchAndLookup(t *testing.T) {
	_, svc := newService(t)
	ctx := context.Background()

	rows, err := svc.Search(ctx, "methods", "bag")
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for _, r := range rows {
		require.Contains(t, r.String("description"), "bag")
	}

	item, ok, err := svc.GetItemByCode(ctx, "containers", "ND")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Nailed wood box", item.String("description"))
}

func TestService_ExportSection(t *testing.T) {
	_, svc := newService(t)

	out, err := svc.ExportSection(context.Background(), "cleaning", adapter.FormatCSV)
	require.NoError(t, err)
	require.Contains(t, out, "code,description,type\n")

	_, err = svc.ExportSection(context.Background(), "cleaning", "xml")
	require.Error(t, err)
}

func TestService_Columns(t *testing.T) {
	_, svc := newService(t)

	require.Equal(t, []string{"code", "description", "category", "specReference"}, svc.Columns("methods"))
	require.Equal(t, []string{"code", "description", "material", "thickness"}, svc.Columns("wrapping"))
}

func TestService_Page(t *testing.T) {
	_, svc := newService(t)

	out := renderWithQuery(t, svc.Page(), url.Values{"section": {"containers"}, "q": {"wood"}})
	require.Contains(t, out, "Nailed wood box")
	require.NotContains(t, out, "Fiberboard box")

	out = renderWithQuery(t, svc.Page(), url.Values{"section": {"labels"}})
	require.Contains(t, out, "Unknown section: labels")
}

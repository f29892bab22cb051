package specstore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/milspecs/internal/spec/adapter"
	"github.com/zjrosen/milspecs/internal/spec/registry"
)

const methodsJSON = `[
  {"code": "10", "description": "Preservation as required"},
  {"code": "31", "description": "Waterproof bag, sealed"},
  {"code": "41", "description": "Watervaporproof bag, sealed"}
]`

type countingSource struct {
	src   adapter.Source
	calls atomic.Int32
}

func (c *countingSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	c.calls.Add(1)
	return c.src.Fetch(ctx, name)
}

func newMilSpecStore(t *testing.T) (*Store, *countingSource) {
	t.Helper()
	src := &countingSource{src: adapter.FSSource{FS: fstest.MapFS{
		"mil-std-2073/methods.json": {Data: []byte(methodsJSON)},
	}}}
	reg := registry.New()
	reg.Register(&registry.Plugin{ID: adapter.MilSpecID, Adapter: adapter.NewMilSpecAdapter(src)})
	return New(reg, 0, 0), src
}

func TestSection_CachesRows(t *testing.T) {
	s, src := newMilSpecStore(t)
	ctx := context.Background()

	rows, err := s.Section(ctx, adapter.MilSpecID, "methods")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	_, err = s.Section(ctx, adapter.MilSpecID, "methods")
	require.NoError(t, err)
	require.Equal(t, int32(1), src.calls.Load())
	require.True(t, s.Loaded(adapter.MilSpecID))
	require.False(t, s.State(adapter.MilSpecID, "methods").LoadedAt.IsZero())
}

func TestLoadSection_Refetches(t *testing.T) {
	s, src := newMilSpecStore(t)
	ctx := context.Background()

	_, err := s.LoadSection(ctx, adapter.MilSpecID, "methods")
	require.NoError(t, err)
	_, err = s.LoadSection(ctx, adapter.MilSpecID, "methods")
	require.NoError(t, err)
	require.Equal(t, int32(2), src.calls.Load())
}

func TestSearch(t *testing.T) {
	s, _ := newMilSpecStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		codes []string
	}{
		{name: "empty query returns all", query: "", codes: []string{"10", "31", "41"}},
		{name: "matches description ignoring case", query: "WATERPROOF", codes: []string{"31"}},
		{name: "matches code", query: "4", codes: []string{"41"}},
		{name: "no match", query: "crate", codes: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := s.Search(ctx, adapter.MilSpecID, "methods", tt.query)
			require.NoError(t, err)
			codes := []string{}
			for _, r := range rows {
				codes = append(codes, r.String("code"))
			}
			require.Equal(t, tt.codes, codes)
		})
	}
}

func TestGetItemByCode(t *testing.T) {
	s, _ := newMilSpecStore(t)
	ctx := context.Background()

	item, ok, err := s.GetItemByCode(ctx, adapter.MilSpecID, "methods", "31")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Waterproof bag, sealed", item.String("description"))

	_, ok, err = s.GetItemByCode(ctx, adapter.MilSpecID, "methods", "99")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSection_UnknownSectionRecordsError(t *testing.T) {
	s, _ := newMilSpecStore(t)

	_, err := s.Section(context.Background(), adapter.MilSpecID, "labels")
	require.Error(t, err)
	require.NotEmpty(t, s.State(adapter.MilSpecID, "labels").Error)
}

func TestSection_FallsBackToDataLoader(t *testing.T) {
	reg := registry.New()
	reg.Register(&registry.Plugin{
		ID: "custom",
		DataLoader: registry.DataLoaderFunc(func(ctx context.Context, section string) (any, error) {
			return []any{map[string]any{"code": "X1", "description": section}}, nil
		}),
	})
	s := New(reg, 0, 0)

	rows, err := s.Section(context.Background(), "custom", "parts")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "parts", rows[0].String("description"))
}

func TestSection_NoLoader(t *testing.T) {
	reg := registry.New()
	reg.Register(&registry.Plugin{ID: "bare"})
	s := New(reg, 0, 0)

	_, err := s.Section(context.Background(), "bare", "x")
	require.True(t, errors.Is(err, ErrNoLoader))
}

func TestInvalidateAndClear(t *testing.T) {
	s, src := newMilSpecStore(t)
	ctx := context.Background()

	_, err := s.Section(ctx, adapter.MilSpecID, "methods")
	require.NoError(t, err)

	s.Invalidate(ctx, adapter.MilSpecID)
	require.False(t, s.Loaded(adapter.MilSpecID))
	_, err = s.Section(ctx, adapter.MilSpecID, "methods")
	require.NoError(t, err)
	require.Equal(t, int32(2), src.calls.Load())

	s.ClearData(ctx)
	_, err = s.Section(ctx, adapter.MilSpecID, "methods")
	require.NoError(t, err)
	require.Equal(t, int32(3), src.calls.Load())
}

func TestLoadAllSections_FailsOnMissingSection(t *testing.T) {
	s, _ := newMilSpecStore(t)

	_, err := s.LoadAllSections(context.Background(), adapter.MilSpecID)
	require.Error(t, err)
}

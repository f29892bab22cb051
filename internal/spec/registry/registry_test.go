package registry

import (
	"bytes"
	"fmt"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/milspecs/internal/lazy"
	"github.com/zjrosen/milspecs/internal/log"
	"github.com/zjrosen/milspecs/internal/pubsub"
	"github.com/zjrosen/milspecs/internal/router"
	"github.com/zjrosen/milspecs/internal/spec/adapter"
)

var fixedNow = time.Date(2026, time.October, 17, 9, 30, 0, 0, time.UTC)

func newTestRegistry(opts ...Option) *Registry {
	return New(append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.InitWriter(&buf, log.LevelDebug)
	t.Cleanup(func() { log.InitWriter(io.Discard, log.LevelError) })
	return &buf
}

func textComponent(s string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	})
}

func toolPlugin(id string) *Plugin {
	return &Plugin{
		ID:     id,
		Routes: []router.Route{{Path: "/tools/" + id + "/main", Name: id + "-main"}},
		Components: map[string]lazy.Value[templ.Component]{
			"Main": lazy.Resolved(textComponent(id)),
		},
		Composables: map[string]lazy.Value[any]{
			"use" + id: lazy.Resolved[any](id),
		},
		DataLoader: DataLoaderFunc(func(ctx context.Context, section string) (any, error) { return section, nil }),
	}
}

func TestRegister_AppliesDefaults(t *testing.T) {
	r := newTestRegistry()

	r.Register(&Plugin{ID: "mil-std-2073"})

	p := r.Get("mil-std-2073")
	require.NotNil(t, p)
	require.Equal(t, "mil-std-2073", p.ID)
	require.Equal(t, "mil-std-2073", p.Name)
	require.Equal(t, "1.0", p.Version)
	require.Equal(t, "", p.Description)
	require.Equal(t, "mdi-file-document", p.Icon)
	require.Empty(t, p.Routes)
	require.NotNil(t, p.Routes)
	require.Empty(t, p.Components)
	require.Empty(t, p.Composables)
	require.Equal(t, map[string]any{}, p.FieldDefinitions)
	require.Nil(t, p.DataLoader)
	require.Nil(t, p.Adapter)
	require.Equal(t, fixedNow, p.RegisteredAt)
}

func TestRegister_KeepsProvidedFields(t *testing.T) {
	r := newTestRegistry()
	a := adapter.NewDD2326Adapter(nil)

	r.Register(&Plugin{
		ID:          "dd2326",
		Name:        "DD Form 2326",
		Version:     "SEP1997",
		Description: "Preservation and packing data",
		Icon:        "mdi-form-select",
		Adapter:     a,
	})

	p := r.Get("dd2326")
	require.Equal(t, "DD Form 2326", p.Name)
	require.Equal(t, "SEP1997", p.Version)
	require.Equal(t, "mdi-form-select", p.Icon)
	require.Same(t, a, r.GetAdapter("dd2326"))
}

func TestRegister_InvalidPluginCreatesNoState(t *testing.T) {
	buf := captureLog(t)
	r := newTestRegistry()

	r.Register(nil)
	r.Register(&Plugin{Name: "no id", Routes: []router.Route{{Path: "/tools/x"}}})
	r.Register(&Plugin{ID: "   "})

	require.Empty(t, r.GetAll())
	require.Empty(t, r.GetAllRoutes())
	require.Equal(t, Stats{Specs: []string{}}, r.GetStats())
	require.Contains(t, buf.String(), "[ERROR] [registry] Attempted to register invalid spec")
}

func TestRegister_SameIDTwiceIsLastWriteWins(t *testing.T) {
	buf := captureLog(t)
	r := newTestRegistry()

	r.Register(&Plugin{ID: "a", Name: "First"})
	r.Register(&Plugin{ID: "b"})
	r.Register(&Plugin{ID: "a", Name: "Second"})

	require.Len(t, r.GetAll(), 2)
	require.Equal(t, []string{"a", "b"}, r.GetStats().Specs)
	require.Equal(t, "Second", r.Get("a").Name)
	require.Contains(t, buf.String(), "[WARN] [registry] Overwriting existing plugin id=a")
}

func TestRegister_CopiesCallerCollections(t *testing.T) {
	r := newTestRegistry()
	p := toolPlugin("x")

	r.Register(p)
	p.Routes[0].Path = "/tools/changed"
	p.Components["Late"] = lazy.Resolved(textComponent("late"))

	require.Equal(t, "/tools/x/main", r.GetAllRoutes()[0].Path)
	require.Nil(t, r.GetComponent("x", "Late"))
}

func TestRoutes_KeepRegistrationOrderAcrossPlugins(t *testing.T) {
	r := newTestRegistry()

	r.Register(toolPlugin("a"))
	r.Register(toolPlugin("b"))

	paths := []string{}
	for _, route := range r.GetAllRoutes() {
		paths = append(paths, route.Path)
	}
	require.Equal(t, []string{"/tools/a/main", "/tools/b/main"}, paths)
	require.Equal(t, []router.Route{{Path: "/tools/b/main", Name: "b-main"}}, r.GetRoutesForSpec("b"))
	require.Empty(t, r.GetRoutesForSpec("missing"))
}

func TestUnregister_CascadesAndPreservesOthers(t *testing.T) {
	r := newTestRegistry()
	a := toolPlugin("a")
	a.IsDefault = true
	r.Register(a)
	r.Register(toolPlugin("b"))

	r.Unregister("a")

	require.False(t, r.Has("a"))
	require.True(t, r.Has("b"))
	require.Equal(t, []router.Route{{Path: "/tools/b/main", Name: "b-main"}}, r.GetAllRoutes())
	require.Nil(t, r.GetComponent("a", "Main"))
	require.Nil(t, r.GetComposable("a", "usea"))
	require.Nil(t, r.GetDataLoader("a"))
	require.NotNil(t, r.GetDataLoader("b"))
	require.Equal(t, "b", r.GetDefaultSpec().ID)
	require.Equal(t, Stats{TotalSpecs: 1, TotalComponents: 1, TotalComposables: 1, TotalRoutes: 1, Specs: []string{"b"}}, r.GetStats())

	require.NotPanics(t, func() { r.Unregister("unknown") })
}

func TestUnregister_UsesRecordedOwnershipNotPathPrefix(t *testing.T) {
	r := newTestRegistry()

	// "suite" declares a route under another spec's prefix.
	r.Register(&Plugin{ID: "suite", Routes: []router.Route{{Path: "/tools/dd2326/batch"}}})
	r.Register(&Plugin{ID: "dd2326", Routes: []router.Route{{Path: "/tools/dd2326/generator"}}})

	r.Unregister("dd2326")

	require.Equal(t, []router.Route{{Path: "/tools/dd2326/batch"}}, r.GetAllRoutes())
}

func TestUnregister_RemovesRoutesOfEveryRegistration(t *testing.T) {
	r := newTestRegistry()

	r.Register(toolPlugin("a"))
	r.Register(toolPlugin("a"))
	require.Len(t, r.GetAllRoutes(), 2)

	r.Unregister("a")
	require.Empty(t, r.GetAllRoutes())
}

func TestGetDefaultSpec(t *testing.T) {
	r := newTestRegistry()
	require.Nil(t, r.GetDefaultSpec())

	r.Register(&Plugin{ID: "first"})
	require.Equal(t, "first", r.GetDefaultSpec().ID)

	r.Register(&Plugin{ID: "flagged", IsDefault: true})
	r.Register(&Plugin{ID: "later"})
	require.Equal(t, "flagged", r.GetDefaultSpec().ID)
}

func TestLoadComponent_CachesLazyLoader(t *testing.T) {
	r := newTestRegistry()
	var calls atomic.Int32
	table := textComponent("table")
	r.Register(&Plugin{
		ID: "mil-std-2073",
		Components: map[string]lazy.Value[templ.Component]{
			"SpecTable": lazy.Lazy(func(ctx context.Context) (templ.Component, error) {
				calls.Add(1)
				return table, nil
			}),
		},
	})

	entry := r.GetComponent("mil-std-2073", "SpecTable")
	require.NotNil(t, entry)
	require.False(t, entry.Loaded)
	require.Equal(t, int32(0), calls.Load())

	first := r.LoadComponent(context.Background(), "mil-std-2073", "SpecTable")
	second := r.LoadComponent(context.Background(), "mil-std-2073", "SpecTable")

	require.NotNil(t, first)
	require.NotNil(t, second)
	require.Equal(t, int32(1), calls.Load())
	require.True(t, r.GetComponent("mil-std-2073", "SpecTable").Loaded)
}

func TestLoadComponent_ResolvedValueNeedsNoLoader(t *testing.T) {
	r := newTestRegistry()
	r.Register(toolPlugin("a"))

	var buf bytes.Buffer
	c := r.LoadComponent(context.Background(), "a", "Main")
	require.NotNil(t, c)
	require.NoError(t, c.Render(context.Background(), &buf))
	require.Equal(t, "a", buf.String())
}

func TestLoadComponent_MissingReturnsNil(t *testing.T) {
	buf := captureLog(t)
	r := newTestRegistry()

	require.NotPanics(t, func() {
		require.Nil(t, r.LoadComponent(context.Background(), "nope", "Nothing"))
		require.Nil(t, r.LoadComposable(context.Background(), "nope", "useNothing"))
	})
	require.Contains(t, buf.String(), "Component not found")
	require.Contains(t, buf.String(), "Composable not found")
}

func TestLoadComposable_LoaderErrorReturnsNilAndRetries(t *testing.T) {
	buf := captureLog(t)
	r := newTestRegistry()
	fail := true
	r.Register(&Plugin{
		ID: "dd2326",
		Composables: map[string]lazy.Value[any]{
			"useDD2326": lazy.Lazy(func(ctx context.Context) (any, error) {
				if fail {
					return nil, errors.New("bundle missing")
				}
				return "service", nil
			}),
		},
	})

	require.Nil(t, r.LoadComposable(context.Background(), "dd2326", "useDD2326"))
	require.Contains(t, buf.String(), "Error loading composable")

	fail = false
	require.Equal(t, "service", r.LoadComposable(context.Background(), "dd2326", "useDD2326"))
}

func TestLoadComponent_ConcurrentCallsShareOneLoad(t *testing.T) {
	r := newTestRegistry()
	var calls atomic.Int32
	release := make(chan struct{})
	r.Register(&Plugin{
		ID: "dd2326",
		Components: map[string]lazy.Value[templ.Component]{
			"DD2326Form": lazy.Lazy(func(ctx context.Context) (templ.Component, error) {
				calls.Add(1)
				<-release
				return textComponent("form"), nil
			}),
		},
	})

	const callers = 8
	var wg sync.WaitGroup
	results := make([]templ.Component, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.LoadComponent(context.Background(), "dd2326", "DD2326Form")
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for _, c := range results {
		require.NotNil(t, c)
	}
}

func TestGetTools(t *testing.T) {
	r := newTestRegistry()
	r.Register(&Plugin{ID: "dd2326", Routes: []router.Route{
		{Path: "/tools/dd2326/generator", Name: "dd2326-generator"},
		{Path: "/specs/dd2326", Name: "dd2326-spec"},
	}})
	r.Register(&Plugin{ID: "tools-expansion", Routes: []router.Route{
		{Path: "/tools/mil-std-202", Name: "mil-std-202"},
	}})

	tools := r.GetTools()
	require.Len(t, tools, 2)
	require.Equal(t, "dd2326", tools[0].SpecID)
	require.Equal(t, "mil-std-202", tools[1].SpecID)
	require.Equal(t, "dd2326-generator", tools[0].Name)
}

func TestSpecIDForPath(t *testing.T) {
	require.Equal(t, "dd2326", SpecIDForPath("/tools/dd2326/decoder"))
	require.Equal(t, "mil-std-2073", SpecIDForPath("/specs/mil-std-2073"))
	require.Equal(t, "", SpecIDForPath("/about"))
	require.Equal(t, "", SpecIDForPath("/tools/"))
}

func TestLookup(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Lookup("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSubscribe_PublishesChanges(t *testing.T) {
	r := newTestRegistry()
	defer r.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := r.Subscribe(ctx)

	r.Register(&Plugin{ID: "a"})
	r.Register(&Plugin{ID: "a"})
	r.Unregister("a")

	want := []pubsub.EventType{pubsub.CreatedEvent, pubsub.UpdatedEvent, pubsub.DeletedEvent}
	for _, typ := range want {
		select {
		case ev := <-events:
			require.Equal(t, typ, ev.Type)
			require.Equal(t, "a", ev.Payload.SpecID)
		case <-time.After(time.Second):
			require.Fail(t, "timeout waiting for event")
		}
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := newTestRegistry(WithMetrics(reg))

	r.Register(toolPlugin("a"))
	r.LoadComponent(context.Background(), "a", "Main")
	r.LoadComponent(context.Background(), "a", "Main")
	r.LoadComponent(context.Background(), "a", "Missing")

	require.Equal(t, float64(1), testutil.ToFloat64(r.metrics.specs))
	require.Equal(t, float64(1), testutil.ToFloat64(r.metrics.loads.WithLabelValues(KindComponent, "loaded")))
	require.Equal(t, float64(1), testutil.ToFloat64(r.metrics.loads.WithLabelValues(KindComponent, "cached")))
	require.Equal(t, float64(1), testutil.ToFloat64(r.metrics.loads.WithLabelValues(KindComponent, "missing")))
}

func TestRegistry_RegisterUnregisterMatchesModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := New()
		ids := []string{"a", "b", "c"}

		type owned struct{ owner, path string }
		var (
			order  []string
			live   = map[string]bool{}
			routes []owned
		)

		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for i := range steps {
			id := rapid.SampledFrom(ids).Draw(t, "id")
			if rapid.Bool().Draw(t, "register") {
				n := rapid.IntRange(0, 3).Draw(t, "routes")
				p := &Plugin{ID: id}
				for j := range n {
					path := fmt.Sprintf("/tools/%s/%d-%d", id, i, j)
					p.Routes = append(p.Routes, router.Route{Path: path})
					routes = append(routes, owned{id, path})
				}
				r.Register(p)
				if !live[id] {
					order = append(order, id)
				}
				live[id] = true
				continue
			}

			r.Unregister(id)
			if live[id] {
				delete(live, id)
				kept := order[:0]
				for _, o := range order {
					if o != id {
						kept = append(kept, o)
					}
				}
				order = kept
				keptRoutes := routes[:0]
				for _, o := range routes {
					if o.owner != id {
						keptRoutes = append(keptRoutes, o)
					}
				}
				routes = keptRoutes
			}
		}

		for _, id := range ids {
			if r.Has(id) != live[id] {
				t.Fatalf("Has(%q) = %v, want %v", id, r.Has(id), live[id])
			}
		}

		got := r.GetStats().Specs
		if len(got) != len(order) {
			t.Fatalf("specs = %v, want %v", got, order)
		}
		for i := range order {
			if got[i] != order[i] {
				t.Fatalf("specs = %v, want %v", got, order)
			}
		}

		all := r.GetAllRoutes()
		if len(all) != len(routes) {
			t.Fatalf("got %d routes, want %d", len(all), len(routes))
		}
		for i, o := range routes {
			if all[i].Path != o.path {
				t.Fatalf("route %d = %s, want %s", i, all[i].Path, o.path)
			}
		}
	})
}

package loader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/milspecs/internal/dataset"
	"github.com/zjrosen/milspecs/internal/flags"
	"github.com/zjrosen/milspecs/internal/router"
	"github.com/zjrosen/milspecs/internal/spec/adapter"
	"github.com/zjrosen/milspecs/internal/spec/plugins"
	"github.com/zjrosen/milspecs/internal/spec/registry"
	"github.com/zjrosen/milspecs/internal/specstore"
	"github.com/zjrosen/milspecs/internal/tracing"
)

func bundleOf(p *registry.Plugin, delay time.Duration) plugins.Bundle {
	return func(ctx context.Context) (*registry.Plugin, error) {
		time.Sleep(delay)
		return p, nil
	}
}

func TestLoadSpecPlugins_KeepsDeclaredOrder(t *testing.T) {
	reg := registry.New()

	loaded := LoadSpecPlugins(context.Background(), reg,
		bundleOf(&registry.Plugin{ID: "slow"}, 30*time.Millisecond),
		bundleOf(&registry.Plugin{ID: "fast"}, 0),
	)

	require.Len(t, loaded, 2)
	require.Equal(t, []string{"slow", "fast"}, reg.GetStats().Specs)
}

func TestLoadSpecPlugins_SkipsFailuresAndPanics(t *testing.T) {
	reg := registry.New()

	loaded := LoadSpecPlugins(context.Background(), reg,
		func(context.Context) (*registry.Plugin, error) { return nil, errors.New("import failed") },
		func(context.Context) (*registry.Plugin, error) { panic("boom") },
		nil,
		bundleOf(&registry.Plugin{ID: "ok"}, 0),
	)

	require.Len(t, loaded, 1)
	require.Equal(t, []string{"ok"}, reg.GetStats().Specs)
}

func TestBuiltins_GatedByFlag(t *testing.T) {
	deps := plugins.Deps{Source: adapter.FSSource{FS: dataset.FS()}}

	require.Len(t, Builtins(deps, flags.WithDefaults(nil)), 3)
	require.Len(t, Builtins(deps, flags.New(nil)), 2)
}

func newBuiltinService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	reg := registry.New()
	deps := plugins.Deps{
		Source: adapter.FSSource{FS: dataset.FS()},
		Store:  specstore.New(reg, 0, 0),
	}
	return NewService(reg, Builtins(deps, flags.WithDefaults(nil)), opts...)
}

func TestService_InitRegistersBuiltinsAndMergesRoutes(t *testing.T) {
	tree := router.NewTree(router.StaticViews{})
	svc := newBuiltinService(t, WithRouter(tree))
	require.False(t, svc.Initialized())

	require.NoError(t, svc.Init(context.Background()))
	require.True(t, svc.Initialized())

	require.Equal(t, []string{"mil-std-2073", "dd2326", "tools-expansion"}, svc.Stats().Specs)
	require.Equal(t, "mil-std-2073", svc.DefaultSpec().ID)
	require.NotNil(t, svc.Spec("dd2326"))
	require.Len(t, svc.Tools(), 5)
	require.Len(t, svc.ToolsForSpec("dd2326"), 2)
	require.Len(t, svc.SpecViews(), 2)
	require.Len(t, svc.AvailableSpecs(), 3)

	m := tree.Match("/tools/dd2326/decoder")
	require.Equal(t, "dd2326-decoder", m.Route.Name)
	require.Equal(t, router.SectionTools, m.Section)
}

func TestService_InitRecordsSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	svc := newBuiltinService(t, WithRouter(router.NewTree(router.StaticViews{})), WithTracer(tp.Tracer("test")))

	require.NoError(t, svc.Init(context.Background()))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, tracing.SpanLoaderInit, spans[0].Name())
	var count int64
	for _, kv := range spans[0].Attributes() {
		if string(kv.Key) == tracing.AttrPluginCount {
			count = kv.Value.AsInt64()
		}
	}
	require.Equal(t, int64(3), count)
}

func TestService_InitRunsOnce(t *testing.T) {
	reg := registry.New()
	var calls atomic.Int32
	release := make(chan struct{})
	svc := NewService(reg, []plugins.Bundle{
		func(context.Context) (*registry.Plugin, error) {
			calls.Add(1)
			<-release
			return &registry.Plugin{ID: "only"}, nil
		},
	})

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.Init(context.Background()))
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, svc.Init(context.Background()))
	require.Equal(t, int32(1), calls.Load())
	require.True(t, svc.Initialized())
}

func TestService_InitWaitHonorsContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	svc := NewService(registry.New(), []plugins.Bundle{
		func(context.Context) (*registry.Plugin, error) {
			<-release
			return &registry.Plugin{ID: "slow"}, nil
		},
	})

	go func() { _ = svc.Init(context.Background()) }()
	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return svc.initializing != nil
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, svc.Init(ctx), context.Canceled)
}

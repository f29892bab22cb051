package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/milspecs/internal/config"
	"github.com/zjrosen/milspecs/internal/flags"
	"github.com/zjrosen/milspecs/internal/pubsub"
	"github.com/zjrosen/milspecs/internal/spec/adapter"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.StateDir = t.TempDir()
	cfg.Data.Watch = false
	cfg.Server.Addr = "127.0.0.1:0"
	return cfg
}

func newApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })
	return a
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestNew_Defaults(t *testing.T) {
	cfg := testConfig(t)
	a := newApp(t, cfg)

	assert.True(t, a.Specs.Initialized())
	assert.Len(t, a.Specs.Specs(), 3)
	require.NotNil(t, a.Forms)
	assert.FileExists(t, filepath.Join(cfg.StateDir, "forms.db"))
	assert.False(t, a.Tracing.Enabled())
}

func TestNew_FlagsGateBundles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Flags = map[string]bool{flags.FlagToolsExpansion: false}
	a := newApp(t, cfg)

	assert.Len(t, a.Specs.Specs(), 2)
	assert.False(t, a.Registry.Has("tools-expansion"))
}

func TestNew_FormsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Forms.Enabled = false
	a := newApp(t, cfg)

	assert.Nil(t, a.Forms)
	w := get(t, a.Handler(), "/api/forms")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NoFileExists(t, filepath.Join(cfg.StateDir, "forms.db"))
}

func TestHandler_ServesSiteAndAPI(t *testing.T) {
	a := newApp(t, testConfig(t))
	h := a.Handler()

	w := get(t, h, "/specs")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `href="/specs/mil-std-2073"`)
	assert.Contains(t, w.Body.String(), adapter.MilSpecName)

	w = get(t, h, "/tools")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/tools/dd2326/generator")

	w = get(t, h, "/api/health")
	require.Equal(t, http.StatusOK, w.Code)

	w = get(t, h, "/does/not/exist")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Metrics(t *testing.T) {
	a := newApp(t, testConfig(t))

	w := get(t, a.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "milspecs_registry_specs 3")
}

func TestHandler_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false
	a := newApp(t, cfg)

	w := get(t, a.Handler(), "/metrics")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSpecCards_UseFirstRoute(t *testing.T) {
	a := newApp(t, testConfig(t))

	cards := a.specCards(context.Background())
	paths := map[string]string{}
	for _, c := range cards {
		paths[c.ID] = c.Path
	}
	assert.Equal(t, "/specs/mil-std-2073", paths[adapter.MilSpecID])
	assert.Equal(t, "/tools/dd2326/generator", paths[adapter.DD2326ID])
}

func TestStaticViews_STPFlag(t *testing.T) {
	cfg := testConfig(t)
	a := newApp(t, cfg)
	w := get(t, a.Handler(), "/specs/stp")
	assert.Equal(t, http.StatusNotFound, w.Code)

	cfg = testConfig(t)
	cfg.Flags = map[string]bool{flags.FlagSTPViewer: true}
	a = newApp(t, cfg)
	w = get(t, a.Handler(), "/specs/stp")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "STP Reference")
}

func writeMethods(t *testing.T, dir, description string) {
	t.Helper()
	rows := []map[string]string{{"code": "31", "description": description, "category": "Method 30"}}
	data, err := json.Marshal(rows)
	require.NoError(t, err)
	specDir := filepath.Join(dir, adapter.MilSpecID)
	require.NoError(t, os.MkdirAll(specDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(specDir, "methods.json"), data, 0o644))
}

func TestDataDir_OverridesEmbedded(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.Dir = t.TempDir()
	writeMethods(t, cfg.Data.Dir, "Override bag")
	a := newApp(t, cfg)

	w := get(t, a.Handler(), "/api/specs/mil-std-2073/sections/methods/items/31")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Override bag")

	w = get(t, a.Handler(), "/api/specs/mil-std-2073/sections/containers")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestWatcher_ReloadsChangedSpec(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.Dir = t.TempDir()
	cfg.Data.Watch = true
	cfg.Data.Debounce = 20 * time.Millisecond
	writeMethods(t, cfg.Data.Dir, "First bag")
	a := newApp(t, cfg)
	require.NotNil(t, a.watcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := a.Registry.Subscribe(ctx)

	writeMethods(t, cfg.Data.Dir, "Second bag")

	select {
	case e := <-events:
		assert.Equal(t, pubsub.ReloadedEvent, e.Type)
		assert.Equal(t, adapter.MilSpecID, e.Payload.SpecID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload event")
	}

	require.Eventually(t, func() bool {
		w := get(t, a.Handler(), "/api/specs/mil-std-2073/sections/methods/items/31")
		return w.Code == http.StatusOK && strings.Contains(w.Body.String(), "Second bag")
	}, 2*time.Second, 20*time.Millisecond)
}

func TestClose_Idempotent(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestNewServer_BindsConfiguredAddr(t *testing.T) {
	a := newApp(t, testConfig(t))
	srv, err := a.NewServer()
	require.NoError(t, err)
	assert.NotZero(t, srv.Port())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	require.NoError(t, srv.Stop(context.Background()))
	assert.ErrorIs(t, <-errCh, http.ErrServerClosed)
}

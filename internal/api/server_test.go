package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMount_RoutesAPIAndSite(t *testing.T) {
	f := newFixture(t, false)
	site := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "site:"+r.URL.Path)
	})
	h := Mount(f.api, site)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/specs/mil-std-2073", nil))
	require.Equal(t, "site:/specs/mil-std-2073", w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestServer_StartStop(t *testing.T) {
	f := newFixture(t, false)
	srv, err := NewServer(ServerConfig{Addr: "127.0.0.1:0", API: f.api})
	require.NoError(t, err)
	require.NotZero(t, srv.Port())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(srv.Port()) + "/api/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	require.True(t, errors.Is(<-errCh, http.ErrServerClosed))
}

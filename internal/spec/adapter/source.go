package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/zjrosen/milspecs/internal/cachemanager"
	"github.com/zjrosen/milspecs/internal/log"
)

// Source fetches raw data files by slash-separated path, relative to the
// data root (for example "mil-std-2073/methods.json").
type Source interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// LoadError reports a failed data fetch or decode.
type LoadError struct {
	Path   string
	Status string
	Err    error
}

func (e *LoadError) Error() string {
	switch {
	case e.Status != "":
		return fmt.Sprintf("load %s: %s", e.Path, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("load %s: %v", e.Path, e.Err)
	default:
		return "load " + e.Path
	}
}

func (e *LoadError) Unwrap() error { return e.Err }

var tracer = otel.Tracer("github.com/zjrosen/milspecs/internal/spec/adapter")

// HTTPSource fetches data files from a base URL such as
// "https://example.mil/data".
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPSource returns an HTTPSource with a bounded client timeout.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Fetch issues a GET and returns the body of a 2xx response. Any other
// status fails with a LoadError carrying the status text.
func (s *HTTPSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "adapter.fetch")
	defer span.End()

	target, err := url.JoinPath(s.BaseURL, name)
	if err != nil {
		return nil, &LoadError{Path: name, Err: err}
	}
	span.SetAttributes(attribute.String("http.url", target))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &LoadError{Path: name, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &LoadError{Path: name, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		status := http.StatusText(resp.StatusCode)
		if status == "" {
			status = resp.Status
		}
		span.SetStatus(codes.Error, status)
		return nil, &LoadError{Path: name, Status: status}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &LoadError{Path: name, Err: err}
	}
	return body, nil
}

// FSSource reads data files from a file system, typically the embedded
// datasets or an os.DirFS override directory.
type FSSource struct {
	FS fs.FS
}

// Fetch reads name from the file system.
func (s FSSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	data, err := fs.ReadFile(s.FS, path.Clean(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LoadError{Path: name, Status: http.StatusText(http.StatusNotFound), Err: err}
		}
		return nil, &LoadError{Path: name, Err: err}
	}
	return data, nil
}

// LayeredSource tries each source in order and returns the first success.
// A later source is consulted only when the earlier one reports a missing
// file, so a malformed override is surfaced rather than silently skipped.
type LayeredSource []Source

// Fetch implements Source.
func (l LayeredSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	var lastErr error = &LoadError{Path: name, Status: http.StatusText(http.StatusNotFound)}
	for _, src := range l {
		data, err := src.Fetch(ctx, name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// CachedSource memoizes fetched files. Invalidate drops entries after the
// underlying files change.
type CachedSource struct {
	rtc *cachemanager.ReadThroughCache[string, []byte, string]
	ttl time.Duration
}

// NewCachedSource wraps src with a go-cache backed read-through cache.
func NewCachedSource(src Source, ttl, cleanup time.Duration) *CachedSource {
	cache := cachemanager.NewInMemoryCacheManager[string, []byte]("data-files", ttl, cleanup)
	return &CachedSource{
		rtc: cachemanager.NewReadThroughCache[string, []byte, string](cache, src.Fetch, false),
		ttl: ttl,
	}
}

// Fetch implements Source.
func (c *CachedSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	return c.rtc.Get(ctx, name, name, c.ttl)
}

// Invalidate drops cached files whose path starts with prefix. An empty
// prefix drops everything.
func (c *CachedSource) Invalidate(ctx context.Context, prefix string) {
	n := c.rtc.Invalidate(ctx, prefix)
	log.Debug(log.CatAdapter, "data file cache invalidated", "prefix", prefix, "count", n)
}

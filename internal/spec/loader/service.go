package loader

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/milspecs/internal/log"
	"github.com/zjrosen/milspecs/internal/router"
	"github.com/zjrosen/milspecs/internal/spec/plugins"
	"github.com/zjrosen/milspecs/internal/spec/registry"
	"github.com/zjrosen/milspecs/internal/tracing"
)

// SpecSummary is the public description of a registered spec.
type SpecSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	IsDefault   bool   `json:"isDefault"`
	Routes      int    `json:"routes"`
}

// Service is the application-facing view of the registry. Init loads the
// bundles once and merges their routes into the site router.
type Service struct {
	reg     *registry.Registry
	bundles []plugins.Bundle
	router  router.Router
	tracer  trace.Tracer

	mu           sync.Mutex
	initialized  bool
	initializing chan struct{}
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRouter merges plugin routes into r after the bundles load.
func WithRouter(r router.Router) ServiceOption {
	return func(s *Service) { s.router = r }
}

// WithTracer records a span around Init.
func WithTracer(t trace.Tracer) ServiceOption {
	return func(s *Service) { s.tracer = t }
}

// NewService returns an uninitialized service over reg.
func NewService(reg *registry.Registry, bundles []plugins.Bundle, opts ...ServiceOption) *Service {
	s := &Service{reg: reg, bundles: bundles}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the underlying registry.
func (s *Service) Registry() *registry.Registry { return s.reg }

// Init loads the bundles. Later calls return immediately once loaded; calls
// made while loading wait for it or for ctx.
func (s *Service) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	if wait := s.initializing; wait != nil {
		s.mu.Unlock()
		select {
		case <-wait:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	done := make(chan struct{})
	s.initializing = done
	s.mu.Unlock()

	ctx, span := tracing.Start(ctx, s.tracer, tracing.SpanLoaderInit)
	loaded := LoadSpecPlugins(ctx, s.reg, s.bundles...)
	if s.router != nil {
		res := router.MergePluginRoutes(s.reg, s.router)
		log.Debug(log.CatLoader, "plugin routes merged", "added", res.Added, "skipped", res.Skipped, "ignored", res.Ignored)
		span.SetAttributes(attribute.Int(tracing.AttrRouteCount, res.Added))
	}
	span.SetAttributes(attribute.Int(tracing.AttrPluginCount, len(loaded)))
	tracing.End(span, nil)

	s.mu.Lock()
	s.initialized = true
	s.initializing = nil
	s.mu.Unlock()
	close(done)

	log.Info(log.CatLoader, "Registry initialized", "specs", len(s.reg.GetAll()))
	return nil
}

// Initialized reports whether Init has completed.
func (s *Service) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Specs returns every registered spec in registration order.
func (s *Service) Specs() []SpecSummary {
	all := s.reg.GetAll()
	out := make([]SpecSummary, 0, len(all))
	for _, p := range all {
		out = append(out, summarize(p))
	}
	return out
}

// AvailableSpecs returns the specs that declare at least one route.
func (s *Service) AvailableSpecs() []SpecSummary {
	var out []SpecSummary
	for _, sum := range s.Specs() {
		if sum.Routes > 0 {
			out = append(out, sum)
		}
	}
	return out
}

// Routes returns every plugin route.
func (s *Service) Routes() []router.Route { return s.reg.GetAllRoutes() }

// Tools returns the plugin routes under /tools/.
func (s *Service) Tools() []registry.Tool { return s.reg.GetTools() }

// SpecViews returns the plugin routes under /specs/.
func (s *Service) SpecViews() []router.Route {
	var out []router.Route
	for _, r := range s.reg.GetAllRoutes() {
		if strings.HasPrefix(r.Path, router.SpecsPrefix) {
			out = append(out, r)
		}
	}
	return out
}

// ToolsForSpec returns the tools whose path names spec id.
func (s *Service) ToolsForSpec(id string) []registry.Tool {
	var out []registry.Tool
	for _, t := range s.reg.GetTools() {
		if t.SpecID == id {
			out = append(out, t)
		}
	}
	return out
}

// Spec returns a registered spec, or nil.
func (s *Service) Spec(id string) *registry.Plugin { return s.reg.Get(id) }

// Summary returns the public description of one spec.
func (s *Service) Summary(id string) (SpecSummary, bool) {
	p := s.reg.Get(id)
	if p == nil {
		return SpecSummary{}, false
	}
	return summarize(p), true
}

// DefaultSpec returns the default spec, or nil when none is registered.
func (s *Service) DefaultSpec() *registry.Plugin { return s.reg.GetDefaultSpec() }

// Stats summarizes the registry.
func (s *Service) Stats() registry.Stats { return s.reg.GetStats() }

func summarize(p *registry.Plugin) SpecSummary {
	return SpecSummary{
		ID:          p.ID,
		Name:        p.Name,
		Version:     p.Version,
		Description: p.Description,
		Icon:        p.Icon,
		IsDefault:   p.IsDefault,
		Routes:      len(p.Routes),
	}
}

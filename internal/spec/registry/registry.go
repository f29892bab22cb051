// Package registry is the catalog of spec plugins. It indexes each plugin's
// components, composables, data loader and routes, resolves lazy members on
// first use, and tears everything down again on unregister.
package registry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/zjrosen/milspecs/internal/log"
	"github.com/zjrosen/milspecs/internal/pubsub"
	"github.com/zjrosen/milspecs/internal/router"
	"github.com/zjrosen/milspecs/internal/spec/adapter"
)

var (
	// ErrInvalidPlugin is reported (logged, never returned) when a plugin is
	// nil or has no id.
	ErrInvalidPlugin = errors.New("invalid spec plugin")
	// ErrNotFound is returned by lookups that report misses as errors.
	ErrNotFound = errors.New("spec not found")
)

// Member kinds used in keys, metrics and logs.
const (
	KindComponent  = "component"
	KindComposable = "composable"
)

var specPathPattern = regexp.MustCompile(`^/(tools|specs)/([^/]+)`)

// SpecIDForPath returns the spec a /tools/<id>/... or /specs/<id>/... path
// names, or "".
func SpecIDForPath(path string) string {
	m := specPathPattern.FindStringSubmatch(path)
	if m == nil {
		return ""
	}
	return m[2]
}

type memberKey struct {
	specID string
	name   string
}

type ownedRoute struct {
	owner string
	route router.Route
}

// Change describes a registration event published to subscribers.
type Change struct {
	SpecID string
}

// Option configures a Registry.
type Option func(*Registry)

// WithInflightDedup controls whether concurrent loads of the same member
// share one loader invocation. Enabled by default.
func WithInflightDedup(enabled bool) Option {
	return func(r *Registry) { r.dedup = enabled }
}

// WithMetrics registers the registry collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(r *Registry) { r.metrics = newMetrics(reg) }
}

// WithClock overrides the registration timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry indexes spec plugins. The zero value is not usable; call New.
type Registry struct {
	mu          sync.RWMutex
	order       []string
	plugins     map[string]*Plugin
	components  map[memberKey]*Entry[templ.Component]
	composables map[memberKey]*Entry[any]
	dataLoaders map[string]DataLoader
	routes      []ownedRoute
	defaultSpec string

	dedup   bool
	flight  singleflight.Group
	now     func() time.Time
	broker  *pubsub.Broker[Change]
	metrics *metrics
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		plugins:     make(map[string]*Plugin),
		components:  make(map[memberKey]*Entry[templ.Component]),
		composables: make(map[memberKey]*Entry[any]),
		dataLoaders: make(map[string]DataLoader),
		dedup:       true,
		now:         time.Now,
		broker:      pubsub.NewBroker[Change](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds p, replacing any plugin with the same id. A nil plugin or
// one without an id is logged and ignored. Members indexed by an earlier
// registration of the same id stay indexed until Unregister.
func (r *Registry) Register(p *Plugin) {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		log.ErrorErr(log.CatRegistry, "Attempted to register invalid spec", ErrInvalidPlugin, "plugin", describe(p))
		return
	}

	stored := p.normalized(r.now())

	r.mu.Lock()
	_, existed := r.plugins[stored.ID]
	if existed {
		log.Warn(log.CatRegistry, "Overwriting existing plugin", "id", stored.ID)
	} else {
		r.order = append(r.order, stored.ID)
	}
	r.plugins[stored.ID] = stored

	for name, loader := range stored.Components {
		r.components[memberKey{stored.ID, name}] = &Entry[templ.Component]{SpecID: stored.ID, Name: name, Loader: loader}
	}
	for name, loader := range stored.Composables {
		r.composables[memberKey{stored.ID, name}] = &Entry[any]{SpecID: stored.ID, Name: name, Loader: loader}
	}
	if stored.DataLoader != nil {
		r.dataLoaders[stored.ID] = stored.DataLoader
	}
	for _, route := range stored.Routes {
		r.routes = append(r.routes, ownedRoute{owner: stored.ID, route: route})
	}
	if stored.IsDefault {
		r.defaultSpec = stored.ID
	}
	total := len(r.plugins)
	r.mu.Unlock()

	r.metrics.setSpecs(total)
	eventType := pubsub.CreatedEvent
	if existed {
		eventType = pubsub.UpdatedEvent
	}
	r.broker.Publish(eventType, Change{SpecID: stored.ID})

	log.Info(log.CatRegistry, "Registered plugin", "name", stored.Name, "version", "v"+stored.Version)
}

// Unregister removes a plugin with every member, data loader and route it
// registered. Unknown ids are a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	if _, ok := r.plugins[id]; !ok {
		r.mu.Unlock()
		return
	}

	delete(r.plugins, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	for key := range r.components {
		if key.specID == id {
			delete(r.components, key)
		}
	}
	for key := range r.composables {
		if key.specID == id {
			delete(r.composables, key)
		}
	}
	delete(r.dataLoaders, id)
	r.routes = slices.DeleteFunc(r.routes, func(o ownedRoute) bool { return o.owner == id })
	if r.defaultSpec == id {
		r.defaultSpec = ""
	}
	total := len(r.plugins)
	r.mu.Unlock()

	r.metrics.setSpecs(total)
	r.broker.Publish(pubsub.DeletedEvent, Change{SpecID: id})
	log.Info(log.CatRegistry, "Unregistered plugin", "id", id)
}

// Get returns the plugin registered under id, or nil.
func (r *Registry) Get(id string) *Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.plugins[id]
}

// Lookup is Get reporting a miss as ErrNotFound.
func (r *Registry) Lookup(id string) (*Plugin, error) {
	if p := r.Get(id); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	return r.Get(id) != nil
}

// GetAll returns the plugins in registration order.
func (r *Registry) GetAll() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Plugin, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.plugins[id])
	}
	return out
}

// GetDefaultSpec returns the plugin flagged default, else the first
// registered, else nil.
func (r *Registry) GetDefaultSpec() *Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.plugins[r.defaultSpec]; ok {
		return p
	}
	if len(r.order) > 0 {
		return r.plugins[r.order[0]]
	}
	return nil
}

// GetAdapter returns the adapter of a spec, or nil.
func (r *Registry) GetAdapter(id string) adapter.Adapter {
	if p := r.Get(id); p != nil {
		return p.Adapter
	}
	return nil
}

// GetDataLoader returns the data loader of a spec, or nil.
func (r *Registry) GetDataLoader(id string) DataLoader {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dataLoaders[id]
}

// GetComponent returns a copy of the component index entry without loading
// it, or nil.
func (r *Registry) GetComponent(specID, name string) *Entry[templ.Component] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyEntry(r.components[memberKey{specID, name}])
}

// GetComposable returns a copy of the composable index entry without
// loading it, or nil.
func (r *Registry) GetComposable(specID, name string) *Entry[any] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyEntry(r.composables[memberKey{specID, name}])
}

// LoadComponent resolves and caches a component. Misses and loader failures
// are logged and return nil.
func (r *Registry) LoadComponent(ctx context.Context, specID, name string) templ.Component {
	return loadMember(ctx, r, r.components, KindComponent, specID, name)
}

// LoadComposable resolves and caches a composable. Misses and loader
// failures are logged and return nil.
func (r *Registry) LoadComposable(ctx context.Context, specID, name string) any {
	return loadMember(ctx, r, r.composables, KindComposable, specID, name)
}

func loadMember[T any](ctx context.Context, r *Registry, index map[memberKey]*Entry[T], kind, specID, name string) T {
	var zero T
	key := memberKey{specID, name}

	r.mu.RLock()
	entry := index[key]
	var (
		loaded bool
		value  T
	)
	if entry != nil {
		loaded, value = entry.Loaded, entry.Value
	}
	r.mu.RUnlock()

	if entry == nil {
		log.Warn(log.CatRegistry, kindTitle(kind)+" not found", "spec", specID, "name", name)
		r.metrics.observeLoad(kind, "missing")
		return zero
	}
	if loaded {
		r.metrics.observeLoad(kind, "cached")
		return value
	}

	resolve := func() (any, error) {
		v, err := entry.Loader.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		// A concurrent Register may have replaced the entry; only the entry
		// that produced the value caches it.
		if index[key] == entry {
			entry.Value = v
			entry.Loaded = true
		}
		r.mu.Unlock()
		return v, nil
	}

	var (
		result any
		err    error
	)
	if r.dedup && entry.Loader.IsLazy() {
		result, err, _ = r.flight.Do(kind+"\x00"+specID+"\x00"+name, resolve)
	} else {
		result, err = resolve()
	}
	if err != nil {
		log.ErrorErr(log.CatRegistry, "Error loading "+kind, err, "spec", specID, "name", name)
		r.metrics.observeLoad(kind, "error")
		return zero
	}

	r.metrics.observeLoad(kind, "loaded")
	v, _ := result.(T)
	return v
}

// GetAllRoutes returns every registered route in registration order.
func (r *Registry) GetAllRoutes() []router.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]router.Route, len(r.routes))
	for i, o := range r.routes {
		out[i] = o.route
	}
	return out
}

var _ router.RouteSource = (*Registry)(nil)

// GetRoutesForSpec returns the routes the current registration of id
// declared.
func (r *Registry) GetRoutesForSpec(id string) []router.Route {
	p := r.Get(id)
	if p == nil {
		return []router.Route{}
	}
	return slices.Clone(p.Routes)
}

// GetTools returns every /tools/ route with the spec its path names.
func (r *Registry) GetTools() []Tool {
	var tools []Tool
	for _, route := range r.GetAllRoutes() {
		if !strings.HasPrefix(route.Path, router.ToolsPrefix) {
			continue
		}
		tools = append(tools, Tool{Route: route, SpecID: SpecIDForPath(route.Path)})
	}
	return tools
}

// GetStats summarizes the registry.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		TotalSpecs:       len(r.plugins),
		TotalComponents:  len(r.components),
		TotalComposables: len(r.composables),
		TotalRoutes:      len(r.routes),
		Specs:            append([]string{}, r.order...),
	}
}

// Subscribe returns registration events until ctx is cancelled. Created
// marks a new id, Updated a re-registration, Deleted an unregister and
// Reloaded a refresh of the spec's data files.
func (r *Registry) Subscribe(ctx context.Context) <-chan pubsub.Event[Change] {
	return r.broker.Subscribe(ctx)
}

// NotifyReloaded tells subscribers that id's data changed underneath it.
// Unknown ids are ignored.
func (r *Registry) NotifyReloaded(id string) {
	if !r.Has(id) {
		return
	}
	r.broker.Publish(pubsub.ReloadedEvent, Change{SpecID: id})
}

// Close releases subscribers.
func (r *Registry) Close() {
	r.broker.Close()
}

func copyEntry[T any](e *Entry[T]) *Entry[T] {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

func kindTitle(kind string) string {
	if kind == "" {
		return kind
	}
	return strings.ToUpper(kind[:1]) + kind[1:]
}

func describe(p *Plugin) string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("{id:%q name:%q}", p.ID, p.Name)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Package specstore caches spec section data loaded through the registry and
// answers the section queries the site and API need: whole sections,
// search and lookup by code.
package specstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/milspecs/internal/cachemanager"
	"github.com/zjrosen/milspecs/internal/log"
	"github.com/zjrosen/milspecs/internal/spec/adapter"
	"github.com/zjrosen/milspecs/internal/spec/registry"
)

// ErrNoLoader is returned when a spec has neither a section-loading adapter
// nor a data loader.
var ErrNoLoader = errors.New("no data loader for spec")

// SectionLoader is implemented by adapters that load section rows
// themselves. It takes precedence over the plugin's data loader.
type SectionLoader interface {
	LoadSectionData(ctx context.Context, section string) ([]adapter.Record, error)
}

// SectionLister is implemented by adapters that know their section ids.
type SectionLister interface {
	Sections() []string
}

// State is the load status of one spec section.
type State struct {
	Loading  bool      `json:"loading"`
	Error    string    `json:"error,omitempty"`
	LoadedAt time.Time `json:"loadedAt,omitzero"`
}

type sectionKey struct {
	spec    string
	section string
}

func (k sectionKey) String() string { return k.spec + "/" + k.section }

// Store holds loaded section rows keyed by spec and section.
type Store struct {
	reg   *registry.Registry
	cache *cachemanager.ReadThroughCache[string, []adapter.Record, sectionKey]
	ttl   time.Duration

	mu     sync.RWMutex
	states map[sectionKey]State
}

// New returns a store loading through reg. Entries expire after ttl; zero
// keeps them until cleared.
func New(reg *registry.Registry, ttl, cleanup time.Duration) *Store {
	if ttl <= 0 {
		ttl = cachemanager.NoExpiration
	}
	s := &Store{
		reg:    reg,
		ttl:    ttl,
		states: make(map[sectionKey]State),
	}
	cache := cachemanager.NewInMemoryCacheManager[string, []adapter.Record]("spec-sections", ttl, cleanup)
	s.cache = cachemanager.NewReadThroughCache[string, []adapter.Record, sectionKey](cache, s.load, false)
	return s
}

// LoadSection fetches a section from its source, replacing any cached rows.
func (s *Store) LoadSection(ctx context.Context, specID, section string) ([]adapter.Record, error) {
	key := sectionKey{specID, section}
	if err := s.cache.Delete(ctx, key.String()); err != nil {
		return nil, err
	}
	return s.cache.Get(ctx, key.String(), key, s.ttl)
}

// Section returns the cached rows of a section, loading them on a miss.
func (s *Store) Section(ctx context.Context, specID, section string) ([]adapter.Record, error) {
	key := sectionKey{specID, section}
	return s.cache.Get(ctx, key.String(), key, s.ttl)
}

// LoadAllSections loads every section the spec's adapter lists. Rows are
// returned by section id.
func (s *Store) LoadAllSections(ctx context.Context, specID string) (map[string][]adapter.Record, error) {
	lister, ok := s.reg.GetAdapter(specID).(SectionLister)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not list sections", ErrNoLoader, specID)
	}

	sections := lister.Sections()
	results := make([][]adapter.Record, len(sections))
	g, gctx := errgroup.WithContext(ctx)
	for i, section := range sections {
		g.Go(func() error {
			rows, err := s.Section(gctx, specID, section)
			if err != nil {
				return err
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.ErrorErr(log.CatStore, "Error loading all sections", err, "spec", specID)
		return nil, err
	}

	out := make(map[string][]adapter.Record, len(sections))
	for i, section := range sections {
		out[section] = results[i]
	}
	return out, nil
}

// Search returns the rows whose code or description contains query,
// ignoring case. An empty query returns every row.
func (s *Store) Search(ctx context.Context, specID, section, query string) ([]adapter.Record, error) {
	rows, err := s.Section(ctx, specID, section)
	if err != nil {
		return nil, err
	}
	return Filter(rows, query), nil
}

// Filter applies the search match to rows.
func Filter(rows []adapter.Record, query string) []adapter.Record {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return rows
	}
	out := make([]adapter.Record, 0, len(rows))
	for _, r := range rows {
		if strings.Contains(strings.ToLower(r.String("code")), q) ||
			strings.Contains(strings.ToLower(r.String("description")), q) {
			out = append(out, r)
		}
	}
	return out
}

// GetItemByCode returns the first row of a section with the exact code.
func (s *Store) GetItemByCode(ctx context.Context, specID, section, code string) (adapter.Record, bool, error) {
	rows, err := s.Section(ctx, specID, section)
	if err != nil {
		return adapter.Record{}, false, err
	}
	for _, r := range rows {
		if r.String("code") == code {
			return r, true, nil
		}
	}
	return adapter.Record{}, false, nil
}

// State returns the load status of a section.
func (s *Store) State(specID, section string) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[sectionKey{specID, section}]
}

// Loaded reports whether any section of the spec has loaded.
func (s *Store) Loaded(specID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, st := range s.states {
		if k.spec == specID && !st.LoadedAt.IsZero() {
			return true
		}
	}
	return false
}

// Invalidate drops the cached sections of one spec.
func (s *Store) Invalidate(ctx context.Context, specID string) {
	n := s.cache.Invalidate(ctx, specID+"/")
	s.mu.Lock()
	for k := range s.states {
		if k.spec == specID {
			delete(s.states, k)
		}
	}
	s.mu.Unlock()
	log.Debug(log.CatStore, "spec sections invalidated", "spec", specID, "count", n)
}

// ClearData drops every cached section.
func (s *Store) ClearData(ctx context.Context) {
	s.cache.Invalidate(ctx, "")
	s.mu.Lock()
	s.states = make(map[sectionKey]State)
	s.mu.Unlock()
}

func (s *Store) load(ctx context.Context, key sectionKey) ([]adapter.Record, error) {
	s.setState(key, State{Loading: true})

	rows, err := s.fetch(ctx, key)
	if err != nil {
		log.ErrorErr(log.CatStore, "Error loading section", err, "spec", key.spec, "section", key.section)
		s.setState(key, State{Error: err.Error()})
		return nil, err
	}

	s.setState(key, State{LoadedAt: time.Now()})
	log.Debug(log.CatStore, "section loaded", "spec", key.spec, "section", key.section, "rows", len(rows))
	return rows, nil
}

func (s *Store) fetch(ctx context.Context, key sectionKey) ([]adapter.Record, error) {
	if sl, ok := s.reg.GetAdapter(key.spec).(SectionLoader); ok {
		return sl.LoadSectionData(ctx, key.section)
	}

	loader := s.reg.GetDataLoader(key.spec)
	if loader == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoLoader, key.spec)
	}
	data, err := loader.LoadSection(ctx, key.section)
	if err != nil {
		return nil, err
	}
	return adapter.Records(data)
}

func (s *Store) setState(key sectionKey, st State) {
	s.mu.Lock()
	s.states[key] = st
	s.mu.Unlock()
}

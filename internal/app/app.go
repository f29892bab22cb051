// Package app wires the registry, data sources, stores and HTTP surfaces
// into one running site.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zjrosen/milspecs/internal/api"
	"github.com/zjrosen/milspecs/internal/config"
	"github.com/zjrosen/milspecs/internal/dataset"
	"github.com/zjrosen/milspecs/internal/flags"
	"github.com/zjrosen/milspecs/internal/forms"
	"github.com/zjrosen/milspecs/internal/forms/sqlite"
	"github.com/zjrosen/milspecs/internal/log"
	"github.com/zjrosen/milspecs/internal/router"
	"github.com/zjrosen/milspecs/internal/spec/adapter"
	"github.com/zjrosen/milspecs/internal/spec/loader"
	"github.com/zjrosen/milspecs/internal/spec/plugins"
	"github.com/zjrosen/milspecs/internal/spec/registry"
	"github.com/zjrosen/milspecs/internal/specstore"
	"github.com/zjrosen/milspecs/internal/tracing"
	"github.com/zjrosen/milspecs/internal/views"
	"github.com/zjrosen/milspecs/internal/watcher"
)

// App is the running site. Build it with New and release it with Close.
type App struct {
	Config   config.Config
	Flags    *flags.Registry
	Registry *registry.Registry
	Source   *adapter.CachedSource
	Store    *specstore.Store
	Specs    *loader.Service
	Tree     *router.Tree
	Forms    *forms.Service
	API      *api.Handler
	Tracing  *tracing.Provider

	db            *sqlite.DB
	watcher       *watcher.Watcher
	watcherCancel context.CancelFunc
	watcherDone   chan struct{}
	closeOnce     sync.Once
}

// New builds the site from cfg and loads the spec plugins.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{
		Config: cfg,
		Flags:  flags.WithDefaults(cfg.Flags),
	}

	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("creating tracing provider: %w", err)
	}
	a.Tracing = provider

	var metrics http.Handler
	regOpts := []registry.Option{
		registry.WithInflightDedup(a.Flags.Enabled(flags.FlagInflightDedup)),
	}
	if cfg.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(collectors.NewGoCollector())
		regOpts = append(regOpts, registry.WithMetrics(promReg))
		metrics = promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})
	}
	a.Registry = registry.New(regOpts...)

	a.Source = adapter.NewCachedSource(dataSource(cfg.Data), cfg.Cache.Expiration, cfg.Cache.CleanupInterval)
	a.Store = specstore.New(a.Registry, cfg.Cache.Expiration, cfg.Cache.CleanupInterval)

	a.Tree = router.NewTree(a.staticViews())
	a.Specs = loader.NewService(a.Registry,
		loader.Builtins(plugins.Deps{Source: a.Source, Store: a.Store}, a.Flags),
		loader.WithRouter(a.Tree),
		loader.WithTracer(provider.Tracer()),
	)

	if cfg.Forms.Enabled {
		db, err := sqlite.NewDB(cfg.FormsDBPath())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("opening forms database: %w", err)
		}
		a.db = db
		a.Forms = forms.NewService(db.Repository(), forms.WithValidation(a.Registry))
	}

	if err := a.Specs.Init(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("loading spec plugins: %w", err)
	}

	a.API = api.NewHandler(api.HandlerConfig{
		Specs:   a.Specs,
		Store:   a.Store,
		Forms:   a.Forms,
		Metrics: metrics,
	})

	if cfg.Data.Watch && cfg.Data.Dir != "" && cfg.Data.BaseURL == "" {
		if err := a.startWatcher(); err != nil {
			log.Warn(log.CatWatcher, "data watcher disabled", "dir", cfg.Data.Dir, "error", err.Error())
		}
	}

	log.Info(log.CatConfig, "site ready",
		"specs", len(a.Specs.Specs()),
		"forms", a.Forms != nil,
		"metrics", metrics != nil,
		"tracing", provider.Enabled())
	return a, nil
}

// dataSource layers the data directory over the embedded dataset, or
// fetches everything from BaseURL when one is configured.
func dataSource(d config.DataConfig) adapter.Source {
	if d.BaseURL != "" {
		return adapter.NewHTTPSource(d.BaseURL)
	}
	embedded := adapter.FSSource{FS: dataset.FS()}
	if d.Dir == "" {
		return embedded
	}
	return adapter.LayeredSource{adapter.FSSource{FS: os.DirFS(d.Dir)}, embedded}
}

func (a *App) staticViews() router.StaticViews {
	v := router.StaticViews{
		Home:       views.Home(a.specCards),
		SpecsIndex: views.SpecsIndex(a.specCards),
		ToolsIndex: views.ToolsIndex(a.toolLinks),
		About:      views.About(),
		NotFound:   views.NotFound(),
	}
	if a.Flags.Enabled(flags.FlagSTPViewer) {
		v.STP = views.ToolPlaceholder("STP Reference",
			"Standard Training Package lookup for packaging specialists.")
	}
	return v
}

func (a *App) specCards(context.Context) []views.SpecCard {
	specs := a.Specs.AvailableSpecs()
	cards := make([]views.SpecCard, 0, len(specs))
	for _, s := range specs {
		card := views.SpecCard{
			ID:          s.ID,
			Name:        s.Name,
			Version:     s.Version,
			Description: s.Description,
			Icon:        s.Icon,
		}
		if routes := a.Registry.GetRoutesForSpec(s.ID); len(routes) > 0 {
			card.Path = routes[0].Path
		}
		cards = append(cards, card)
	}
	return cards
}

func (a *App) toolLinks(context.Context) []views.ToolLink {
	tools := a.Specs.Tools()
	links := make([]views.ToolLink, 0, len(tools))
	for _, t := range tools {
		links = append(links, views.ToolLink{
			Name:   t.Name,
			Title:  t.Meta.Title,
			Path:   t.Path,
			SpecID: t.SpecID,
		})
	}
	return links
}

func (a *App) startWatcher() error {
	wcfg := watcher.DefaultConfig(a.Config.Data.Dir)
	if len(a.Config.Data.WatchPatterns) > 0 {
		wcfg.Patterns = a.Config.Data.WatchPatterns
	}
	if a.Config.Data.Debounce > 0 {
		wcfg.DebounceDur = a.Config.Data.Debounce
	}

	w, err := watcher.New(wcfg)
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.watcher = w
	a.watcherCancel = cancel
	a.watcherDone = make(chan struct{})
	go func() {
		defer close(a.watcherDone)
		watcher.Run(ctx, changes, watcher.Targets{
			Source:   a.Source,
			Store:    a.Store,
			Registry: a.Registry,
		})
	}()
	log.Info(log.CatWatcher, "watching data directory", "dir", a.Config.Data.Dir)
	return nil
}

// Handler returns the combined API and site handler.
func (a *App) Handler() http.Handler {
	return api.Mount(a.API, a.SiteHandler())
}

// SiteHandler renders the page tree inside the site layout.
func (a *App) SiteHandler() http.Handler {
	return a.Tree.Handler(views.Layout(views.DefaultNav))
}

// NewServer binds the configured listen address.
func (a *App) NewServer() (*api.Server, error) {
	return api.NewServer(api.ServerConfig{
		Addr:         a.Config.Server.Addr,
		API:          a.API,
		Site:         a.SiteHandler(),
		Tracer:       a.Tracing.Tracer(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	})
}

// Close stops the watcher and releases the database, registry and tracer.
// It is safe to call more than once.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		if a.watcher != nil {
			if err := a.watcher.Stop(); err != nil {
				errs = append(errs, err)
			}
			a.watcherCancel()
			<-a.watcherDone
		}
		if a.db != nil {
			if err := a.db.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if a.Registry != nil {
			a.Registry.Close()
		}
		if a.Tracing != nil {
			if err := a.Tracing.Shutdown(context.Background()); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

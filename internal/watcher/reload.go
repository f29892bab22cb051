package watcher

import (
	"context"
	"slices"
	"strings"

	"github.com/zjrosen/milspecs/internal/log"
	"github.com/zjrosen/milspecs/internal/spec/registry"
)

// SourceInvalidator drops cached data files under a path prefix.
type SourceInvalidator interface {
	Invalidate(ctx context.Context, prefix string)
}

// StoreInvalidator drops a spec's cached sections.
type StoreInvalidator interface {
	Invalidate(ctx context.Context, specID string)
}

// Targets are the caches refreshed after data files change. Nil fields are
// skipped.
type Targets struct {
	Source   SourceInvalidator
	Store    StoreInvalidator
	Registry *registry.Registry
}

// SpecIDs returns the distinct spec ids named by the first segment of each
// changed path, in sorted order.
func SpecIDs(changed []string) []string {
	var ids []string
	for _, p := range changed {
		id, _, found := strings.Cut(p, "/")
		if !found || id == "" {
			continue
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Reload refreshes every cache holding the changed files and returns the
// affected spec ids. Registered adapters reload their data, and subscribers
// of the registry get a reloaded event.
func Reload(ctx context.Context, t Targets, changed []string) []string {
	ids := SpecIDs(changed)
	for _, id := range ids {
		if t.Source != nil {
			t.Source.Invalidate(ctx, id+"/")
		}
		if t.Store != nil {
			t.Store.Invalidate(ctx, id)
		}
		if t.Registry == nil {
			continue
		}
		if a := t.Registry.GetAdapter(id); a != nil {
			if _, err := a.LoadData(ctx); err != nil {
				log.ErrorErr(log.CatWatcher, "adapter reload failed", err, "spec", id)
			}
		}
		t.Registry.NotifyReloaded(id)
	}
	if len(ids) > 0 {
		log.Info(log.CatWatcher, "Spec data reloaded", "specs", strings.Join(ids, ","), "files", len(changed))
	}
	return ids
}

// Run applies Reload to every batch from changes until ctx is done or the
// channel closes.
func Run(ctx context.Context, changes <-chan []string, t Targets) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-changes:
			if !ok {
				return
			}
			Reload(ctx, t, batch)
		}
	}
}

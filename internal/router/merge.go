package router

import (
	"fmt"

	"github.com/zjrosen/milspecs/internal/log"
)

// MergeResult counts what a merge pass did.
type MergeResult struct {
	Added   int
	Skipped int
	Ignored int
}

// MergePluginRoutes appends every /specs/ and /tools/ route of src to the
// matching section of r. Paths already present are skipped, so repeated
// passes are harmless; other paths are ignored. Failures, panics included,
// are logged and never returned.
func MergePluginRoutes(src RouteSource, r Router) (res MergeResult) {
	defer func() {
		if p := recover(); p != nil {
			log.ErrorErr(log.CatRouter, "error registering plugin routes", fmt.Errorf("panic: %v", p))
		}
	}()

	for _, route := range src.GetAllRoutes() {
		section := SectionFor(route.Path)
		if section == "" {
			res.Ignored++
			continue
		}

		added, err := r.AppendChild(section, route)
		if err != nil {
			log.ErrorErr(log.CatRouter, "error registering plugin route", err, "path", route.Path, "section", section)
			continue
		}
		if added {
			res.Added++
		} else {
			res.Skipped++
		}
	}

	log.Info(log.CatRouter, "Registered plugin routes", "added", res.Added, "skipped", res.Skipped, "ignored", res.Ignored)
	return res
}

package dataset

import (
	"embed"
	"io/fs"
)

// datasets embeds the bundled spec data files. The structure is:
//   - data/mil-std-2073/<section>.json (one array of entries per section)
//
// A data directory configured at runtime overrides files by the same path.
//
//go:embed data
var datasets embed.FS

// FS returns the embedded data rooted at the data directory, so paths read
// "mil-std-2073/methods.json".
func FS() fs.FS {
	sub, err := fs.Sub(datasets, "data")
	if err != nil {
		panic(err)
	}
	return sub
}

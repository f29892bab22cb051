// Package paths resolves the site's state and config locations.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// StateDirName is the per-project directory holding config, the forms
// database and data overrides.
const StateDirName = ".milspecs"

// ResolveStateDir resolves the state directory from user input.
//
//   - "/path/to/project" -> "/path/to/project/.milspecs"
//   - "/path/to/project/.milspecs" -> unchanged
//   - "" -> "./.milspecs"
//
// A redirect file inside the directory names another state directory,
// relative to the one holding it.
func ResolveStateDir(path string) string {
	if path == "" {
		path = "."
	}
	path = filepath.Clean(path)
	if filepath.Base(path) != StateDirName {
		path = filepath.Join(path, StateDirName)
	}
	return followRedirect(path)
}

func followRedirect(dir string) string {
	content, err := os.ReadFile(filepath.Join(dir, "redirect")) //nolint:gosec // redirect path is within the state dir
	if err != nil {
		return dir
	}
	target := strings.TrimSpace(string(content))
	if target == "" {
		return dir
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Clean(filepath.Join(dir, target))
}

// UserConfigDir returns ~/.config/milspecs, or "" when the home directory
// is unknown.
func UserConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "milspecs")
}

// FormsDB returns the forms database path inside stateDir.
func FormsDB(stateDir string) string {
	return filepath.Join(stateDir, "forms.db")
}

// DataDir returns the data override directory inside stateDir.
func DataDir(stateDir string) string {
	return filepath.Join(stateDir, "data")
}

// TraceFile returns the trace output path inside stateDir.
func TraceFile(stateDir string) string {
	return filepath.Join(stateDir, "traces", "traces.jsonl")
}

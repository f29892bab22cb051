package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveStateDir(t *testing.T) {
	require.Equal(t, StateDirName, ResolveStateDir(""))
	require.Equal(t, filepath.Join("/srv/site", StateDirName), ResolveStateDir("/srv/site"))
	require.Equal(t, filepath.Join("/srv/site", StateDirName), ResolveStateDir("/srv/site/.milspecs/"))
}

func TestResolveStateDir_FollowsRedirect(t *testing.T) {
	root := t.TempDir()
	state := filepath.Join(root, "worktree", StateDirName)
	require.NoError(t, os.MkdirAll(state, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(state, "redirect"), []byte("../../main/.milspecs\n"), 0o644))

	require.Equal(t, filepath.Join(root, "main", StateDirName), ResolveStateDir(filepath.Join(root, "worktree")))
}

func TestResolveStateDir_EmptyRedirectIgnored(t *testing.T) {
	root := t.TempDir()
	state := filepath.Join(root, StateDirName)
	require.NoError(t, os.MkdirAll(state, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(state, "redirect"), []byte("  \n"), 0o644))

	require.Equal(t, state, ResolveStateDir(root))
}

func TestStateFiles(t *testing.T) {
	require.Equal(t, filepath.Join("s", "forms.db"), FormsDB("s"))
	require.Equal(t, filepath.Join("s", "data"), DataDir("s"))
	require.Equal(t, filepath.Join("s", "traces", "traces.jsonl"), TraceFile("s"))
}

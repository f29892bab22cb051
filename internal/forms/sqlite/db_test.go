package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/milspecs/internal/forms"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "forms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewDB_CreatesDirectoryAndTables(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "forms.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	info, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	}

	for _, table := range []string{"forms", "decoded_results", "form_templates"} {
		var name string
		err := db.Connection().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestNewDB_Pragmas(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.Connection().QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	require.Equal(t, "wal", journalMode)

	var busy int
	require.NoError(t, db.Connection().QueryRow("PRAGMA busy_timeout").Scan(&busy))
	require.Equal(t, 5000, busy)
}

func TestNewDB_ReopenBacksUpAndKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "forms.db")
	ctx := context.Background()

	db1, err := NewDB(dbPath)
	require.NoError(t, err)
	require.NoError(t, db1.Repository().SaveForm(ctx, &forms.Form{ID: "f1", SpecID: "dd2326", Name: "A"}))
	require.NoError(t, db1.Close())

	db2, err := NewDB(dbPath)
	require.NoError(t, err)
	defer db2.Close()

	info, err := os.Stat(dbPath + ".bak")
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))

	f, err := db2.Repository().GetForm(ctx, "f1")
	require.NoError(t, err)
	require.Equal(t, "A", f.Name)
}

func TestNewDB_Memory(t *testing.T) {
	db, err := NewDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	list, err := db.Repository().ListForms(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestRepository_Forms(t *testing.T) {
	repo := newTestDB(t).Repository()
	ctx := context.Background()
	t0 := time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveForm(ctx, &forms.Form{
		ID: "a", SpecID: "dd2326", Name: "First",
		Data:      forms.Data{"topFields": map[string]any{"qup": "001"}},
		CreatedAt: t0, UpdatedAt: t0,
	}))
	require.NoError(t, repo.SaveForm(ctx, &forms.Form{ID: "b", SpecID: "mil-std-2073", Name: "Second", CreatedAt: t0.Add(time.Hour), UpdatedAt: t0.Add(time.Hour)}))

	got, err := repo.GetForm(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, t0, got.CreatedAt)
	require.Equal(t, forms.Data{"topFields": map[string]any{"qup": "001"}}, got.Data)

	all, err := repo.ListForms(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "b", all[0].ID)

	dd, err := repo.ListForms(ctx, "dd2326")
	require.NoError(t, err)
	require.Len(t, dd, 1)

	got.Name = "Renamed"
	require.NoError(t, repo.SaveForm(ctx, got))
	got, err = repo.GetForm(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "Renamed", got.Name)

	require.NoError(t, repo.DeleteForm(ctx, "a"))
	_, err = repo.GetForm(ctx, "a")
	require.ErrorIs(t, err, forms.ErrNotFound)
	require.ErrorIs(t, repo.DeleteForm(ctx, "a"), forms.ErrNotFound)
}

func TestRepository_DecodedAndTemplates(t *testing.T) {
	repo := newTestDB(t).Repository()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, repo.SaveDecoded(ctx, &forms.DecodedResult{ID: "d1", SpecID: "dd2326", Source: "manual", CreatedAt: now}))
	require.NoError(t, repo.SaveDecoded(ctx, &forms.DecodedResult{ID: "d2", SpecID: "dd2326", Source: "upload", CreatedAt: now}))
	require.NoError(t, repo.DeleteDecoded(ctx, "d1"))
	decoded, err := repo.ListDecoded(ctx, "")
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	require.NoError(t, repo.ClearDecoded(ctx))
	decoded, err = repo.ListDecoded(ctx, "")
	require.NoError(t, err)
	require.Empty(t, decoded)

	require.NoError(t, repo.SaveTemplate(ctx, &forms.Template{ID: "t1", SpecID: "dd2326", Name: "Std", CreatedAt: now}))
	tpl, err := repo.GetTemplate(ctx, "t1")
	require.NoError(t, err)
	require.True(t, tpl.UpdatedAt.IsZero())
	require.Equal(t, forms.Data{}, tpl.Data)

	require.NoError(t, repo.ClearAll(ctx))
	_, err = repo.GetTemplate(ctx, "t1")
	require.ErrorIs(t, err, forms.ErrNotFound)
}

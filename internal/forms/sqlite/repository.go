package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/milspecs/internal/forms"
)

const (
	formColumns     = `id, spec_id, name, data, created_at, updated_at`
	decodedColumns  = `id, spec_id, source, data, created_at`
	templateColumns = `id, spec_id, name, description, data, created_at, updated_at`
)

// repository implements forms.Repository using SQLite.
type repository struct {
	db *sql.DB
}

func newRepository(db *sql.DB) *repository {
	return &repository{db: db}
}

var _ forms.Repository = (*repository)(nil)

type scanner interface{ Scan(...any) error }

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func encodeData(d forms.Data) (string, error) {
	if d == nil {
		return "{}", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to encode data: %w", err)
	}
	return string(b), nil
}

func decodeData(s string) (forms.Data, error) {
	var d forms.Data
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return nil, fmt.Errorf("failed to decode data: %w", err)
	}
	if d == nil {
		d = forms.Data{}
	}
	return d, nil
}

func scanForm(s scanner) (*forms.Form, error) {
	var (
		f                forms.Form
		data             string
		created, updated int64
	)
	if err := s.Scan(&f.ID, &f.SpecID, &f.Name, &data, &created, &updated); err != nil {
		return nil, err
	}
	d, err := decodeData(data)
	if err != nil {
		return nil, err
	}
	f.Data = d
	f.CreatedAt = fromMillis(created)
	f.UpdatedAt = fromMillis(updated)
	return &f, nil
}

func scanDecoded(s scanner) (*forms.DecodedResult, error) {
	var (
		r       forms.DecodedResult
		data    string
		created int64
	)
	if err := s.Scan(&r.ID, &r.SpecID, &r.Source, &data, &created); err != nil {
		return nil, err
	}
	d, err := decodeData(data)
	if err != nil {
		return nil, err
	}
	r.Data = d
	r.CreatedAt = fromMillis(created)
	return &r, nil
}

func scanTemplate(s scanner) (*forms.Template, error) {
	var (
		t       forms.Template
		data    string
		created int64
		updated sql.NullInt64
	)
	if err := s.Scan(&t.ID, &t.SpecID, &t.Name, &t.Description, &data, &created, &updated); err != nil {
		return nil, err
	}
	d, err := decodeData(data)
	if err != nil {
		return nil, err
	}
	t.Data = d
	t.CreatedAt = fromMillis(created)
	if updated.Valid {
		t.UpdatedAt = fromMillis(updated.Int64)
	}
	return &t, nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, forms.ErrNotFound)
}

// deleteByID runs a delete and maps zero affected rows to ErrNotFound.
func (r *repository) deleteByID(ctx context.Context, table, kind, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

// SaveForm inserts or replaces a form.
func (r *repository) SaveForm(ctx context.Context, f *forms.Form) error {
	data, err := encodeData(f.Data)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO forms (`+formColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			spec_id = excluded.spec_id, name = excluded.name, data = excluded.data,
			updated_at = excluded.updated_at`,
		f.ID, f.SpecID, f.Name, data, toMillis(f.CreatedAt), toMillis(f.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save form: %w", err)
	}
	return nil
}

// GetForm returns a form or ErrNotFound.
func (r *repository) GetForm(ctx context.Context, id string) (*forms.Form, error) {
	f, err := scanForm(r.db.QueryRowContext(ctx, `SELECT `+formColumns+` FROM forms WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("form", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get form: %w", err)
	}
	return f, nil
}

// ListForms returns forms newest first.
func (r *repository) ListForms(ctx context.Context, specID string) ([]*forms.Form, error) {
	rows, err := r.query(ctx, "forms", formColumns, specID)
	if err != nil {
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*forms.Form{}
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan form: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// DeleteForm removes a form or returns ErrNotFound.
func (r *repository) DeleteForm(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "forms", "form", id)
}

// SaveDecoded inserts or replaces a decoded result.
func (r *repository) SaveDecoded(ctx context.Context, d *forms.DecodedResult) error {
	data, err := encodeData(d.Data)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO decoded_results (`+decodedColumns+`) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			spec_id = excluded.spec_id, source = excluded.source, data = excluded.data`,
		d.ID, d.SpecID, d.Source, data, toMillis(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save decoded result: %w", err)
	}
	return nil
}

// GetDecoded returns a decoded result or ErrNotFound.
func (r *repository) GetDecoded(ctx context.Context, id string) (*forms.DecodedResult, error) {
	d, err := scanDecoded(r.db.QueryRowContext(ctx, `SELECT `+decodedColumns+` FROM decoded_results WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("decoded result", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decoded result: %w", err)
	}
	return d, nil
}

// ListDecoded returns decoded results newest first.
func (r *repository) ListDecoded(ctx context.Context, specID string) ([]*forms.DecodedResult, error) {
	rows, err := r.query(ctx, "decoded_results", decodedColumns, specID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decoded results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*forms.DecodedResult{}
	for rows.Next() {
		d, err := scanDecoded(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decoded result: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDecoded removes a decoded result or returns ErrNotFound.
func (r *repository) DeleteDecoded(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "decoded_results", "decoded result", id)
}

// ClearDecoded removes every decoded result.
func (r *repository) ClearDecoded(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM decoded_results`); err != nil {
		return fmt.Errorf("failed to clear decoded results: %w", err)
	}
	return nil
}

// SaveTemplate inserts or replaces a template.
func (r *repository) SaveTemplate(ctx context.Context, t *forms.Template) error {
	data, err := encodeData(t.Data)
	if err != nil {
		return err
	}
	var updated sql.NullInt64
	if !t.UpdatedAt.IsZero() {
		updated = sql.NullInt64{Int64: toMillis(t.UpdatedAt), Valid: true}
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO form_templates (`+templateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			spec_id = excluded.spec_id, name = excluded.name, description = excluded.description,
			data = excluded.data, updated_at = excluded.updated_at`,
		t.ID, t.SpecID, t.Name, t.Description, data, toMillis(t.CreatedAt), updated,
	)
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

// GetTemplate returns a template or ErrNotFound.
func (r *repository) GetTemplate(ctx context.Context, id string) (*forms.Template, error) {
	t, err := scanTemplate(r.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM form_templates WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("template", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return t, nil
}

// ListTemplates returns templates newest first.
func (r *repository) ListTemplates(ctx context.Context, specID string) ([]*forms.Template, error) {
	rows, err := r.query(ctx, "form_templates", templateColumns, specID)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*forms.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTemplate removes a template or returns ErrNotFound.
func (r *repository) DeleteTemplate(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "form_templates", "template", id)
}

// ClearAll removes every form, decoded result and template in one
// transaction.
func (r *repository) ClearAll(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"forms", "decoded_results", "form_templates"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func (r *repository) query(ctx context.Context, table, columns, specID string) (*sql.Rows, error) {
	q := `SELECT ` + columns + ` FROM ` + table
	var args []any
	if specID != "" {
		q += ` WHERE spec_id = ?`
		args = append(args, specID)
	}
	q += ` ORDER BY created_at DESC, id`
	return r.db.QueryContext(ctx, q, args...)
}

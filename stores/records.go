package stores

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the document store backed by Postgres. One flat row per
// prediction, keyed by id.
type Repo struct {
	db *pgxpool.Pool
}

func Connect(ctx context.Context, databaseURL string) (*Repo, error) {
	db, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() {
	r.db.Close()
}

// Put upserts the record, so retrying a write for the same id is safe.
func (r *Repo) Put(ctx context.Context, rec Record) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO predictions (id, label, category, date_iso, thumbnail)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET label = EXCLUDED.label,
		    category = EXCLUDED.category,
		    date_iso = EXCLUDED.date_iso,
		    thumbnail = EXCLUDED.thumbnail
	`, rec.ID, rec.Label, rec.Category, rec.DateISO, rec.Thumbnail)
	if err != nil {
		return &StorageError{Op: "put record", Err: err}
	}
	return nil
}

// List returns records ordered newest first. startAfterISO is the
// opaque page cursor: the dateIso of the last record of the previous
// page, or empty for the first page.
func (r *Repo) List(ctx context.Context, limit int, startAfterISO string) ([]Record, error) {
	limit = ClampLimit(limit)

	query := `
		SELECT id, label, category, date_iso, thumbnail
		FROM predictions
		ORDER BY date_iso DESC
		LIMIT $1
	`
	args := []any{limit}
	if startAfterISO != "" {
		query = `
			SELECT id, label, category, date_iso, thumbnail
			FROM predictions
			WHERE date_iso < $2
			ORDER BY date_iso DESC
			LIMIT $1
		`
		args = append(args, startAfterISO)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Op: "list records", Err: err}
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Label, &rec.Category, &rec.DateISO, &rec.Thumbnail); err != nil {
			return nil, &StorageError{Op: "list records", Err: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list records", Err: err}
	}
	return out, nil
}

package media

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/socialstream/platform/internal/faults"
	"github.com/socialstream/platform/internal/platform/dbpool"
)

type Media struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	URL          string    `json:"url"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}

type Repository interface {
	InsertMedia(ctx context.Context, m Media) error
	ListForUser(ctx context.Context, userID string) ([]Media, error)
	// DeleteByID removes the record if it exists; deleting an absent id is a
	// no-op so replayed cleanup events converge on the same state.
	DeleteByID(ctx context.Context, mediaID string) (bool, error)
}

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

const createMediaSQL = `
CREATE TABLE IF NOT EXISTS media (
  media_id text PRIMARY KEY,
  user_id text NOT NULL,
  url text NOT NULL,
  original_name text NOT NULL DEFAULT '',
  mime_type text NOT NULL DEFAULT '',
  size bigint NOT NULL DEFAULT 0,
  created_at timestamptz NOT NULL
)`

const createMediaUserIdxSQL = `
CREATE INDEX IF NOT EXISTS media_user_created_idx ON media (user_id, created_at DESC)`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createMediaSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createMediaUserIdxSQL); err != nil {
		return err
	}
	return nil
}

func (r *PostgresRepository) InsertMedia(ctx context.Context, m Media) error {
	opCtx, cancel := dbpool.WithQueryTimeout(ctx)
	defer cancel()

	_, err := r.Pool.Exec(opCtx,
		`INSERT INTO media (media_id, user_id, url, original_name, mime_type, size, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.UserID, m.URL, m.OriginalName, m.MimeType, m.Size, m.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return faults.Wrap(faults.Conflict, err, "media already exists")
		}
		return faults.Wrap(faults.StoreUnavailable, err, "insert media")
	}
	return nil
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID string) ([]Media, error) {
	opCtx, cancel := dbpool.WithQueryTimeout(ctx)
	defer cancel()

	rows, err := r.Pool.Query(opCtx,
		`SELECT media_id, user_id, url, original_name, mime_type, size, created_at
		 FROM media
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, faults.Wrap(faults.StoreUnavailable, err, "list media")
	}
	defer rows.Close()

	items := make([]Media, 0)
	for rows.Next() {
		var m Media
		if err := rows.Scan(&m.ID, &m.UserID, &m.URL, &m.OriginalName, &m.MimeType, &m.Size, &m.CreatedAt); err != nil {
			return nil, faults.Wrap(faults.StoreUnavailable, err, "scan media")
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.StoreUnavailable, err, "list media")
	}
	return items, nil
}

func (r *PostgresRepository) DeleteByID(ctx context.Context, mediaID string) (bool, error) {
	opCtx, cancel := dbpool.WithQueryTimeout(ctx)
	defer cancel()

	res, err := r.Pool.Exec(opCtx, `DELETE FROM media WHERE media_id = $1`, mediaID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, faults.Wrap(faults.StoreUnavailable, err, "delete media")
	}
	return res.RowsAffected() > 0, nil
}

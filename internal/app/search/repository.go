package search

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/socialstream/platform/internal/faults"
	"github.com/socialstream/platform/internal/platform/dbpool"
)

type Record struct {
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Repository interface {
	// Upsert overwrites any existing record with the same post id, so a
	// duplicate post.created delivery converges instead of erroring.
	Upsert(ctx context.Context, rec Record) error
	Search(ctx context.Context, query string, limit int) ([]Record, error)
}

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

const createSearchPostsSQL = `
CREATE TABLE IF NOT EXISTS search_posts (
  post_id text PRIMARY KEY,
  user_id text NOT NULL,
  content text NOT NULL,
  created_at timestamptz NOT NULL
)`

const createSearchTextIdxSQL = `
CREATE INDEX IF NOT EXISTS search_posts_content_idx
ON search_posts
USING GIN (to_tsvector('english', content))`

const createSearchCreatedIdxSQL = `
CREATE INDEX IF NOT EXISTS search_posts_created_idx ON search_posts (created_at DESC)`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createSearchPostsSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createSearchTextIdxSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createSearchCreatedIdxSQL); err != nil {
		return err
	}
	return nil
}

const upsertSearchPostSQL = `
INSERT INTO search_posts (post_id, user_id, content, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (post_id) DO UPDATE
SET user_id = EXCLUDED.user_id,
    content = EXCLUDED.content,
    created_at = EXCLUDED.created_at
`

func (r *PostgresRepository) Upsert(ctx context.Context, rec Record) error {
	opCtx, cancel := dbpool.WithQueryTimeout(ctx)
	defer cancel()

	if _, err := r.Pool.Exec(opCtx, upsertSearchPostSQL,
		rec.PostID, rec.UserID, rec.Content, rec.CreatedAt,
	); err != nil {
		return faults.Wrap(faults.StoreUnavailable, err, "upsert search record")
	}
	return nil
}

const searchSQL = `
SELECT post_id, user_id, content, created_at
FROM search_posts
WHERE to_tsvector('english', content) @@ websearch_to_tsquery('english', $1)
ORDER BY ts_rank(to_tsvector('english', content), websearch_to_tsquery('english', $1)) DESC,
         created_at DESC
LIMIT $2
`

func (r *PostgresRepository) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	opCtx, cancel := dbpool.WithQueryTimeout(ctx)
	defer cancel()

	rows, err := r.Pool.Query(opCtx, searchSQL, query, limit)
	if err != nil {
		return nil, faults.Wrap(faults.StoreUnavailable, err, "search query")
	}
	defer rows.Close()

	results := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.PostID, &rec.UserID, &rec.Content, &rec.CreatedAt); err != nil {
			return nil, faults.Wrap(faults.StoreUnavailable, err, "scan search record")
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.StoreUnavailable, err, "search query")
	}
	return results, nil
}

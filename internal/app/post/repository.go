package post

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

type Post struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	MediaIDs  []string  `json:"media_ids"`
	CreatedAt time.Time `json:"created_at"`
}

type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Repository interface {
	InsertPost(ctx context.Context, p Post) error
	GetPost(ctx context.Context, postID string) (Post, error)
	ListPosts(ctx context.Context, page, size int) ([]Post, error)
	// DeleteOwnedPost removes the post only when requesterID owns it; the
	// ownership check is part of the delete predicate, so there is no window
	// between check and delete. It returns the media ids the post referenced.
	DeleteOwnedPost(ctx context.Context, postID, requesterID string) ([]string, error)
	InsertComment(ctx context.Context, c Comment) error
	// IncrementLikes atomically upserts-and-increments the per-post counter.
	IncrementLikes(ctx context.Context, postID string) (int64, error)
	DecrementLikes(ctx context.Context, postID string) (int64, error)
	GetLikes(ctx context.Context, postID string) (int64, error)
}

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

const createPostsSQL = `
CREATE TABLE IF NOT EXISTS posts (
  post_id text PRIMARY KEY,
  user_id text NOT NULL,
  content text NOT NULL,
  media_ids text[] NOT NULL DEFAULT '{}',
  created_at timestamptz NOT NULL
)`

const createCommentsSQL = `
CREATE TABLE IF NOT EXISTS comments (
  comment_id text PRIMARY KEY,
  post_id text NOT NULL REFERENCES posts(post_id) ON DELETE CASCADE,
  user_id text NOT NULL,
  content text NOT NULL,
  created_at timestamptz NOT NULL
)`

// One counter aggregate per post, keyed by post id. The counter row shares
// the post's lifecycle through the cascade.
const createLikeCountersSQL = `
CREATE TABLE IF NOT EXISTS like_counters (
  post_id text PRIMARY KEY REFERENCES posts(post_id) ON DELETE CASCADE,
  count bigint NOT NULL DEFAULT 0
)`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createPostsSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createCommentsSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createLikeCountersSQL); err != nil {
		return err
	}
	return nil
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func (r *PostgresRepository) InsertPost(ctx context.Context, p Post) error {
	opCtx, cancel := dbpool.WithQueryTimeout(ctx)
	defer cancel()

	_, err := r.Pool.Exec(opCtx,
		`INSERT INTO posts (post_id, user_id, content, media_ids, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.UserID, p.Content, p.MediaIDs, p.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return faults.Wrap(faults.Conflict, err, "post already exists")
		}
		return storeFault(err, "insert post")
	}
	return nil
}

func (r *PostgresRepository) GetPost(ctx context.Context, postID string) (Post, error) {
	opCtx, cancel := dbpool.WithQueryTimeout(ctx)
	defer cancel()

	var p Post
	err := r.Pool.QueryRow(opCtx,
		`SELECT post_id, user_id, content, media_ids, created_at
		 FROM posts WHERE post_id = $1`,
		postID,
	).Scan(&p.ID, &p.UserID, &p.Content, &p.MediaIDs, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Post{}, faults.New(faults.NotFound, "post not found")
		}
		return Post{}, storeFault(err, "get post")
	}
	return p, nil
}

func (r *PostgresRepository) ListPosts(ctx context.Context, page, size int) ([]Post, error) {
	opCtx, cancel := dbpool.WithQueryTimeout(ctx)
	defer cancel()

	rows, err := r.Pool.Query(opCtx,
		`SELECT post_id, user_id, content, media_ids, created_at
		 FROM posts
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`,
		size, (page-1)*size,
	)
	if err != nil {
		return nil, storeFault(err, "list posts")
	}
	defer rows.Close()

	posts := make([]Post, 0, size)
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.UserID, &p.Content, &p.MediaIDs, &p.CreatedAt); err != nil {
			return nil, storeFault(err, "scan post")
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeFault(err, "list posts")
	}
	return posts, nil
}

func (r *PostgresRepository) DeleteOwnedPost(ctx context.Context, postID, requesterID string) ([]string, error) {
	opCtx, cancel := dbpool.WithQueryTimeout(ctx)
	defer cancel()

	var mediaIDs []string
	err := r.Pool.QueryRow(opCtx,
		`DELETE FROM posts
		 WHERE post_id = $1 AND user_id = $2
		 RETURNING media_ids`,
		postID, requesterID,
	).Scan(&mediaIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, faults.New(faults.NotFound, "post not found")
		}
		return nil, storeFault(err, "delete post")
	}
	return mediaIDs, nil
}

func (r *PostgresRepository) InsertComment(ctx context.Context, c Comment) error {
	opCtx, cancel := dbpool.WithQueryTimeout(ctx)
	defer cancel()

	_, err := r.Pool.Exec(opCtx,
		`INSERT INTO comments (comment_id, post_id, user_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.PostID, c.UserID, c.Content, c.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgForeignKeyViolation:
				// Parent existence rides on the constraint itself, so a
				// concurrent post delete cannot race a separate check.
				return faults.New(faults.NotFound, "post not found")
			case pgUniqueViolation:
				return faults.Wrap(faults.Conflict, err, "comment already exists")
			}
		}
		return storeFault(err, "insert comment")
	}
	return nil
}

func (r *PostgresRepository) IncrementLikes(ctx context.Context, postID string) (int64, error) {
	opCtx, cancel := dbpool.WithQueryTimeout(ctx)
	defer cancel()

	var count int64
	err := r.Pool.QueryRow(opCtx,
		`INSERT INTO like_counters (post_id, count)
		 VALUES ($1, 1)
		 ON CONFLICT (post_id) DO UPDATE SET count = like_counters.count + 1
		 RETURNING count`,
		postID,
	).Scan(&count)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return 0, faults.New(faults.NotFound, "post not found")
		}
		return 0, storeFault(err, "increment likes")
	}
	return count, nil
}

func (r *PostgresRepository) DecrementLikes(ctx context.Context, postID string) (int64, error) {
	opCtx, cancel := dbpool.WithQueryTimeout(ctx)
	defer cancel()

	var count int64
	err := r.Pool.QueryRow(opCtx,
		`UPDATE like_counters
		 SET count = GREATEST(count - 1, 0)
		 WHERE post_id = $1
		 RETURNING count`,
		postID,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, faults.New(faults.NotFound, "post not found")
		}
		return 0, storeFault(err, "decrement likes")
	}
	return count, nil
}

func (r *PostgresRepository) GetLikes(ctx context.Context, postID string) (int64, error) {
	opCtx, cancel := dbpool.WithQueryTimeout(ctx)
	defer cancel()

	var count int64
	err := r.Pool.QueryRow(opCtx,
		`SELECT count FROM like_counters WHERE post_id = $1`,
		postID,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, faults.New(faults.NotFound, "likes not found")
		}
		return 0, storeFault(err, "get likes")
	}
	return count, nil
}

func storeFault(err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return faults.Wrap(faults.Timeout, err, msg)
	}
	return faults.Wrap(faults.StoreUnavailable, err, msg)
}

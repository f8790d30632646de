package post

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nuid"
	"github.com/rs/zerolog"
	"github.com/socialstream/platform/internal/cache"
	"github.com/socialstream/platform/internal/contracts"
	"github.com/socialstream/platform/internal/faults"
)

const (
	maxContentLen = 2000
	maxMediaIDs   = 10

	defaultPageSize = 20
	maxPageSize     = 100
)

type PublishFunc func(routingKey string, payload []byte) error

type Service struct {
	Repo        Repository
	Cache       *cache.Store
	Invalidator *cache.Invalidator
	Publish     PublishFunc
	Logger      *zerolog.Logger

	Now   func() time.Time
	NewID func() string
	// Detaches post-commit work (broad invalidation, event publish) from the
	// request path. Tests replace it with a synchronous call.
	Spawn func(func())

	PageTTL  time.Duration
	LikesTTL time.Duration
}

func NewService(repo Repository, store *cache.Store, inv *cache.Invalidator, publish PublishFunc, logger *zerolog.Logger) *Service {
	return &Service{
		Repo:        repo,
		Cache:       store,
		Invalidator: inv,
		Publish:     publish,
		Logger:      logger,
		Now:         func() time.Time { return time.Now().UTC() },
		NewID:       nuid.Next,
		Spawn:       func(fn func()) { go fn() },
		PageTTL:     5 * time.Minute,
		LikesTTL:    time.Hour,
	}
}

type CreatePostRequest struct {
	Content  string   `json:"content"`
	MediaIDs []string `json:"media_ids"`
}

// LikeSnapshot is the cached projection of a post's like counter.
type LikeSnapshot struct {
	PostID string `json:"post_id"`
	Likes  int64  `json:"likes"`
}

// CreatePost commits the post, then (after the caller already has its
// response under way) invalidates list caches and publishes post.created.
// A lost event degrades search freshness but never rolls back the write.
func (s *Service) CreatePost(ctx context.Context, userID string, req CreatePostRequest) (Post, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return Post{}, faults.New(faults.Validation, "content is required")
	}
	if len(content) > maxContentLen {
		return Post{}, faults.New(faults.Validation, "content exceeds %d characters", maxContentLen)
	}
	if len(req.MediaIDs) > maxMediaIDs {
		return Post{}, faults.New(faults.Validation, "too many media ids")
	}
	mediaIDs := make([]string, 0, len(req.MediaIDs))
	for _, id := range req.MediaIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return Post{}, faults.New(faults.Validation, "media id must not be empty")
		}
		mediaIDs = append(mediaIDs, id)
	}

	p := Post{
		ID:        s.NewID(),
		UserID:    userID,
		Content:   content,
		MediaIDs:  mediaIDs,
		CreatedAt: s.Now(),
	}
	if err := s.Repo.InsertPost(ctx, p); err != nil {
		return Post{}, err
	}

	s.Spawn(func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Invalidator.Invalidate(bgCtx, cache.PrefixPostPages)
		s.publishEvent(contracts.RoutingKeyPostCreated, contracts.PostCreated{
			EventID:   s.NewID(),
			PostID:    p.ID,
			UserID:    p.UserID,
			Content:   p.Content,
			MediaIDs:  p.MediaIDs,
			CreatedAt: p.CreatedAt,
			EmittedAt: s.Now(),
		})
	})
	return p, nil
}

// DeletePost removes the post only when requesterID owns it. The published
// event carries the media ids so the cleanup consumer never has to look at
// the deleted row.
func (s *Service) DeletePost(ctx context.Context, postID, requesterID string) error {
	if strings.TrimSpace(postID) == "" {
		return faults.New(faults.Validation, "post id is required")
	}
	mediaIDs, err := s.Repo.DeleteOwnedPost(ctx, postID, requesterID)
	if err != nil {
		return err
	}

	s.Spawn(func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Invalidator.Invalidate(bgCtx, cache.PrefixPostPages, cache.PrefixPostLikes)
		s.publishEvent(contracts.RoutingKeyPostDeleted, contracts.PostDeleted{
			EventID:   s.NewID(),
			PostID:    postID,
			UserID:    requesterID,
			MediaIDs:  mediaIDs,
			EmittedAt: s.Now(),
		})
	})
	return nil
}

// GetPost always reads the store directly; single-resource fetches bypass
// the cache so their consistency does not depend on the purge cycle.
func (s *Service) GetPost(ctx context.Context, postID string) (Post, error) {
	return s.Repo.GetPost(ctx, postID)
}

// ListPosts is a read-through over the posts: page cache. Cache failures
// degrade to a store read instead of failing the request.
func (s *Service) ListPosts(ctx context.Context, page, size int) ([]Post, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > maxPageSize {
		size = defaultPageSize
	}

	key := cache.PostPageKey(page, size)
	if data, ok, err := s.Cache.Get(ctx, key); err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("cache read failed, falling back to store")
	} else if ok {
		var posts []Post
		if err := json.Unmarshal(data, &posts); err == nil {
			return posts, nil
		}
		s.Logger.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	}

	posts, err := s.Repo.ListPosts(ctx, page, size)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(posts); err == nil {
		if err := s.Cache.Set(ctx, key, data, s.PageTTL); err != nil {
			s.Logger.Warn().Err(err).Str("key", key).Msg("cache fill failed")
		}
	}
	return posts, nil
}

func (s *Service) CreateComment(ctx context.Context, postID, userID, content string) (Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Comment{}, faults.New(faults.Validation, "content is required")
	}
	if len(content) > maxContentLen {
		return Comment{}, faults.New(faults.Validation, "content exceeds %d characters", maxContentLen)
	}

	c := Comment{
		ID:        s.NewID(),
		PostID:    postID,
		UserID:    userID,
		Content:   content,
		CreatedAt: s.Now(),
	}
	if err := s.Repo.InsertComment(ctx, c); err != nil {
		return Comment{}, err
	}

	// Latest-comment projection is written synchronously in the request so
	// readers see it the moment the caller gets its response.
	if data, err := json.Marshal(c); err == nil {
		if err := s.Cache.Set(ctx, cache.LatestCommentKey(postID), data, s.PageTTL); err != nil {
			s.Logger.Warn().Err(err).Str("post_id", postID).Msg("comment cache mirror failed")
		}
	}

	s.Spawn(func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Invalidator.Invalidate(bgCtx, cache.PrefixPostPages)
	})
	return c, nil
}

// Like increments the per-post counter through the store's atomic
// upsert-increment and mirrors the result into the cache before returning,
// so the cached value equals the last-written store value at write time.
func (s *Service) Like(ctx context.Context, postID string) (int64, error) {
	count, err := s.Repo.IncrementLikes(ctx, postID)
	if err != nil {
		return 0, err
	}
	s.mirrorLikes(ctx, postID, count)
	s.Spawn(func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Invalidator.Invalidate(bgCtx, cache.PrefixPostPages)
	})
	return count, nil
}

func (s *Service) Unlike(ctx context.Context, postID string) (int64, error) {
	count, err := s.Repo.DecrementLikes(ctx, postID)
	if err != nil {
		return 0, err
	}
	s.mirrorLikes(ctx, postID, count)
	s.Spawn(func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Invalidator.Invalidate(bgCtx, cache.PrefixPostPages)
	})
	return count, nil
}

func (s *Service) GetLikes(ctx context.Context, postID string) (LikeSnapshot, error) {
	key := cache.PostLikesKey(postID)
	if data, ok, err := s.Cache.Get(ctx, key); err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("cache read failed, falling back to store")
	} else if ok {
		var snap LikeSnapshot
		if err := json.Unmarshal(data, &snap); err == nil {
			return snap, nil
		}
	}

	count, err := s.Repo.GetLikes(ctx, postID)
	if err != nil {
		return LikeSnapshot{}, err
	}
	snap := LikeSnapshot{PostID: postID, Likes: count}
	if data, err := json.Marshal(snap); err == nil {
		if err := s.Cache.Set(ctx, key, data, s.LikesTTL); err != nil {
			s.Logger.Warn().Err(err).Str("key", key).Msg("cache fill failed")
		}
	}
	return snap, nil
}

func (s *Service) mirrorLikes(ctx context.Context, postID string, count int64) {
	snap := LikeSnapshot{PostID: postID, Likes: count}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := s.Cache.Set(ctx, cache.PostLikesKey(postID), data, s.LikesTTL); err != nil {
		s.Logger.Warn().Err(err).Str("post_id", postID).Msg("likes cache mirror failed")
	}
}

func (s *Service) publishEvent(routingKey string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.Logger.Error().Err(err).Str("routing_key", routingKey).Msg("event marshal failed")
		return
	}
	if err := s.Publish(routingKey, payload); err != nil {
		// The domain write already committed; losing the event degrades
		// search/cleanup freshness only.
		s.Logger.Error().Err(err).Str("routing_key", routingKey).Msg("event publish failed")
	}
}

package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mandatory key prefixes, one per logical resource. Nothing else prevents
// cross-service collisions, so every key must go through these helpers.
const (
	PrefixPostPages     = "posts:"
	PrefixPostLikes     = "post:likes:"
	PrefixLatestComment = "comment:latest:"
)

func PostPageKey(page, size int) string {
	return PrefixPostPages + "page:" + strconv.Itoa(page) + ":" + strconv.Itoa(size)
}

func PostLikesKey(postID string) string {
	return PrefixPostLikes + postID
}

func LatestCommentKey(postID string) string {
	return PrefixLatestComment + postID
}

const opTimeout = 2 * time.Second

// Store is the shared TTL cache. Entries past their TTL are absent to every
// reader; there is no eager eviction beyond explicit purges.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Get returns the entry and true, or false when the key is absent or
// expired. Errors are transport failures, not misses.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	val, err := s.rdb.Get(opCtx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return val, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.rdb.Set(opCtx, key, value, ttl).Err()
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.rdb.Del(opCtx, keys...).Err()
}

// PurgePrefix removes every entry under the prefix. The KEYS scan is
// acceptable at this data volume; at scale a secondary index of affected
// keys would replace it.
func (s *Store) PurgePrefix(ctx context.Context, prefix string) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	keys, err := s.rdb.Keys(opCtx, prefix+"*").Result()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(opCtx, keys...).Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

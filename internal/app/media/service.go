package media

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nuid"
	"github.com/rs/zerolog"
	"github.com/socialstream/platform/internal/contracts"
	"github.com/socialstream/platform/internal/faults"
	"github.com/socialstream/platform/internal/platform/objstore"
)

type Service struct {
	Repo    Repository
	Objects objstore.Store
	Logger  *zerolog.Logger

	Now   func() time.Time
	NewID func() string
}

func NewService(repo Repository, objects objstore.Store, logger *zerolog.Logger) *Service {
	return &Service{
		Repo:    repo,
		Objects: objects,
		Logger:  logger,
		Now:     func() time.Time { return time.Now().UTC() },
		NewID:   nuid.Next,
	}
}

// Upload stores the blob first, then the record. A record insert failure
// leaves an orphaned object behind; that is reclaimed the same way deleted
// posts are, by the cleanup path.
func (s *Service) Upload(ctx context.Context, userID, name, mimeType string, data []byte) (Media, error) {
	if len(data) == 0 {
		return Media{}, faults.New(faults.Validation, "no file uploaded")
	}

	obj, err := s.Objects.Upload(ctx, name, mimeType, data)
	if err != nil {
		return Media{}, objectFault(err, "object store upload")
	}

	m := Media{
		ID:           obj.ID,
		UserID:       userID,
		URL:          obj.URL,
		OriginalName: name,
		MimeType:     mimeType,
		Size:         int64(len(data)),
		CreatedAt:    s.Now(),
	}
	if err := s.Repo.InsertMedia(ctx, m); err != nil {
		return Media{}, err
	}
	return m, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]Media, error) {
	return s.Repo.ListForUser(ctx, userID)
}

// HandlePostDeleted is the cleanup consumer: it deletes every media object
// named in the event from both the object store and the local records.
// Replayed events and already-removed ids are no-ops, so applying the same
// event twice ends in the same state as applying it once.
func (s *Service) HandlePostDeleted(ctx context.Context, payload []byte) error {
	var event contracts.PostDeleted
	if err := json.Unmarshal(payload, &event); err != nil {
		return faults.Wrap(faults.Validation, err, "invalid post.deleted payload")
	}
	if event.PostID == "" {
		return faults.New(faults.Validation, "post.deleted payload missing post_id")
	}

	for _, mediaID := range event.MediaIDs {
		if err := s.Objects.Delete(ctx, mediaID); err != nil && !errors.Is(err, objstore.ErrNotFound) {
			// Transient store failure: surface it so the subscription retries
			// the whole event. Deletes already applied replay as no-ops.
			return objectFault(err, "object store delete "+mediaID)
		}
		removed, err := s.Repo.DeleteByID(ctx, mediaID)
		if err != nil {
			return err
		}
		if removed {
			s.Logger.Info().Str("media_id", mediaID).Str("post_id", event.PostID).
				Msg("media removed after post deletion")
		}
	}
	return nil
}

func objectFault(err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return faults.Wrap(faults.Timeout, err, msg)
	}
	return faults.Wrap(faults.StoreUnavailable, err, msg)
}

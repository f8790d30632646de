package search

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/socialstream/platform/internal/contracts"
	"github.com/socialstream/platform/internal/faults"
)

const resultLimit = 10

type Service struct {
	Repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{Repo: repo}
}

// HandlePostCreated is the index consumer: it upserts the projection row
// keyed by post id. Duplicate deliveries overwrite the same row.
func (s *Service) HandlePostCreated(ctx context.Context, payload []byte) error {
	var event contracts.PostCreated
	if err := json.Unmarshal(payload, &event); err != nil {
		return faults.Wrap(faults.Validation, err, "invalid post.created payload")
	}
	if event.PostID == "" {
		return faults.New(faults.Validation, "post.created payload missing post_id")
	}
	return s.Repo.Upsert(ctx, Record{
		PostID:    event.PostID,
		UserID:    event.UserID,
		Content:   event.Content,
		CreatedAt: event.CreatedAt,
	})
}

func (s *Service) Search(ctx context.Context, query string) ([]Record, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, faults.New(faults.Validation, "query is required")
	}
	return s.Repo.Search(ctx, query, resultLimit)
}

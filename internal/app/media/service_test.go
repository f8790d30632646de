package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/socialstream/platform/internal/contracts"
	"github.com/socialstream/platform/internal/faults"
	"github.com/socialstream/platform/internal/platform/objstore"
)

type fakeMediaRepo struct {
	mu    sync.Mutex
	items map[string]Media
}

func newFakeMediaRepo() *fakeMediaRepo {
	return &fakeMediaRepo{items: make(map[string]Media)}
}

func (r *fakeMediaRepo) InsertMedia(_ context.Context, m Media) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[m.ID]; ok {
		return faults.New(faults.Conflict, "media already exists")
	}
	r.items[m.ID] = m
	return nil
}

func (r *fakeMediaRepo) ListForUser(_ context.Context, userID string) ([]Media, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Media, 0)
	for _, m := range r.items {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMediaRepo) DeleteByID(_ context.Context, mediaID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[mediaID]; !ok {
		return false, nil
	}
	delete(r.items, mediaID)
	return true, nil
}

type fakeObjectStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
	deleteErr error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (s *fakeObjectStore) Upload(_ context.Context, name, _ string, data []byte) (objstore.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return objstore.Object{}, s.uploadErr
	}
	id := "obj-" + name
	s.objects[id] = data
	return objstore.Object{ID: id, URL: "http://objects.local/" + id}, nil
}

func (s *fakeObjectStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.objects[id]; !ok {
		return objstore.ErrNotFound
	}
	delete(s.objects, id)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeMediaRepo, *fakeObjectStore) {
	t.Helper()
	repo := newFakeMediaRepo()
	objects := newFakeObjectStore()
	logger := zerolog.Nop()
	svc := NewService(repo, objects, &logger)
	svc.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, repo, objects
}

func seedMedia(t *testing.T, svc *Service, objects *fakeObjectStore, ids ...string) {
	t.Helper()
	for _, id := range ids {
		objects.mu.Lock()
		objects.objects[id] = []byte("blob")
		objects.mu.Unlock()
		if err := svc.Repo.InsertMedia(context.Background(), Media{
			ID:        id,
			UserID:    "user-1",
			URL:       "http://objects.local/" + id,
			CreatedAt: svc.Now(),
		}); err != nil {
			t.Fatalf("seed media %s: %v", id, err)
		}
	}
}

func deletedEvent(t *testing.T, mediaIDs ...string) []byte {
	t.Helper()
	payload, err := json.Marshal(contracts.PostDeleted{
		EventID:   "evt-1",
		PostID:    "post-1",
		UserID:    "user-1",
		MediaIDs:  mediaIDs,
		EmittedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func TestUploadStoresBlobAndRecord(t *testing.T) {
	svc, repo, objects := newTestService(t)

	m, err := svc.Upload(context.Background(), "user-1", "cat.png", "image/png", []byte("pixels"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if m.UserID != "user-1" || m.Size != int64(len("pixels")) {
		t.Fatalf("unexpected media: %+v", m)
	}
	if _, ok := objects.objects[m.ID]; !ok {
		t.Fatal("blob missing from object store")
	}
	if _, ok := repo.items[m.ID]; !ok {
		t.Fatal("record missing from repository")
	}
}

func TestUploadEmptyFileRejected(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Upload(context.Background(), "user-1", "empty.png", "image/png", nil)
	if faults.KindOf(err) != faults.Validation {
		t.Fatalf("expected validation fault, got %v", err)
	}
}

func TestHandlePostDeletedRemovesNamedMedia(t *testing.T) {
	svc, repo, objects := newTestService(t)
	seedMedia(t, svc, objects, "m1", "m2")
	seedMedia(t, svc, objects, "kept")

	if err := svc.HandlePostDeleted(context.Background(), deletedEvent(t, "m1", "m2")); err != nil {
		t.Fatalf("handle post.deleted: %v", err)
	}

	for _, id := range []string{"m1", "m2"} {
		if _, ok := objects.objects[id]; ok {
			t.Fatalf("object %s not removed", id)
		}
		if _, ok := repo.items[id]; ok {
			t.Fatalf("record %s not removed", id)
		}
	}
	if _, ok := repo.items["kept"]; !ok {
		t.Fatal("unrelated media must not be touched")
	}
}

func TestHandlePostDeletedIsIdempotent(t *testing.T) {
	svc, repo, objects := newTestService(t)
	seedMedia(t, svc, objects, "m1")
	payload := deletedEvent(t, "m1")

	if err := svc.HandlePostDeleted(context.Background(), payload); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := svc.HandlePostDeleted(context.Background(), payload); err != nil {
		t.Fatalf("second apply must converge, got %v", err)
	}
	if len(repo.items) != 0 {
		t.Fatalf("records left behind: %v", repo.items)
	}
}

func TestHandlePostDeletedNeedsNoPostRow(t *testing.T) {
	svc, _, objects := newTestService(t)
	seedMedia(t, svc, objects, "m1")

	// The event names the media ids itself; cleanup must succeed with no
	// trace of the originating post anywhere.
	if err := svc.HandlePostDeleted(context.Background(), deletedEvent(t, "m1")); err != nil {
		t.Fatalf("handle post.deleted: %v", err)
	}
}

func TestHandlePostDeletedBadPayload(t *testing.T) {
	svc, _, _ := newTestService(t)

	if err := svc.HandlePostDeleted(context.Background(), []byte("not json")); faults.KindOf(err) != faults.Validation {
		t.Fatalf("expected validation fault for malformed payload, got %v", err)
	}
	missingID, _ := json.Marshal(map[string]any{"event_id": "evt-1"})
	if err := svc.HandlePostDeleted(context.Background(), missingID); faults.KindOf(err) != faults.Validation {
		t.Fatalf("expected validation fault for missing post_id, got %v", err)
	}
}

func TestUploadFailureCategorizedByCause(t *testing.T) {
	svc, _, objects := newTestService(t)

	objects.uploadErr = fmt.Errorf("request: %w", context.DeadlineExceeded)
	_, err := svc.Upload(context.Background(), "user-1", "slow.png", "image/png", []byte("pixels"))
	if faults.KindOf(err) != faults.Timeout {
		t.Fatalf("deadline cause: expected timeout fault, got %v", err)
	}

	objects.uploadErr = errors.New("status 503")
	_, err = svc.Upload(context.Background(), "user-1", "refused.png", "image/png", []byte("pixels"))
	if faults.KindOf(err) != faults.StoreUnavailable {
		t.Fatalf("hard failure: expected store fault, got %v", err)
	}
}

func TestHandlePostDeletedWrappedMissingObjectIsNoop(t *testing.T) {
	svc, repo, objects := newTestService(t)
	seedMedia(t, svc, objects, "m1")
	objects.deleteErr = fmt.Errorf("cleanup m1: %w", objstore.ErrNotFound)

	if err := svc.HandlePostDeleted(context.Background(), deletedEvent(t, "m1")); err != nil {
		t.Fatalf("wrapped missing-object error must be tolerated, got %v", err)
	}
	if _, ok := repo.items["m1"]; ok {
		t.Fatal("record must still be removed")
	}
}

func TestHandlePostDeletedTransientStoreFailureRetriable(t *testing.T) {
	svc, repo, objects := newTestService(t)
	seedMedia(t, svc, objects, "m1")
	objects.deleteErr = errors.New("store unreachable")

	err := svc.HandlePostDeleted(context.Background(), deletedEvent(t, "m1"))
	if faults.KindOf(err) != faults.StoreUnavailable {
		t.Fatalf("expected retriable fault, got %v", err)
	}
	if _, ok := repo.items["m1"]; !ok {
		t.Fatal("record must survive until the object delete succeeds")
	}

	objects.deleteErr = nil
	if err := svc.HandlePostDeleted(context.Background(), deletedEvent(t, "m1")); err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
	if len(repo.items) != 0 {
		t.Fatal("retry must finish the cleanup")
	}
}

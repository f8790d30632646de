package objstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrNotFound reports a delete for an object that no longer exists. Callers
// treat it as a no-op.
var ErrNotFound = errors.New("object not found")

// Object is the stored blob reference returned by an upload.
type Object struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Store is the object-store collaborator: opaque blob upload and delete.
type Store interface {
	Upload(ctx context.Context, name, contentType string, data []byte) (Object, error)
	Delete(ctx context.Context, id string) error
}

// HTTPStore talks to the blob-store sidecar over its REST surface.
type HTTPStore struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPStore(baseURL string) *HTTPStore {
	return &HTTPStore{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *HTTPStore) Upload(ctx context.Context, name, contentType string, data []byte) (Object, error) {
	endpoint := s.BaseURL + "/objects?name=" + url.QueryEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return Object{}, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return Object{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Object{}, fmt.Errorf("object store upload: status %d: %s", resp.StatusCode, string(body))
	}

	var obj Object
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return Object{}, fmt.Errorf("object store upload: decode response: %w", err)
	}
	return obj, nil
}

func (s *HTTPStore) Delete(ctx context.Context, id string) error {
	endpoint := s.BaseURL + "/objects/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("object store delete: status %d", resp.StatusCode)
	}
}

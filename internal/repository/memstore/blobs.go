package memstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"memories-backend/internal/repository"
)

// Blobs is an in-memory object store
type Blobs struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string
}

// NewBlobs creates an empty object store whose URLs are rooted at baseURL
func NewBlobs(baseURL string) *Blobs {
	return &Blobs{objects: make(map[string][]byte), baseURL: baseURL}
}

// Put stores the payload under key
func (b *Blobs) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}
	b.mu.Lock()
	b.objects[key] = buf.Bytes()
	b.mu.Unlock()
	return nil
}

// Delete removes the object under key
func (b *Blobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[key]; !ok {
		return fmt.Errorf("object %s: %w", key, repository.ErrNotFound)
	}
	delete(b.objects, key)
	return nil
}

// PresignGet returns a plain URL for key
func (b *Blobs) PresignGet(ctx context.Context, key string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.objects[key]; !ok {
		return "", fmt.Errorf("object %s: %w", key, repository.ErrNotFound)
	}
	return b.baseURL + "/" + key, nil
}

// Has reports whether an object is stored under key
func (b *Blobs) Has(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[key]
	return ok
}

// Len returns the number of stored objects
func (b *Blobs) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

// ServeHTTP serves stored objects by key so that the URLs returned by
// PresignGet resolve when mounted under the base URL's path
func (b *Blobs) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")
	b.mu.RLock()
	data, ok := b.objects[key]
	b.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptwars/warsd/internal/domain"
)

// memBlobs is an in-memory blob store for the archive endpoints.
type memBlobs struct {
	objects map[string]string
	deleted []string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: make(map[string]string)}
}

func (b *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (b *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path, data := range b.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{
				Path:         path,
				Size:         int64(len(data)),
				LastModified: time.Unix(1_700_000_000, 0).UTC(),
			})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

func (b *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := b.objects[path]
	return ok, nil
}

func (b *memBlobs) Delete(_ context.Context, path string) error {
	delete(b.objects, path)
	b.deleted = append(b.deleted, path)
	return nil
}

func newArchiveMux(blobs *memBlobs) *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewArchiveHandler(blobs, blobs, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/archives", h.List)
	mux.HandleFunc("GET /api/archives/{id}", h.Get)
	mux.HandleFunc("DELETE /api/archives/{id}", h.Delete)
	return mux
}

func TestArchiveEndpoints(t *testing.T) {
	blobs := newMemBlobs()
	blobs.objects["archive/markets/2026-08/mkt-1.json"] = `{"market":{"market":{"id":"mkt-1"}}}`
	blobs.objects["archive/markets/2026-07/mkt-2.json"] = `{"market":{"market":{"id":"mkt-2"}}}`
	mux := newArchiveMux(blobs)

	t.Run("list", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archives", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"market_id":"mkt-1"`)
		assert.Contains(t, rec.Body.String(), `"market_id":"mkt-2"`)
	})

	t.Run("get streams the archive", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archives/mkt-1", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"market":{"market":{"id":"mkt-1"}}}`, rec.Body.String())
	})

	t.Run("get unknown market", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archives/mkt-404", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete removes the object", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/archives/mkt-2", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"archive/markets/2026-07/mkt-2.json"}, blobs.deleted)

		rec = httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/archives/mkt-2", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestArchiveDeleteDisabled(t *testing.T) {
	blobs := newMemBlobs()
	blobs.objects["archive/markets/2026-08/mkt-1.json"] = `{}`
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewArchiveHandler(blobs, nil, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/archives/{id}", h.Delete)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/archives/mkt-1", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, blobs.deleted)
}

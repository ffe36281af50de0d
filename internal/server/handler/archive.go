package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/promptwars/warsd/internal/domain"
)

// archivePrefix is where the sweeper's archiver writes market archives,
// partitioned by year-month.
const archivePrefix = "archive/markets/"

// ArchiveHandler serves the cold-storage archives of swept markets.
type ArchiveHandler struct {
	reader  domain.BlobReader
	deleter domain.BlobDeleter
	logger  *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler. deleter may be nil, which
// disables the delete endpoint.
func NewArchiveHandler(reader domain.BlobReader, deleter domain.BlobDeleter, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		reader:  reader,
		deleter: deleter,
		logger:  logger,
	}
}

type archiveInfo struct {
	MarketID     string `json:"market_id"`
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
}

// List returns the archives of all swept markets.
// GET /api/archives
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	infos, err := h.reader.List(r.Context(), archivePrefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archives failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}

	archives := make([]archiveInfo, 0, len(infos))
	for _, info := range infos {
		archives = append(archives, archiveInfo{
			MarketID:     marketIDFromPath(info.Path),
			Path:         info.Path,
			Size:         info.Size,
			LastModified: info.LastModified.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"archives": archives})
}

// Get streams a swept market's archive JSON.
// GET /api/archives/{id}
func (h *ArchiveHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	path, err := h.find(r, id)
	if err != nil {
		h.writeArchiveError(w, r, "get archive", id, err)
		return
	}

	body, err := h.reader.Get(r.Context(), path)
	if err != nil {
		h.writeArchiveError(w, r, "get archive", id, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "handler: archive stream interrupted",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// Delete removes a swept market's archive. Operator only; the route goes
// through the signed-write chain.
// DELETE /api/archives/{id}
func (h *ArchiveHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.deleter == nil {
		writeError(w, http.StatusNotFound, "archive deletion disabled")
		return
	}

	id := pathParam(r, "id")

	path, err := h.find(r, id)
	if err != nil {
		h.writeArchiveError(w, r, "delete archive", id, err)
		return
	}

	if err := h.deleter.Delete(r.Context(), path); err != nil {
		h.writeArchiveError(w, r, "delete archive", id, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"market_id": id,
		"status":    "deleted",
	})
}

// find resolves a market ID to its archive path. The archiver partitions
// keys by year-month, so the lookup scans the prefix.
func (h *ArchiveHandler) find(r *http.Request, marketID string) (string, error) {
	if marketID == "" {
		return "", domain.ErrNotFound
	}

	infos, err := h.reader.List(r.Context(), archivePrefix)
	if err != nil {
		return "", err
	}
	for _, info := range infos {
		if marketIDFromPath(info.Path) == marketID {
			return info.Path, nil
		}
	}
	return "", domain.ErrNotFound
}

func marketIDFromPath(path string) string {
	base := path[strings.LastIndexByte(path, '/')+1:]
	return strings.TrimSuffix(base, ".json")
}

func (h *ArchiveHandler) writeArchiveError(w http.ResponseWriter, r *http.Request, op, marketID string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "archive not found")
		return
	}
	h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
		slog.String("market_id", marketID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, op+" failed")
}

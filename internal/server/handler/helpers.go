package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/promptwars/warsd/internal/crypto"
	"github.com/promptwars/warsd/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// callerAccount returns the authenticated account of a signed request. The
// auth middleware has already verified the signature when this is non-empty.
func callerAccount(r *http.Request) string {
	return r.Header.Get(crypto.HeaderAccount)
}

// writeJSON marshals v and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseListOpts extracts pagination and time-range filters from the query
// string. Timestamps accept RFC 3339 or Unix seconds.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := defaultListLimit
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, maxListLimit)
		}
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
		Since:  parseTimeParam(q.Get("since")),
		Until:  parseTimeParam(q.Get("until")),
	}
}

func parseTimeParam(v string) *time.Time {
	if v == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return &ts
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		ts := time.Unix(secs, 0).UTC()
		return &ts
	}
	return nil
}

// pathParam extracts a named path parameter registered with the Go 1.22
// ServeMux patterns.
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// logHandler attaches the handler name to a logger.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}

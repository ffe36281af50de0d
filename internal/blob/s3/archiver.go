package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/promptwars/warsd/internal/domain"
)

// MarketArchive is the S3 object written for each torn-down market: the final
// persisted projection plus all player entries and the full event log.
type MarketArchive struct {
	Market  domain.Market   `json:"market"`
	Players []domain.Player `json:"players"`
	Events  []domain.Event  `json:"events"`
}

// ArchiveImpl implements domain.Archiver by serializing a market's terminal
// state to JSON and uploading it to S3.
//
// Deletion of the archived market from the primary store is intentionally
// NOT performed here -- the sweeper does that only after the archive upload
// has succeeded.
type ArchiveImpl struct {
	writer domain.BlobWriter
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter) *ArchiveImpl {
	return &ArchiveImpl{writer: writer}
}

// ArchiveMarket uploads the market's full state to
// archive/markets/YYYY-MM/{marketID}.json and returns the object path.
func (a *ArchiveImpl) ArchiveMarket(ctx context.Context, m domain.Market, players []domain.Player, events []domain.Event) (string, error) {
	archive := MarketArchive{
		Market:  m,
		Players: players,
		Events:  events,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(archive); err != nil {
		return "", fmt.Errorf("s3blob: archive market %s marshal: %w", m.Data.ID, err)
	}

	path := archivePath(m)
	if err := a.writer.Put(ctx, path, &buf, "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive market %s upload: %w", m.Data.ID, err)
	}

	return path, nil
}

// archivePath builds the S3 key for a market archive, partitioned by the
// year-month of the market's creation.
//
//	archive/markets/2025-01/mkt-7f3a.json
func archivePath(m domain.Market) string {
	return fmt.Sprintf("archive/markets/%s/%s.json", m.CreatedAt.Format("2006-01"), m.Data.ID)
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)

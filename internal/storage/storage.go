package storage

import (
	"errors"

	"github.com/reviewhub/media-service/internal/types"
)

// ErrRecordNotFound is returned by lookups and deletes that match no row.
var ErrRecordNotFound = errors.New("media record not found")

// MediaStats is the aggregate view over all persisted records.
type MediaStats struct {
	TotalRecords   int64   `json:"total_records"`
	TotalBytes     int64   `json:"total_bytes"`
	ImageCount     int64   `json:"image_count"`
	VideoCount     int64   `json:"video_count"`
	DegradedCount  int64   `json:"degraded_count"`
	AvgCompression float64 `json:"avg_compression"`
}

type Storage interface {
	CreateMediaRecord(record *types.MediaRecord) error
	GetMediaRecord(id string) (*types.MediaRecord, error)
	ListMediaByUploader(uploaderID string, limit, offset int) ([]*types.MediaRecord, error)
	ListMedia(limit, offset int) ([]*types.MediaRecord, error)
	DeleteMediaRecord(id string) error
	GetMediaStats() (*MediaStats, error)
}

package postgres

import (
	"fmt"

	"github.com/reviewhub/media-service/internal/storage"
)

// GetMediaStats aggregates the whole table in a single query so the stats
// endpoint never runs per-record queries.
func (p *Postgres) GetMediaStats() (*storage.MediaStats, error) {
	query := `
	SELECT
		COUNT(*) as total_records,
		COALESCE(SUM(size), 0) as total_bytes,
		COUNT(*) FILTER (WHERE is_image) as image_count,
		COUNT(*) FILTER (WHERE is_video) as video_count,
		COUNT(*) FILTER (WHERE processing->>'error' IS NOT NULL AND processing->>'error' != '') as degraded_count,
		COALESCE(AVG((processing->>'compression_ratio')::float)
			FILTER (WHERE processing->>'compression_ratio' IS NOT NULL), 0) as avg_compression
	FROM media_records
	`

	var stats storage.MediaStats
	err := p.Db.QueryRow(query).Scan(
		&stats.TotalRecords,
		&stats.TotalBytes,
		&stats.ImageCount,
		&stats.VideoCount,
		&stats.DegradedCount,
		&stats.AvgCompression,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media stats: %w", err)
	}

	return &stats, nil
}

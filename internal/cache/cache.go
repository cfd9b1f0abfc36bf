package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/reviewhub/media-service/internal/storage"
	"github.com/reviewhub/media-service/internal/types"
)

// CacheService wraps storage with Redis caching
type CacheService struct {
	storage storage.Storage
	redis   *redis.Client
}

// NewCacheService creates a new cache service
func NewCacheService(storage storage.Storage, redisClient *redis.Client) *CacheService {
	return &CacheService{
		storage: storage,
		redis:   redisClient,
	}
}

// Cache key patterns
const (
	MediaRecordKey  = "media:record:%s"   // media:record:mediaID
	UploaderListKey = "media:uploader:%s" // media:uploader:uploaderID
	MediaStatsKey   = "media:stats"
)

// Cache durations
const (
	RecordCacheDuration = 10 * time.Minute // Records are immutable after ingest
	ListCacheDuration   = 45 * time.Second // Hot uploader list cache
	StatsCacheDuration  = 2 * time.Minute  // Aggregate stats
)

// CreateMediaRecord writes through and invalidates the uploader's list and
// the aggregate stats. The record itself is cached eagerly because a read
// almost always follows an upload.
func (c *CacheService) CreateMediaRecord(record *types.MediaRecord) error {
	if err := c.storage.CreateMediaRecord(record); err != nil {
		return err
	}

	ctx := context.Background()
	c.cacheRecord(ctx, record)
	c.invalidateLists(ctx, record.UploaderID)

	return nil
}

// GetMediaRecord returns a cached record or fetches from DB
func (c *CacheService) GetMediaRecord(id string) (*types.MediaRecord, error) {
	ctx := context.Background()
	key := fmt.Sprintf(MediaRecordKey, id)

	// Try cache first
	cached, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		var record types.MediaRecord
		if err := json.Unmarshal([]byte(cached), &record); err == nil {
			return &record, nil
		}
	}

	// Cache miss - fetch from database
	record, err := c.storage.GetMediaRecord(id)
	if err != nil {
		return nil, err
	}

	c.cacheRecord(ctx, record)

	return record, nil
}

// ListMediaByUploader returns a cached uploader listing or fetches from DB.
// Only the first page is cached; deeper pages are rare enough to pass
// through.
func (c *CacheService) ListMediaByUploader(uploaderID string, limit, offset int) ([]*types.MediaRecord, error) {
	if offset != 0 || uploaderID == "" {
		return c.storage.ListMediaByUploader(uploaderID, limit, offset)
	}

	ctx := context.Background()
	key := fmt.Sprintf(UploaderListKey, uploaderID)

	cached, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		var records []*types.MediaRecord
		if err := json.Unmarshal([]byte(cached), &records); err == nil && len(records) <= limit {
			return records, nil
		}
	}

	records, err := c.storage.ListMediaByUploader(uploaderID, limit, offset)
	if err != nil {
		return nil, err
	}

	data, _ := json.Marshal(records)
	c.redis.Set(ctx, key, data, ListCacheDuration)

	return records, nil
}

func (c *CacheService) ListMedia(limit, offset int) ([]*types.MediaRecord, error) {
	// Global listing is admin traffic, not worth caching.
	return c.storage.ListMedia(limit, offset)
}

// DeleteMediaRecord deletes through and drops every key the record could be
// cached under.
func (c *CacheService) DeleteMediaRecord(id string) error {
	record, _ := c.storage.GetMediaRecord(id)

	if err := c.storage.DeleteMediaRecord(id); err != nil {
		return err
	}

	ctx := context.Background()
	c.redis.Del(ctx, fmt.Sprintf(MediaRecordKey, id))
	if record != nil {
		c.invalidateLists(ctx, record.UploaderID)
	}

	return nil
}

// GetMediaStats returns cached aggregate stats or fetches from DB
func (c *CacheService) GetMediaStats() (*storage.MediaStats, error) {
	ctx := context.Background()

	cached, err := c.redis.Get(ctx, MediaStatsKey).Result()
	if err == nil {
		var stats storage.MediaStats
		if err := json.Unmarshal([]byte(cached), &stats); err == nil {
			return &stats, nil
		}
	}

	stats, err := c.storage.GetMediaStats()
	if err != nil {
		return nil, err
	}

	data, _ := json.Marshal(stats)
	c.redis.Set(ctx, MediaStatsKey, data, StatsCacheDuration)

	return stats, nil
}

func (c *CacheService) cacheRecord(ctx context.Context, record *types.MediaRecord) {
	key := fmt.Sprintf(MediaRecordKey, record.ID)
	data, _ := json.Marshal(record)
	c.redis.Set(ctx, key, data, RecordCacheDuration)
}

func (c *CacheService) invalidateLists(ctx context.Context, uploaderID string) {
	keys := []string{MediaStatsKey}
	if uploaderID != "" {
		keys = append(keys, fmt.Sprintf(UploaderListKey, uploaderID))
	}
	c.redis.Del(ctx, keys...)
}

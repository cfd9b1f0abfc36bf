package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/reviewhub/media-service/internal/storage"
	"github.com/reviewhub/media-service/internal/types"
)

// setupTestRedis creates an in-memory Redis server for testing
func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
		DB:   0,
	})

	_, err = redisClient.Ping(context.Background()).Result()
	if err != nil {
		t.Fatalf("Failed to connect to test Redis: %v", err)
	}

	cleanup := func() {
		redisClient.Close()
		mr.Close()
	}

	return redisClient, cleanup
}

// countingStorage tracks how often the backing store is hit.
type countingStorage struct {
	mu      sync.Mutex
	records map[string]*types.MediaRecord
	gets    int
	lists   int
}

func newCountingStorage() *countingStorage {
	return &countingStorage{records: map[string]*types.MediaRecord{}}
}

func (s *countingStorage) CreateMediaRecord(record *types.MediaRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return nil
}

func (s *countingStorage) GetMediaRecord(id string) (*types.MediaRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	record, ok := s.records[id]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	return record, nil
}

func (s *countingStorage) ListMediaByUploader(uploaderID string, limit, offset int) ([]*types.MediaRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	var out []*types.MediaRecord
	for _, r := range s.records {
		if r.UploaderID == uploaderID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *countingStorage) ListMedia(limit, offset int) ([]*types.MediaRecord, error) {
	return nil, nil
}

func (s *countingStorage) DeleteMediaRecord(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return storage.ErrRecordNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *countingStorage) GetMediaStats() (*storage.MediaStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &storage.MediaStats{TotalRecords: int64(len(s.records))}, nil
}

func testRecord(id, uploaderID string) *types.MediaRecord {
	return &types.MediaRecord{
		ID:         id,
		FileName:   "photo.jpg",
		MimeType:   "image/jpeg",
		Size:       1024,
		Location:   types.Location{Key: "media/" + id, URL: "https://cdn.test/" + id},
		UploaderID: uploaderID,
		IsImage:    true,
		Variants: map[types.VariantRole]types.Variant{
			types.VariantOriginal: {Role: types.VariantOriginal},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestCacheService_GetMediaRecord(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	store := newCountingStorage()
	svc := NewCacheService(store, redisClient)

	record := testRecord("rec-1", "user-1")
	if err := store.CreateMediaRecord(record); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// First read misses the cache and hits storage
	got, err := svc.GetMediaRecord("rec-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.ID != "rec-1" {
		t.Fatalf("Expected record rec-1, got %s", got.ID)
	}
	if store.gets != 1 {
		t.Fatalf("Expected 1 storage hit, got %d", store.gets)
	}

	// Second read is served from the cache
	if _, err := svc.GetMediaRecord("rec-1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if store.gets != 1 {
		t.Fatalf("Expected cached read, storage was hit %d times", store.gets)
	}
}

func TestCacheService_CreateCachesEagerly(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	store := newCountingStorage()
	svc := NewCacheService(store, redisClient)

	if err := svc.CreateMediaRecord(testRecord("rec-2", "user-1")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// The read after an upload must not touch storage
	if _, err := svc.GetMediaRecord("rec-2"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if store.gets != 0 {
		t.Fatalf("Expected eager cache to absorb the read, storage was hit %d times", store.gets)
	}
}

func TestCacheService_DeleteInvalidates(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	store := newCountingStorage()
	svc := NewCacheService(store, redisClient)

	if err := svc.CreateMediaRecord(testRecord("rec-3", "user-1")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := svc.DeleteMediaRecord("rec-3"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// The cached copy must be gone along with the row
	_, err := svc.GetMediaRecord("rec-3")
	if err != storage.ErrRecordNotFound {
		t.Fatalf("Expected ErrRecordNotFound, got %v", err)
	}
}

func TestCacheService_ListMediaByUploader(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	store := newCountingStorage()
	svc := NewCacheService(store, redisClient)

	for i := 0; i < 3; i++ {
		if err := store.CreateMediaRecord(testRecord(fmt.Sprintf("rec-%d", i), "user-7")); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	records, err := svc.ListMediaByUploader("user-7", 10, 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	if store.lists != 1 {
		t.Fatalf("Expected 1 storage hit, got %d", store.lists)
	}

	// First page is cached
	if _, err := svc.ListMediaByUploader("user-7", 10, 0); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if store.lists != 1 {
		t.Fatalf("Expected cached list, storage was hit %d times", store.lists)
	}

	// Deeper pages pass through
	if _, err := svc.ListMediaByUploader("user-7", 10, 10); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if store.lists != 2 {
		t.Fatalf("Expected pass-through for offset pages, storage was hit %d times", store.lists)
	}
}

func TestCacheService_CreateInvalidatesUploaderList(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	store := newCountingStorage()
	svc := NewCacheService(store, redisClient)

	if err := svc.CreateMediaRecord(testRecord("rec-a", "user-9")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := svc.ListMediaByUploader("user-9", 10, 0); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// A new upload must invalidate the cached list
	if err := svc.CreateMediaRecord(testRecord("rec-b", "user-9")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	records, err := svc.ListMediaByUploader("user-9", 10, 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected fresh list with 2 records, got %d", len(records))
	}
}

func TestCacheService_GetMediaStats(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	store := newCountingStorage()
	svc := NewCacheService(store, redisClient)

	if err := store.CreateMediaRecord(testRecord("rec-1", "user-1")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	stats, err := svc.GetMediaStats()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if stats.TotalRecords != 1 {
		t.Fatalf("Expected 1 record in stats, got %d", stats.TotalRecords)
	}

	// Stats are cached, so new rows only show up after invalidation
	if err := store.CreateMediaRecord(testRecord("rec-2", "user-1")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	stats, err = svc.GetMediaStats()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if stats.TotalRecords != 1 {
		t.Fatalf("Expected stale cached stats, got %d records", stats.TotalRecords)
	}

	if err := svc.CreateMediaRecord(testRecord("rec-3", "user-1")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	stats, err = svc.GetMediaStats()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if stats.TotalRecords != 3 {
		t.Fatalf("Expected fresh stats with 3 records, got %d", stats.TotalRecords)
	}
}

package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/reviewhub/media-service/internal/storage"
	"github.com/reviewhub/media-service/internal/types"
)

// fakeObjectStore is an in-memory ObjectStore. failRoles makes transfers for
// specific variant roles fail; failAll fails everything.
type fakeObjectStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	failRoles map[string]bool
	failAll   bool
	removed   []string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}}
}

func (s *fakeObjectStore) Transfer(ctx context.Context, data []byte, key, contentType string, metadata map[string]string) (types.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll || s.failRoles[metadata["role"]] {
		return types.Location{}, errors.New("connection reset")
	}
	s.objects[key] = data
	return types.Location{Key: key, URL: "https://cdn.test/" + key, ETag: "etag-" + key}, nil
}

func (s *fakeObjectStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.removed = append(s.removed, key)
	return nil
}

func (s *fakeObjectStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// fakeRecords is an in-memory storage.Storage.
type fakeRecords struct {
	mu      sync.Mutex
	records map[string]*types.MediaRecord
	failPut bool
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{records: map[string]*types.MediaRecord{}}
}

func (r *fakeRecords) CreateMediaRecord(record *types.MediaRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failPut {
		return errors.New("database is down")
	}
	r.records[record.ID] = record
	return nil
}

func (r *fakeRecords) GetMediaRecord(id string) (*types.MediaRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	return record, nil
}

func (r *fakeRecords) ListMediaByUploader(uploaderID string, limit, offset int) ([]*types.MediaRecord, error) {
	return nil, nil
}

func (r *fakeRecords) ListMedia(limit, offset int) ([]*types.MediaRecord, error) {
	return nil, nil
}

func (r *fakeRecords) DeleteMediaRecord(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return storage.ErrRecordNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *fakeRecords) GetMediaStats() (*storage.MediaStats, error) {
	return &storage.MediaStats{}, nil
}

func testIngestor(store *fakeObjectStore, records *fakeRecords) *Ingestor {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewIngestor(testMediaConfig(), store, records, &fakeTranscoder{duration: 30}, nil, log)
}

func TestIngest_ZeroWorkerConfigStillTransfers(t *testing.T) {
	store := newFakeObjectStore()
	records := newFakeRecords()
	cfg := testMediaConfig()
	cfg.VariantWorkers = 0
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	in := NewIngestor(cfg, store, records, &fakeTranscoder{duration: 30}, nil, log)

	// An unset worker count must not wedge the variant transfers.
	record, err := in.Ingest(context.Background(), imageRequest(t))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(record.Variants) != 3 {
		t.Fatalf("Expected 3 variants, got %d", len(record.Variants))
	}
}

func imageRequest(t *testing.T) *types.UploadRequest {
	t.Helper()
	data := makePNG(t, 200, 100)
	return &types.UploadRequest{
		FieldName:   "photos",
		FileName:    "review.png",
		ContentType: "image/png",
		Size:        int64(len(data)),
		Data:        data,
		UploaderID:  "user-1",
	}
}

func TestIngest_ImageSuccess(t *testing.T) {
	store := newFakeObjectStore()
	records := newFakeRecords()
	ing := testIngestor(store, records)

	record, err := ing.Ingest(context.Background(), imageRequest(t))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if record.Degraded() {
		t.Fatalf("Expected healthy record, got degraded: %s", record.Processing.Error)
	}
	if len(record.Variants) != 3 {
		t.Fatalf("Expected original, compressed and thumbnail, got %d variants", len(record.Variants))
	}
	if record.Width != 200 || record.Height != 100 {
		t.Fatalf("Expected 200x100, got %dx%d", record.Width, record.Height)
	}

	compressed := record.Variants[types.VariantCompressed]
	if record.BestMediaURL() != compressed.Location.URL {
		t.Fatalf("BestMediaURL must prefer the compressed variant, got %s", record.BestMediaURL())
	}
	if record.ThumbnailURL() == record.Location.URL {
		t.Fatal("ThumbnailURL must prefer the dedicated thumbnail")
	}

	if _, err := records.GetMediaRecord(record.ID); err != nil {
		t.Fatalf("Record was not persisted: %v", err)
	}
	if store.count() != 3 {
		t.Fatalf("Expected 3 stored objects, got %d", store.count())
	}
}

func TestIngest_CorruptImageDegrades(t *testing.T) {
	store := newFakeObjectStore()
	records := newFakeRecords()
	ing := testIngestor(store, records)

	req := &types.UploadRequest{
		FieldName:   "photos",
		FileName:    "broken.png",
		ContentType: "image/png",
		Data:        []byte("this is not a png"),
	}
	req.Size = int64(len(req.Data))

	record, err := ing.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("Generator failure must degrade, not fail: %v", err)
	}

	if !record.Degraded() {
		t.Fatal("Expected degraded record")
	}
	if !strings.Contains(record.Processing.Error, types.CodeUnsupportedImageFormat) {
		t.Fatalf("Expected decode failure in processing error, got %q", record.Processing.Error)
	}
	if len(record.Variants) != 1 {
		t.Fatalf("Degraded record must keep only the original, got %d variants", len(record.Variants))
	}
	if record.BestMediaURL() != record.Location.URL {
		t.Fatal("Degraded record must fall back to the original URL")
	}
	if _, err := records.GetMediaRecord(record.ID); err != nil {
		t.Fatalf("Degraded record must still be persisted: %v", err)
	}
}

func TestIngest_VariantTransferFailureDiscardsImageVariants(t *testing.T) {
	store := newFakeObjectStore()
	store.failRoles = map[string]bool{string(types.VariantThumbnail): true}
	records := newFakeRecords()
	ing := testIngestor(store, records)

	record, err := ing.Ingest(context.Background(), imageRequest(t))
	if err != nil {
		t.Fatalf("Variant transfer failure must degrade, not fail: %v", err)
	}

	if !record.Degraded() {
		t.Fatal("Expected degraded record")
	}
	if len(record.Variants) != 1 {
		t.Fatalf("Expected only the original variant, got %d", len(record.Variants))
	}
	// The compressed variant that did land must have been cleaned up.
	if store.count() != 1 {
		t.Fatalf("Expected only the original object in storage, got %d", store.count())
	}
}

func TestIngest_OriginalTransferFailureIsFatal(t *testing.T) {
	store := newFakeObjectStore()
	store.failAll = true
	records := newFakeRecords()
	ing := testIngestor(store, records)

	_, err := ing.Ingest(context.Background(), imageRequest(t))
	ie := types.AsIngestError(err)
	if ie == nil || ie.Code != types.CodeStorageUploadFailed {
		t.Fatalf("Expected STORAGE_UPLOAD_FAILED, got %v", err)
	}
	if len(records.records) != 0 {
		t.Fatal("No record may be persisted when the original transfer fails")
	}
}

func TestIngest_RejectsDisallowedTypeBeforeStorage(t *testing.T) {
	store := newFakeObjectStore()
	ing := testIngestor(store, newFakeRecords())

	req := &types.UploadRequest{
		FileName:    "setup.exe",
		ContentType: "application/x-msdownload",
		Data:        []byte{0x4d, 0x5a},
	}

	_, err := ing.Ingest(context.Background(), req)
	ie := types.AsIngestError(err)
	if ie == nil || ie.Code != types.CodeInvalidFileType {
		t.Fatalf("Expected INVALID_FILE_TYPE, got %v", err)
	}
	if store.count() != 0 {
		t.Fatal("Pre-flight rejection must not touch storage")
	}
}

func TestIngest_EmptyUpload(t *testing.T) {
	ing := testIngestor(newFakeObjectStore(), newFakeRecords())

	_, err := ing.Ingest(context.Background(), &types.UploadRequest{FileName: "empty.png", ContentType: "image/png"})
	ie := types.AsIngestError(err)
	if ie == nil || ie.Code != types.CodeNoFile {
		t.Fatalf("Expected NO_FILE, got %v", err)
	}
}

func TestIngest_PassthroughDocument(t *testing.T) {
	store := newFakeObjectStore()
	records := newFakeRecords()
	ing := testIngestor(store, records)

	req := &types.UploadRequest{
		FieldName:   "attachments",
		FileName:    "review.pdf",
		ContentType: "application/pdf",
		Data:        []byte("%PDF-1.4 fake"),
	}
	req.Size = int64(len(req.Data))

	record, err := ing.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if record.IsImage || record.IsVideo {
		t.Fatal("Document must not be classified as image or video")
	}
	if len(record.Variants) != 1 {
		t.Fatalf("Pass-through media gets only the original variant, got %d", len(record.Variants))
	}
	if record.Degraded() {
		t.Fatal("Pass-through is a full success, not a degradation")
	}
}

func TestIngest_VideoPartialTiers(t *testing.T) {
	store := newFakeObjectStore()
	records := newFakeRecords()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	trans := &fakeTranscoder{
		duration:  30,
		failTiers: map[types.VariantRole]bool{types.VariantHigh: true},
	}
	ing := NewIngestor(testMediaConfig(), store, records, trans, nil, log)

	req := &types.UploadRequest{
		FieldName:   "videos",
		FileName:    "clip.mp4",
		ContentType: "video/mp4",
		Data:        make([]byte, 10_000),
	}
	req.Size = int64(len(req.Data))

	record, err := ing.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, ok := record.Variants[types.VariantMedium]; !ok {
		t.Fatal("Expected surviving medium tier")
	}
	if _, ok := record.Variants[types.VariantHigh]; ok {
		t.Fatal("Failed tier must not appear on the record")
	}
	if record.Processing.Error == "" {
		t.Fatal("Partial tier failure must be noted in processing metadata")
	}
	if qualities := record.AvailableQualities(); len(qualities) != 1 || qualities[0] != types.VariantMedium {
		t.Fatalf("Expected [medium], got %v", qualities)
	}
	if record.Video == nil || record.Video.Duration != 30 {
		t.Fatalf("Expected probed video metadata on the record, got %+v", record.Video)
	}
}

func TestIngestBatch(t *testing.T) {
	store := newFakeObjectStore()
	records := newFakeRecords()
	ing := testIngestor(store, records)

	reqs := []*types.UploadRequest{
		imageRequest(t),
		{FileName: "bad.bin", ContentType: "application/octet-stream", Data: []byte{1}},
	}

	results, err := ing.IngestBatch(context.Background(), reqs)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Record == nil || results[0].Error != nil {
		t.Fatalf("Expected first file to succeed, got %+v", results[0])
	}
	if results[1].Record != nil || results[1].Error == nil || results[1].Error.Code != types.CodeInvalidFileType {
		t.Fatalf("Expected second file rejected with INVALID_FILE_TYPE, got %+v", results[1])
	}
}

func TestIngestBatch_TooManyFiles(t *testing.T) {
	ing := testIngestor(newFakeObjectStore(), newFakeRecords())

	reqs := make([]*types.UploadRequest, 4) // limit is 3 in the test config
	for i := range reqs {
		reqs[i] = imageRequest(t)
	}

	_, err := ing.IngestBatch(context.Background(), reqs)
	ie := types.AsIngestError(err)
	if ie == nil || ie.Code != types.CodeTooManyFiles {
		t.Fatalf("Expected TOO_MANY_FILES, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	store := newFakeObjectStore()
	records := newFakeRecords()
	ing := testIngestor(store, records)

	record, err := ing.Ingest(context.Background(), imageRequest(t))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if err := ing.Delete(context.Background(), record.ID); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if store.count() != 0 {
		t.Fatalf("Expected all objects removed, %d left", store.count())
	}

	// A second delete hits a missing record.
	err = ing.Delete(context.Background(), record.ID)
	ie := types.AsIngestError(err)
	if ie == nil || ie.Code != types.CodeNotFound {
		t.Fatalf("Expected NOT_FOUND on repeat delete, got %v", err)
	}
}

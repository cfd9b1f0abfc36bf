package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7"

	"github.com/reviewhub/media-service/internal/config"
)

func TestUseMultipart(t *testing.T) {
	const threshold = 5 * 1024 * 1024

	tests := []struct {
		name string
		size int64
		want bool
	}{
		{"small object", 1024, false},
		{"exactly at threshold", threshold, false},
		{"one byte over", threshold + 1, true},
		{"large object", 100 * 1024 * 1024, true},
		{"empty object", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := useMultipart(tt.size, threshold); got != tt.want {
				t.Fatalf("useMultipart(%d) = %v, want %v", tt.size, got, tt.want)
			}
		})
	}
}

func TestSplitParts(t *testing.T) {
	const partSize = 5 * 1024 * 1024

	tests := []struct {
		name      string
		total     int64
		wantParts int
		wantLast  int64
	}{
		{"just over one part", partSize + 1, 2, 1},
		{"exact multiple", 3 * partSize, 3, partSize},
		{"uneven split", 2*partSize + 100, 3, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranges := splitParts(tt.total, partSize)
			if len(ranges) != tt.wantParts {
				t.Fatalf("Expected %d parts, got %d", tt.wantParts, len(ranges))
			}

			// Parts must tile the buffer exactly, in order, with no gaps.
			var offset, sum int64
			for i, r := range ranges {
				if r.offset != offset {
					t.Fatalf("Part %d starts at %d, expected %d", i, r.offset, offset)
				}
				if i < len(ranges)-1 && r.size != partSize {
					t.Fatalf("Part %d has size %d, only the last part may be short", i, r.size)
				}
				offset += r.size
				sum += r.size
			}
			if sum != tt.total {
				t.Fatalf("Parts cover %d bytes, expected %d", sum, tt.total)
			}
			if last := ranges[len(ranges)-1].size; last != tt.wantLast {
				t.Fatalf("Last part has size %d, expected %d", last, tt.wantLast)
			}
		})
	}
}

func TestSplitParts_Degenerate(t *testing.T) {
	if got := splitParts(0, 5); got != nil {
		t.Fatalf("Expected nil for empty buffer, got %v", got)
	}
	if got := splitParts(100, 0); got != nil {
		t.Fatalf("Expected nil for zero part size, got %v", got)
	}
}

// fakeMultipartAPI records multipart calls. failPart makes one part upload
// fail; failComplete makes completion fail.
type fakeMultipartAPI struct {
	mu           sync.Mutex
	failPart     int
	failComplete bool

	putParts  []int
	completed []minio.CompletePart
	aborts    int
}

func (f *fakeMultipartAPI) NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error) {
	return "upload-1", nil
}

func (f *fakeMultipartAPI) PutObjectPart(ctx context.Context, bucket, object, uploadID string, partID int, data io.Reader, size int64, opts minio.PutObjectPartOptions) (minio.ObjectPart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if partID == f.failPart {
		return minio.ObjectPart{}, errors.New("connection reset")
	}
	f.putParts = append(f.putParts, partID)
	return minio.ObjectPart{PartNumber: partID, ETag: fmt.Sprintf("etag-%d", partID)}, nil
}

func (f *fakeMultipartAPI) CompleteMultipartUpload(ctx context.Context, bucket, object, uploadID string, parts []minio.CompletePart, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failComplete {
		return minio.UploadInfo{}, errors.New("completion refused")
	}
	f.completed = append([]minio.CompletePart(nil), parts...)
	return minio.UploadInfo{Bucket: bucket, Key: object, ETag: "final"}, nil
}

func (f *fakeMultipartAPI) AbortMultipartUpload(ctx context.Context, bucket, object, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts++
	return nil
}

func multipartTestService(api multipartAPI, workers int) *Service {
	return &Service{
		multipart:  api,
		bucketName: "test-bucket",
		config: &config.Media{
			MultipartThreshold: 1024,
			MultipartWorkers:   workers,
		},
	}
}

func TestPutMultipart_UploadsAllParts(t *testing.T) {
	api := &fakeMultipartAPI{}
	s := multipartTestService(api, 2)

	info, err := s.putMultipart(context.Background(), make([]byte, 4*1024+100), "media/big.bin", "application/octet-stream", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if info.ETag != "final" {
		t.Fatalf("Expected completed upload info, got %+v", info)
	}
	if len(api.putParts) != 5 {
		t.Fatalf("Expected 5 parts uploaded, got %d", len(api.putParts))
	}
	if api.aborts != 0 {
		t.Fatalf("Expected no abort on success, got %d", api.aborts)
	}
	for i, p := range api.completed {
		if p.PartNumber != i+1 {
			t.Fatalf("Completion parts out of order: part %d at index %d", p.PartNumber, i)
		}
	}
}

func TestPutMultipart_PartFailureAborts(t *testing.T) {
	api := &fakeMultipartAPI{failPart: 2}
	s := multipartTestService(api, 2)

	_, err := s.putMultipart(context.Background(), make([]byte, 4*1024), "media/big.bin", "application/octet-stream", nil)
	if err == nil {
		t.Fatal("Expected error when a part fails")
	}
	if api.aborts != 1 {
		t.Fatalf("Expected exactly one abort, got %d", api.aborts)
	}
	if api.completed != nil {
		t.Fatal("Upload must not complete after a part failure")
	}
}

func TestPutMultipart_CompleteFailureAborts(t *testing.T) {
	api := &fakeMultipartAPI{failComplete: true}
	s := multipartTestService(api, 2)

	_, err := s.putMultipart(context.Background(), make([]byte, 3*1024), "media/big.bin", "application/octet-stream", nil)
	if err == nil {
		t.Fatal("Expected error when completion fails")
	}
	if api.aborts != 1 {
		t.Fatalf("Expected exactly one abort, got %d", api.aborts)
	}
}

func TestPutMultipart_ZeroWorkerConfig(t *testing.T) {
	api := &fakeMultipartAPI{}
	s := multipartTestService(api, 0)

	// An unset worker count must not wedge the part uploads.
	if _, err := s.putMultipart(context.Background(), make([]byte, 2*1024), "media/big.bin", "application/octet-stream", nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(api.putParts) != 2 {
		t.Fatalf("Expected 2 parts uploaded, got %d", len(api.putParts))
	}
}

func TestSortCompleteParts(t *testing.T) {
	parts := []minio.CompletePart{
		{PartNumber: 3, ETag: "c"},
		{PartNumber: 1, ETag: "a"},
		{PartNumber: 2, ETag: "b"},
	}
	sortCompleteParts(parts)
	for i, p := range parts {
		if p.PartNumber != i+1 {
			t.Fatalf("Expected part %d at index %d, got %d", i+1, i, p.PartNumber)
		}
	}
}

package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/reviewhub/media-service/internal/config"
	"github.com/reviewhub/media-service/internal/types"
)

// multipartAPI is the slice of the low-level client the multipart path needs.
// *minio.Core satisfies it.
type multipartAPI interface {
	NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error)
	PutObjectPart(ctx context.Context, bucket, object, uploadID string, partID int, data io.Reader, size int64, opts minio.PutObjectPartOptions) (minio.ObjectPart, error)
	CompleteMultipartUpload(ctx context.Context, bucket, object, uploadID string, parts []minio.CompletePart, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	AbortMultipartUpload(ctx context.Context, bucket, object, uploadID string) error
}

// Service moves media buffers in and out of object storage. Transfer picks
// the strategy per buffer: small objects go in a single PUT, large ones
// through the multipart API with concurrent part uploads.
type Service struct {
	core       *minio.Core
	multipart  multipartAPI
	bucketName string
	config     *config.Media
	useSSL     bool
}

// NewService creates a new media service instance
func NewService(cfg *config.Config) (*Service, error) {
	// The Core client exposes the low-level multipart API on top of the
	// regular one.
	core, err := minio.NewCore(cfg.MinIO.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKeyID, cfg.MinIO.SecretAccessKey, ""),
		Secure: cfg.MinIO.UseSSL,
		Region: cfg.MinIO.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	service := &Service{
		core:       core,
		multipart:  core,
		bucketName: cfg.MinIO.BucketName,
		config:     &cfg.Media,
		useSSL:     cfg.MinIO.UseSSL,
	}

	// Ensure bucket exists
	if err := service.ensureBucket(); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return service, nil
}

// ensureBucket creates the bucket if it doesn't exist
func (s *Service) ensureBucket() error {
	ctx := context.Background()

	exists, err := s.core.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		err = s.core.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// Transfer stores a buffer under the given key and returns its confirmed
// location. Buffers at or below the multipart threshold use a single PUT;
// larger ones are split into parts and uploaded concurrently.
func (s *Service) Transfer(ctx context.Context, data []byte, key, contentType string, metadata map[string]string) (types.Location, error) {
	var (
		info minio.UploadInfo
		err  error
	)

	if useMultipart(int64(len(data)), s.config.MultipartThreshold) {
		info, err = s.putMultipart(ctx, data, key, contentType, metadata)
	} else {
		info, err = s.putSingle(ctx, data, key, contentType, metadata)
	}
	if err != nil {
		return types.Location{}, err
	}

	return types.Location{
		Key:       key,
		URL:       s.PublicURL(key),
		ETag:      info.ETag,
		VersionID: info.VersionID,
	}, nil
}

func (s *Service) putSingle(ctx context.Context, data []byte, key, contentType string, metadata map[string]string) (minio.UploadInfo, error) {
	info, err := s.core.Client.PutObject(ctx, s.bucketName, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType:  contentType,
			UserMetadata: metadata,
		})
	if err != nil {
		return minio.UploadInfo{}, fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return info, nil
}

// putMultipart splits the buffer and uploads the parts with a bounded worker
// pool. Any part failure aborts the whole upload so no incomplete parts are
// left behind.
func (s *Service) putMultipart(ctx context.Context, data []byte, key, contentType string, metadata map[string]string) (minio.UploadInfo, error) {
	uploadID, err := s.multipart.NewMultipartUpload(ctx, s.bucketName, key,
		minio.PutObjectOptions{
			ContentType:  contentType,
			UserMetadata: metadata,
		})
	if err != nil {
		return minio.UploadInfo{}, fmt.Errorf("failed to start multipart upload for %s: %w", key, err)
	}

	ranges := splitParts(int64(len(data)), s.config.MultipartThreshold)

	type partResult struct {
		part minio.CompletePart
		err  error
	}

	workers := s.config.MultipartWorkers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	results := make(chan partResult, len(ranges))

	for i, r := range ranges {
		sem <- struct{}{}
		go func(partNumber int, r partRange) {
			defer func() { <-sem }()

			chunk := data[r.offset : r.offset+r.size]
			part, err := s.multipart.PutObjectPart(ctx, s.bucketName, key, uploadID,
				partNumber, bytes.NewReader(chunk), r.size,
				minio.PutObjectPartOptions{})
			if err != nil {
				results <- partResult{err: fmt.Errorf("part %d: %w", partNumber, err)}
				return
			}
			results <- partResult{part: minio.CompletePart{
				PartNumber: part.PartNumber,
				ETag:       part.ETag,
			}}
		}(i+1, r)
	}

	parts := make([]minio.CompletePart, 0, len(ranges))
	var firstErr error
	for range ranges {
		res := <-results
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		parts = append(parts, res.part)
	}

	if firstErr != nil {
		if abortErr := s.multipart.AbortMultipartUpload(ctx, s.bucketName, key, uploadID); abortErr != nil {
			return minio.UploadInfo{}, fmt.Errorf("multipart upload for %s failed (%w) and abort also failed: %v", key, firstErr, abortErr)
		}
		return minio.UploadInfo{}, fmt.Errorf("multipart upload for %s failed: %w", key, firstErr)
	}

	// CompleteMultipartUpload requires parts ordered by part number.
	sortCompleteParts(parts)

	info, err := s.multipart.CompleteMultipartUpload(ctx, s.bucketName, key, uploadID, parts,
		minio.PutObjectOptions{})
	if err != nil {
		if abortErr := s.multipart.AbortMultipartUpload(ctx, s.bucketName, key, uploadID); abortErr != nil {
			return minio.UploadInfo{}, fmt.Errorf("failed to complete multipart upload for %s (%w) and abort also failed: %v", key, err, abortErr)
		}
		return minio.UploadInfo{}, fmt.Errorf("failed to complete multipart upload for %s: %w", key, err)
	}

	return info, nil
}

// Remove deletes an object from storage.
func (s *Service) Remove(ctx context.Context, key string) error {
	return s.core.Client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{})
}

// PublicURL returns the direct URL for accessing an object. In production a
// CDN would usually front this.
func (s *Service) PublicURL(key string) string {
	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}

	endpoint := strings.TrimPrefix(s.core.Client.EndpointURL().String(), scheme+"://")
	return fmt.Sprintf("%s://%s/%s/%s", scheme, endpoint, s.bucketName, key)
}

// PresignedGetURL creates a time-limited download URL for an object.
func (s *Service) PresignedGetURL(ctx context.Context, key string) (string, error) {
	expiry := time.Duration(s.config.PresignedURLTTL) * time.Second
	u, err := s.core.Client.PresignedGetObject(ctx, s.bucketName, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL for %s: %w", key, err)
	}
	return u.String(), nil
}

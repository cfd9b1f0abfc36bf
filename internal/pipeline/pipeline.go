package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reviewhub/media-service/internal/config"
	"github.com/reviewhub/media-service/internal/events"
	"github.com/reviewhub/media-service/internal/storage"
	"github.com/reviewhub/media-service/internal/types"
)

// ObjectStore is the transfer contract the pipeline needs from object
// storage. The implementation decides between single-shot and multipart
// transfer based on buffer size.
type ObjectStore interface {
	Transfer(ctx context.Context, data []byte, key, contentType string, metadata map[string]string) (types.Location, error)
	Remove(ctx context.Context, key string) error
}

// Ingestor runs the full ingestion pipeline for uploads: pre-flight
// validation, lane classification, variant generation, storage transfer and
// record persistence. Derived-variant failures degrade the upload to
// original-only instead of failing it; only pre-flight rejections and a
// failed original transfer surface as errors.
type Ingestor struct {
	cfg       config.Media
	store     ObjectStore
	records   storage.Storage
	publisher events.Publisher
	validator *Validator
	images    *ImageGenerator
	videos    *VideoGenerator
	log       *slog.Logger
}

func NewIngestor(cfg config.Media, store ObjectStore, records storage.Storage, transcoder Transcoder, publisher events.Publisher, log *slog.Logger) *Ingestor {
	return &Ingestor{
		cfg:       cfg,
		store:     store,
		records:   records,
		publisher: publisher,
		validator: NewValidator(cfg),
		images:    NewImageGenerator(cfg),
		videos:    NewVideoGenerator(cfg, transcoder),
		log:       log,
	}
}

// IngestBatch processes up to MaxBatchFiles uploads and returns one result
// per input, in input order. Files are independent: one failing never aborts
// the others. An over-limit batch is rejected as a whole before any file is
// touched.
func (in *Ingestor) IngestBatch(ctx context.Context, reqs []*types.UploadRequest) ([]types.IngestResult, error) {
	if len(reqs) == 0 {
		return nil, types.ErrNoFile()
	}
	if len(reqs) > in.cfg.MaxBatchFiles {
		return nil, types.ErrTooManyFiles(len(reqs), in.cfg.MaxBatchFiles)
	}

	results := make([]types.IngestResult, len(reqs))
	for i, req := range reqs {
		record, err := in.Ingest(ctx, req)
		if err != nil {
			ie := types.AsIngestError(err)
			if ie == nil {
				ie = types.ErrStorageUploadFailed(err)
			}
			results[i] = types.IngestResult{Error: ie}
			continue
		}
		results[i] = types.IngestResult{Record: record}
	}
	return results, nil
}

// Ingest runs one upload through the pipeline and persists its record. The
// record is written exactly once, after every transfer has settled.
func (in *Ingestor) Ingest(ctx context.Context, req *types.UploadRequest) (*types.MediaRecord, error) {
	started := time.Now()

	if len(req.Data) == 0 {
		return nil, types.ErrNoFile()
	}
	if err := in.validator.Check(req.ContentType, int64(len(req.Data))); err != nil {
		return nil, err
	}

	lane := Classify(req.ContentType)
	now := time.Now().UTC()

	// The original is transferred before any processing starts. If even this
	// fails there is nothing to fall back to and the upload is lost.
	originalKey := objectKey(req.FieldName, req.ContentType, types.VariantOriginal, now)
	originalLoc, err := in.store.Transfer(ctx, req.Data, originalKey, req.ContentType, map[string]string{
		"file-name": req.FileName,
		"role":      string(types.VariantOriginal),
	})
	if err != nil {
		in.log.Error("original transfer failed", slog.String("file", req.FileName), slog.Any("error", err))
		return nil, types.ErrStorageUploadFailed(err)
	}

	record := &types.MediaRecord{
		ID:         uuid.New().String(),
		FileName:   req.FileName,
		MimeType:   req.ContentType,
		Size:       int64(len(req.Data)),
		Location:   originalLoc,
		UploaderID: req.UploaderID,
		IsImage:    lane == LaneImage,
		IsVideo:    lane == LaneVideo,
		Variants: map[types.VariantRole]types.Variant{
			types.VariantOriginal: {
				Role:     types.VariantOriginal,
				Location: originalLoc,
				MimeType: req.ContentType,
				Size:     int64(len(req.Data)),
			},
		},
		CreatedAt: now,
	}

	switch lane {
	case LaneImage:
		in.processImage(ctx, req, record, now)
	case LaneVideo:
		in.processVideo(ctx, req, record, now)
	}

	record.Processing.DurationMS = time.Since(started).Milliseconds()
	record.Processing.ProcessedAt = time.Now().UTC()

	if err := in.records.CreateMediaRecord(record); err != nil {
		in.log.Error("record persistence failed", slog.String("media_id", record.ID), slog.Any("error", err))
		return nil, types.ErrStorageUploadFailed(err)
	}

	if in.publisher != nil {
		if err := in.publisher.PublishMediaProcessed(record); err != nil {
			in.log.Warn("processed event not delivered", slog.String("media_id", record.ID), slog.Any("error", err))
		}
	}

	in.log.Info("upload ingested",
		slog.String("media_id", record.ID),
		slog.String("lane", string(lane)),
		slog.Int("variants", len(record.Variants)),
		slog.Bool("degraded", record.Degraded()),
		slog.Int64("duration_ms", record.Processing.DurationMS),
	)

	return record, nil
}

// processImage runs the image lane. Image variants are all-or-nothing: a
// failure in generation or in any variant transfer discards every derived
// variant and degrades the record to original-only.
func (in *Ingestor) processImage(ctx context.Context, req *types.UploadRequest, record *types.MediaRecord, now time.Time) {
	result, err := in.images.Generate(req.Data)
	if err != nil {
		in.degrade(record, err)
		return
	}

	record.Width = result.Width
	record.Height = result.Height

	transferred, failures := in.transferVariants(ctx, req, result.Variants, now)
	if len(failures) > 0 {
		// Consistency over partial renditions: drop whatever did land.
		for _, v := range transferred {
			if err := in.store.Remove(ctx, v.Location.Key); err != nil {
				in.log.Warn("orphaned variant cleanup failed", slog.String("key", v.Location.Key), slog.Any("error", err))
			}
		}
		in.degrade(record, fmt.Errorf("variant transfer failed: %s", strings.Join(failures, "; ")))
		return
	}

	for _, v := range transferred {
		record.Variants[v.Role] = v
	}
	if compressed, ok := record.Variants[types.VariantCompressed]; ok {
		record.Processing.CompressionRatio = compressed.CompressionRatio
	}
}

// processVideo runs the video lane. Tiers degrade independently: the record
// keeps every variant that generated and transferred, and only drops to
// original-only when none survived.
func (in *Ingestor) processVideo(ctx context.Context, req *types.UploadRequest, record *types.MediaRecord, now time.Time) {
	result, err := in.videos.Generate(ctx, req.Data)
	if err != nil {
		in.degrade(record, err)
		return
	}

	record.Video = result.Meta
	notes := append([]string(nil), result.Notes...)

	transferred, failures := in.transferVariants(ctx, req, result.Variants, now)
	notes = append(notes, failures...)

	survived := 0
	for _, v := range transferred {
		record.Variants[v.Role] = v
		if v.Role != types.VariantThumbnail {
			survived++
		}
	}

	if survived == 0 {
		// A thumbnail without any playable rendition is useless; drop it.
		for _, v := range transferred {
			if err := in.store.Remove(ctx, v.Location.Key); err != nil {
				in.log.Warn("orphaned variant cleanup failed", slog.String("key", v.Location.Key), slog.Any("error", err))
			}
		}
		in.degrade(record, fmt.Errorf("no playable variant produced: %s", strings.Join(notes, "; ")))
		return
	}
	if len(notes) > 0 {
		// Partial success still reports what went missing.
		record.Processing.Error = strings.Join(notes, "; ")
	}
}

// transferVariants uploads generated variants with bounded parallelism and
// returns the confirmed ones plus a failure note per variant that did not
// make it.
func (in *Ingestor) transferVariants(ctx context.Context, req *types.UploadRequest, generated []GeneratedVariant, now time.Time) ([]types.Variant, []string) {
	var (
		mu          sync.Mutex
		wg          sync.WaitGroup
		transferred []types.Variant
		failures    []string
	)

	workers := in.cfg.VariantWorkers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	for _, gv := range generated {
		wg.Add(1)
		sem <- struct{}{}
		go func(gv GeneratedVariant) {
			defer wg.Done()
			defer func() { <-sem }()

			key := objectKey(req.FieldName, gv.MimeType, gv.Role, now)
			loc, err := in.store.Transfer(ctx, gv.Data, key, gv.MimeType, map[string]string{
				"file-name": req.FileName,
				"role":      string(gv.Role),
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", gv.Role, err))
				return
			}
			transferred = append(transferred, types.Variant{
				Role:             gv.Role,
				Location:         loc,
				MimeType:         gv.MimeType,
				Size:             int64(len(gv.Data)),
				Width:            gv.Width,
				Height:           gv.Height,
				CompressionRatio: gv.CompressionRatio,
			})
		}(gv)
	}
	wg.Wait()

	return transferred, failures
}

// degrade records the failure on the record and strips it down to the
// original variant. The upload itself still succeeds.
func (in *Ingestor) degrade(record *types.MediaRecord, err error) {
	in.log.Warn("processing degraded to original-only",
		slog.String("file", record.FileName), slog.Any("error", err))

	record.Processing.Error = err.Error()
	record.Variants = map[types.VariantRole]types.Variant{
		types.VariantOriginal: record.Variants[types.VariantOriginal],
	}
	record.Width = 0
	record.Height = 0
	record.Video = nil
	record.Processing.CompressionRatio = 0
}

// Delete removes a record and every stored object it references. Storage
// removals are best effort once the record row is gone.
func (in *Ingestor) Delete(ctx context.Context, id string) error {
	record, err := in.records.GetMediaRecord(id)
	if err != nil {
		if err == storage.ErrRecordNotFound {
			return types.ErrMediaNotFound(id)
		}
		return err
	}

	if err := in.records.DeleteMediaRecord(id); err != nil {
		if err == storage.ErrRecordNotFound {
			return types.ErrMediaNotFound(id)
		}
		return err
	}

	for _, v := range record.Variants {
		if err := in.store.Remove(ctx, v.Location.Key); err != nil {
			in.log.Warn("object removal failed", slog.String("key", v.Location.Key), slog.Any("error", err))
		}
	}

	if in.publisher != nil {
		if err := in.publisher.PublishMediaDeleted(record.ID, record.UploaderID); err != nil {
			in.log.Warn("deleted event not delivered", slog.String("media_id", record.ID), slog.Any("error", err))
		}
	}

	return nil
}

package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/reviewhub/media-service/internal/config"
	"github.com/reviewhub/media-service/internal/http/middleware"
	"github.com/reviewhub/media-service/internal/pipeline"
	"github.com/reviewhub/media-service/internal/storage"
	"github.com/reviewhub/media-service/internal/types"
	"github.com/reviewhub/media-service/internal/utils/response"
)

// MediaView is the read-side representation of a record, with the derived
// display fields resolved server-side so clients never pick variants
// themselves.
type MediaView struct {
	*types.MediaRecord
	MediaURL     string              `json:"media_url"`
	ThumbnailURL string              `json:"thumbnail_url"`
	Qualities    []types.VariantRole `json:"qualities,omitempty"`
	HumanSize    string              `json:"human_size"`
	Degraded     bool                `json:"degraded"`
}

// NewMediaView resolves the derived fields for one record.
func NewMediaView(record *types.MediaRecord) MediaView {
	return MediaView{
		MediaRecord:  record,
		MediaURL:     record.BestMediaURL(),
		ThumbnailURL: record.ThumbnailURL(),
		Qualities:    record.AvailableQualities(),
		HumanSize:    record.HumanSize(),
		Degraded:     record.Degraded(),
	}
}

// UploadResult is one per-file outcome in an upload response.
type UploadResult struct {
	FileName string             `json:"file_name"`
	Media    *MediaView         `json:"media,omitempty"`
	Error    *types.IngestError `json:"error,omitempty"`
}

// Upload handles media file uploads
// @Summary Upload media files
// @Description Upload one or more media files as multipart form data
// @Tags media
// @Accept multipart/form-data
// @Produce json
// @Success 201 {array} UploadResult "Files processed"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 413 {object} response.Response "File too large"
// @Router /media [post]
func Upload(ingestor *pipeline.Ingestor, cfg config.Media) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Cap the request body at the batch worth of maximum files plus
		// form overhead.
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxFileSize*int64(cfg.MaxBatchFiles)+1<<20)

		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				response.WriteError(w, types.ErrFileTooLarge(maxErr.Limit, cfg.MaxFileSize))
				return
			}
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("invalid multipart form")))
			return
		}
		defer r.MultipartForm.RemoveAll()

		uploaderID, _ := middleware.GetUserIDFromContext(r.Context())

		reqs, err := collectUploads(r.MultipartForm, uploaderID)
		if err != nil {
			response.WriteError(w, err)
			return
		}

		results, err := ingestor.IngestBatch(r.Context(), reqs)
		if err != nil {
			response.WriteError(w, err)
			return
		}

		out := make([]UploadResult, len(results))
		failed := 0
		for i, res := range results {
			out[i] = UploadResult{FileName: reqs[i].FileName, Error: res.Error}
			if res.Record != nil {
				view := NewMediaView(res.Record)
				out[i].Media = &view
			} else {
				failed++
			}
		}

		slog.Info("Upload request handled",
			slog.Int("files", len(results)),
			slog.Int("failed", failed),
			slog.String("uploader_id", uploaderID),
		)

		if failed == len(results) {
			// Nothing was stored; answer with the first failure as an error.
			response.WriteError(w, results[0].Error)
			return
		}

		response.WriteJSON(w, http.StatusCreated, response.RequestOK("Files processed", out))
	}
}

// collectUploads reads every file part into memory, preserving the form
// field each file arrived under.
func collectUploads(form *multipart.Form, uploaderID string) ([]*types.UploadRequest, error) {
	var reqs []*types.UploadRequest

	for field, headers := range form.File {
		for _, header := range headers {
			data, err := readPart(header)
			if err != nil {
				return nil, types.ErrStorageUploadFailed(err)
			}
			reqs = append(reqs, &types.UploadRequest{
				FieldName:   field,
				FileName:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Size:        int64(len(data)),
				Data:        data,
				UploaderID:  uploaderID,
			})
		}
	}

	if len(reqs) == 0 {
		return nil, types.ErrNoFile()
	}

	return reqs, nil
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// GetMedia retrieves a media record by ID
// @Summary Get media record
// @Tags media
// @Produce json
// @Param id path string true "Media ID"
// @Success 200 {object} MediaView "Media record retrieved"
// @Failure 404 {object} response.Response "Media not found"
// @Router /media/{id} [get]
func GetMedia(store storage.Storage) http.HandlerFunc {
	validate := validator.New()
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := validate.Var(id, "required,uuid4"); err != nil {
			response.WriteError(w, types.ErrMediaNotFound(id))
			return
		}

		record, err := store.GetMediaRecord(id)
		if err != nil {
			if errors.Is(err, storage.ErrRecordNotFound) {
				response.WriteError(w, types.ErrMediaNotFound(id))
				return
			}
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Media record retrieved", NewMediaView(record)))
	}
}

// GetQualities lists the available video quality tiers for a record
// @Summary Get available qualities
// @Tags media
// @Produce json
// @Param id path string true "Media ID"
// @Success 200 {object} map[string]interface{} "Qualities retrieved"
// @Failure 404 {object} response.Response "Media not found"
// @Router /media/{id}/qualities [get]
func GetQualities(store storage.Storage) http.HandlerFunc {
	validate := validator.New()
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := validate.Var(id, "required,uuid4"); err != nil {
			response.WriteError(w, types.ErrMediaNotFound(id))
			return
		}

		record, err := store.GetMediaRecord(id)
		if err != nil {
			if errors.Is(err, storage.ErrRecordNotFound) {
				response.WriteError(w, types.ErrMediaNotFound(id))
				return
			}
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		resp := map[string]interface{}{
			"id":        record.ID,
			"is_video":  record.IsVideo,
			"qualities": record.AvailableQualities(),
			"media_url": record.BestMediaURL(),
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Qualities retrieved", resp))
	}
}

// URLSigner issues time-limited download URLs for stored objects.
type URLSigner interface {
	PresignedGetURL(ctx context.Context, key string) (string, error)
}

// Download returns a presigned download URL for a record's best variant, or
// for a specific quality tier when requested
// @Summary Get presigned download URL
// @Tags media
// @Produce json
// @Param id path string true "Media ID"
// @Param quality query string false "Variant role (default: best available)"
// @Success 200 {object} map[string]interface{} "Download URL issued"
// @Failure 404 {object} response.Response "Media or quality not found"
// @Router /media/{id}/download [get]
func Download(store storage.Storage, signer URLSigner) http.HandlerFunc {
	validate := validator.New()
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := validate.Var(id, "required,uuid4"); err != nil {
			response.WriteError(w, types.ErrMediaNotFound(id))
			return
		}

		record, err := store.GetMediaRecord(id)
		if err != nil {
			if errors.Is(err, storage.ErrRecordNotFound) {
				response.WriteError(w, types.ErrMediaNotFound(id))
				return
			}
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		variant := record.BestVariant()
		if quality := r.URL.Query().Get("quality"); quality != "" {
			v, ok := record.Variants[types.VariantRole(quality)]
			if !ok {
				response.WriteJSON(w, http.StatusNotFound,
					response.GeneralError(fmt.Errorf("quality %s not available for media %s", quality, id)))
				return
			}
			variant = v
		}

		url, err := signer.PresignedGetURL(r.Context(), variant.Location.Key)
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		resp := map[string]interface{}{
			"id":        record.ID,
			"role":      variant.Role,
			"url":       url,
			"mime_type": variant.MimeType,
			"size":      variant.Size,
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Download URL issued", resp))
	}
}

// ListMedia lists media records, scoped to the authenticated uploader when a
// token is present
// @Summary List media records
// @Tags media
// @Produce json
// @Param limit query int false "Page size (default: 20)"
// @Param offset query int false "Page offset"
// @Success 200 {array} MediaView "Media records retrieved"
// @Router /media [get]
func ListMedia(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parsePositiveInt(r.URL.Query().Get("limit"), 20)
		if limit > 100 {
			limit = 100
		}
		offset := parsePositiveInt(r.URL.Query().Get("offset"), 0)

		var (
			records []*types.MediaRecord
			err     error
		)
		if uploaderID, ok := middleware.GetUserIDFromContext(r.Context()); ok {
			records, err = store.ListMediaByUploader(uploaderID, limit, offset)
		} else {
			records, err = store.ListMedia(limit, offset)
		}
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		views := make([]MediaView, 0, len(records))
		for _, record := range records {
			views = append(views, NewMediaView(record))
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Media records retrieved", views))
	}
}

// DeleteMedia deletes a media record and its stored objects
// @Summary Delete media record
// @Tags media
// @Param id path string true "Media ID"
// @Success 200 {object} response.Response "Media deleted"
// @Failure 404 {object} response.Response "Media not found"
// @Security BearerAuth
// @Router /media/{id} [delete]
func DeleteMedia(ingestor *pipeline.Ingestor) http.HandlerFunc {
	validate := validator.New()
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := validate.Var(id, "required,uuid4"); err != nil {
			response.WriteError(w, types.ErrMediaNotFound(id))
			return
		}

		if err := ingestor.Delete(r.Context(), id); err != nil {
			response.WriteError(w, err)
			return
		}

		slog.Info("Media deleted", slog.String("media_id", id))
		response.WriteJSON(w, http.StatusOK, response.RequestOK("Media deleted", nil))
	}
}

// GetStats returns aggregate media statistics
// @Summary Get media statistics
// @Tags media
// @Produce json
// @Success 200 {object} storage.MediaStats "Statistics retrieved"
// @Router /media/stats [get]
func GetStats(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.GetMediaStats()
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Statistics retrieved", stats))
	}
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

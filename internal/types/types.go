package types

import (
	"time"

	"github.com/dustin/go-humanize"
)

// VariantRole names one rendition of an uploaded file.
type VariantRole string

const (
	VariantOriginal   VariantRole = "original"
	VariantCompressed VariantRole = "compressed"
	VariantThumbnail  VariantRole = "thumbnail"
	VariantHigh       VariantRole = "high"
	VariantMedium     VariantRole = "medium"
	VariantLow        VariantRole = "low"
)

// Location identifies where an object lives in storage. It is only ever
// produced by a confirmed transfer; a failed transfer never yields a partial
// Location.
type Location struct {
	Key       string `json:"key"`
	URL       string `json:"url"`
	ETag      string `json:"etag,omitempty"`
	VersionID string `json:"version_id,omitempty"`
}

// Variant is one stored rendition of a media file, embedded in its owning
// MediaRecord.
type Variant struct {
	Role             VariantRole `json:"role"`
	Location         Location    `json:"location"`
	MimeType         string      `json:"mime_type"`
	Size             int64       `json:"size"`
	Width            int         `json:"width,omitempty"`
	Height           int         `json:"height,omitempty"`
	CompressionRatio float64     `json:"compression_ratio,omitempty"`
}

// VideoMetadata is the technical metadata extracted from a video stream.
type VideoMetadata struct {
	Duration      float64 `json:"duration"`
	FPS           float64 `json:"fps"`
	BitRate       int64   `json:"bit_rate"`
	Container     string  `json:"container"`
	VideoCodec    string  `json:"video_codec"`
	AudioCodec    string  `json:"audio_codec,omitempty"`
	AudioChannels int     `json:"audio_channels,omitempty"`
	SampleRate    int     `json:"sample_rate,omitempty"`
}

// ProcessingMetadata describes how the pipeline run went. Error is non-empty
// when the fallback controller engaged.
type ProcessingMetadata struct {
	CompressionRatio float64   `json:"compression_ratio,omitempty"`
	DurationMS       int64     `json:"duration_ms"`
	ProcessedAt      time.Time `json:"processed_at"`
	Error            string    `json:"error,omitempty"`
}

// MediaRecord is the persisted entity describing an original upload and every
// successfully produced variant. It is written exactly once per upload and
// afterwards read-only except for deletion.
type MediaRecord struct {
	ID         string                  `json:"id"`
	FileName   string                  `json:"file_name"`
	MimeType   string                  `json:"mime_type"`
	Size       int64                   `json:"size"`
	Location   Location                `json:"location"`
	UploaderID string                  `json:"uploader_id,omitempty"`
	IsImage    bool                    `json:"is_image"`
	IsVideo    bool                    `json:"is_video"`
	Width      int                     `json:"width,omitempty"`
	Height     int                     `json:"height,omitempty"`
	Video      *VideoMetadata          `json:"video,omitempty"`
	Variants   map[VariantRole]Variant `json:"variants"`
	Processing ProcessingMetadata      `json:"processing"`
	CreatedAt  time.Time               `json:"created_at"`
}

// Primary-variant precedence per media class. Readers never pick a variant by
// optional-chaining; these lists are the single source of truth.
var (
	imagePriority = []VariantRole{VariantCompressed}
	videoPriority = []VariantRole{VariantMedium, VariantHigh, VariantLow}
	thumbPriority = []VariantRole{VariantThumbnail}
)

// bestVariant walks the priority list and falls back to the original upload.
func (m *MediaRecord) bestVariant(priority []VariantRole) Variant {
	for _, role := range priority {
		if v, ok := m.Variants[role]; ok {
			return v
		}
	}
	if v, ok := m.Variants[VariantOriginal]; ok {
		return v
	}
	return Variant{Role: VariantOriginal, Location: m.Location, MimeType: m.MimeType, Size: m.Size}
}

func (m *MediaRecord) bestURL(priority []VariantRole) string {
	return m.bestVariant(priority).Location.URL
}

// BestVariant returns the preferred rendition for download, using the same
// precedence as BestMediaURL.
func (m *MediaRecord) BestVariant() Variant {
	if m.IsVideo {
		return m.bestVariant(videoPriority)
	}
	if m.IsImage {
		return m.bestVariant(imagePriority)
	}
	return m.bestVariant(nil)
}

// BestMediaURL returns the best available rendition for display: compressed
// before original for images, medium before high before low before original
// for videos.
func (m *MediaRecord) BestMediaURL() string {
	if m.IsVideo {
		return m.bestURL(videoPriority)
	}
	if m.IsImage {
		return m.bestURL(imagePriority)
	}
	return m.Location.URL
}

// ThumbnailURL returns the dedicated thumbnail when one exists, else the
// original upload.
func (m *MediaRecord) ThumbnailURL() string {
	return m.bestURL(thumbPriority)
}

// AvailableQualities lists the video quality tiers present on this record in
// precedence order. Empty for non-video media.
func (m *MediaRecord) AvailableQualities() []VariantRole {
	if !m.IsVideo {
		return nil
	}
	tiers := make([]VariantRole, 0, len(videoPriority))
	for _, role := range videoPriority {
		if _, ok := m.Variants[role]; ok {
			tiers = append(tiers, role)
		}
	}
	return tiers
}

// HumanSize formats the declared size for display.
func (m *MediaRecord) HumanSize() string {
	return humanize.IBytes(uint64(m.Size))
}

// Degraded reports whether the fallback controller engaged for this upload.
func (m *MediaRecord) Degraded() bool {
	return m.Processing.Error != ""
}

// UploadRequest is the ephemeral input to the ingestion pipeline. Declared
// fields come from the client and may misrepresent the actual content.
type UploadRequest struct {
	FieldName   string
	FileName    string
	ContentType string
	Size        int64
	Data        []byte
	UploaderID  string // empty for anonymous uploads
}

// IngestResult is one per-file outcome of a batch ingest. Exactly one of
// Record and Error is set.
type IngestResult struct {
	Record *MediaRecord `json:"record,omitempty"`
	Error  *IngestError `json:"error,omitempty"`
}

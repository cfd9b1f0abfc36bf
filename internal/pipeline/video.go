package pipeline

import (
	"bytes"
	"context"
	"fmt"

	"github.com/disintegration/imaging"

	"github.com/reviewhub/media-service/internal/config"
	"github.com/reviewhub/media-service/internal/types"
)

// TierSpec describes one quality-tier re-encode.
type TierSpec struct {
	Role      types.VariantRole
	MaxHeight int
	CRF       int
}

// DefaultTiers is the quality ladder produced for every video upload.
var DefaultTiers = []TierSpec{
	{Role: types.VariantMedium, MaxHeight: 720, CRF: 28},
	{Role: types.VariantHigh, MaxHeight: 1080, CRF: 23},
}

// Transcoder is the narrow capability contract through which the video
// generator consumes a codec implementation: probe, grab a frame, re-encode.
type Transcoder interface {
	Probe(ctx context.Context, src []byte) (*types.VideoMetadata, error)
	ExtractFrame(ctx context.Context, src []byte, maxSize int) ([]byte, error)
	Transcode(ctx context.Context, src []byte, tier TierSpec) ([]byte, error)
}

// VideoResult is the output of a video generator run. Notes carries
// per-tier failure descriptions for the processing metadata; a run with
// notes but at least one variant is a partial success, not a failure.
type VideoResult struct {
	Meta     *types.VideoMetadata
	Width    int
	Height   int
	Variants []GeneratedVariant
	Notes    []string
}

// VideoGenerator derives a still-frame thumbnail and quality-tier re-encodes
// from a source video buffer. Tiers are generated independently and may fail
// independently; the whole step fails only when every tier fails.
type VideoGenerator struct {
	cfg        config.Media
	transcoder Transcoder
	tiers      []TierSpec
}

func NewVideoGenerator(cfg config.Media, transcoder Transcoder) *VideoGenerator {
	return &VideoGenerator{
		cfg:        cfg,
		transcoder: transcoder,
		tiers:      DefaultTiers,
	}
}

// Generate probes the stream, enforces the intrinsic constraints and produces
// the thumbnail plus quality tiers in memory.
func (g *VideoGenerator) Generate(ctx context.Context, buf []byte) (*VideoResult, error) {
	if int64(len(buf)) > g.cfg.MaxVideoBytes {
		return nil, types.ErrVideoTooLarge(int64(len(buf)), g.cfg.MaxVideoBytes)
	}

	probed, err := g.transcoder.Probe(ctx, buf)
	if err != nil {
		return nil, types.ErrUnsupportedVideoFormat(err)
	}
	maxDuration := g.cfg.MaxVideoDuration.Seconds()
	if probed.Duration > maxDuration {
		return nil, types.ErrVideoDurationTooLong(probed.Duration, maxDuration)
	}

	result := &VideoResult{Meta: probed}

	if thumb, err := g.thumbnail(ctx, buf); err != nil {
		result.Notes = append(result.Notes, fmt.Sprintf("thumbnail: %v", err))
	} else {
		result.Variants = append(result.Variants, *thumb)
	}

	tierFailures := 0
	for _, tier := range g.tiers {
		encoded, err := g.transcoder.Transcode(ctx, buf, tier)
		if err != nil {
			tierFailures++
			result.Notes = append(result.Notes, fmt.Sprintf("tier %s: %v", tier.Role, err))
			continue
		}
		result.Variants = append(result.Variants, GeneratedVariant{
			Role:             tier.Role,
			Data:             encoded,
			MimeType:         "video/mp4",
			Height:           tier.MaxHeight,
			CompressionRatio: compressionRatio(int64(len(buf)), int64(len(encoded))),
		})
	}

	if tierFailures == len(g.tiers) {
		return nil, types.ErrUnsupportedVideoFormat(
			fmt.Errorf("all %d quality tiers failed: %v", len(g.tiers), result.Notes))
	}

	return result, nil
}

// thumbnail extracts a representative frame and center-crops it to the exact
// configured geometry, same as the image lane.
func (g *VideoGenerator) thumbnail(ctx context.Context, buf []byte) (*GeneratedVariant, error) {
	size := g.cfg.ThumbnailSize

	frame, err := g.transcoder.ExtractFrame(ctx, buf, size*2)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode extracted frame: %w", err)
	}
	cropped := imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)
	encoded, err := encodeJPEG(cropped, thumbnailQuality)
	if err != nil {
		return nil, err
	}

	return &GeneratedVariant{
		Role:     types.VariantThumbnail,
		Data:     encoded,
		MimeType: "image/jpeg",
		Width:    size,
		Height:   size,
	}, nil
}

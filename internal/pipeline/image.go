package pipeline

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"

	"github.com/reviewhub/media-service/internal/config"
	"github.com/reviewhub/media-service/internal/types"
)

// GeneratedVariant is an in-memory rendition produced by a generator, before
// any storage transfer has happened.
type GeneratedVariant struct {
	Role             types.VariantRole
	Data             []byte
	MimeType         string
	Width            int
	Height           int
	CompressionRatio float64
}

// ImageResult is the output of a successful image generator run.
type ImageResult struct {
	Width    int
	Height   int
	Variants []GeneratedVariant
}

// ImageGenerator derives a compressed primary variant and a square thumbnail
// from a source image buffer. It performs no storage I/O.
type ImageGenerator struct {
	cfg config.Media
}

func NewImageGenerator(cfg config.Media) *ImageGenerator {
	return &ImageGenerator{cfg: cfg}
}

// Generate decodes the buffer, re-validates the actual content against the
// configured limits (declared metadata can misrepresent real content), and
// produces the compressed and thumbnail variants in memory.
func (g *ImageGenerator) Generate(buf []byte) (*ImageResult, error) {
	if int64(len(buf)) > g.cfg.MaxImageBytes {
		return nil, types.ErrImageTooLarge(int64(len(buf)), g.cfg.MaxImageBytes)
	}

	// Read just the header first so dimension bombs are rejected before the
	// full decode allocates pixel memory.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return nil, types.ErrUnsupportedImageFormat(err)
	}
	if cfg.Width > g.cfg.MaxImagePixels || cfg.Height > g.cfg.MaxImagePixels {
		return nil, types.ErrImageDimensionsTooLarge(cfg.Width, cfg.Height, g.cfg.MaxImagePixels)
	}

	src, err := imaging.Decode(bytes.NewReader(buf), imaging.AutoOrientation(true))
	if err != nil {
		return nil, types.ErrUnsupportedImageFormat(err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	// The compressed rendition is capped at the variant pixel budget;
	// sources within it keep their dimensions.
	compressedImg := src
	compressedWidth, compressedHeight := width, height
	if max := g.cfg.MaxVariantPixels; max > 0 && (width > max || height > max) {
		compressedImg = imaging.Fit(src, max, max, imaging.Lanczos)
		fitted := compressedImg.Bounds()
		compressedWidth, compressedHeight = fitted.Dx(), fitted.Dy()
	}

	compressed, err := encodeJPEG(compressedImg, g.cfg.ImageQuality)
	if err != nil {
		return nil, types.ErrUnsupportedImageFormat(err)
	}

	size := g.cfg.ThumbnailSize
	// Center-crop fill gives an exact size x size output for every source
	// aspect ratio, deterministically.
	thumbImg := imaging.Fill(src, size, size, imaging.Center, imaging.Lanczos)
	thumb, err := encodeJPEG(thumbImg, thumbnailQuality)
	if err != nil {
		return nil, types.ErrUnsupportedImageFormat(err)
	}

	return &ImageResult{
		Width:  width,
		Height: height,
		Variants: []GeneratedVariant{
			{
				Role:             types.VariantCompressed,
				Data:             compressed,
				MimeType:         "image/jpeg",
				Width:            compressedWidth,
				Height:           compressedHeight,
				CompressionRatio: compressionRatio(int64(len(buf)), int64(len(compressed))),
			},
			{
				Role:             types.VariantThumbnail,
				Data:             thumb,
				MimeType:         "image/jpeg",
				Width:            size,
				Height:           size,
				CompressionRatio: compressionRatio(int64(len(buf)), int64(len(thumb))),
			},
		},
	}, nil
}

const thumbnailQuality = 85

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// compressionRatio is (original - derived) / original. Negative when the
// derived buffer came out larger than the source.
func compressionRatio(original, derived int64) float64 {
	if original <= 0 {
		return 0
	}
	return float64(original-derived) / float64(original)
}

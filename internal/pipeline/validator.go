package pipeline

import (
	"github.com/reviewhub/media-service/internal/config"
	"github.com/reviewhub/media-service/internal/types"
)

// Validator is the pre-flight constraint check. It runs on declared metadata
// only, before any buffer reaches a decoder, so hostile or oversized input is
// rejected without spending CPU on it.
type Validator struct {
	maxSize int64
	allowed map[string]struct{}
}

// NewValidator creates a validator from the injected media limits.
func NewValidator(cfg config.Media) *Validator {
	allowed := make(map[string]struct{}, len(cfg.AllowedMimeTypes))
	for _, mt := range cfg.AllowedMimeTypes {
		allowed[mt] = struct{}{}
	}
	return &Validator{
		maxSize: cfg.MaxFileSize,
		allowed: allowed,
	}
}

// Check accepts or rejects an upload based on its declared content type and
// size. Pure predicate, no side effects.
func (v *Validator) Check(contentType string, size int64) error {
	if _, ok := v.allowed[contentType]; !ok {
		return types.ErrInvalidFileType(contentType)
	}
	if size > v.maxSize {
		return types.ErrFileTooLarge(size, v.maxSize)
	}
	return nil
}

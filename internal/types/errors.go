package types

import (
	"fmt"
	"net/http"
)

// Error codes surfaced to the HTTP boundary.
const (
	CodeNoFile                   = "NO_FILE"
	CodeInvalidFileType          = "INVALID_FILE_TYPE"
	CodeFileTooLarge             = "FILE_TOO_LARGE"
	CodeImageTooLarge            = "IMAGE_TOO_LARGE"
	CodeImageDimensionsTooLarge  = "IMAGE_DIMENSIONS_TOO_LARGE"
	CodeUnsupportedImageFormat   = "UNSUPPORTED_IMAGE_FORMAT"
	CodeVideoTooLarge            = "VIDEO_TOO_LARGE"
	CodeVideoDurationTooLong     = "VIDEO_DURATION_TOO_LONG"
	CodeUnsupportedVideoFormat   = "UNSUPPORTED_VIDEO_FORMAT"
	CodeStorageUploadFailed      = "STORAGE_UPLOAD_FAILED"
	CodeTooManyFiles             = "TOO_MANY_FILES"
	CodeNotFound                 = "NOT_FOUND"
)

// IngestError is a pipeline failure with a stable code and the HTTP status
// the boundary should answer with.
type IngestError struct {
	Code    string `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *IngestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

func ErrNoFile() *IngestError {
	return &IngestError{Code: CodeNoFile, Status: http.StatusBadRequest, Message: "no file provided"}
}

func ErrInvalidFileType(contentType string) *IngestError {
	return &IngestError{Code: CodeInvalidFileType, Status: http.StatusBadRequest,
		Message: fmt.Sprintf("content type %q is not allowed", contentType)}
}

func ErrFileTooLarge(size, max int64) *IngestError {
	return &IngestError{Code: CodeFileTooLarge, Status: http.StatusRequestEntityTooLarge,
		Message: fmt.Sprintf("file size %d exceeds the limit of %d bytes", size, max)}
}

func ErrImageTooLarge(size, max int64) *IngestError {
	return &IngestError{Code: CodeImageTooLarge, Status: http.StatusRequestEntityTooLarge,
		Message: fmt.Sprintf("image size %d exceeds the limit of %d bytes", size, max)}
}

func ErrImageDimensionsTooLarge(width, height, max int) *IngestError {
	return &IngestError{Code: CodeImageDimensionsTooLarge, Status: http.StatusBadRequest,
		Message: fmt.Sprintf("image dimensions %dx%d exceed the limit of %dpx", width, height, max)}
}

func ErrUnsupportedImageFormat(err error) *IngestError {
	return &IngestError{Code: CodeUnsupportedImageFormat, Status: http.StatusBadRequest,
		Message: "image could not be decoded", Err: err}
}

func ErrVideoTooLarge(size, max int64) *IngestError {
	return &IngestError{Code: CodeVideoTooLarge, Status: http.StatusRequestEntityTooLarge,
		Message: fmt.Sprintf("video size %d exceeds the limit of %d bytes", size, max)}
}

func ErrVideoDurationTooLong(duration, max float64) *IngestError {
	return &IngestError{Code: CodeVideoDurationTooLong, Status: http.StatusBadRequest,
		Message: fmt.Sprintf("video duration %.1fs exceeds the limit of %.1fs", duration, max)}
}

func ErrUnsupportedVideoFormat(err error) *IngestError {
	return &IngestError{Code: CodeUnsupportedVideoFormat, Status: http.StatusBadRequest,
		Message: "video could not be decoded", Err: err}
}

func ErrStorageUploadFailed(err error) *IngestError {
	return &IngestError{Code: CodeStorageUploadFailed, Status: http.StatusInternalServerError,
		Message: "storage upload failed", Err: err}
}

func ErrTooManyFiles(count, max int) *IngestError {
	return &IngestError{Code: CodeTooManyFiles, Status: http.StatusBadRequest,
		Message: fmt.Sprintf("%d files exceed the batch limit of %d", count, max)}
}

func ErrMediaNotFound(id string) *IngestError {
	return &IngestError{Code: CodeNotFound, Status: http.StatusNotFound,
		Message: fmt.Sprintf("media record %s not found", id)}
}

// AsIngestError returns the typed error when err is one, else nil.
func AsIngestError(err error) *IngestError {
	if ie, ok := err.(*IngestError); ok {
		return ie
	}
	return nil
}

package pipeline

import "strings"

// Lane is the processing path a validated upload is routed through.
type Lane string

const (
	LaneImage       Lane = "image"
	LaneVideo       Lane = "video"
	LanePassthrough Lane = "passthrough"
)

// Classify maps a validated content type to exactly one lane. The mapping is
// total over the allow-list: everything the validator accepted that is not an
// image or a video (documents, for instance) takes the pass-through lane.
func Classify(contentType string) Lane {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return LaneImage
	case strings.HasPrefix(contentType, "video/"):
		return LaneVideo
	default:
		return LanePassthrough
	}
}

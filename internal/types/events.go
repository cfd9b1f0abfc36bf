package types

import "time"

// EventType represents the type of real-time event
type EventType string

const (
	EventMediaProcessed EventType = "media.processed"
	EventMediaDegraded  EventType = "media.degraded"
	EventMediaDeleted   EventType = "media.deleted"
)

// Event represents a real-time event that can be sent over WebSocket
type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// MediaProcessedEvent is sent to the uploader when a pipeline run settles.
type MediaProcessedEvent struct {
	MediaID      string `json:"media_id"`
	FileName     string `json:"file_name"`
	MediaURL     string `json:"media_url"`
	ThumbnailURL string `json:"thumbnail_url"`
	Degraded     bool   `json:"degraded"`
	Error        string `json:"error,omitempty"`
	ProcessedAt  string `json:"processed_at"`
}

// MediaDeletedEvent is sent to the uploader when one of their records is
// removed.
type MediaDeletedEvent struct {
	MediaID   string `json:"media_id"`
	DeletedAt string `json:"deleted_at"`
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, data interface{}) *Event {
	return &Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

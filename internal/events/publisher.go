package events

import (
	"time"

	"github.com/reviewhub/media-service/internal/types"
)

// Publisher interface for publishing events
type Publisher interface {
	PublishMediaProcessed(record *types.MediaRecord) error
	PublishMediaDeleted(mediaID, uploaderID string) error
}

// EventPublisher implements the Publisher interface
type EventPublisher struct {
	hub WebSocketHub
}

// WebSocketHub interface for the WebSocket hub
type WebSocketHub interface {
	BroadcastToUser(userID string, event *types.Event)
	BroadcastToUsers(userIDs []string, event *types.Event)
	IsUserConnected(userID string) bool
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(hub WebSocketHub) *EventPublisher {
	return &EventPublisher{
		hub: hub,
	}
}

// PublishMediaProcessed notifies the uploader that their pipeline run settled,
// whether fully or in degraded mode.
func (p *EventPublisher) PublishMediaProcessed(record *types.MediaRecord) error {
	// Anonymous uploads have nobody to notify.
	if record.UploaderID == "" {
		return nil
	}

	// Only send if the uploader is connected
	if !p.hub.IsUserConnected(record.UploaderID) {
		return nil
	}

	eventData := &types.MediaProcessedEvent{
		MediaID:      record.ID,
		FileName:     record.FileName,
		MediaURL:     record.BestMediaURL(),
		ThumbnailURL: record.ThumbnailURL(),
		Degraded:     record.Degraded(),
		Error:        record.Processing.Error,
		ProcessedAt:  record.Processing.ProcessedAt.UTC().Format(time.RFC3339),
	}

	eventType := types.EventMediaProcessed
	if record.Degraded() {
		eventType = types.EventMediaDegraded
	}

	event := types.NewEvent(eventType, eventData)
	p.hub.BroadcastToUser(record.UploaderID, event)

	return nil
}

// PublishMediaDeleted notifies the uploader that one of their records was
// removed.
func (p *EventPublisher) PublishMediaDeleted(mediaID, uploaderID string) error {
	if uploaderID == "" {
		return nil
	}

	if !p.hub.IsUserConnected(uploaderID) {
		return nil
	}

	eventData := &types.MediaDeletedEvent{
		MediaID:   mediaID,
		DeletedAt: time.Now().UTC().Format(time.RFC3339),
	}

	event := types.NewEvent(types.EventMediaDeleted, eventData)
	p.hub.BroadcastToUser(uploaderID, event)

	return nil
}

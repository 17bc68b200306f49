package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents different types of analysis events
type EventType string

const (
	EventAnalysisRequested EventType = "analysis.requested"
	EventAnalysisCompleted EventType = "analysis.completed"
)

const (
	eventSource  = "forecast-service"
	eventVersion = "1.0"

	StatusTextAnalyzed        = "Analyzed"
	StatusTextProcessingError = "Processing Error"

	// MetadataChannel carries the per-user delivery channel of a notification.
	MetadataChannel = "channel"
)

// NotificationEvent is the envelope for every event the service publishes
type NotificationEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Channel returns the delivery channel stored in the metadata, if any.
func (e *NotificationEvent) Channel() string {
	if e.Metadata == nil {
		return ""
	}
	ch, _ := e.Metadata[MetadataChannel].(string)
	return ch
}

// AnalysisCompletedEvent is sent to the requesting user when a run terminates.
type AnalysisCompletedEvent struct {
	DocumentID uint   `json:"document_id"`
	Status     bool   `json:"status"`
	StatusText string `json:"status_text"`
}

// AnalysisJob asks a worker to run the pipeline for one document.
type AnalysisJob struct {
	JobID            string    `json:"job_id"`
	DocumentID       uint      `json:"document_id"`
	RequestingUserID string    `json:"requesting_user_id"`
	RequestedAt      time.Time `json:"requested_at"`
}

// UserChannel is the notification channel scoped to one user.
func UserChannel(userID string) string {
	return fmt.Sprintf("user_%s", userID)
}

func NewAnalysisCompletedEvent(documentID uint, userID string, success bool) *NotificationEvent {
	text := StatusTextAnalyzed
	if !success {
		text = StatusTextProcessingError
	}
	return &NotificationEvent{
		ID:        GenerateEventID(),
		Type:      EventAnalysisCompleted,
		Timestamp: time.Now(),
		Source:    eventSource,
		Version:   eventVersion,
		Data: AnalysisCompletedEvent{
			DocumentID: documentID,
			Status:     success,
			StatusText: text,
		},
		Metadata: map[string]interface{}{
			MetadataChannel: UserChannel(userID),
		},
	}
}

func NewAnalysisJob(documentID uint, userID string) *AnalysisJob {
	return &AnalysisJob{
		JobID:            uuid.NewString(),
		DocumentID:       documentID,
		RequestingUserID: userID,
		RequestedAt:      time.Now(),
	}
}

// GenerateEventID returns a random event id
func GenerateEventID() string {
	return uuid.NewString()
}

// Package events publishes attempt lifecycle events for downstream
// consumers (gradebooks, notification pipelines, analytics ingestion).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

const (
	EventAttemptStarted   = "attempt.started"
	EventAttemptFinalized = "attempt.finalized"
	EventGradeRecorded    = "grade.recorded"

	eventSource  = "quiz-engine"
	eventVersion = "1.0"
)

// Event is the envelope every published message shares.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// AttemptStartedData accompanies EventAttemptStarted.
type AttemptStartedData struct {
	AttemptID    uint   `json:"attempt_id"`
	AssessmentID uint   `json:"assessment_id"`
	UserID       string `json:"user_id"`
	Questions    int    `json:"questions"`
}

// AttemptFinalizedData accompanies EventAttemptFinalized.
type AttemptFinalizedData struct {
	AttemptID    uint   `json:"attempt_id"`
	AssessmentID uint   `json:"assessment_id"`
	UserID       string `json:"user_id"`
	Status       string `json:"status"`
	Score        string `json:"score"`
	MaxScore     string `json:"max_score"`
	Passed       *bool  `json:"passed"`
}

// GradeRecordedData accompanies EventGradeRecorded.
type GradeRecordedData struct {
	AssessmentID  uint   `json:"assessment_id"`
	UserID        string `json:"user_id"`
	GradingMethod string `json:"grading_method"`
	Grade         string `json:"grade"`
}

// EventPublisher is the outbound port; the Kafka implementation serves
// production and the mock serves tests.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
	Close() error
}

// NewEvent stamps the envelope around data.
func NewEvent(eventType string, data interface{}) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    eventSource,
		Version:   eventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

func marshalEvent(event Event) (*message.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", event.Type, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event_type", event.Type)
	msg.Metadata.Set("event_id", event.ID)
	return msg, nil
}

// ===== MOCK PUBLISHER (tests) =====

// MockEventPublisher records published events in memory.
type MockEventPublisher struct {
	mu     sync.Mutex
	events []Event
	logger *slog.Logger
}

func NewMockEventPublisher(logger *slog.Logger) *MockEventPublisher {
	return &MockEventPublisher{logger: logger}
}

func (m *MockEventPublisher) Publish(_ context.Context, eventType string, data interface{}) error {
	event := NewEvent(eventType, data)
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	m.logger.Debug("mock event published", "type", eventType, "id", event.ID)
	return nil
}

func (m *MockEventPublisher) Close() error { return nil }

func (m *MockEventPublisher) GetPublishedEvents() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MockEventPublisher) ClearEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

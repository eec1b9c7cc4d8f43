package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"clubhouse/internal/domain/notification"
)

// message is the JSON form of an event stored in outbox payloads and published on the bus.
type message struct {
	ID           string            `json:"id"`
	Type         string            `json:"type"`
	TargetUserID string            `json:"targetUserId"`
	FineID       string            `json:"fineId,omitempty"`
	Payload      map[string]string `json:"payload"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// Encode serialises an event for an outbox payload.
func Encode(e notification.Event) (string, error) {
	payload := e.Payload
	if payload == nil {
		payload = map[string]string{}
	}
	b, err := json.Marshal(message{
		ID:           e.ID,
		Type:         e.Type,
		TargetUserID: e.TargetUserID,
		FineID:       e.FineID,
		Payload:      payload,
		CreatedAt:    e.CreatedAt.UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("encode notification: %w", err)
	}
	return string(b), nil
}

// Decode parses an outbox payload back into an event.
func Decode(payload string) (notification.Event, error) {
	var m message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return notification.Event{}, fmt.Errorf("decode notification: %w", err)
	}
	e := notification.Event{
		ID:           m.ID,
		Type:         m.Type,
		TargetUserID: m.TargetUserID,
		FineID:       m.FineID,
		Payload:      m.Payload,
		CreatedAt:    m.CreatedAt,
	}
	if err := e.Validate(); err != nil {
		return notification.Event{}, fmt.Errorf("decode notification: %w", err)
	}
	return e, nil
}

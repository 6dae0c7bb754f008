package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const TaskProcessMessage = "process_normalized_message"

// Envelope is the JSON task record stored in the broker.
type Envelope struct {
	ID         string    `json:"id"`
	Task       string    `json:"task"`
	MessageID  int64     `json:"message_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewEnvelope creates a first-attempt envelope for task.
func NewEnvelope(task string, messageID int64, now time.Time) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Task:       task,
		MessageID:  messageID,
		Attempt:    1,
		EnqueuedAt: now.UTC(),
	}
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses and checks a broker payload.
func DecodeEnvelope(payload []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(payload, &e); err != nil {
		return Envelope{}, fmt.Errorf("malformed task envelope: %w", err)
	}
	if e.Task == "" || e.MessageID <= 0 {
		return Envelope{}, fmt.Errorf("malformed task envelope: task %q message_id %d", e.Task, e.MessageID)
	}
	if e.Attempt < 1 {
		e.Attempt = 1
	}
	return e, nil
}

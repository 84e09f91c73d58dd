package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// TypeIngestionComplete is the asynq task type carrying a completion job.
const TypeIngestionComplete = "ingestion:complete"

// MessageVersion is bumped on incompatible payload changes.
const MessageVersion = 1

var (
	ErrEmptyPayload   = errors.New("empty payload")
	ErrMissingLogID   = errors.New("missing log id")
	ErrInvalidAttempt = errors.New("invalid attempt")
)

// Message is the payload of an ingestion:complete task.
type Message struct {
	LogID      string `json:"logId"`
	Attempt    int    `json:"attempt"`
	RequestID  string `json:"requestId,omitempty"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// TaskID deduplicates deliveries of one attempt: ingestion:<logId>:<attempt>.
func TaskID(logID string, attempt int) string {
	return fmt.Sprintf("ingestion:%s:%d", logID, attempt)
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses and validates a JSON payload.
func DecodeMessage(payload []byte) (Message, error) {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return Message{}, ErrEmptyPayload
	}
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if strings.TrimSpace(msg.LogID) == "" {
		return msg, ErrMissingLogID
	}
	if msg.Attempt < 1 {
		return msg, ErrInvalidAttempt
	}
	return msg, nil
}

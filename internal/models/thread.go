package models

import (
	"time"
)

type ThreadInfo struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Model     string `json:"model"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// RunConfig controls a single workflow run within a thread.
type RunConfig struct {
	ModelID         string
	MaxSteps        int
	RequestInterval time.Duration
}

// AssistantError records a failed run against the assistant message it was
// streaming into. It is surfaced to the UI but never persisted into the
// message content, so it cannot leak back into model context.
type AssistantError struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

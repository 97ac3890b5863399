package models

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

type SliceJob struct {
	ID           uuid.UUID  `json:"id"`
	SessionID    string     `json:"session_id"`
	Status       JobStatus  `json:"status"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	ErrorMessage *string    `json:"error_message"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type StatusUpdate struct {
	JobID     uuid.UUID     `json:"job_id"`
	SessionID string        `json:"session_id"`
	Status    SessionStatus `json:"status"`
	StepName  string        `json:"step_name"`
}

type CompletedEvent struct {
	JobID     uuid.UUID `json:"job_id"`
	SessionID string    `json:"session_id"`
	Clips     int       `json:"clips"`
}

type ErrorEvent struct {
	JobID        uuid.UUID `json:"job_id"`
	SessionID    string    `json:"session_id"`
	ErrorCode    string    `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

package model

import "time"

// RunTrace is per-invocation bookkeeping registered as eino graph local state.
// It is only touched inside state handlers, which eino serializes.
type RunTrace struct {
	UserID string
	Path   []string
	Steps  int
}

// QueryInput is an inbound support request.
type QueryInput struct {
	Query  string `json:"query"`
	UserID string `json:"user_id,omitempty"`
	// Metadata is accepted for compatibility and only logged.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// QueryResult is what a serving layer surfaces for one processed request.
type QueryResult struct {
	ConversationID   string    `json:"conversation_id"`
	UserID           string    `json:"user_id"`
	Query            string    `json:"query"`
	Response         string    `json:"response"`
	Categories       []string  `json:"categories"`
	Satisfactory     bool      `json:"satisfactory"`
	EscalationNeeded bool      `json:"escalation_needed"`
	ProcessingTime   float64   `json:"processing_time"`
	Timestamp        time.Time `json:"timestamp"`
}

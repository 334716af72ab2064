package model

import "maps"

// Role identifies the author of a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the in-request conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ConversationState is the record threaded through the support graph for one
// request. Steps never mutate it in place; they return a Patch that the graph
// merges into a fresh copy.
type ConversationState struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`

	// Categories is set once by classification and is read-only afterwards.
	Categories []string          `json:"categories"`
	Entities   map[string]string `json:"entities"`

	Sentiment *string `json:"sentiment,omitempty"`
	Priority  *string `json:"priority,omitempty"`

	// Response is written at most once per attempt; an empty string counts as unset.
	Response         *string `json:"response,omitempty"`
	EscalationNeeded bool    `json:"escalation_needed"`
	Attempts         int     `json:"attempts"`

	History      []Message `json:"conversation_history"`
	Satisfactory *bool     `json:"satisfactory,omitempty"`

	SimilarPastIssues []HistoricalIssue   `json:"similar_past_issues"`
	KnowledgeEntry    *KnowledgeBaseEntry `json:"knowledge_base_entry,omitempty"`
	MemoryLoaded      bool                `json:"memory_loaded"`
}

// NewConversationState builds the initial state for a fresh inbound request.
func NewConversationState(query, userID string) ConversationState {
	return ConversationState{
		Query:    query,
		UserID:   userID,
		Entities: map[string]string{},
	}
}

// ResponseText returns the current response or "" when unset.
func (s ConversationState) ResponseText() string {
	if s.Response == nil {
		return ""
	}
	return *s.Response
}

// HasResponse reports whether a non-empty response has been written.
func (s ConversationState) HasResponse() bool {
	return s.ResponseText() != ""
}

// IsSatisfactory reports whether validation accepted the response.
func (s ConversationState) IsSatisfactory() bool {
	return s.Satisfactory != nil && *s.Satisfactory
}

// OrderID returns the extracted order identifier, if any.
func (s ConversationState) OrderID() (string, bool) {
	id, ok := s.Entities["order_id"]
	return id, ok && id != ""
}

// Clone returns a deep copy so merged states never share backing arrays.
func (s ConversationState) Clone() ConversationState {
	out := s
	out.Categories = append([]string(nil), s.Categories...)
	out.Entities = maps.Clone(s.Entities)
	if out.Entities == nil {
		out.Entities = map[string]string{}
	}
	out.History = append([]Message(nil), s.History...)
	out.SimilarPastIssues = append([]HistoricalIssue(nil), s.SimilarPastIssues...)
	out.Sentiment = clonePtr(s.Sentiment)
	out.Priority = clonePtr(s.Priority)
	out.Response = clonePtr(s.Response)
	out.Satisfactory = clonePtr(s.Satisfactory)
	if s.KnowledgeEntry != nil {
		kb := s.KnowledgeEntry.Clone()
		out.KnowledgeEntry = &kb
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

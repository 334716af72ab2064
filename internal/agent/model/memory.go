package model

import (
	"maps"
	"time"
)

// ConversationSummary is what the store remembers about one finished request.
type ConversationSummary struct {
	Timestamp  time.Time         `json:"timestamp"`
	Query      string            `json:"query"`
	Categories []string          `json:"categories"`
	Resolved   bool              `json:"resolution"`
	Response   string            `json:"response"`
	Entities   map[string]string `json:"entities"`
}

// Clone returns a deep copy of the summary.
func (c ConversationSummary) Clone() ConversationSummary {
	out := c
	out.Categories = append([]string(nil), c.Categories...)
	out.Entities = maps.Clone(c.Entities)
	return out
}

// HistoricalIssue is a past conversation ranked against the current query.
type HistoricalIssue struct {
	ConversationSummary
	SimilarityScore int `json:"similarity_score"`
}

// UserProfile holds everything learned about one user.
type UserProfile struct {
	UserID            string                `json:"user_id"`
	History           []ConversationSummary `json:"conversation_history"`
	CommonIssues      map[string]int        `json:"common_issues"`
	ResolvedIssues    []ConversationSummary `json:"resolved_issues"`
	LastInteraction   *time.Time            `json:"last_interaction"`
	TotalInteractions int                   `json:"total_interactions"`
}

// Clone returns a deep copy of the profile.
func (p UserProfile) Clone() UserProfile {
	out := p
	out.History = cloneSummaries(p.History)
	out.ResolvedIssues = cloneSummaries(p.ResolvedIssues)
	out.CommonIssues = maps.Clone(p.CommonIssues)
	if out.CommonIssues == nil {
		out.CommonIssues = map[string]int{}
	}
	out.LastInteraction = clonePtr(p.LastInteraction)
	return out
}

func cloneSummaries(in []ConversationSummary) []ConversationSummary {
	if in == nil {
		return []ConversationSummary{}
	}
	out := make([]ConversationSummary, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}

// SuccessfulPattern aggregates resolved conversations sharing a category set
// and a query hash bucket.
type SuccessfulPattern struct {
	Categories          []string  `json:"categories"`
	QueryPatterns       []string  `json:"query_patterns"`
	SuccessfulResponses []string  `json:"successful_responses"`
	Frequency           int       `json:"frequency"`
	LastUsed            time.Time `json:"last_used"`
}

// KnowledgeBaseEntry collects resolutions for one category set.
type KnowledgeBaseEntry struct {
	Categories    []string  `json:"categories"`
	CommonQueries []string  `json:"common_queries"`
	Resolutions   []string  `json:"resolutions"`
	Frequency     int       `json:"frequency"`
	LastUpdated   time.Time `json:"last_updated"`
}

// Clone returns a deep copy of the entry.
func (k KnowledgeBaseEntry) Clone() KnowledgeBaseEntry {
	out := k
	out.Categories = append([]string(nil), k.Categories...)
	out.CommonQueries = append([]string(nil), k.CommonQueries...)
	out.Resolutions = append([]string(nil), k.Resolutions...)
	return out
}

// Stats are the global counters kept in the memory document.
type Stats struct {
	TotalConversations int `json:"total_conversations"`
	ResolvedIssues     int `json:"resolved_issues"`
}

// SystemStats extends Stats with sizes of the learned collections.
type SystemStats struct {
	Stats
	ActiveUsers          int `json:"active_users"`
	MemoryPatterns       int `json:"memory_patterns"`
	KnowledgeBaseEntries int `json:"knowledge_base_entries"`
}

// Feedback is a user rating for a served conversation.
type Feedback struct {
	ID             string    `json:"feedback_id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Rating         int       `json:"rating"`
	Comment        string    `json:"feedback,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// MemoryDocument is the single persisted root of the learning store.
type MemoryDocument struct {
	UserProfiles       map[string]*UserProfile        `json:"user_profiles"`
	SuccessfulPatterns map[string]*SuccessfulPattern  `json:"successful_patterns"`
	KnowledgeBase      map[string]*KnowledgeBaseEntry `json:"knowledge_base"`
	Stats              Stats                          `json:"stats"`
	Feedback           []Feedback                     `json:"feedback,omitempty"`
}

// NewMemoryDocument returns an empty but valid document.
func NewMemoryDocument() *MemoryDocument {
	return &MemoryDocument{
		UserProfiles:       map[string]*UserProfile{},
		SuccessfulPatterns: map[string]*SuccessfulPattern{},
		KnowledgeBase:      map[string]*KnowledgeBaseEntry{},
	}
}

// Normalize fills nil collections left by older or hand-edited documents.
func (d *MemoryDocument) Normalize() {
	if d.UserProfiles == nil {
		d.UserProfiles = map[string]*UserProfile{}
	}
	if d.SuccessfulPatterns == nil {
		d.SuccessfulPatterns = map[string]*SuccessfulPattern{}
	}
	if d.KnowledgeBase == nil {
		d.KnowledgeBase = map[string]*KnowledgeBaseEntry{}
	}
	for id, p := range d.UserProfiles {
		if p == nil {
			delete(d.UserProfiles, id)
			continue
		}
		if p.UserID == "" {
			p.UserID = id
		}
		if p.CommonIssues == nil {
			p.CommonIssues = map[string]int{}
		}
	}
}

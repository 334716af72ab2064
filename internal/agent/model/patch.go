package model

import (
	"fmt"
	"maps"
	"slices"
)

// Patch is the partial update a step returns. Nil fields are absent and leave
// the running state untouched; History entries are appended, never replaced.
type Patch struct {
	Categories       []string
	Entities         map[string]string
	Sentiment        *string
	Priority         *string
	Response         *string
	EscalationNeeded *bool
	Attempts         *int
	History          []Message
	Satisfactory     *bool
	// SimilarPastIssues uses a pointer so a step can set an empty result.
	SimilarPastIssues *[]HistoricalIssue
	KnowledgeEntry    *KnowledgeBaseEntry
	MemoryLoaded      *bool
}

// IsEmpty reports whether the patch carries no fields.
func (p Patch) IsEmpty() bool {
	return p.Categories == nil && p.Entities == nil && p.Sentiment == nil &&
		p.Priority == nil && p.Response == nil && p.EscalationNeeded == nil &&
		p.Attempts == nil && len(p.History) == 0 && p.Satisfactory == nil &&
		p.SimilarPastIssues == nil && p.KnowledgeEntry == nil && p.MemoryLoaded == nil
}

// Check rejects patches that would break the state's write-once fields.
func (p Patch) Check(s ConversationState) error {
	if p.Categories == nil {
		return nil
	}
	if len(p.Categories) == 0 {
		return fmt.Errorf("categories patch is empty")
	}
	if len(s.Categories) > 0 && !slices.Equal(s.Categories, p.Categories) {
		return fmt.Errorf("categories already set to %v", s.Categories)
	}
	return nil
}

// Merge overlays the fields present in p onto a copy of s.
func Merge(s ConversationState, p Patch) ConversationState {
	out := s.Clone()
	if p.Categories != nil {
		out.Categories = append([]string(nil), p.Categories...)
	}
	if p.Entities != nil {
		out.Entities = maps.Clone(p.Entities)
	}
	if p.Sentiment != nil {
		out.Sentiment = clonePtr(p.Sentiment)
	}
	if p.Priority != nil {
		out.Priority = clonePtr(p.Priority)
	}
	if p.Response != nil {
		out.Response = clonePtr(p.Response)
	}
	if p.EscalationNeeded != nil {
		out.EscalationNeeded = *p.EscalationNeeded
	}
	if p.Attempts != nil {
		out.Attempts = *p.Attempts
	}
	if len(p.History) > 0 {
		out.History = append(out.History, p.History...)
	}
	if p.Satisfactory != nil {
		out.Satisfactory = clonePtr(p.Satisfactory)
	}
	if p.SimilarPastIssues != nil {
		out.SimilarPastIssues = append([]HistoricalIssue(nil), (*p.SimilarPastIssues)...)
	}
	if p.KnowledgeEntry != nil {
		kb := p.KnowledgeEntry.Clone()
		out.KnowledgeEntry = &kb
	}
	if p.MemoryLoaded != nil {
		out.MemoryLoaded = *p.MemoryLoaded
	}
	return out
}

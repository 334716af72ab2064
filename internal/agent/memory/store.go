package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/support-router/server/internal/agent/model"
	errx "github.com/support-router/server/internal/core/error"
	logx "github.com/support-router/server/pkg/logger"
)

const (
	// MaxProfileHistory bounds UserProfile.History; oldest entries go first.
	MaxProfileHistory = 50
	// MaxPatternSamples bounds query/response samples per successful pattern.
	MaxPatternSamples = 5
	// MaxKnowledgeSamples bounds queries/resolutions per knowledge base entry.
	MaxKnowledgeSamples = 10
	// MaxFeedback bounds the feedback log kept in the document.
	MaxFeedback = 200
)

// Store is the process-wide learning store. Every mutation holds the write
// lock across mutate, serialize and persist, so concurrent requests never
// lose each other's updates. Reads return copies.
type Store struct {
	mu   sync.RWMutex
	repo model.DocumentRepository
	doc  *model.MemoryDocument
	now  func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open loads the memory document from repo. A missing or corrupt document
// yields an empty store; only repository I/O failures are returned.
func Open(ctx context.Context, repo model.DocumentRepository, opts ...Option) (*Store, error) {
	if repo == nil {
		return nil, errors.New("memory: document repository is nil")
	}
	s := &Store{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	raw, err := repo.Load(ctx)
	switch {
	case errors.Is(err, model.ErrDocumentNotFound):
		logx.Info().Msg("no memory document found, starting with an empty store")
		s.doc = model.NewMemoryDocument()
		return s, nil
	case err != nil:
		logx.Error().Err(err).Msg("failed to load memory document")
		return nil, errx.WrapStore(err)
	}

	doc := model.NewMemoryDocument()
	if err := json.Unmarshal(raw, doc); err != nil {
		logx.Warn().
			Err(errx.WrapStoreCorruption(err)).
			Int("bytes", len(raw)).
			Msg("corrupted memory document, starting fresh")
		s.doc = model.NewMemoryDocument()
		return s, nil
	}
	doc.Normalize()
	s.doc = doc

	logx.Debug().
		Int("profiles", len(doc.UserProfiles)).
		Int("patterns", len(doc.SuccessfulPatterns)).
		Int("knowledge_entries", len(doc.KnowledgeBase)).
		Msg("memory document loaded")
	return s, nil
}

// persistLocked writes the whole document. Callers hold the write lock.
func (s *Store) persistLocked(ctx context.Context) error {
	b, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return errx.WrapStore(err)
	}
	if err := s.repo.Save(ctx, b); err != nil {
		logx.Error().Err(err).Msg("failed to persist memory document")
		return errx.WrapStore(err)
	}
	return nil
}

func (s *Store) profileLocked(userID string) *model.UserProfile {
	p, ok := s.doc.UserProfiles[userID]
	if !ok {
		p = &model.UserProfile{
			UserID:         userID,
			History:        []model.ConversationSummary{},
			CommonIssues:   map[string]int{},
			ResolvedIssues: []model.ConversationSummary{},
		}
		s.doc.UserProfiles[userID] = p
	}
	return p
}

// GetOrCreateProfile returns a copy of the user's profile, creating an empty
// one on first contact. Creation alone is not persisted.
func (s *Store) GetOrCreateProfile(userID string) model.UserProfile {
	s.mu.RLock()
	if p, ok := s.doc.UserProfiles[userID]; ok {
		defer s.mu.RUnlock()
		return p.Clone()
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileLocked(userID).Clone()
}

// Profile returns a copy of an existing profile without creating one.
func (s *Store) Profile(userID string) (model.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.doc.UserProfiles[userID]
	if !ok {
		return model.UserProfile{}, false
	}
	return p.Clone(), true
}

// RecentConversations returns the user's newest conversations, oldest first.
func (s *Store) RecentConversations(userID string, limit int) []model.ConversationSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.doc.UserProfiles[userID]
	if !ok || limit <= 0 {
		return []model.ConversationSummary{}
	}
	recent := keepLast(p.History, limit)
	out := make([]model.ConversationSummary, len(recent))
	for i, c := range recent {
		out[i] = c.Clone()
	}
	return out
}

// SaveConversation records a finished conversation on the user's profile,
// updates global stats and, for resolved conversations, the pattern table.
func (s *Store) SaveConversation(ctx context.Context, userID string, summary model.ConversationSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if summary.Timestamp.IsZero() {
		summary.Timestamp = now
	}
	summary = summary.Clone()
	if summary.Categories == nil {
		summary.Categories = []string{}
	}
	if summary.Entities == nil {
		summary.Entities = map[string]string{}
	}

	p := s.profileLocked(userID)
	p.History = keepLast(append(p.History, summary), MaxProfileHistory)
	ts := summary.Timestamp
	p.LastInteraction = &ts
	p.TotalInteractions++
	for _, c := range summary.Categories {
		p.CommonIssues[c]++
	}

	if summary.Resolved {
		s.addPatternLocked(summary, now)
		p.ResolvedIssues = append(p.ResolvedIssues, summary)
		s.doc.Stats.ResolvedIssues++
	}
	s.doc.Stats.TotalConversations++

	logx.Debug().
		Str("user_id", userID).
		Strs("categories", summary.Categories).
		Bool("resolved", summary.Resolved).
		Int("total_interactions", p.TotalInteractions).
		Msg("conversation saved")

	return s.persistLocked(ctx)
}

// AddSuccessfulPattern records a resolved query/response pair and persists.
func (s *Store) AddSuccessfulPattern(ctx context.Context, summary model.ConversationSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addPatternLocked(summary, s.now())
	return s.persistLocked(ctx)
}

func (s *Store) addPatternLocked(summary model.ConversationSummary, now time.Time) {
	query := strings.ToLower(summary.Query)
	key := PatternKey(summary.Categories, query)

	p, ok := s.doc.SuccessfulPatterns[key]
	if !ok {
		s.doc.SuccessfulPatterns[key] = &model.SuccessfulPattern{
			Categories:          slices.Clone(summary.Categories),
			QueryPatterns:       []string{query},
			SuccessfulResponses: []string{summary.Response},
			Frequency:           1,
			LastUsed:            now,
		}
		return
	}
	p.QueryPatterns = keepLast(append(p.QueryPatterns, query), MaxPatternSamples)
	p.SuccessfulResponses = keepLast(append(p.SuccessfulResponses, summary.Response), MaxPatternSamples)
	p.Frequency++
	p.LastUsed = now
}

// SuccessfulPattern returns a copy of the pattern stored under key.
func (s *Store) SuccessfulPattern(key string) (model.SuccessfulPattern, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.doc.SuccessfulPatterns[key]
	if !ok {
		return model.SuccessfulPattern{}, false
	}
	out := *p
	out.Categories = slices.Clone(p.Categories)
	out.QueryPatterns = slices.Clone(p.QueryPatterns)
	out.SuccessfulResponses = slices.Clone(p.SuccessfulResponses)
	return out, true
}

// FindSimilarPastIssues ranks the user's past conversations against the
// query and categories and returns at most MaxSimilarIssues of them.
func (s *Store) FindSimilarPastIssues(userID, query string, categories []string) []model.HistoricalIssue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.doc.UserProfiles[userID]
	if !ok {
		return []model.HistoricalIssue{}
	}
	return RankSimilar(query, categories, p.History, MaxSimilarIssues)
}

// GetKnowledgeBaseEntry looks up the entry for exactly these categories, then
// falls back to the first entry, in key order, whose key mentions any of them.
func (s *Store) GetKnowledgeBaseEntry(categories []string) (*model.KnowledgeBaseEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.doc.KnowledgeBase[CategoriesKey(categories)]; ok {
		out := e.Clone()
		return &out, true
	}
	for _, key := range slices.Sorted(maps.Keys(s.doc.KnowledgeBase)) {
		for _, c := range categories {
			if c != "" && strings.Contains(key, c) {
				out := s.doc.KnowledgeBase[key].Clone()
				return &out, true
			}
		}
	}
	return nil, false
}

// UpdateKnowledgeBase appends a successful resolution to the category set's entry.
func (s *Store) UpdateKnowledgeBase(ctx context.Context, categories []string, query, resolution string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := CategoriesKey(categories)
	now := s.now()
	e, ok := s.doc.KnowledgeBase[key]
	if !ok {
		sorted := slices.Clone(categories)
		slices.Sort(sorted)
		e = &model.KnowledgeBaseEntry{
			Categories:    sorted,
			CommonQueries: []string{},
			Resolutions:   []string{},
		}
		s.doc.KnowledgeBase[key] = e
	}
	e.CommonQueries = keepLast(append(e.CommonQueries, query), MaxKnowledgeSamples)
	e.Resolutions = keepLast(append(e.Resolutions, resolution), MaxKnowledgeSamples)
	e.Frequency++
	e.LastUpdated = now

	logx.Debug().Str("key", key).Int("frequency", e.Frequency).Msg("knowledge base updated")
	return s.persistLocked(ctx)
}

// GetStats returns the global conversation counters.
func (s *Store) GetStats() model.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Stats
}

// Summary returns the counters plus sizes of the learned collections.
func (s *Store) Summary() model.SystemStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.SystemStats{
		Stats:                s.doc.Stats,
		ActiveUsers:          len(s.doc.UserProfiles),
		MemoryPatterns:       len(s.doc.SuccessfulPatterns),
		KnowledgeBaseEntries: len(s.doc.KnowledgeBase),
	}
}

// RecordFeedback validates and appends a user rating.
func (s *Store) RecordFeedback(ctx context.Context, fb model.Feedback) error {
	if fb.Rating < 1 || fb.Rating > 5 {
		return errx.NewValidation("rating must be between 1 and 5")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if fb.Timestamp.IsZero() {
		fb.Timestamp = s.now()
	}
	s.doc.Feedback = keepLast(append(s.doc.Feedback, fb), MaxFeedback)
	return s.persistLocked(ctx)
}

// TopCommonIssues returns up to n categories from the profile by descending
// count, ties broken by name.
func TopCommonIssues(p model.UserProfile, n int) []string {
	cats := slices.Collect(maps.Keys(p.CommonIssues))
	slices.SortFunc(cats, func(a, b string) int {
		if c := cmp.Compare(p.CommonIssues[b], p.CommonIssues[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if len(cats) > n {
		cats = cats[:n]
	}
	return cats
}

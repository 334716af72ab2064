package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/support-router/server/internal/agent/model"
	errx "github.com/support-router/server/internal/core/error"
)

type queryFunc func(ctx context.Context, in model.QueryInput) (model.QueryResult, error)

func (f queryFunc) Handle(ctx context.Context, in model.QueryInput) (model.QueryResult, error) {
	return f(ctx, in)
}

type fakeMemory struct {
	profiles map[string]model.UserProfile
	feedback []model.Feedback
}

func (m *fakeMemory) Profile(userID string) (model.UserProfile, bool) {
	p, ok := m.profiles[userID]
	return p, ok
}

func (m *fakeMemory) RecentConversations(userID string, limit int) []model.ConversationSummary {
	h := m.profiles[userID].History
	if len(h) > limit {
		h = h[len(h)-limit:]
	}
	if h == nil {
		return []model.ConversationSummary{}
	}
	return h
}

func (m *fakeMemory) Summary() model.SystemStats {
	return model.SystemStats{Stats: model.Stats{TotalConversations: 3, ResolvedIssues: 2}, ActiveUsers: len(m.profiles)}
}

func (m *fakeMemory) RecordFeedback(ctx context.Context, fb model.Feedback) error {
	if fb.Rating < 1 || fb.Rating > 5 {
		return errx.NewValidation("rating must be between 1 and 5")
	}
	m.feedback = append(m.feedback, fb)
	return nil
}

func newTestServer(q queryFunc) (*Server, *fakeMemory) {
	mem := &fakeMemory{profiles: map[string]model.UserProfile{
		"u1": {
			UserID:            "u1",
			TotalInteractions: 3,
			CommonIssues:      map[string]int{"billing": 2},
			History: []model.ConversationSummary{
				{Query: "q1"}, {Query: "q2"}, {Query: "q3"},
			},
		},
	}}
	return New(q, mem, time.Second), mem
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestQuery_OK(t *testing.T) {
	srv, _ := newTestServer(func(ctx context.Context, in model.QueryInput) (model.QueryResult, error) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return model.QueryResult{UserID: in.UserID, Query: in.Query, Response: "ok", Categories: []string{"general"}}, nil
	})

	rec := do(t, srv, http.MethodPost, "/api/v1/support/query", `{"query":"hello","user_id":"u1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res model.QueryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "u1", res.UserID)
	assert.Equal(t, "ok", res.Response)
}

func TestQuery_ValidationErrorIs400(t *testing.T) {
	srv, _ := newTestServer(func(ctx context.Context, in model.QueryInput) (model.QueryResult, error) {
		return model.QueryResult{}, errx.NewValidation("query must not be empty")
	})

	rec := do(t, srv, http.MethodPost, "/api/v1/support/query", `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":true,"message":"query must not be empty","status_code":400}`, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/api/v1/support/query", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuery_InternalErrorHidesDetails(t *testing.T) {
	srv, _ := newTestServer(func(ctx context.Context, in model.QueryInput) (model.QueryResult, error) {
		return model.QueryResult{}, errx.WrapStep("classify", errors.New("secret detail"))
	})

	rec := do(t, srv, http.MethodPost, "/api/v1/support/query", `{"query":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail")
	assert.Contains(t, rec.Body.String(), errx.SystemErrorMessage)
}

func TestHistory(t *testing.T) {
	srv, _ := newTestServer(nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/support/history/u1?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 3, res.TotalConversations)
	require.Len(t, res.RecentConversations, 2)
	assert.Equal(t, "q2", res.RecentConversations[0].Query)
	assert.Equal(t, map[string]int{"billing": 2}, res.CommonIssues)

	rec = do(t, srv, http.MethodGet, "/api/v1/support/history/unknown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"unknown","total_conversations":0,"recent_conversations":[],"common_issues":{}}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/v1/support/history/u1?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStats(t *testing.T) {
	srv, _ := newTestServer(nil)
	rec := do(t, srv, http.MethodGet, "/api/v1/support/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"total_conversations":3,"resolved_issues":2,"active_users":1,"memory_patterns":0,"knowledge_base_entries":0}`,
		rec.Body.String())
}

func TestFeedback(t *testing.T) {
	srv, mem := newTestServer(nil)

	rec := do(t, srv, http.MethodPost, "/api/v1/support/feedback", `{"conversation_id":"c1","user_id":"u1","rating":4,"feedback":"nice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, mem.feedback, 1)
	assert.Equal(t, "nice", mem.feedback[0].Comment)
	assert.True(t, strings.HasPrefix(mem.feedback[0].ID, "fb_"))

	rec = do(t, srv, http.MethodPost, "/api/v1/support/feedback", `{"rating":9}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMethods(t *testing.T) {
	srv, _ := newTestServer(nil)

	rec := do(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = do(t, srv, http.MethodGet, "/api/v1/support/query", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/support-router/server/internal/agent/model"
	errx "github.com/support-router/server/internal/core/error"
	logx "github.com/support-router/server/pkg/logger"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

const defaultHistoryLimit = 10

// QueryHandler processes one support request.
type QueryHandler interface {
	Handle(ctx context.Context, in model.QueryInput) (model.QueryResult, error)
}

// MemoryReader is the read side of the learning store plus feedback writes.
type MemoryReader interface {
	Profile(userID string) (model.UserProfile, bool)
	RecentConversations(userID string, limit int) []model.ConversationSummary
	Summary() model.SystemStats
	RecordFeedback(ctx context.Context, fb model.Feedback) error
}

// Server exposes the support workflow over HTTP.
type Server struct {
	queries        QueryHandler
	memory         MemoryReader
	requestTimeout time.Duration
	mux            *http.ServeMux
}

// New wires the routes.
func New(queries QueryHandler, memory MemoryReader, requestTimeout time.Duration) *Server {
	s := &Server{
		queries:        queries,
		memory:         memory,
		requestTimeout: requestTimeout,
		mux:            http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /api/v1/support/query", s.handleQuery)
	s.mux.HandleFunc("GET /api/v1/support/history/{user_id}", s.handleHistory)
	s.mux.HandleFunc("GET /api/v1/support/stats", s.handleStats)
	s.mux.HandleFunc("POST /api/v1/support/feedback", s.handleFeedback)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type historyResponse struct {
	UserID              string                      `json:"user_id"`
	TotalConversations  int                         `json:"total_conversations"`
	RecentConversations []model.ConversationSummary `json:"recent_conversations"`
	CommonIssues        map[string]int              `json:"common_issues"`
}

type feedbackRequest struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Rating         int    `json:"rating"`
	Feedback       string `json:"feedback,omitempty"`
}

type errorResponse struct {
	Error      bool   `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var in model.QueryInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, errx.NewValidation("invalid JSON body"))
		return
	}

	ctx := r.Context()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	result, err := s.queries.Handle(ctx, in)
	if err != nil {
		logx.Error().Err(err).Str("user_id", in.UserID).Msg("error processing query")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, errx.NewValidation("limit must be a positive integer"))
			return
		}
		limit = n
	}

	resp := historyResponse{
		UserID:              userID,
		RecentConversations: s.memory.RecentConversations(userID, limit),
		CommonIssues:        map[string]int{},
	}
	if p, ok := s.memory.Profile(userID); ok {
		resp.TotalConversations = p.TotalInteractions
		resp.CommonIssues = p.CommonIssues
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.memory.Summary())
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errx.NewValidation("invalid JSON body"))
		return
	}
	fb := model.Feedback{
		ID:             "fb_" + uuid.NewString(),
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		Rating:         req.Rating,
		Comment:        req.Feedback,
	}
	if err := s.memory.RecordFeedback(r.Context(), fb); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":     "Thank you for your feedback!",
		"feedback_id": fb.ID,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := errx.StatusOf(err)
	msg := errx.SystemErrorMessage
	var app *errx.AppError
	if errors.As(err, &app) && app.Kind == errx.KindValidation {
		msg = app.Message
	}
	writeJSON(w, status, errorResponse{Error: true, Message: msg, StatusCode: status})
}

package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"clubhouse/internal/application/orchestrators"
	"clubhouse/internal/domain/fine"
	"clubhouse/internal/domain/outbox"
)

// Reset scopes accepted by the admin reset endpoint.
const (
	resetScopeAll  = "all"
	resetScopeUser = "user"
)

type resetRequest struct {
	Scope  string `json:"scope"`
	UserID string `json:"userId"`
}

type resetResponse struct {
	Scope   string `json:"scope"`
	UserID  string `json:"userId,omitempty"`
	Deleted int    `json:"deleted"`
}

// handleResetFines deletes every fine, or every fine one user received.
func (s *Server) handleResetFines(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decodeOrReject(w, r, &req) {
		return
	}

	deps := orchestrators.ResetFinesDeps{
		FineStore: s.stores.FineStore,
		Outbox:    s.stores.OutboxStore,
		Notifier:  s.notifier,
		Now:       s.now,
	}
	var (
		res orchestrators.ResetResult
		err error
	)
	switch strings.ToLower(strings.TrimSpace(req.Scope)) {
	case resetScopeAll:
		res, err = orchestrators.ExecuteResetAllFines(r.Context(), actor(r), deps)
	case resetScopeUser:
		res, err = orchestrators.ExecuteResetUserFines(r.Context(), actor(r), req.UserID, deps)
	default:
		err = &fine.ValidationError{Field: "scope", Message: "must be all or user"}
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	body := resetResponse{Scope: strings.ToLower(strings.TrimSpace(req.Scope)), Deleted: res.Deleted}
	if body.Scope == resetScopeUser {
		body.UserID = strings.TrimSpace(req.UserID)
	}
	writeJSON(w, http.StatusOK, body)
}

type outboxEntryResponse struct {
	ID              string     `json:"id"`
	ActionType      string     `json:"actionType"`
	RefID           string     `json:"refId,omitempty"`
	Status          string     `json:"status"`
	Attempts        int        `json:"attempts"`
	MaxAttempts     int        `json:"maxAttempts"`
	LastAttemptedAt *time.Time `json:"lastAttemptedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	ExternalID      string     `json:"externalId,omitempty"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
}

func toOutboxResponse(e outbox.Entry) outboxEntryResponse {
	return outboxEntryResponse{
		ID:              e.ID,
		ActionType:      e.ActionType,
		RefID:           e.RefID,
		Status:          e.Status,
		Attempts:        e.Attempts,
		MaxAttempts:     e.MaxAttempts,
		LastAttemptedAt: optionalTime(e.LastAttemptedAt),
		CreatedAt:       e.CreatedAt,
		ExternalID:      e.ExternalID,
		ErrorMessage:    e.ErrorMessage,
	}
}

const (
	defaultOutboxLimit = 50
	maxOutboxLimit     = 100
)

// handleListOutbox lists failed deliveries, or recent deliveries of any status with ?status=all.
func (s *Server) handleListOutbox(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultOutboxLimit
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 && n <= maxOutboxLimit {
		limit = n
	}

	var all bool
	switch strings.ToLower(q.Get("status")) {
	case "", outbox.StatusFailed:
	case "all":
		all = true
	default:
		writeDomainError(w, &fine.ValidationError{Field: "status", Message: "must be failed or all"})
		return
	}

	entries, err := s.processor.ListEntries(r.Context(), all, limit)
	if err != nil {
		internalError(w, err)
		return
	}
	out := make([]outboxEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toOutboxResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// handleRetryOutbox delivers one entry now with a fresh attempt budget.
func (s *Server) handleRetryOutbox(w http.ResponseWriter, r *http.Request) {
	e, err := s.processor.RetryEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutboxResponse(e))
}

// handleAbandonOutbox stops further delivery attempts for one entry.
func (s *Server) handleAbandonOutbox(w http.ResponseWriter, r *http.Request) {
	e, err := s.processor.AbandonEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutboxResponse(e))
}

// handlePerf reports request and query timings for the last ?window (default 15m).
func (s *Server) handlePerf(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		writeError(w, http.StatusNotFound, "performance collection is disabled")
		return
	}
	window := 15 * time.Minute
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeDomainError(w, &fine.ValidationError{Field: "window", Message: "must be a positive duration such as 15m"})
			return
		}
		window = d
	}
	writeJSON(w, http.StatusOK, s.collector.Snapshot(s.now().Add(-window), 10))
}

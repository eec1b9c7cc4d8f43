package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"clubhouse/internal/application/listutil"
	"clubhouse/internal/application/orchestrators"
	"clubhouse/internal/application/projections"
	"clubhouse/internal/domain/export"
	"clubhouse/internal/domain/fine"
)

// fineResponse is the JSON shape of one fine.
type fineResponse struct {
	ID               string     `json:"id"`
	Reason           string     `json:"reason"`
	Amount           string     `json:"amount"`
	CreatorID        string     `json:"creatorId"`
	CreatorName      string     `json:"creatorName,omitempty"`
	ReceiverID       string     `json:"receiverId"`
	ReceiverName     string     `json:"receiverName,omitempty"`
	IsActive         bool       `json:"isActive"`
	IsPaid           bool       `json:"isPaid"`
	PaymentRequested bool       `json:"paymentRequested"`
	WasRejected      bool       `json:"wasRejected"`
	RejectionCount   int        `json:"rejectionCount"`
	Status           string     `json:"status"`
	ExpirationDate   *time.Time `json:"expirationDate"`
	PaidAt           *time.Time `json:"paidAt,omitempty"`
	LastRejectedAt   *time.Time `json:"lastRejectedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	Version          int        `json:"version"`
}

type countsResponse struct {
	Total  int `json:"total"`
	Active int `json:"active"`
	Paid   int `json:"paid"`
}

type listFinesResponse struct {
	Fines      []fineResponse     `json:"fines"`
	Counts     countsResponse     `json:"counts"`
	EmptyState string             `json:"emptyState"`
	Page       listutil.PageInfo  `json:"page"`
	Filter     filterEchoResponse `json:"filter"`
}

type filterEchoResponse struct {
	Status  string `json:"status"`
	Payment string `json:"payment"`
	Search  string `json:"q"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toFineResponse(f fine.Fine, now time.Time) fineResponse {
	return fineResponse{
		ID:               f.ID,
		Reason:           f.Reason,
		Amount:           f.Amount.StringFixed(2),
		CreatorID:        f.CreatorID,
		ReceiverID:       f.ReceiverID,
		IsActive:         f.IsActive,
		IsPaid:           f.IsPaid,
		PaymentRequested: f.PaymentRequested,
		WasRejected:      f.WasRejected(),
		RejectionCount:   f.RejectionCount,
		Status:           string(f.Status(now)),
		ExpirationDate:   optionalTime(f.ExpirationDate),
		PaidAt:           optionalTime(f.PaidAt),
		LastRejectedAt:   optionalTime(f.LastRejectedAt),
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
		Version:          f.Version,
	}
}

func toRowResponse(row projections.FineRow, now time.Time) fineResponse {
	resp := toFineResponse(row.Fine, now)
	resp.ReceiverName = row.ReceiverName
	resp.CreatorName = row.CreatorName
	resp.Status = string(row.Status)
	return resp
}

// parseFineFilter reads status, payment and q from the query string.
func parseFineFilter(r *http.Request) (listutil.ListParams, projections.FineFilter, error) {
	params := listutil.ParseListParams(r.URL.Query(), projections.FineFilterKeys)
	filter, err := projections.ParseFineFilter(params.FilterParams)
	return params, filter, err
}

// handleListFines serves the role-visible, filtered and paginated fine list.
func (s *Server) handleListFines(w http.ResponseWriter, r *http.Request) {
	params, filter, err := parseFineFilter(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	res, err := projections.QueryListFines(r.Context(), actor(r), projections.ListFinesQuery{
		Filter: filter,
		Page:   params.PageParams,
	}, projections.ListFinesDeps{
		FineStore:    s.stores.FineStore,
		AccountStore: s.stores.AccountStore,
		Now:          s.now,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	now := s.now()
	body := listFinesResponse{
		Fines:      make([]fineResponse, 0, len(res.Rows)),
		Counts:     countsResponse{Total: res.Counts.Total, Active: res.Counts.Active, Paid: res.Counts.Paid},
		EmptyState: string(res.EmptyState),
		Page:       res.Page,
		Filter:     filterEchoResponse{Status: filter.Status, Payment: filter.Payment, Search: filter.Search},
	}
	for _, row := range res.Rows {
		body.Fines = append(body.Fines, toRowResponse(row, now))
	}
	writeJSON(w, http.StatusOK, body)
}

// amountField accepts an amount as a JSON number or string and keeps its exact text.
type amountField string

func (a *amountField) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amountField(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("amount must be a number or a numeric string")
	}
	*a = amountField(n.String())
	return nil
}

type createFineRequest struct {
	Reason         string      `json:"reason"`
	Amount         amountField `json:"amount"`
	ReceiverID     string      `json:"receiverId"`
	ExpirationDate string      `json:"expirationDate"`
}

// handleCreateFine issues a new fine.
func (s *Server) handleCreateFine(w http.ResponseWriter, r *http.Request) {
	var req createFineRequest
	if !decodeOrReject(w, r, &req) {
		return
	}

	f, err := orchestrators.ExecuteCreateFine(r.Context(), actor(r), orchestrators.CreateFineInput{
		Reason:         req.Reason,
		Amount:         string(req.Amount),
		ReceiverID:     req.ReceiverID,
		ExpirationDate: req.ExpirationDate,
	}, orchestrators.CreateFineDeps{
		FineStore:    s.stores.FineStore,
		AccountStore: s.stores.AccountStore,
		Notifier:     s.notifier,
		Now:          s.now,
		GenerateID:   s.newID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Location", "/api/fines/"+f.ID)
	writeJSON(w, http.StatusCreated, toFineResponse(f, s.now()))
}

func (s *Server) fineActionDeps() orchestrators.FineActionDeps {
	return orchestrators.FineActionDeps{FineStore: s.stores.FineStore, Notifier: s.notifier, Now: s.now}
}

func (s *Server) handleRequestPayment(w http.ResponseWriter, r *http.Request) {
	f, err := orchestrators.ExecuteRequestPayment(r.Context(), actor(r), chi.URLParam(r, "id"), s.fineActionDeps())
	s.writeFine(w, f, err)
}

func (s *Server) handleApprovePayment(w http.ResponseWriter, r *http.Request) {
	f, err := orchestrators.ExecuteApprovePayment(r.Context(), actor(r), chi.URLParam(r, "id"), s.fineActionDeps())
	s.writeFine(w, f, err)
}

func (s *Server) handleRejectPayment(w http.ResponseWriter, r *http.Request) {
	f, err := orchestrators.ExecuteRejectPayment(r.Context(), actor(r), chi.URLParam(r, "id"), s.fineActionDeps())
	s.writeFine(w, f, err)
}

func (s *Server) writeFine(w http.ResponseWriter, f fine.Fine, err error) {
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFineResponse(f, s.now()))
}

// handleDeleteFine removes a fine the actor issued.
func (s *Server) handleDeleteFine(w http.ResponseWriter, r *http.Request) {
	err := orchestrators.ExecuteDeleteFine(r.Context(), actor(r), chi.URLParam(r, "id"), orchestrators.DeleteFineDeps{
		FineStore: s.stores.FineStore,
		Outbox:    s.stores.OutboxStore,
		Notifier:  s.notifier,
		Now:       s.now,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExportFines streams the filtered fine list as CSV or XLSX.
func (s *Server) handleExportFines(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	_, filter, err := parseFineFilter(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	res, err := projections.QueryExportFines(r.Context(), actor(r), projections.ExportQuery{
		Format: format,
		Filter: filter,
	}, projections.ExportFinesDeps{
		FineStore:       s.stores.FineStore,
		AccountStore:    s.stores.AccountStore,
		Now:             s.now,
		StaffDateLayout: s.cfg.StaffDateLayout,
		AdminDateLayout: s.cfg.AdminDateLayout,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", strings.ReplaceAll(res.Filename, `"`, "")))
	w.Header().Set("X-Export-Rows", fmt.Sprint(res.Rows))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Body)
}

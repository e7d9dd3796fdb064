// Package api exposes HTTP handlers for the report service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"example.com/report/internal/auth"
	"example.com/report/internal/domain"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/reports", h.reports)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) reports(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.submitReport(w, r)
	case http.MethodGet:
		h.listReports(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) submitReport(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeReportsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope reports:write required")
		return
	}

	var req SubmitReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	report, err := h.service.SubmitReport(r.Context(), domain.SubmitReportInput{
		UserID:     claims.UserID,
		ReportType: req.ReportType,
		TargetDate: req.TargetDate,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidReportType) || errors.Is(err, domain.ErrInvalidTargetDate) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	// 202: the report is computed asynchronously; callers poll the list
	// endpoint for completion.
	writeJSON(w, http.StatusAccepted, SubmitReportResponse{
		ReportID: report.ID,
		Status:   string(report.Status),
		Message:  "report generation has been requested and is being processed",
	})
}

func (h *Handler) listReports(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeReportsRead) && !claims.HasScope(auth.ScopeReportsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope reports:read required")
		return
	}

	reports, err := h.service.ListReports(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]ReportView, 0, len(reports))
	for _, report := range reports {
		items = append(items, toReportView(report))
	}
	writeJSON(w, http.StatusOK, ListReportsResponse{Items: items})
}

// SubmitReportRequest is the payload for POST /v1/reports.
type SubmitReportRequest struct {
	ReportType string `json:"report_type"`
	TargetDate string `json:"target_date"`
}

// Validate ensures request correctness.
func (r SubmitReportRequest) Validate() error {
	if strings.TrimSpace(r.ReportType) == "" {
		return errors.New("report_type is required")
	}
	if strings.TrimSpace(r.TargetDate) == "" {
		return errors.New("target_date is required")
	}
	return nil
}

// SubmitReportResponse describes the accepted submission.
type SubmitReportResponse struct {
	ReportID int64  `json:"report_id"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

// ReportView exposes one report request with its result, if any.
type ReportView struct {
	ReportID    int64           `json:"id"`
	ReportType  string          `json:"report_type"`
	TargetDate  string          `json:"target_date"`
	Status      string          `json:"status"`
	Content     json.RawMessage `json:"content,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// ListReportsResponse packages list results.
type ListReportsResponse struct {
	Items []ReportView `json:"items"`
}

func toReportView(report domain.ReportRequest) ReportView {
	return ReportView{
		ReportID:    report.ID,
		ReportType:  string(report.ReportType),
		TargetDate:  report.TargetDate.Format(domain.DateLayout),
		Status:      string(report.Status),
		Content:     report.Content,
		CreatedAt:   report.CreatedAt,
		CompletedAt: report.CompletedAt,
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Package domain defines the business logic for the report service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidReportType is returned for unknown report type values.
	ErrInvalidReportType = errors.New("report_type must be daily or weekly")
	// ErrInvalidTargetDate is returned when the target date does not parse.
	ErrInvalidTargetDate = errors.New("target_date must be a YYYY-MM-DD date")
	// ErrMalformedJob indicates a queue message that cannot be processed.
	ErrMalformedJob = errors.New("malformed report job payload")
	// ErrReportNotFound is returned when a report id does not exist.
	ErrReportNotFound = errors.New("report not found")
)

// ReportRepository captures the persistence operations the service needs.
type ReportRepository interface {
	// CreateReport inserts the request with status PENDING and records the
	// job snapshot in the outbox within the same transaction. The assigned
	// id is written back to the aggregate.
	CreateReport(ctx context.Context, report *ReportRequest) error
	ListReportsByUser(ctx context.Context, userID int64) ([]ReportRequest, error)
}

// Service orchestrates report request workflows.
type Service struct {
	repo ReportRepository
}

// NewService constructs a Service.
func NewService(repo ReportRepository) *Service {
	return &Service{repo: repo}
}

// SubmitReportInput captures the payload from the API layer.
type SubmitReportInput struct {
	UserID     int64
	ReportType string
	TargetDate string
}

// SubmitReport validates the request and records it with status PENDING.
// The actual computation happens asynchronously once the outbox relay hands
// the job to the queue; callers get the id back immediately.
func (s *Service) SubmitReport(ctx context.Context, input SubmitReportInput) (*ReportRequest, error) {
	reportType := ReportType(input.ReportType)
	if !reportType.Valid() {
		return nil, ErrInvalidReportType
	}

	targetDate, err := time.Parse(DateLayout, input.TargetDate)
	if err != nil {
		return nil, ErrInvalidTargetDate
	}

	report := ReportRequest{
		UserID:     input.UserID,
		ReportType: reportType,
		TargetDate: targetDate,
		Status:     ReportStatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.CreateReport(ctx, &report); err != nil {
		return nil, fmt.Errorf("create report request: %w", err)
	}

	return &report, nil
}

// ListReports returns the user's report requests ordered by target date
// descending.
func (s *Service) ListReports(ctx context.Context, userID int64) ([]ReportRequest, error) {
	return s.repo.ListReportsByUser(ctx, userID)
}

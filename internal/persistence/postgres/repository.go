// Package postgres provides pgx-backed persistence for report requests,
// their outbox rows, and the activity read model.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"example.com/report/internal/domain"
	"example.com/report/internal/observability"
)

// Repository provides Postgres-backed persistence for the report pipeline.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateReport inserts the request with status PENDING and records its job
// snapshot in the outbox inside a single transaction, so a committed request
// always has a deliverable job.
func (r *Repository) CreateReport(ctx context.Context, report *domain.ReportRequest) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	// No-op once the tx committed.
	defer tx.Rollback(ctx)

	const insertReport = `INSERT INTO reports (user_id, report_type, target_date, status, created_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING report_id`

	err = tx.QueryRow(ctx, insertReport,
		report.UserID,
		report.ReportType,
		report.TargetDate,
		report.Status,
		report.CreatedAt,
	).Scan(&report.ID)
	if err != nil {
		return err
	}

	job := domain.ReportJob{
		ReportID:   report.ID,
		UserID:     report.UserID,
		ReportType: string(report.ReportType),
		TargetDate: report.TargetDate.Format(domain.DateLayout),
	}
	payload, err := job.Encode()
	if err != nil {
		return err
	}

	const insertOutbox = `INSERT INTO report_outbox (report_id, payload) VALUES ($1,$2)`
	if _, err = tx.Exec(ctx, insertOutbox, report.ID, payload); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return err
	}
	observability.RecordReportRequested(report.CreatedAt)
	return nil
}

// CompleteReport records the computed content and flips the request to
// COMPLETED. The status guard makes redeliveries idempotent: only the first
// terminal write changes the row. It returns the status observed after the
// attempt so callers can distinguish a win from a replay.
func (r *Repository) CompleteReport(ctx context.Context, reportID int64, content json.RawMessage, completedAt time.Time) (domain.ReportStatus, error) {
	const update = `UPDATE reports
           SET content = $2, status = $3, completed_at = $4
         WHERE report_id = $1 AND status = $5`

	tag, err := r.pool.Exec(ctx, update, reportID, content, domain.ReportStatusCompleted, completedAt, domain.ReportStatusPending)
	if err != nil {
		return "", err
	}
	if tag.RowsAffected() > 0 {
		observability.RecordReportCompleted(completedAt)
		return domain.ReportStatusCompleted, nil
	}
	return r.reportStatus(ctx, reportID)
}

// FailReport marks the request FAILED once its retry budget is exhausted.
// Like CompleteReport it only wins over a still-PENDING row.
func (r *Repository) FailReport(ctx context.Context, reportID int64, failedAt time.Time) (domain.ReportStatus, error) {
	const update = `UPDATE reports
           SET status = $2, completed_at = $3
         WHERE report_id = $1 AND status = $4`

	tag, err := r.pool.Exec(ctx, update, reportID, domain.ReportStatusFailed, failedAt, domain.ReportStatusPending)
	if err != nil {
		return "", err
	}
	if tag.RowsAffected() > 0 {
		return domain.ReportStatusFailed, nil
	}
	return r.reportStatus(ctx, reportID)
}

func (r *Repository) reportStatus(ctx context.Context, reportID int64) (domain.ReportStatus, error) {
	var status domain.ReportStatus
	err := r.pool.QueryRow(ctx, `SELECT status FROM reports WHERE report_id = $1`, reportID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrReportNotFound
		}
		return "", err
	}
	return status, nil
}

// ListReportsByUser returns all report requests for a user ordered by
// target date descending.
func (r *Repository) ListReportsByUser(ctx context.Context, userID int64) ([]domain.ReportRequest, error) {
	const query = `SELECT report_id, user_id, report_type, target_date, status, content, created_at, completed_at
          FROM reports
         WHERE user_id = $1
         ORDER BY target_date DESC, report_id DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]domain.ReportRequest, 0)
	for rows.Next() {
		var report domain.ReportRequest
		if err := rows.Scan(&report.ID, &report.UserID, &report.ReportType, &report.TargetDate, &report.Status, &report.Content, &report.CreatedAt, &report.CompletedAt); err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// ListActivitiesForDay fetches the aggregation inputs for one user over the
// half-open UTC day window. Distances come back as text so decimal values
// survive the trip without float conversion.
func (r *Repository) ListActivitiesForDay(ctx context.Context, userID int64, targetDate time.Time) ([]domain.Activity, error) {
	start, end := domain.DayWindow(targetDate)

	const query = `SELECT user_id, occurred_at, distance_km::text, duration_seconds
          FROM activities
         WHERE user_id = $1 AND occurred_at >= $2 AND occurred_at < $3
         ORDER BY occurred_at`

	rows, err := r.pool.Query(ctx, query, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := make([]domain.Activity, 0)
	for rows.Next() {
		var (
			activity domain.Activity
			distance string
		)
		if err := rows.Scan(&activity.UserID, &activity.OccurredAt, &distance, &activity.DurationSeconds); err != nil {
			return nil, err
		}
		activity.DistanceKm, err = decimal.NewFromString(distance)
		if err != nil {
			return nil, fmt.Errorf("parse distance_km for user %d: %w", userID, err)
		}
		activities = append(activities, activity)
	}
	return activities, rows.Err()
}

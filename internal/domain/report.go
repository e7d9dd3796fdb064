package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ReportType enumerates the supported report granularities.
type ReportType string

const (
	ReportTypeDaily  ReportType = "daily"
	ReportTypeWeekly ReportType = "weekly"
)

// Valid reports whether the type is a known enum value.
func (t ReportType) Valid() bool {
	return t == ReportTypeDaily || t == ReportTypeWeekly
}

// ReportStatus represents the processing status of a report request.
type ReportStatus string

const (
	ReportStatusPending   ReportStatus = "PENDING"
	ReportStatusCompleted ReportStatus = "COMPLETED"
	ReportStatusFailed    ReportStatus = "FAILED"
)

// ReportRequest is the aggregate stored in Postgres. Status moves from
// PENDING to exactly one of COMPLETED or FAILED; content and completed_at
// are written only at that terminal transition.
type ReportRequest struct {
	ID          int64
	UserID      int64
	ReportType  ReportType
	TargetDate  time.Time // calendar date, midnight UTC
	Status      ReportStatus
	Content     json.RawMessage // nil until COMPLETED
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Activity is the read-side view of a logged exercise record used as
// aggregation input.
type Activity struct {
	UserID          int64
	OccurredAt      time.Time
	DistanceKm      decimal.Decimal
	DurationSeconds int64
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// ReportJob is the queue message snapshot taken at enqueue time. The worker
// processes it without re-reading the request row.
type ReportJob struct {
	ReportID   int64  `json:"report_id"`
	UserID     int64  `json:"user_id"`
	ReportType string `json:"report_type"`
	TargetDate string `json:"target_date"`
}

// Encode serialises the job for the queue.
func (j ReportJob) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// DecodeReportJob parses a queue message body and validates the fields the
// worker depends on.
func DecodeReportJob(body []byte) (ReportJob, error) {
	var job ReportJob
	if err := json.Unmarshal(body, &job); err != nil {
		return ReportJob{}, err
	}
	if job.ReportID <= 0 {
		return ReportJob{}, ErrMalformedJob
	}
	if job.UserID <= 0 {
		return ReportJob{}, ErrMalformedJob
	}
	if _, err := time.Parse(DateLayout, job.TargetDate); err != nil {
		return ReportJob{}, ErrMalformedJob
	}
	return job, nil
}

// TargetDay returns the parsed target date at midnight UTC.
func (j ReportJob) TargetDay() time.Time {
	day, _ := time.Parse(DateLayout, j.TargetDate)
	return day
}

// ReportContent is the computed result payload persisted on COMPLETED.
// Distance and duration are omitted entirely on a zero-activity day.
type ReportContent struct {
	Date                 string      `json:"date"`
	TotalActivities      int         `json:"total_activities"`
	TotalDistanceKm      json.Number `json:"total_distance_km,omitempty"`
	TotalDurationSeconds int64       `json:"total_duration_seconds,omitempty"`
	Message              string      `json:"message,omitempty"`
}

// ComputeReportContent aggregates a day's activities. Distances are summed
// with decimal arithmetic so repeated runs yield byte-identical content.
func ComputeReportContent(targetDate time.Time, activities []Activity) ReportContent {
	date := targetDate.Format(DateLayout)

	if len(activities) == 0 {
		return ReportContent{
			Date:            date,
			TotalActivities: 0,
			Message:         "no activity on this date",
		}
	}

	totalDistance := decimal.Zero
	var totalDuration int64
	for _, activity := range activities {
		totalDistance = totalDistance.Add(activity.DistanceKm)
		totalDuration += activity.DurationSeconds
	}

	return ReportContent{
		Date:                 date,
		TotalActivities:      len(activities),
		TotalDistanceKm:      json.Number(totalDistance.String()),
		TotalDurationSeconds: totalDuration,
	}
}

// DayWindow returns the half-open UTC interval covering the calendar day.
func DayWindow(targetDate time.Time) (time.Time, time.Time) {
	start := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

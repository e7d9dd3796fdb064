package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"example.com/report/internal/domain"
	"example.com/report/internal/queue"
)

func testLogger(t *testing.T) *log.Logger {
	return log.New(testWriter{t}, "", 0)
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}

// fakeReports mimics the status guard of the Postgres store: only the first
// terminal write changes the row, replays observe the existing status.
type fakeReports struct {
	statuses    map[int64]domain.ReportStatus
	contents    map[int64]json.RawMessage
	writes      int
	completeErr error
	events      *[]string
}

func newFakeReports() *fakeReports {
	return &fakeReports{
		statuses: make(map[int64]domain.ReportStatus),
		contents: make(map[int64]json.RawMessage),
	}
}

func (f *fakeReports) CompleteReport(_ context.Context, reportID int64, content json.RawMessage, _ time.Time) (domain.ReportStatus, error) {
	if f.completeErr != nil {
		return "", f.completeErr
	}
	if f.events != nil {
		*f.events = append(*f.events, "persist")
	}
	if status, ok := f.statuses[reportID]; ok && status != domain.ReportStatusPending {
		return status, nil
	}
	f.statuses[reportID] = domain.ReportStatusCompleted
	f.contents[reportID] = append(json.RawMessage(nil), content...)
	f.writes++
	return domain.ReportStatusCompleted, nil
}

func (f *fakeReports) FailReport(_ context.Context, reportID int64, _ time.Time) (domain.ReportStatus, error) {
	if status, ok := f.statuses[reportID]; ok && status != domain.ReportStatusPending {
		return status, nil
	}
	f.statuses[reportID] = domain.ReportStatusFailed
	f.writes++
	return domain.ReportStatusFailed, nil
}

type fakeActivities struct {
	byUser map[int64][]domain.Activity
	err    error
}

func (f *fakeActivities) ListActivitiesForDay(_ context.Context, userID int64, _ time.Time) ([]domain.Activity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byUser[userID], nil
}

func encodeJob(t *testing.T, job domain.ReportJob) []byte {
	t.Helper()
	body, err := job.Encode()
	require.NoError(t, err)
	return body
}

func TestWorkerCompletesJobAndAcknowledges(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue(time.Minute)
	reports := newFakeReports()
	activities := &fakeActivities{byUser: map[int64][]domain.Activity{
		3: {
			{UserID: 3, DistanceKm: decimal.RequireFromString("1.00"), DurationSeconds: 300},
			{UserID: 3, DistanceKm: decimal.RequireFromString("2.50"), DurationSeconds: 600},
			{UserID: 3, DistanceKm: decimal.RequireFromString("3.25"), DurationSeconds: 450},
		},
	}}

	require.NoError(t, q.Send(ctx, encodeJob(t, domain.ReportJob{ReportID: 12, UserID: 3, ReportType: "daily", TargetDate: "2025-06-01"})))

	w := New(q, reports, activities, Config{BatchSize: 5, WaitTime: time.Millisecond}, WithLogger(testLogger(t)))
	require.NoError(t, w.ProcessBatch(ctx))

	require.Equal(t, domain.ReportStatusCompleted, reports.statuses[12])
	require.JSONEq(t,
		`{"date":"2025-06-01","total_activities":3,"total_distance_km":6.75,"total_duration_seconds":1350}`,
		string(reports.contents[12]))
	require.Zero(t, q.Size(), "message must be deleted after the terminal write")
}

func TestWorkerDeletesOnlyAfterPersist(t *testing.T) {
	ctx := context.Background()
	events := make([]string, 0, 2)

	reports := newFakeReports()
	reports.events = &events

	q := &recordingQueue{events: &events}
	q.deliveries = []queue.Delivery{{
		Body:          encodeJob(t, domain.ReportJob{ReportID: 1, UserID: 1, ReportType: "daily", TargetDate: "2025-06-01"}),
		ReceiptHandle: "r-1",
		DeliveryCount: 1,
	}}

	w := New(q, reports, &fakeActivities{}, Config{BatchSize: 5, WaitTime: time.Millisecond}, WithLogger(testLogger(t)))
	require.NoError(t, w.ProcessBatch(ctx))

	require.Equal(t, []string{"persist", "delete"}, events)
}

func TestWorkerIsolatesMalformedMessages(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue(time.Minute)
	reports := newFakeReports()
	activities := &fakeActivities{}

	require.NoError(t, q.Send(ctx, []byte("definitely-not-json")))
	for id := int64(1); id <= 4; id++ {
		require.NoError(t, q.Send(ctx, encodeJob(t, domain.ReportJob{ReportID: id, UserID: id, ReportType: "daily", TargetDate: "2025-06-01"})))
	}

	w := New(q, reports, activities, Config{BatchSize: 5, WaitTime: time.Millisecond}, WithLogger(testLogger(t)))
	require.NoError(t, w.ProcessBatch(ctx))

	for id := int64(1); id <= 4; id++ {
		require.Equal(t, domain.ReportStatusCompleted, reports.statuses[id])
	}
	require.Equal(t, 1, q.Size(), "malformed message stays queued for redelivery")
}

func TestWorkerIdempotentOnRedelivery(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue(time.Minute)
	reports := newFakeReports()
	activities := &fakeActivities{byUser: map[int64][]domain.Activity{
		5: {{UserID: 5, DistanceKm: decimal.RequireFromString("4.20"), DurationSeconds: 1200}},
	}}

	require.NoError(t, q.Send(ctx, encodeJob(t, domain.ReportJob{ReportID: 9, UserID: 5, ReportType: "daily", TargetDate: "2025-06-01"})))

	w := New(q, reports, activities, Config{BatchSize: 1, WaitTime: time.Millisecond}, WithLogger(testLogger(t)))

	// First delivery completes the report but the ack is lost: simulate by
	// re-sending the identical snapshot, as lease expiry would.
	require.NoError(t, w.ProcessBatch(ctx))
	firstContent := append(json.RawMessage(nil), reports.contents[9]...)

	require.NoError(t, q.Send(ctx, encodeJob(t, domain.ReportJob{ReportID: 9, UserID: 5, ReportType: "daily", TargetDate: "2025-06-01"})))
	require.NoError(t, w.ProcessBatch(ctx))

	require.Equal(t, domain.ReportStatusCompleted, reports.statuses[9])
	require.Equal(t, 1, reports.writes, "terminal write happens exactly once")
	require.JSONEq(t, string(firstContent), string(reports.contents[9]))
	require.Zero(t, q.Size(), "duplicate delivery is acknowledged too")
}

func TestWorkerLeavesMessageOnPersistFailure(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue(time.Minute)
	reports := newFakeReports()
	reports.completeErr = errors.New("postgres unavailable")

	require.NoError(t, q.Send(ctx, encodeJob(t, domain.ReportJob{ReportID: 2, UserID: 2, ReportType: "daily", TargetDate: "2025-06-01"})))

	w := New(q, reports, &fakeActivities{}, Config{BatchSize: 1, WaitTime: time.Millisecond}, WithLogger(testLogger(t)))
	require.NoError(t, w.ProcessBatch(ctx))

	require.Equal(t, 1, q.Size(), "message must remain for redelivery")
	require.Zero(t, reports.writes)
}

func TestWorkerDeadLettersAfterDeliveryBudget(t *testing.T) {
	ctx := context.Background()
	events := make([]string, 0, 1)
	reports := newFakeReports()

	q := &recordingQueue{events: &events}
	q.deliveries = []queue.Delivery{{
		Body:          encodeJob(t, domain.ReportJob{ReportID: 4, UserID: 4, ReportType: "daily", TargetDate: "2025-06-01"}),
		ReceiptHandle: "r-4",
		DeliveryCount: 6,
	}}

	w := New(q, reports, &fakeActivities{}, Config{BatchSize: 5, WaitTime: time.Millisecond, MaxDeliveries: 5}, WithLogger(testLogger(t)))
	require.NoError(t, w.ProcessBatch(ctx))

	require.Equal(t, domain.ReportStatusFailed, reports.statuses[4])
	require.Equal(t, []string{"delete"}, events)
}

// recordingQueue hands out a fixed batch once and records deletes.
type recordingQueue struct {
	deliveries []queue.Delivery
	served     bool
	deleted    []string
	events     *[]string
}

func (q *recordingQueue) Send(context.Context, []byte) error { return nil }

func (q *recordingQueue) Receive(context.Context, int, time.Duration) ([]queue.Delivery, error) {
	if q.served {
		return nil, nil
	}
	q.served = true
	return q.deliveries, nil
}

func (q *recordingQueue) Delete(_ context.Context, receiptHandle string) error {
	q.deleted = append(q.deleted, receiptHandle)
	if q.events != nil {
		*q.events = append(*q.events, "delete")
	}
	return nil
}

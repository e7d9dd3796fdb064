package domain

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func day(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(DateLayout, value)
	require.NoError(t, err)
	return parsed
}

func TestComputeReportContentSumsWithDecimals(t *testing.T) {
	target := day(t, "2025-06-01")
	activities := []Activity{
		{UserID: 7, OccurredAt: target.Add(8 * time.Hour), DistanceKm: decimal.RequireFromString("1.00"), DurationSeconds: 300},
		{UserID: 7, OccurredAt: target.Add(12 * time.Hour), DistanceKm: decimal.RequireFromString("2.50"), DurationSeconds: 600},
		{UserID: 7, OccurredAt: target.Add(18 * time.Hour), DistanceKm: decimal.RequireFromString("3.25"), DurationSeconds: 450},
	}

	content := ComputeReportContent(target, activities)

	require.Equal(t, "2025-06-01", content.Date)
	require.Equal(t, 3, content.TotalActivities)
	require.Equal(t, json.Number("6.75"), content.TotalDistanceKm)
	require.Equal(t, int64(1350), content.TotalDurationSeconds)
	require.Empty(t, content.Message)

	payload, err := json.Marshal(content)
	require.NoError(t, err)
	require.JSONEq(t, `{"date":"2025-06-01","total_activities":3,"total_distance_km":6.75,"total_duration_seconds":1350}`, string(payload))
}

func TestComputeReportContentZeroActivityDay(t *testing.T) {
	target := day(t, "2025-06-02")

	content := ComputeReportContent(target, nil)

	require.Equal(t, 0, content.TotalActivities)
	require.Equal(t, "no activity on this date", content.Message)

	payload, err := json.Marshal(content)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.NotContains(t, decoded, "total_distance_km")
	require.NotContains(t, decoded, "total_duration_seconds")
	require.Equal(t, float64(0), decoded["total_activities"])
}

func TestComputeReportContentIsDeterministic(t *testing.T) {
	target := day(t, "2025-06-03")
	activities := []Activity{
		{DistanceKm: decimal.RequireFromString("0.10"), DurationSeconds: 60},
		{DistanceKm: decimal.RequireFromString("0.20"), DurationSeconds: 60},
		{DistanceKm: decimal.RequireFromString("0.30"), DurationSeconds: 60},
	}

	first, err := json.Marshal(ComputeReportContent(target, activities))
	require.NoError(t, err)
	second, err := json.Marshal(ComputeReportContent(target, activities))
	require.NoError(t, err)
	require.Equal(t, string(first), string(second))
	require.Contains(t, string(first), `"total_distance_km":0.6`)
}

func TestDayWindowIsHalfOpen(t *testing.T) {
	target := day(t, "2025-06-01")
	start, end := DayWindow(target)

	require.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), end)

	inWindow := func(ts time.Time) bool { return !ts.Before(start) && ts.Before(end) }
	require.True(t, inWindow(start), "midnight of the target day is included")
	require.False(t, inWindow(end), "midnight of the following day is excluded")
	require.True(t, inWindow(end.Add(-time.Second)))
}

func TestDecodeReportJob(t *testing.T) {
	body := []byte(`{"report_id":12,"user_id":3,"report_type":"daily","target_date":"2025-06-01"}`)

	job, err := DecodeReportJob(body)
	require.NoError(t, err)
	require.Equal(t, int64(12), job.ReportID)
	require.Equal(t, int64(3), job.UserID)
	require.Equal(t, "daily", job.ReportType)
	require.Equal(t, day(t, "2025-06-01"), job.TargetDay())
}

func TestDecodeReportJobRejectsMalformedPayloads(t *testing.T) {
	cases := map[string][]byte{
		"not json":     []byte("not-json"),
		"missing id":   []byte(`{"user_id":3,"report_type":"daily","target_date":"2025-06-01"}`),
		"missing user": []byte(`{"report_id":12,"report_type":"daily","target_date":"2025-06-01"}`),
		"bad date":     []byte(`{"report_id":12,"user_id":3,"report_type":"daily","target_date":"June 1st"}`),
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeReportJob(body)
			require.Error(t, err)
		})
	}
}

type stubRepo struct {
	created []ReportRequest
	listed  []ReportRequest
	err     error
}

func (r *stubRepo) CreateReport(_ context.Context, report *ReportRequest) error {
	if r.err != nil {
		return r.err
	}
	report.ID = int64(len(r.created) + 1)
	r.created = append(r.created, *report)
	return nil
}

func (r *stubRepo) ListReportsByUser(context.Context, int64) ([]ReportRequest, error) {
	return r.listed, r.err
}

func TestSubmitReportRecordsPendingRequest(t *testing.T) {
	repo := &stubRepo{}
	service := NewService(repo)

	report, err := service.SubmitReport(context.Background(), SubmitReportInput{
		UserID:     42,
		ReportType: "daily",
		TargetDate: "2025-06-01",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), report.ID)
	require.Equal(t, ReportStatusPending, report.Status)
	require.Equal(t, day(t, "2025-06-01"), report.TargetDate)
	require.Len(t, repo.created, 1)
}

func TestSubmitReportValidation(t *testing.T) {
	service := NewService(&stubRepo{})

	_, err := service.SubmitReport(context.Background(), SubmitReportInput{UserID: 1, ReportType: "monthly", TargetDate: "2025-06-01"})
	require.ErrorIs(t, err, ErrInvalidReportType)

	_, err = service.SubmitReport(context.Background(), SubmitReportInput{UserID: 1, ReportType: "weekly", TargetDate: "01-06-2025"})
	require.ErrorIs(t, err, ErrInvalidTargetDate)
}

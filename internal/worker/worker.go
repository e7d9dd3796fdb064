// Package worker consumes queued report jobs and materialises report content.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"example.com/report/internal/domain"
	"example.com/report/internal/queue"
)

// ReportStore is the write side of the report table.
type ReportStore interface {
	CompleteReport(ctx context.Context, reportID int64, content json.RawMessage, completedAt time.Time) (domain.ReportStatus, error)
	FailReport(ctx context.Context, reportID int64, failedAt time.Time) (domain.ReportStatus, error)
}

// ActivityReader is the read-only view over logged activities.
type ActivityReader interface {
	ListActivitiesForDay(ctx context.Context, userID int64, targetDate time.Time) ([]domain.Activity, error)
}

// Config bounds the polling loop.
type Config struct {
	BatchSize     int
	WaitTime      time.Duration // long-poll bound per receive
	IdleDelay     time.Duration // pause after an empty receive
	MaxDeliveries int           // delivery budget before dead-lettering
}

// Option configures optional behaviour for the Worker.
type Option func(*Worker)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// Worker polls the queue, computes report aggregates, persists results, and
// acknowledges messages only after the terminal write committed. It is safe
// to run several workers against the same queue and store: the queue lease
// serialises deliveries and the store's status guard makes replays benign.
type Worker struct {
	queue      queue.Client
	reports    ReportStore
	activities ActivityReader
	cfg        Config
	logger     *log.Logger
}

// New constructs a Worker.
func New(q queue.Client, reports ReportStore, activities ActivityReader, cfg Config, opts ...Option) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.WaitTime <= 0 {
		cfg.WaitTime = 20 * time.Second
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = time.Second
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 5
	}

	w := &Worker{
		queue:      q,
		reports:    reports,
		activities: activities,
		cfg:        cfg,
		logger:     log.New(log.Writer(), "[worker] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts a blocking poll-compute-acknowledge loop until the context is
// cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, err := w.queue.Receive(ctx, w.cfg.BatchSize, w.cfg.WaitTime)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			w.logger.Printf("receive error: %v", err)
			w.idle(ctx)
			continue
		}

		if len(deliveries) == 0 {
			w.idle(ctx)
			continue
		}

		for _, delivery := range deliveries {
			// Failures are isolated per message: one poisoned job never
			// stops the rest of the batch.
			w.processDelivery(ctx, delivery)
		}
	}
}

func (w *Worker) idle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.cfg.IdleDelay):
	}
}

// ProcessBatch performs a single receive-and-process cycle. Exported for
// tests that drive the worker without the polling loop.
func (w *Worker) ProcessBatch(ctx context.Context) error {
	deliveries, err := w.queue.Receive(ctx, w.cfg.BatchSize, w.cfg.WaitTime)
	if err != nil {
		return err
	}
	for _, delivery := range deliveries {
		w.processDelivery(ctx, delivery)
	}
	return nil
}

func (w *Worker) processDelivery(ctx context.Context, delivery queue.Delivery) {
	job, err := domain.DecodeReportJob(delivery.Body)
	if err != nil {
		recordDecodeError()
		if delivery.DeliveryCount > w.cfg.MaxDeliveries {
			// Permanently malformed; without a usable report id there is
			// nothing to mark FAILED, so drop it instead of retrying forever.
			w.logger.Printf("dropping malformed message after %d deliveries: %v", delivery.DeliveryCount, err)
			w.ack(ctx, delivery, 0)
			return
		}
		w.logger.Printf("decode error, leaving message for redelivery: %v", err)
		return
	}

	if delivery.DeliveryCount > w.cfg.MaxDeliveries {
		w.deadLetter(ctx, delivery, job)
		return
	}

	targetDay := job.TargetDay()
	activities, err := w.activities.ListActivitiesForDay(ctx, job.UserID, targetDay)
	if err != nil {
		recordStageError("compute")
		w.logger.Printf("aggregation failed (report_id=%d): %v", job.ReportID, err)
		return
	}

	content := domain.ComputeReportContent(targetDay, activities)
	payload, err := json.Marshal(content)
	if err != nil {
		recordStageError("compute")
		w.logger.Printf("content encode failed (report_id=%d): %v", job.ReportID, err)
		return
	}

	status, err := w.reports.CompleteReport(ctx, job.ReportID, payload, time.Now().UTC())
	if err != nil {
		recordStageError("persist")
		w.logger.Printf("persist failed (report_id=%d): %v", job.ReportID, err)
		return
	}

	switch status {
	case domain.ReportStatusCompleted:
		recordProcessed()
	default:
		// A concurrent delivery already won the terminal write; our copy of
		// the message is redundant and only needs acknowledging.
		w.logger.Printf("report %d already %s, acknowledging duplicate delivery", job.ReportID, status)
	}
	w.ack(ctx, delivery, job.ReportID)
}

// deadLetter flips the report to FAILED once the delivery budget is spent,
// then removes the message so it stops cycling.
func (w *Worker) deadLetter(ctx context.Context, delivery queue.Delivery, job domain.ReportJob) {
	status, err := w.reports.FailReport(ctx, job.ReportID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrReportNotFound) {
			w.logger.Printf("dead-lettering job for missing report %d", job.ReportID)
			w.ack(ctx, delivery, job.ReportID)
			return
		}
		recordStageError("persist")
		w.logger.Printf("dead-letter update failed (report_id=%d): %v", job.ReportID, err)
		return
	}
	recordDeadLettered()
	w.logger.Printf("report %d dead-lettered after %d deliveries (status=%s)", job.ReportID, delivery.DeliveryCount, status)
	w.ack(ctx, delivery, job.ReportID)
}

// ack deletes the message. A stale receipt means the lease expired and
// another worker may redeliver; the status guard upstream makes that safe.
func (w *Worker) ack(ctx context.Context, delivery queue.Delivery, reportID int64) {
	if err := w.queue.Delete(ctx, delivery.ReceiptHandle); err != nil {
		if errors.Is(err, queue.ErrStaleReceipt) {
			w.logger.Printf("stale receipt on delete (report_id=%d)", reportID)
			return
		}
		recordStageError("ack")
		w.logger.Printf("delete failed (report_id=%d): %v", reportID, err)
	}
}

// Package outbox delivers committed report jobs to the work queue.
package outbox

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sender is the producer half of the queue client.
type Sender interface {
	Send(ctx context.Context, body []byte) error
}

// Relay drains the report_outbox table and sends each job snapshot to the
// queue. Rows stay unpublished on send failure and are retried on the next
// tick, which is what makes the insert-then-enqueue path crash-safe.
type Relay struct {
	pool             *pgxpool.Pool
	sender           Sender
	pollInterval     time.Duration
	batchSize        int
	logger           *log.Logger
	shutdownComplete chan struct{}
}

// NewRelay constructs a Relay.
func NewRelay(pool *pgxpool.Pool, sender Sender, pollInterval time.Duration, batchSize int) *Relay {
	return &Relay{
		pool:             pool,
		sender:           sender,
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		logger:           log.New(log.Writer(), "[outbox] ", log.LstdFlags),
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the polling loop. It should be called in a goroutine.
func (r *Relay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer func() {
		ticker.Stop()
		close(r.shutdownComplete)
	}()

	for {
		if err := r.ProcessBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Printf("relay error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the relay loop has stopped.
func (r *Relay) Wait() {
	<-r.shutdownComplete
}

// ProcessBatch claims one batch of unpublished rows, sends them, and marks
// the delivered ones published. Exported so tests and one-shot tools can
// drive the relay without the polling loop.
func (r *Relay) ProcessBatch(ctx context.Context) error {
	start := time.Now()

	entries, err := r.fetchAndClaim(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	defer batchDuration.Observe(time.Since(start).Seconds())

	published := make([]int64, 0, len(entries))
	for _, entry := range entries {
		if err := r.sender.Send(ctx, entry.Payload); err != nil {
			r.logger.Printf("send failure (report_id=%d): %v", entry.ReportID, err)
			failedCounter.Inc()
			continue
		}
		published = append(published, entry.EventID)
	}

	if len(published) == 0 {
		return nil
	}
	deliveredCounter.Add(float64(len(published)))
	return r.markPublished(ctx, published)
}

func (r *Relay) fetchAndClaim(ctx context.Context) ([]Entry, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	// No-op once the tx committed.
	defer tx.Rollback(ctx)

	const query = `SELECT event_id, report_id, payload
        FROM report_outbox
        WHERE published_at IS NULL
        ORDER BY event_id
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, r.batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.EventID, &entry.ReportID, &entry.Payload); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
		ids = append(ids, entry.EventID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE report_outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, ids); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *Relay) markPublished(ctx context.Context, ids []int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE report_outbox SET published_at = NOW() WHERE event_id = ANY($1)`, ids)
	return err
}

// Entry represents a row fetched from report_outbox.
type Entry struct {
	EventID  int64
	ReportID int64
	Payload  []byte
}

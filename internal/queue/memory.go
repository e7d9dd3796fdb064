package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process Client used in tests and local development.
// It mirrors the lease semantics of SQS: a received message stays invisible
// until its lease expires or it is deleted, and every redelivery increments
// the delivery count and mints a fresh receipt handle.
type MemoryQueue struct {
	mu       sync.Mutex
	entries  []*memoryEntry
	lease    time.Duration
	pollStep time.Duration
}

type memoryEntry struct {
	id            string
	body          []byte
	deliveryCount int
	visibleAt     time.Time
	receipt       string // current lease receipt; empty when visible
}

// NewMemoryQueue constructs a queue with the given visibility timeout.
func NewMemoryQueue(lease time.Duration) *MemoryQueue {
	if lease <= 0 {
		lease = 30 * time.Second
	}
	return &MemoryQueue{lease: lease, pollStep: 10 * time.Millisecond}
}

// Send appends a message.
func (q *MemoryQueue) Send(ctx context.Context, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, &memoryEntry{
		id:   uuid.NewString(),
		body: append([]byte(nil), body...),
	})
	return nil
}

// Receive leases up to max visible messages, polling until wait elapses when
// the queue is empty.
func (q *MemoryQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Delivery, error) {
	deadline := time.Now().Add(wait)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if deliveries := q.leaseBatch(max); len(deliveries) > 0 {
			return deliveries, nil
		}

		if !time.Now().Before(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollStep):
		}
	}
}

func (q *MemoryQueue) leaseBatch(max int) []Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	deliveries := make([]Delivery, 0, max)
	for _, entry := range q.entries {
		if len(deliveries) == max {
			break
		}
		if entry.visibleAt.After(now) {
			continue
		}
		entry.deliveryCount++
		entry.visibleAt = now.Add(q.lease)
		entry.receipt = uuid.NewString()
		deliveries = append(deliveries, Delivery{
			Body:          append([]byte(nil), entry.body...),
			ReceiptHandle: entry.receipt,
			DeliveryCount: entry.deliveryCount,
		})
	}
	return deliveries
}

// Delete removes the message identified by a still-valid receipt handle.
func (q *MemoryQueue) Delete(ctx context.Context, receiptHandle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for i, entry := range q.entries {
		if entry.receipt != receiptHandle {
			continue
		}
		if !entry.visibleAt.After(now) {
			// Lease expired; the message is eligible for redelivery.
			return ErrStaleReceipt
		}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		return nil
	}
	return ErrStaleReceipt
}

// Size reports how many messages remain queued or leased.
func (q *MemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// ExpireLeases makes all leased messages immediately visible again. Tests
// use it to simulate a visibility timeout without waiting.
func (q *MemoryQueue) ExpireLeases() {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	for _, entry := range q.entries {
		entry.visibleAt = now
	}
}

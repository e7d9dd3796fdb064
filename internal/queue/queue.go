// Package queue abstracts the durable at-least-once report job queue.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrStaleReceipt is returned by Delete when the receipt handle no longer
// identifies a leased delivery. Callers treat it as a benign no-op: the
// message was either already deleted or its lease expired and it will be
// redelivered.
var ErrStaleReceipt = errors.New("stale or unknown receipt handle")

// Delivery is one leased message. The receipt handle identifies this
// specific delivery and is invalidated when the visibility lease expires.
type Delivery struct {
	Body          []byte
	ReceiptHandle string
	DeliveryCount int // 1 on first delivery; grows on each redelivery
}

// Client is the queue contract shared by the producer side (outbox relay)
// and the consumer side (report worker). Implementations must suppress
// redelivery of a leased message until its visibility timeout elapses.
type Client interface {
	Send(ctx context.Context, body []byte) error
	// Receive returns up to max deliveries, long-polling for at most wait
	// before returning an empty batch.
	Receive(ctx context.Context, max int, wait time.Duration) ([]Delivery, error)
	// Delete acknowledges a delivery. Deleting with a stale receipt returns
	// ErrStaleReceipt.
	Delete(ctx context.Context, receiptHandle string) error
}

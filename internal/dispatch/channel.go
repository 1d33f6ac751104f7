// Package dispatch is the multi-producer/multi-consumer batch queue (spec
// §4.4, C3) sitting between the source reader and the worker pool.
package dispatch

import "github.com/lanterndata/lantern-indexd/internal/vectorsource"

// Channel is a bounded queue of row batches. The reader is the sole
// producer; workers are the consumers. Backpressure comes from the
// channel's fixed capacity: a full channel blocks the reader's fetch loop
// until a worker drains a batch.
type Channel struct {
	batches chan vectorsource.Batch
}

// New returns a Channel buffering up to capacity batches.
func New(capacity int) *Channel {
	if capacity < 1 {
		capacity = 1
	}
	return &Channel{batches: make(chan vectorsource.Batch, capacity)}
}

// Out exposes the receive side for workers.
func (c *Channel) Out() <-chan vectorsource.Batch { return c.batches }

// In exposes the send side for the reader's fetch loop.
func (c *Channel) In() chan<- vectorsource.Batch { return c.batches }

// Close signals that no further batches will be produced. Workers observe
// this as the channel being both empty and closed, and exit.
func (c *Channel) Close() { close(c.batches) }

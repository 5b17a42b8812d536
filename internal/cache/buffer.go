package cache

import (
	"context"
	"sync"
	"time"
)

// FlushFunc persists accumulated access counts in one batch.
type FlushFunc func(ctx context.Context, counts map[int64]int64) error

// AccessBuffer accumulates document access counts in memory and flushes
// them in batches, so hot read paths never pay a write per access.
type AccessBuffer struct {
	mu        sync.Mutex
	counts    map[int64]int64
	flush     FlushFunc
	batchSize int
	interval  time.Duration
	lastFlush time.Time
}

// NewAccessBuffer creates a buffer that flushes once batchSize distinct
// documents accumulate or interval elapses since the last flush, whichever
// comes first.
func NewAccessBuffer(flush FlushFunc, batchSize int, interval time.Duration) *AccessBuffer {
	return &AccessBuffer{
		counts:    make(map[int64]int64),
		flush:     flush,
		batchSize: batchSize,
		interval:  interval,
		lastFlush: time.Now(),
	}
}

// Record increments the in-memory counter for docID and flushes when a
// threshold is crossed.
func (b *AccessBuffer) Record(ctx context.Context, docID int64) error {
	b.mu.Lock()
	b.counts[docID]++
	due := len(b.counts) >= b.batchSize || time.Since(b.lastFlush) >= b.interval
	b.mu.Unlock()

	if due {
		return b.Flush(ctx)
	}
	return nil
}

// Flush persists all buffered counts. The map is copied and cleared under
// the lock; the batch write runs outside it so new accesses are not blocked.
// If the write fails, the counts are merged back so they are not lost.
func (b *AccessBuffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.counts) == 0 {
		b.lastFlush = time.Now()
		b.mu.Unlock()
		return nil
	}
	pending := b.counts
	b.counts = make(map[int64]int64)
	b.lastFlush = time.Now()
	b.mu.Unlock()

	if err := b.flush(ctx, pending); err != nil {
		b.mu.Lock()
		for id, n := range pending {
			b.counts[id] += n
		}
		b.mu.Unlock()
		return err
	}
	return nil
}

// Pending reports how many distinct documents have unflushed counts.
func (b *AccessBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.counts)
}

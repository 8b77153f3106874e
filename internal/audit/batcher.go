package audit

import (
	"context"
	"sync"
	"time"

	"github.com/ads-marketplace/faultline/internal/logging"
	"github.com/ads-marketplace/faultline/internal/models"
)

const (
	DefaultBatchSize     = 10
	DefaultFlushInterval = 5 * time.Second
)

type stopper interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) stopper

func realAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// Batcher accumulates entries and ships them in bulk when the batch is full or
// the flush interval since the first pending entry elapses.
//
// Delivery is best effort: a failed flush is logged and its entries are dropped.
type Batcher struct {
	transport Transport
	log       logging.Logger
	size      int
	interval  time.Duration
	after     afterFunc

	mu     sync.Mutex
	batch  []models.AuditEntry
	timer  stopper
	gen    uint64
	closed bool

	inflight sync.WaitGroup
}

type BatcherOption func(*Batcher)

func WithBatchSize(n int) BatcherOption {
	return func(b *Batcher) {
		if n > 0 {
			b.size = n
		}
	}
}

func WithFlushInterval(d time.Duration) BatcherOption {
	return func(b *Batcher) {
		if d > 0 {
			b.interval = d
		}
	}
}

func NewBatcher(transport Transport, log logging.Logger, opts ...BatcherOption) *Batcher {
	if log == nil {
		log = logging.Nop()
	}
	b := &Batcher{
		transport: transport,
		log:       log,
		size:      DefaultBatchSize,
		interval:  DefaultFlushInterval,
		after:     realAfterFunc,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add queues an entry. Reaching the batch size starts a flush in the background.
func (b *Batcher) Add(entry models.AuditEntry) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.log.Warn("audit", "batcher closed, entry dropped", map[string]any{"action": entry.Action})
		return
	}
	b.batch = append(b.batch, entry)
	if len(b.batch) >= b.size {
		entries := b.takeLocked()
		b.mu.Unlock()
		b.sendAsync(entries)
		return
	}
	if b.timer == nil {
		gen := b.gen
		b.timer = b.after(b.interval, func() { b.onTimer(gen) })
	}
	b.mu.Unlock()
}

// Flush sends everything pending now.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	entries := b.takeLocked()
	b.mu.Unlock()
	return b.send(ctx, entries)
}

// Pending returns the number of entries waiting for the next flush.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.batch)
}

// Close flushes what is pending and waits for in-flight sends.
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	entries := b.takeLocked()
	b.mu.Unlock()

	err := b.send(ctx, entries)

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// takeLocked empties the batch before any send starts, so entries added
// afterwards always land in a new batch.
func (b *Batcher) takeLocked() []models.AuditEntry {
	entries := b.batch
	b.batch = nil
	b.gen++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return entries
}

func (b *Batcher) onTimer(gen uint64) {
	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return
	}
	entries := b.takeLocked()
	b.mu.Unlock()

	b.inflight.Add(1)
	defer b.inflight.Done()
	_ = b.send(context.Background(), entries)
}

func (b *Batcher) sendAsync(entries []models.AuditEntry) {
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		_ = b.send(context.Background(), entries)
	}()
}

func (b *Batcher) send(ctx context.Context, entries []models.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := b.transport.SendBatch(ctx, entries); err != nil {
		b.log.Error("audit", "failed to flush audit batch", map[string]any{
			"count": len(entries),
			"error": err,
		})
		return err
	}
	b.log.Debug("audit", "audit batch flushed", map[string]any{"count": len(entries)})
	return nil
}

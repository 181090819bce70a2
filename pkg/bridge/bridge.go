// Package bridge hands finalized transcripts from the speech-to-text reader
// goroutine to a connection's single response pipeline, preserving order.
package bridge

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chriscow/voicegw/pkg/metrics"
)

// Utterance is one finalized transcript. Seq starts at 1 and increases by
// one per accepted notification.
type Utterance struct {
	Seq         uint64
	Text        string
	FinalizedAt time.Time
}

// Bridge is a bounded FIFO with any number of producers and one consumer.
type Bridge struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex // serializes sequencing with enqueueing
	seq    uint64
	closed bool

	queue     chan Utterance
	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a bridge holding up to capacity pending utterances.
func New(capacity int, logger *slog.Logger) *Bridge {
	if capacity <= 0 {
		capacity = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		logger:  logger.With(slog.String("component", "bridge")),
		queue:   make(chan Utterance, capacity),
		closing: make(chan struct{}),
	}
}

// WithMetrics attaches a metrics sink for dropped notifications.
func (b *Bridge) WithMetrics(m *metrics.Metrics) *Bridge {
	b.metrics = m
	return b
}

// Notify enqueues a finalized transcript and reports whether it was accepted.
// Blank text is ignored. Notify blocks while the queue is full, and drops the
// transcript once the bridge is closed.
func (b *Bridge) Notify(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		b.drop(text)
		return false
	}

	u := Utterance{Seq: b.seq + 1, Text: text, FinalizedAt: time.Now()}
	select {
	case b.queue <- u:
		b.seq = u.Seq
		return true
	case <-b.closing:
		b.drop(text)
		return false
	}
}

func (b *Bridge) drop(text string) {
	b.logger.Warn("Dropping transcript after close", slog.Int("chars", len(text)))
	b.metrics.TranscriptDropped()
}

// Run delivers utterances to handle one at a time in sequence order. It
// returns when ctx is done or the bridge is closed and drained.
func (b *Bridge) Run(ctx context.Context, handle func(context.Context, Utterance)) {
	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-b.queue:
			if !ok {
				return
			}
			if u.Seq != last+1 {
				b.logger.Error("Utterance sequence gap",
					slog.Uint64("expected", last+1),
					slog.Uint64("got", u.Seq))
			}
			last = u.Seq
			if ctx.Err() != nil {
				return
			}
			handle(ctx, u)
		}
	}
}

// Close stops accepting notifications. Utterances already queued are still
// delivered. Close is idempotent.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		close(b.closing)

		b.mu.Lock()
		b.closed = true
		close(b.queue)
		b.mu.Unlock()
	})
}

// Pending returns the number of queued utterances.
func (b *Bridge) Pending() int {
	return len(b.queue)
}

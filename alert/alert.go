// Package alert delivers operator messages without blocking the caller.
package alert

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/perps/internal/logging"
	"github.com/rustyeddy/perps/metrics"
)

// Notifier delivers one message.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// LogNotifier writes messages to a logger. It is used when no
// Telegram token is configured.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, text string) error {
	n.Log.Info().Str("alert", text).Msg("alert")
	return nil
}

const DefaultQueueSize = 64

// Queue hands messages to a single worker goroutine.
type Queue struct {
	n    Notifier
	log  zerolog.Logger
	ch   chan string
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewQueue(n Notifier, size int, log zerolog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &Queue{
		n:    n,
		log:  logging.Component(log, "alert"),
		ch:   make(chan string, size),
		done: make(chan struct{}),
	}
	go q.work()
	return q
}

// Send enqueues text. A full or closed queue drops the message.
func (q *Queue) Send(text string) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		metrics.AlertsDropped.Inc()
		return
	}
	select {
	case q.ch <- text:
	default:
		metrics.AlertsDropped.Inc()
		q.log.Warn().Str("alert", text).Msg("alert queue full, dropped")
	}
}

func (q *Queue) work() {
	defer close(q.done)
	for text := range q.ch {
		if err := q.n.Notify(context.Background(), text); err != nil {
			q.log.Error().Err(err).Msg("alert delivery failed")
		}
	}
}

// Close stops accepting messages and waits for pending ones until ctx
// expires.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

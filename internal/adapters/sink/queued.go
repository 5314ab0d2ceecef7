package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/botrelay/internal/core"
	"github.com/dkeye/botrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrQueueFull  = errors.New("sink queue full")
	ErrSinkClosed = errors.New("sink closed")
)

type entry struct {
	bot  domain.BotID
	data []byte
}

// QueuedSink moves writes off the caller's goroutine. Append only enqueues;
// a single worker drains the queue into the wrapped sink in arrival order.
// When the queue is full the frame is rejected with ErrQueueFull instead of
// blocking the caller.
type QueuedSink struct {
	inner   core.Sink
	onError func(domain.BotID, error)

	mu     sync.RWMutex
	closed bool
	queue  chan entry
	done   chan struct{}
}

// NewQueuedSink starts the worker. onError, if set, is called from the worker
// for every failed write.
func NewQueuedSink(inner core.Sink, size int, onError func(domain.BotID, error)) *QueuedSink {
	if size <= 0 {
		size = 1
	}
	q := &QueuedSink{
		inner:   inner,
		onError: onError,
		queue:   make(chan entry, size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Append enqueues data; the caller must not modify it afterwards.
func (q *QueuedSink) Append(_ context.Context, bot domain.BotID, data []byte) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrSinkClosed
	}
	select {
	case q.queue <- entry{bot: bot, data: data}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *QueuedSink) run() {
	defer close(q.done)
	// The worker outlives any single connection, so it writes with its own context.
	ctx := context.Background()
	for e := range q.queue {
		if err := q.inner.Append(ctx, e.bot, e.data); err != nil {
			log.Error().Err(err).Str("module", "sink.queue").Str("bot_id", string(e.bot)).Int("bytes", len(e.data)).Msg("append failed")
			if q.onError != nil {
				q.onError(e.bot, err)
			}
		}
	}
}

// Len reports how many frames are waiting.
func (q *QueuedSink) Len() int { return len(q.queue) }

// Close stops accepting frames, flushes what is queued and closes the
// wrapped sink.
func (q *QueuedSink) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return nil
	}
	q.closed = true
	close(q.queue)
	q.mu.Unlock()

	<-q.done
	return q.inner.Close()
}

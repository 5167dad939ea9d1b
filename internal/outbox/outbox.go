// Package outbox delivers local vault writes to a remote.
//
// The vault announces uploads and deletes without waiting on the network;
// the Queue buffers them and a single consumer (Run or Drain) delivers
// them in order with bounded retries. Delivery failures are logged, never
// reported back to the writer.
package outbox

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/illarion/lockvault/internal/storage"
)

// Remote is the transport that moves records off the device.
type Remote interface {
	Upload(ctx context.Context, rec storage.Record) error
	Delete(ctx context.Context, id string) error
}

// MessageKind distinguishes queued operations.
type MessageKind int

const (
	KindUpload MessageKind = iota
	KindDelete
)

func (k MessageKind) String() string {
	if k == KindDelete {
		return "delete"
	}
	return "upload"
}

// Message is one queued operation.
type Message struct {
	Kind   MessageKind
	Record storage.Record
	ID     string
}

// Stats counts queue outcomes since creation.
type Stats struct {
	Delivered int64
	Failed    int64
	Dropped   int64
}

// Queue is a bounded FIFO of remote operations.
type Queue struct {
	remote   Remote
	log      *zap.Logger
	messages chan Message
	attempts int
	backoff  time.Duration

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) { q.log = l }
}

// WithCapacity sets the buffer size; notifications beyond it are dropped.
func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.messages = make(chan Message, n)
		}
	}
}

// WithRetry sets the number of delivery attempts per message and the first
// backoff delay, doubled after every failed attempt.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(q *Queue) {
		if attempts > 0 {
			q.attempts = attempts
		}
		q.backoff = backoff
	}
}

// New creates a queue delivering to remote.
func New(remote Remote, opts ...Option) *Queue {
	q := &Queue{
		remote:   remote,
		log:      zap.NewNop(),
		messages: make(chan Message, 256),
		attempts: 3,
		backoff:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) enqueue(m Message) {
	select {
	case q.messages <- m:
	default:
		q.dropped.Add(1)
		q.log.Warn("sync queue full, dropping operation",
			zap.Stringer("kind", m.Kind), zap.String("record_id", m.ID))
	}
}

// NotifyUpload queues rec for upload. It never blocks.
func (q *Queue) NotifyUpload(rec storage.Record) {
	q.enqueue(Message{Kind: KindUpload, Record: rec, ID: rec.ID})
}

// NotifyDelete queues a remote delete. It never blocks.
func (q *Queue) NotifyDelete(id string) {
	q.enqueue(Message{Kind: KindDelete, ID: id})
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	return len(q.messages)
}

// Stats returns the outcome counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Delivered: q.delivered.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
	}
}

// Run delivers messages until ctx is done. A message already in delivery
// keeps its remaining attempts; what is still queued is left for Drain.
func (q *Queue) Run(ctx context.Context) {
	q.log.Debug("sync queue started")
	inflight := context.WithoutCancel(ctx)
	for {
		select {
		case m := <-q.messages:
			q.deliver(inflight, m)
		case <-ctx.Done():
			q.log.Debug("sync queue stopped", zap.Int("pending", q.Len()))
			return
		}
	}
}

// Drain delivers everything queued so far and returns. It returns early
// with ctx.Err() if ctx is done.
func (q *Queue) Drain(ctx context.Context) error {
	for {
		select {
		case m := <-q.messages:
			q.deliver(ctx, m)
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
}

func (q *Queue) send(ctx context.Context, m Message) error {
	if m.Kind == KindDelete {
		return q.remote.Delete(ctx, m.ID)
	}
	return q.remote.Upload(ctx, m.Record)
}

func (q *Queue) deliver(ctx context.Context, m Message) {
	delay := q.backoff
	for attempt := 1; ; attempt++ {
		err := q.send(ctx, m)
		if err == nil {
			q.delivered.Add(1)
			return
		}
		if attempt >= q.attempts {
			q.fail(m, err)
			return
		}
		q.log.Debug("sync write failed, retrying",
			zap.Stringer("kind", m.Kind),
			zap.String("record_id", m.ID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			q.fail(m, ctx.Err())
			return
		}
		delay *= 2
	}
}

func (q *Queue) fail(m Message, err error) {
	q.failed.Add(1)
	q.log.Error("sync write failed",
		zap.Stringer("kind", m.Kind),
		zap.String("record_id", m.ID),
		zap.Error(err))
}

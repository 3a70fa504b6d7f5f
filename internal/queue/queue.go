package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mailgoal/mailgoal/internal/clock"
	"github.com/mailgoal/mailgoal/internal/content"
)

var ErrClosed = errors.New("queue is closed")

// Two requests per minute is the free-tier ceiling of the generation backend.
const DefaultMinInterval = 30 * time.Second

// Producer is the content generator seen by the queue.
type Producer interface {
	Primary(ctx context.Context, snap content.Snapshot) (content.Content, error)
	Fallback(snap content.Snapshot) content.Content
}

// A Producer that also implements enabler and reports false has no backend.
// Its items are answered with Fallback inline, outside the call spacing.
type enabler interface {
	Enabled() bool
}

// Item is one generation request. It owns a copy of everything needed to
// render the reminder.
type Item struct {
	GoalID   string
	Snapshot content.Snapshot
}

// Pending resolves once the worker has produced content for an item.
type Pending struct {
	done    chan struct{}
	content content.Content
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) resolve(c content.Content) {
	p.content = c
	close(p.done)
}

// Wait blocks until the item is resolved or ctx is done. A resolved item
// always carries content: failures are answered with fallback content.
func (p *Pending) Wait(ctx context.Context) (content.Content, error) {
	select {
	case <-p.done:
		return p.content, nil
	case <-ctx.Done():
		return content.Content{}, ctx.Err()
	}
}

type request struct {
	item    Item
	pending *Pending
}

// Queue serializes calls to the generation backend. A single worker services
// items in FIFO order and keeps at least minInterval between the starts of
// two backend calls. A queue lives for one batch run and is never persisted.
type Queue struct {
	producer    Producer
	minInterval time.Duration
	gate        *Gate
	clock       clock.Clock
	logger      *slog.Logger

	mu      sync.Mutex
	items   []*request
	closed  bool
	started bool
	wake    chan struct{}
	done    chan struct{}

	// owned by the worker
	calls int
}

type Option func(*Queue)

func WithMinInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d >= 0 {
			q.minInterval = d
		}
	}
}

// WithGate shares call spacing with other users of the backend. It takes
// precedence over WithMinInterval.
func WithGate(g *Gate) Option {
	return func(q *Queue) {
		if g != nil {
			q.gate = g
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(q *Queue) {
		if c != nil {
			q.clock = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

func New(producer Producer, opts ...Option) *Queue {
	q := &Queue{
		producer:    producer,
		minInterval: DefaultMinInterval,
		clock:       clock.System{},
		logger:      slog.Default(),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.gate == nil {
		q.gate = NewGate(q.minInterval)
	}
	return q
}

// Start launches the worker. It stops when ctx is done or after Close once
// the queue is drained.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	go q.run(ctx)
}

// Enqueue appends an item and returns a handle to await its content.
func (q *Queue) Enqueue(item Item) (*Pending, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}

	req := &request{item: item, pending: newPending()}
	q.items = append(q.items, req)
	q.signal()

	return req.pending, nil
}

// Close stops accepting items, lets the worker finish what is queued and
// waits for it to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	started := q.started
	q.signal()
	q.mu.Unlock()

	if !started {
		q.drain()
		close(q.done)
		return
	}
	<-q.done
}

// Calls returns the number of backend calls made. Safe after Close.
func (q *Queue) Calls() int {
	<-q.done
	return q.calls
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) next(ctx context.Context) (*request, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			req := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return req, true
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, false
		}

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)
	defer q.drain()

	for {
		req, ok := q.next(ctx)
		if !ok {
			return
		}
		q.process(ctx, req)
	}
}

func (q *Queue) process(ctx context.Context, req *request) {
	snap := req.item.Snapshot

	if e, ok := q.producer.(enabler); ok && !e.Enabled() {
		req.pending.resolve(q.producer.Fallback(snap))
		return
	}

	if wait := q.gate.Reserve(q.clock.Now()); wait > 0 {
		q.logger.Debug("rate limiting generation request", "goal_id", req.item.GoalID, "wait_ms", wait.Milliseconds())
		err := q.clock.Sleep(ctx, wait)
		if err != nil {
			req.pending.resolve(q.producer.Fallback(snap))
			return
		}
	}

	q.calls++

	c, err := q.call(ctx, snap)
	if err != nil {
		q.logger.Warn("generation request failed, using fallback template", "goal_id", req.item.GoalID, "error", err)
		c = q.producer.Fallback(snap)
	}

	req.pending.resolve(c)
}

func (q *Queue) call(ctx context.Context, snap content.Snapshot) (c content.Content, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generation panic: %v", r)
		}
	}()

	c, err = q.producer.Primary(ctx, snap)
	if err == nil && c.Empty() {
		err = content.ErrUnparseable
	}
	return c, err
}

// drain resolves whatever is left with fallback content so no waiter hangs.
func (q *Queue) drain() {
	q.mu.Lock()
	q.closed = true
	items := q.items
	q.items = nil
	q.mu.Unlock()

	for _, req := range items {
		req.pending.resolve(q.producer.Fallback(req.item.Snapshot))
	}
}

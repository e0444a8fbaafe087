package queue

import (
	"container/list"
	"context"
	"errors"
	"sync"
)

var (
	// ErrQueueFull is returned by Submit when the queue already holds MaxQueueSize items.
	ErrQueueFull = errors.New("request queue full")
	// ErrNilWork is returned by Submit when work is nil.
	ErrNilWork = errors.New("nil work function")
)

// Config sizes a [Queue]. MaxQueueSize <= 0 means unbounded; Concurrency < 1 is treated
// as 1.
type Config struct {
	MaxQueueSize int
	Concurrency  int
}

// Work is a unit of work admitted to the queue.
type Work[T any] func() (T, error)

// Stats is a point-in-time view of queue occupancy.
type Stats struct {
	Active    int
	Waiting   int
	Completed uint64
	Rejected  uint64
}

// Ticket is the handle returned for admitted work.
type Ticket[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Wait blocks until the work settles or ctx ends. When ctx ends first the work keeps
// running; only the wait is abandoned.
func (t *Ticket[T]) Wait(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the work has settled.
func (t *Ticket[T]) Done() <-chan struct{} {
	return t.done
}

type item[T any] struct {
	work   Work[T]
	ticket *Ticket[T]
}

// Queue admits work with a bounded backlog and bounded concurrency. It is safe for
// concurrent use.
type Queue[T any] struct {
	mu        sync.Mutex
	cfg       Config
	waiting   *list.List
	active    int
	completed uint64
	rejected  uint64
}

// New creates a queue sized by cfg.
func New[T any](cfg Config) *Queue[T] {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Queue[T]{
		cfg:     cfg,
		waiting: list.New(),
	}
}

// Submit admits work or fails with [ErrQueueFull] without enqueuing it.
func (q *Queue[T]) Submit(work Work[T]) (*Ticket[T], error) {
	if work == nil {
		return nil, ErrNilWork
	}

	q.mu.Lock()
	if q.cfg.MaxQueueSize > 0 && q.waiting.Len()+q.active >= q.cfg.MaxQueueSize {
		q.rejected++
		q.mu.Unlock()
		return nil, ErrQueueFull
	}

	ticket := &Ticket[T]{done: make(chan struct{})}
	q.waiting.PushBack(&item[T]{work: work, ticket: ticket})
	ready := q.dequeueLocked()
	q.mu.Unlock()

	q.start(ready)
	return ticket, nil
}

// Do submits work and waits for its result.
func (q *Queue[T]) Do(ctx context.Context, work Work[T]) (T, error) {
	ticket, err := q.Submit(work)
	if err != nil {
		var zero T
		return zero, err
	}
	return ticket.Wait(ctx)
}

// Stats reports current occupancy.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Active:    q.active,
		Waiting:   q.waiting.Len(),
		Completed: q.completed,
		Rejected:  q.rejected,
	}
}

// dequeueLocked claims concurrency slots for waiting items in FIFO order. Slots are
// claimed under the lock so start order always matches submission order.
func (q *Queue[T]) dequeueLocked() []*item[T] {
	var ready []*item[T]
	for q.active < q.cfg.Concurrency && q.waiting.Len() > 0 {
		front := q.waiting.Front()
		q.waiting.Remove(front)
		q.active++
		ready = append(ready, front.Value.(*item[T]))
	}
	return ready
}

func (q *Queue[T]) start(items []*item[T]) {
	for _, it := range items {
		go q.run(it)
	}
}

// run frees the slot before publishing the result, so a returned Wait already sees the
// work counted as completed.
func (q *Queue[T]) run(it *item[T]) {
	value, err := it.work()
	it.ticket.value = value
	it.ticket.err = err
	q.settle()
	close(it.ticket.done)
}

func (q *Queue[T]) settle() {
	q.mu.Lock()
	q.active--
	q.completed++
	ready := q.dequeueLocked()
	q.mu.Unlock()

	q.start(ready)
}

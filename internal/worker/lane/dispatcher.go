/*
Package lane provides a keyed serial executor for consumer workers.

Events sharing a partition key must be applied in delivery order, while
events for different keys should proceed concurrently. Each active key owns
an isolated lane (a goroutine with a mailbox); lanes are created lazily on
first use and retire themselves after a quiet period, so memory tracks the
working set of keys rather than the key universe.
*/
package lane

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrShuttingDown is returned for work submitted after Shutdown began.
var ErrShuttingDown = errors.New("lane: dispatcher is shutting down")

type task struct {
	ctx context.Context
	fn  func(context.Context) error
	res chan error
}

// Dispatcher owns the lane registry.
type Dispatcher struct {
	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool

	wg     sync.WaitGroup
	config config
}

type config struct {
	mailboxSize int
	idleTimeout time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMailboxSize sets the per-lane buffer: the backpressure threshold
// before Execute blocks the submitter.
func WithMailboxSize(size int) Option {
	return func(d *Dispatcher) {
		d.config.mailboxSize = size
	}
}

// WithIdleTimeout sets the quiet period after which an empty lane retires.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.config.idleTimeout = timeout
	}
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		lanes: make(map[string]*lane),
		config: config{
			mailboxSize: 256,
			idleTimeout: 5 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute runs fn on the lane owned by key and returns its error. Calls with
// the same key run strictly in submission order; distinct keys never block
// each other beyond scheduler fairness.
func (d *Dispatcher) Execute(ctx context.Context, key string, fn func(context.Context) error) error {
	t := task{ctx: ctx, fn: fn, res: make(chan error, 1)}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrShuttingDown
	}
	l, ok := d.lanes[key]
	if !ok {
		l = newLane(key, d.config.mailboxSize)
		d.lanes[key] = l
		d.wg.Add(1)
		go l.loop(d)
	}
	// The pending counter pins the lane: it cannot retire while a submitter
	// holds a reference but has not yet enqueued.
	l.pending++
	d.mu.Unlock()

	select {
	case l.mailbox <- t:
	case <-ctx.Done():
		d.mu.Lock()
		l.pending--
		d.mu.Unlock()
		return ctx.Err()
	}

	select {
	case err := <-t.res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting work and waits for every lane to drain its
// mailbox or for ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	for _, l := range d.lanes {
		close(l.stopCh)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len reports the number of live lanes.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lanes)
}

type lane struct {
	key     string
	mailbox chan task
	stopCh  chan struct{}

	// pending counts submissions between registry lookup and enqueue.
	// Guarded by the dispatcher mutex.
	pending int
}

func newLane(key string, mailboxSize int) *lane {
	return &lane{
		key:     key,
		mailbox: make(chan task, mailboxSize),
		stopCh:  make(chan struct{}),
	}
}

func (l *lane) loop(d *Dispatcher) {
	defer d.wg.Done()

	idle := time.NewTimer(d.config.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case t := <-l.mailbox:
			l.take(d)
			l.run(t)
			resetTimer(idle, d.config.idleTimeout)

		case <-idle.C:
			if l.tryRetire(d) {
				return
			}
			idle.Reset(d.config.idleTimeout)

		case <-l.stopCh:
			l.drain(d)
			return
		}
	}
}

func (l *lane) run(t task) {
	if err := t.ctx.Err(); err != nil {
		t.res <- err
		return
	}
	t.res <- t.fn(t.ctx)
}

func (l *lane) take(d *Dispatcher) {
	d.mu.Lock()
	l.pending--
	d.mu.Unlock()
}

// tryRetire removes the lane from the registry if nothing is queued or in
// flight. Holding the registry lock for the whole check makes retirement
// atomic with respect to new submissions.
func (l *lane) tryRetire(d *Dispatcher) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if l.pending > 0 || len(l.mailbox) > 0 || d.closed {
		return false
	}
	delete(d.lanes, l.key)
	return true
}

// drain finishes queued work during shutdown. Submitters already past the
// registry check are still counted in pending, so wait for them too.
func (l *lane) drain(d *Dispatcher) {
	for {
		select {
		case t := <-l.mailbox:
			l.take(d)
			l.run(t)
		default:
			d.mu.Lock()
			empty := l.pending == 0
			d.mu.Unlock()
			if empty && len(l.mailbox) == 0 {
				return
			}
		}
	}
}

func resetTimer(t *time.Timer, dur time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(dur)
}

// Package mainthread marshals work from arbitrary goroutines onto the host's
// single designated goroutine, the only place host APIs may be called.
package mainthread

import (
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTimeout bounds how long a submitter waits for the designated
// goroutine to service its unit of work.
const DefaultTimeout = 25 * time.Second

// ErrHostTimeout is returned to a submitter when the designated goroutine
// does not drain its unit within the timeout. The unit itself is not
// cancelled: if a tick eventually runs it, the result is dropped.
var ErrHostTimeout = errors.New("host unresponsive: request was not serviced by the main thread in time")

// unit is one queued closure plus its completion signal. Owned by the
// executor from submission until the signal fires.
type unit struct {
	fn        func() (any, error)
	done      chan struct{}
	result    any
	err       error
	abandoned atomic.Bool
}

// Executor is a FIFO work queue drained by Tick, which the host driver calls
// repeatedly on its designated goroutine. Submit is safe from any goroutine.
type Executor struct {
	mu      sync.Mutex
	pending []*unit
	timeout time.Duration

	// Goroutine id currently inside Tick; lets a handler that submits
	// nested work run it inline instead of deadlocking on itself.
	tickGID atomic.Int64

	ticks    atomic.Int64
	executed atomic.Int64
	panics   atomic.Int64
}

// Stats is a snapshot of executor activity.
type Stats struct {
	Ticks    int64 `json:"ticks"`
	Executed int64 `json:"executed"`
	Panics   int64 `json:"panics"`
	Pending  int   `json:"pending"`
}

// NewExecutor creates an executor. A zero timeout selects DefaultTimeout.
func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{timeout: timeout}
}

// Submit hands fn to the designated goroutine and blocks until it completes
// or the timeout elapses. When called from inside Tick itself, fn runs
// inline and returns immediately.
func (e *Executor) Submit(fn func() (any, error)) (any, error) {
	if e.tickGID.Load() == gid() {
		return e.invoke(fn)
	}

	u := &unit{fn: fn, done: make(chan struct{})}

	e.mu.Lock()
	e.pending = append(e.pending, u)
	e.mu.Unlock()

	select {
	case <-u.done:
		return u.result, u.err
	case <-time.After(e.timeout):
		u.abandoned.Store(true)
		return nil, ErrHostTimeout
	}
}

// Tick drains at most one pending unit. The host driver must call it
// repeatedly from the one goroutine allowed to touch host state; drain is
// strictly sequential, so a unit that blocks stalls everything behind it.
func (e *Executor) Tick() {
	e.ticks.Add(1)

	e.mu.Lock()
	if len(e.pending) == 0 {
		e.mu.Unlock()
		return
	}
	u := e.pending[0]
	e.pending = e.pending[1:]
	e.mu.Unlock()

	e.tickGID.Store(gid())
	u.result, u.err = e.invoke(u.fn)
	e.tickGID.Store(0)

	if u.abandoned.Load() {
		// The submitter already timed out and went away; the result is dropped.
		log.Printf("[MainThread] unit completed after caller timeout (err=%v)", u.err)
	}
	close(u.done)
}

// invoke runs fn, converting a panic into an error so one bad command never
// unwinds the host's per-frame update loop.
func (e *Executor) invoke(fn func() (any, error)) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			log.Printf("[MainThread] handler panic: %v\n%s", r, debug.Stack())
			result = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	e.executed.Add(1)
	return fn()
}

// PendingCount returns the current queue depth.
func (e *Executor) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Stats returns a snapshot of executor counters.
func (e *Executor) Stats() Stats {
	return Stats{
		Ticks:    e.ticks.Load(),
		Executed: e.executed.Load(),
		Panics:   e.panics.Load(),
		Pending:  e.PendingCount(),
	}
}

package mainthread

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// drive runs a tick loop on its own goroutine until stop is closed.
func drive(e *Executor, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
			e.Tick()
			time.Sleep(time.Millisecond)
		}
	}
}

func TestSubmit_Completes(t *testing.T) {
	e := NewExecutor(5 * time.Second)
	stop := make(chan struct{})
	defer close(stop)
	go drive(e, stop)

	result, err := e.Submit(func() (any, error) {
		return "done", nil
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if result != "done" {
		t.Errorf("Submit() = %v, want done", result)
	}
}

func TestSubmit_HandlerError(t *testing.T) {
	e := NewExecutor(5 * time.Second)
	stop := make(chan struct{})
	defer close(stop)
	go drive(e, stop)

	wantErr := errors.New("target not found")
	_, err := e.Submit(func() (any, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Submit() error = %v, want %v", err, wantErr)
	}
}

func TestSubmit_TimeoutWhenNeverTicked(t *testing.T) {
	e := NewExecutor(100 * time.Millisecond)

	start := time.Now()
	_, err := e.Submit(func() (any, error) {
		return "never", nil
	})
	if !errors.Is(err, ErrHostTimeout) {
		t.Fatalf("Submit() error = %v, want ErrHostTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Submit() returned after %v, before the timeout bound", elapsed)
	}

	// Executor must remain usable: the abandoned unit drains silently and a
	// fresh submission succeeds once ticks resume.
	stop := make(chan struct{})
	defer close(stop)
	go drive(e, stop)

	result, err := e.Submit(func() (any, error) { return "alive", nil })
	if err != nil {
		t.Fatalf("Submit() after timeout error = %v", err)
	}
	if result != "alive" {
		t.Errorf("Submit() after timeout = %v, want alive", result)
	}
}

func TestSubmit_PanicRecovered(t *testing.T) {
	e := NewExecutor(5 * time.Second)
	stop := make(chan struct{})
	defer close(stop)
	go drive(e, stop)

	_, err := e.Submit(func() (any, error) {
		panic("bad handler")
	})
	if err == nil {
		t.Fatal("Submit() error = nil, want panic error")
	}

	// The tick loop survived; the next submission runs normally.
	result, err := e.Submit(func() (any, error) { return 7, nil })
	if err != nil || result != 7 {
		t.Errorf("Submit() after panic = (%v, %v), want (7, nil)", result, err)
	}
	if got := e.Stats().Panics; got != 1 {
		t.Errorf("Stats().Panics = %d, want 1", got)
	}
}

func TestSubmit_InlineFromTickGoroutine(t *testing.T) {
	e := NewExecutor(200 * time.Millisecond)
	stop := make(chan struct{})
	defer close(stop)
	go drive(e, stop)

	// A handler that submits nested work would deadlock without inline
	// execution: the tick goroutine would wait on itself.
	result, err := e.Submit(func() (any, error) {
		return e.Submit(func() (any, error) {
			return "nested", nil
		})
	})
	if err != nil {
		t.Fatalf("nested Submit() error = %v", err)
	}
	if result != "nested" {
		t.Errorf("nested Submit() = %v, want nested", result)
	}
}

func TestTick_FIFOAcrossSubmitters(t *testing.T) {
	e := NewExecutor(5 * time.Second)

	const n = 20
	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			e.Submit(func() (any, error) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil, nil
			})
		}()
		// Wait for this unit to enqueue so submission order is deterministic.
		waitFor := time.After(2 * time.Second)
		for e.PendingCount() < i+1 {
			select {
			case <-waitFor:
				t.Fatalf("unit %d never queued", i)
			default:
				time.Sleep(time.Millisecond)
			}
		}
	}

	// Drain: one unit per tick, strict FIFO.
	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		drained := len(order)
		mu.Unlock()
		if drained == n {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("drained %d of %d units", drained, n)
		default:
			e.Tick()
		}
	}
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("drain order[%d] = %d, want %d (order %v)", i, got, i, order)
		}
	}
}

func TestTick_OneUnitPerTick(t *testing.T) {
	e := NewExecutor(5 * time.Second)

	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func() {
			e.Submit(func() (any, error) { return nil, nil })
			done <- struct{}{}
		}()
	}

	// Wait for all three to queue.
	deadline := time.After(2 * time.Second)
	for e.PendingCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("pending = %d, want 3", e.PendingCount())
		default:
			time.Sleep(time.Millisecond)
		}
	}

	e.Tick()
	if got := e.PendingCount(); got != 2 {
		t.Errorf("after one tick pending = %d, want 2", got)
	}
	e.Tick()
	e.Tick()
	if got := e.PendingCount(); got != 0 {
		t.Errorf("after three ticks pending = %d, want 0", got)
	}
	for i := 0; i < 3; i++ {
		<-done
	}
}

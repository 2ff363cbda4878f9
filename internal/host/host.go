// Package host provides a stand-in host application for running the bridge
// outside a real editor: it drives the main-thread executor's tick loop and
// registers a small set of host commands.
package host

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"hostbridge/internal/codec"
	"hostbridge/internal/command"
	"hostbridge/internal/mainthread"
)

// DefaultTickInterval approximates an editor frame at ~100 ticks/second.
const DefaultTickInterval = 10 * time.Millisecond

// Host simulates the single-threaded host: one goroutine owns all host
// state and drains the executor once per tick.
type Host struct {
	exec     *mainthread.Executor
	interval time.Duration
	started  time.Time

	// Host state; touched only from the tick goroutine.
	counters map[string]int
}

// New creates a host around the executor. A zero interval selects
// DefaultTickInterval.
func New(exec *mainthread.Executor, interval time.Duration) *Host {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Host{
		exec:     exec,
		interval: interval,
		counters: make(map[string]int),
	}
}

// RegisterCommands installs the host command set on the registry.
func (h *Host) RegisterCommands(registry *command.Registry) {
	registry.Register("host/info", h.handleInfo)
	registry.Register("host/echo", h.handleEcho)
	registry.Register("host/sleep", h.handleSleep)
	registry.Register("host/count", h.handleCount)
}

// Run drives the tick loop until ctx is cancelled. It must be the only
// caller of the executor's Tick.
func (h *Host) Run(ctx context.Context) {
	h.started = time.Now()
	log.Printf("[Host] tick loop running every %v", h.interval)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Host] tick loop stopped")
			return
		case <-ticker.C:
			h.exec.Tick()
		}
	}
}

// handleInfo reports host identity and executor statistics. Runs on the
// tick goroutine, so it may read host state freely.
func (h *Host) handleInfo(params map[string]any) (any, error) {
	stats := h.exec.Stats()
	return map[string]any{
		"pid":      os.Getpid(),
		"go":       runtime.Version(),
		"uptime":   time.Since(h.started),
		"ticks":    stats.Ticks,
		"executed": stats.Executed,
		"pending":  stats.Pending,
	}, nil
}

// handleEcho returns its parameters, for wiring checks.
func (h *Host) handleEcho(params map[string]any) (any, error) {
	return map[string]any{"echo": params}, nil
}

// handleSleep stalls the tick goroutine for the given milliseconds. It
// exists to exercise queueing behavior; a real host command should never
// block like this.
func (h *Host) handleSleep(params map[string]any) (any, error) {
	ms := codec.Int(params, "ms")
	if ms <= 0 {
		return nil, fmt.Errorf("ms parameter required")
	}
	if ms > 10_000 {
		return nil, fmt.Errorf("ms must be 10000 or less")
	}
	time.Sleep(time.Duration(ms) * time.Millisecond)
	return map[string]any{"slept_ms": ms}, nil
}

// handleCount increments a named counter in host state, demonstrating a
// mutation that is only safe on the designated goroutine.
func (h *Host) handleCount(params map[string]any) (any, error) {
	name := codec.String(params, "name")
	if name == "" {
		return nil, fmt.Errorf("name parameter required")
	}
	h.counters[name]++
	return map[string]any{"name": name, "value": h.counters[name]}, nil
}

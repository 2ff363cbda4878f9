package host

import (
	"context"
	"sync"
	"testing"
	"time"

	"hostbridge/internal/command"
	"hostbridge/internal/mainthread"
)

func startHost(t *testing.T) (*Host, *command.Registry) {
	t.Helper()

	exec := mainthread.NewExecutor(5 * time.Second)
	h := New(exec, time.Millisecond)
	registry := command.NewRegistry()
	h.RegisterCommands(registry)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return h, registry
}

func TestHostInfo(t *testing.T) {
	h, registry := startHost(t)

	cmd, ok := registry.Resolve("host/info")
	if !ok {
		t.Fatal("host/info not registered")
	}

	result, err := h.exec.Submit(func() (any, error) { return cmd.Invoke(nil) })
	if err != nil {
		t.Fatalf("host/info error = %v", err)
	}
	info := result.(map[string]any)
	if info["pid"].(int) <= 0 {
		t.Errorf("pid = %v", info["pid"])
	}
	if info["ticks"].(int64) <= 0 {
		t.Errorf("ticks = %v, want > 0", info["ticks"])
	}
}

func TestHostCount_MutatesOnDesignatedGoroutine(t *testing.T) {
	h, registry := startHost(t)

	cmd, _ := registry.Resolve("host/count")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			params := map[string]any{"name": "widgets"}
			if _, err := h.exec.Submit(func() (any, error) { return cmd.Invoke(params) }); err != nil {
				t.Errorf("host/count error = %v", err)
			}
		}()
	}
	wg.Wait()

	result, err := h.exec.Submit(func() (any, error) {
		return cmd.Invoke(map[string]any{"name": "widgets"})
	})
	if err != nil {
		t.Fatalf("final host/count error = %v", err)
	}
	if got := result.(map[string]any)["value"].(int); got != 11 {
		t.Errorf("counter = %d, want 11 (10 concurrent + 1 final)", got)
	}
}

func TestHostSleep_Validation(t *testing.T) {
	h, registry := startHost(t)

	cmd, _ := registry.Resolve("host/sleep")
	_, err := h.exec.Submit(func() (any, error) { return cmd.Invoke(map[string]any{}) })
	if err == nil {
		t.Error("host/sleep without ms should fail")
	}
}

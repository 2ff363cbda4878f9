// Package bridge exposes the host's command registry to external automation
// agents over a loopback HTTP endpoint, marshaling every gated command onto
// the host's designated goroutine.
package bridge

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"hostbridge/internal/agentqueue"
	"hostbridge/internal/codec"
	"hostbridge/internal/command"
	"hostbridge/internal/mainthread"
)

// Version identifies the bridge protocol build.
const Version = "0.1.0"

// AnonymousAgent is the caller id assumed when X-Agent-Id is absent.
const AnonymousAgent = "anonymous"

// maxBodySize bounds a request body read. Command parameters are small; a
// megabyte is already generous.
const maxBodySize = 1 << 20

// stopTimeout bounds how long Stop waits for in-flight responses.
const stopTimeout = 5 * time.Second

// Config is the slice of host configuration the bridge consumes.
type Config interface {
	Port() int
	command.GateStore
}

// Server owns the listener and the per-request pipeline: route, gate, queue
// per agent, marshal to the main thread, respond with JSON.
type Server struct {
	cfg      Config
	registry *command.Registry
	gate     *command.Gate
	exec     *mainthread.Executor
	tracker  *agentqueue.Tracker
	feed     *eventFeed

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	running    atomic.Bool
	started    time.Time
}

// New wires a server around the host's command registry and executor. The
// built-in ping/agents/categories commands are registered here, before the
// registry goes read-only.
func New(cfg Config, registry *command.Registry, exec *mainthread.Executor) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		gate:     command.NewGate(cfg),
		exec:     exec,
		tracker:  agentqueue.NewTracker(),
		feed:     newEventFeed(),
	}
	s.registerBuiltins()
	s.tracker.SetObserver(s.feed.broadcast)
	return s
}

// Tracker exposes the session tracker for dashboards and tests.
func (s *Server) Tracker() *agentqueue.Tracker { return s.tracker }

// Addr returns the bound listen address, or "" when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Running reports whether the listener is up.
func (s *Server) Running() bool { return s.running.Load() }

// Start binds the loopback listener and begins serving. Calling Start on a
// running server is a no-op. A failed bind is logged and leaves the server
// stopped; it never takes the host down.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		log.Printf("[Bridge] start ignored, already listening on %s", s.listener.Addr())
		return nil
	}

	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.Port())
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("[Bridge] bind %s failed: %v (bridge stays stopped)", addr, err)
		return fmt.Errorf("bind %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/events", s.feed.handleWebSocket)
	mux.HandleFunc("/api/", s.dispatch)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSONStatus(w, http.StatusNotFound, map[string]any{
			"error": fmt.Sprintf("not found: %s (commands live under /api/)", r.URL.Path),
		})
	})

	s.listener = listener
	s.httpServer = &http.Server{Handler: mux}
	s.started = time.Now()
	s.running.Store(true)

	go func(srv *http.Server, l net.Listener) {
		if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
			// Expected during Stop; anything else while running is a fault.
			if s.running.Load() {
				log.Printf("[Bridge] serve error: %v", err)
			}
		}
	}(s.httpServer, listener)

	log.Printf("[Bridge] listening on %s", listener.Addr())
	return nil
}

// Stop shuts the listener down. The running flag flips first so the serve
// loop can tell an expected close from a fault. Safe to call when stopped.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Swap(false) {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()

	s.feed.closeAll()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.httpServer = nil
	s.listener = nil

	log.Printf("[Bridge] stopped")
	return err
}

// StopForReload stops the bridge ahead of an in-process host reload.
// Listener goroutines alive across such a reload are a known source of
// corruption, so the host must call this before the reload begins.
func (s *Server) StopForReload() {
	if !s.running.Load() {
		return
	}
	log.Printf("[Bridge] stopping ahead of host reload")
	if err := s.Stop(context.Background()); err != nil {
		log.Printf("[Bridge] pre-reload stop: %v", err)
	}
}

// dispatch handles one /api/{command} request on its worker goroutine.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[Bridge] panic serving %s: %v\n%s", r.URL.Path, rec, debug.Stack())
			writeJSONStatus(w, http.StatusInternalServerError, map[string]any{
				"error":      fmt.Sprintf("internal error: %v", rec),
				"stackTrace": string(debug.Stack()),
			})
		}
	}()

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/"), "/")
	if path == "" {
		writeJSONStatus(w, http.StatusNotFound, map[string]any{"error": "missing command path"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		body = nil
	}
	params := codec.Decode(body)

	agentID := r.Header.Get("X-Agent-Id")
	if agentID == "" {
		agentID = AnonymousAgent
	}

	writeJSON(w, s.Invoke(agentID, path, params))
}

// Invoke runs one named command for an agent and returns the structured
// response body. Logical failures come back as {"error": ...} values, never
// as Go errors; this is the single entry point the HTTP handler and the
// in-process host both use.
func (s *Server) Invoke(agentID, path string, params map[string]any) any {
	cmd, ok := s.registry.Resolve(path)
	if !ok {
		return map[string]any{"error": fmt.Sprintf("Unknown command: %s", path)}
	}

	category := command.CategoryOf(path)
	if !s.gate.Enabled(category) {
		return map[string]any{"error": command.DisabledError(category).Error()}
	}

	// Direct commands touch no host state: run on this goroutine, outside
	// the per-agent queue, so introspection works while the host is busy.
	if cmd.Direct {
		result, err := cmd.Invoke(params)
		if err != nil {
			return map[string]any{"error": err.Error()}
		}
		return result
	}

	result, err := s.tracker.Execute(agentID, path, deriveTarget(params), func() (any, error) {
		return s.exec.Submit(func() (any, error) {
			return cmd.Invoke(params)
		})
	})
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return result
}

// deriveTarget pulls a human-readable target out of the parameters for the
// session log, when one is derivable at all.
func deriveTarget(params map[string]any) string {
	for _, key := range []string{"target", "name", "path", "id"} {
		if v := codec.String(params, key); v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(codec.Encode(v))
}

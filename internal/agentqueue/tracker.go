// Package agentqueue serializes bridge requests per calling agent and keeps
// the per-agent session bookkeeping the dashboard and introspection
// endpoints read.
package agentqueue

import (
	"sort"
	"sync"
	"time"
)

const (
	// actionLogSize bounds the recent-action log kept per agent.
	actionLogSize = 50
	// resultCacheSize bounds the cache of recently completed results.
	resultCacheSize = 100
)

// Action statuses recorded in the session log.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ActionEntry is one completed (or failed) action in an agent's log.
type ActionEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	AgentID    string    `json:"agent_id"`
	Command    string    `json:"command"`
	Target     string    `json:"target,omitempty"`
	Status     string    `json:"status"`
	DurationMs int64     `json:"duration_ms"`
}

// SessionSnapshot is a point-in-time copy of one agent session, safe to
// serialize while the session keeps mutating.
type SessionSnapshot struct {
	AgentID               string  `json:"agent_id"`
	CurrentAction         string  `json:"current_action"`
	TotalActions          int64   `json:"total_actions"`
	QueuedRequests        int64   `json:"queued_requests"`
	CompletedRequests     int64   `json:"completed_requests"`
	AverageResponseTimeMs float64 `json:"average_response_time_ms"`
}

// QueueInfo is the aggregate view across all agent sessions.
type QueueInfo struct {
	TotalQueued     int64            `json:"total_queued"`
	ActiveAgents    int              `json:"active_agents"`
	PerAgentQueued  map[string]int64 `json:"per_agent_queued"`
	ResultCacheSize int              `json:"result_cache_size"`
}

// session is the mutable per-agent state. execMu serializes execution
// (strict per-agent FIFO); mu guards the counters and log so readers never
// wait behind a running command.
type session struct {
	agentID string

	execMu sync.Mutex

	mu                sync.Mutex
	currentAction     string
	totalActions      int64
	queuedRequests    int64
	completedRequests int64
	averageMs         float64
	log               []ActionEntry
}

func (s *session) snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionSnapshot{
		AgentID:               s.agentID,
		CurrentAction:         s.currentAction,
		TotalActions:          s.totalActions,
		QueuedRequests:        s.queuedRequests,
		CompletedRequests:     s.completedRequests,
		AverageResponseTimeMs: s.averageMs,
	}
}

// Tracker owns all agent sessions. Sessions are created lazily on first
// request and live for the rest of the process.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*session

	cacheMu sync.Mutex
	results []completedResult

	observer func(ActionEntry)
}

type completedResult struct {
	entry  ActionEntry
	result any
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*session)}
}

// SetObserver installs a callback invoked after every completed action, on
// the worker goroutine that ran it. Install before serving traffic.
func (t *Tracker) SetObserver(fn func(ActionEntry)) {
	t.observer = fn
}

// Execute runs work under the agent's session: at most one in-flight
// command per agent, queue depth accounted while waiting, totals and the
// action log updated on completion. work failures and host timeouts are the
// only failure outcomes; the queue itself never rejects for capacity.
func (t *Tracker) Execute(agentID, commandName, target string, work func() (any, error)) (any, error) {
	s := t.session(agentID)

	s.mu.Lock()
	s.queuedRequests++
	s.mu.Unlock()

	s.execMu.Lock()
	defer s.execMu.Unlock()

	// Off the wait queue, now in flight.
	s.mu.Lock()
	s.queuedRequests--
	s.currentAction = commandName
	s.mu.Unlock()

	start := time.Now()
	result, err := work()
	elapsed := time.Since(start)

	status := StatusCompleted
	if err != nil {
		status = StatusFailed
	}
	entry := ActionEntry{
		Timestamp:  start,
		AgentID:    agentID,
		Command:    commandName,
		Target:     target,
		Status:     status,
		DurationMs: elapsed.Milliseconds(),
	}

	s.mu.Lock()
	s.totalActions++
	s.completedRequests++
	s.averageMs += (float64(elapsed.Milliseconds()) - s.averageMs) / float64(s.completedRequests)
	s.currentAction = ""
	s.log = append(s.log, entry)
	if len(s.log) > actionLogSize {
		s.log = s.log[len(s.log)-actionLogSize:]
	}
	s.mu.Unlock()

	t.cacheResult(entry, result)

	if t.observer != nil {
		t.observer(entry)
	}

	return result, err
}

// session returns the agent's session, creating it on first sight.
func (t *Tracker) session(agentID string) *session {
	t.mu.RLock()
	s, ok := t.sessions[agentID]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.sessions[agentID]; ok {
		return s
	}
	s = &session{agentID: agentID}
	t.sessions[agentID] = s
	return s
}

func (t *Tracker) cacheResult(entry ActionEntry, result any) {
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()
	t.results = append(t.results, completedResult{entry: entry, result: result})
	if len(t.results) > resultCacheSize {
		t.results = t.results[len(t.results)-resultCacheSize:]
	}
}

// ActiveSessionCount returns the number of sessions ever seen this process.
func (t *Tracker) ActiveSessionCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// TotalQueuedCount sums pending requests across all sessions.
func (t *Tracker) TotalQueuedCount() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total int64
	for _, s := range t.sessions {
		s.mu.Lock()
		total += s.queuedRequests
		s.mu.Unlock()
	}
	return total
}

// Sessions returns a snapshot of every agent session, sorted by agent id.
func (t *Tracker) Sessions() []SessionSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snaps := make([]SessionSnapshot, 0, len(t.sessions))
	for _, s := range t.sessions {
		snaps = append(snaps, s.snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].AgentID < snaps[j].AgentID })
	return snaps
}

// Info returns the aggregate queue view.
func (t *Tracker) Info() QueueInfo {
	t.mu.RLock()
	perAgent := make(map[string]int64, len(t.sessions))
	var total int64
	for id, s := range t.sessions {
		s.mu.Lock()
		perAgent[id] = s.queuedRequests
		total += s.queuedRequests
		s.mu.Unlock()
	}
	active := len(t.sessions)
	t.mu.RUnlock()

	t.cacheMu.Lock()
	cacheSize := len(t.results)
	t.cacheMu.Unlock()

	return QueueInfo{
		TotalQueued:     total,
		ActiveAgents:    active,
		PerAgentQueued:  perAgent,
		ResultCacheSize: cacheSize,
	}
}

// AgentLog returns a copy of the agent's recent-action log, oldest first.
// Unknown agents get an empty log.
func (t *Tracker) AgentLog(agentID string) []ActionEntry {
	t.mu.RLock()
	s, ok := t.sessions[agentID]
	t.mu.RUnlock()
	if !ok {
		return []ActionEntry{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ActionEntry, len(s.log))
	copy(out, s.log)
	return out
}

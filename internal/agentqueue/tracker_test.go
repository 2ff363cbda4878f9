package agentqueue

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_CreatesSessionAndTracks(t *testing.T) {
	tr := NewTracker()

	result, err := tr.Execute("agentA", "scene/open", "Assets/Main.scene", func() (any, error) {
		return map[string]any{"opened": true}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	snaps := tr.Sessions()
	require.Len(t, snaps, 1)
	assert.Equal(t, "agentA", snaps[0].AgentID)
	assert.Equal(t, int64(1), snaps[0].TotalActions)
	assert.Equal(t, int64(1), snaps[0].CompletedRequests)
	assert.Equal(t, int64(0), snaps[0].QueuedRequests)
	assert.Equal(t, "", snaps[0].CurrentAction)

	log := tr.AgentLog("agentA")
	require.Len(t, log, 1)
	assert.Equal(t, "scene/open", log[0].Command)
	assert.Equal(t, "Assets/Main.scene", log[0].Target)
	assert.Equal(t, StatusCompleted, log[0].Status)
}

func TestExecute_FailureRecorded(t *testing.T) {
	tr := NewTracker()

	_, err := tr.Execute("agentA", "scene/open", "", func() (any, error) {
		return nil, errors.New("scene not found")
	})
	require.Error(t, err)

	log := tr.AgentLog("agentA")
	require.Len(t, log, 1)
	assert.Equal(t, StatusFailed, log[0].Status)

	// Failures still count toward totals.
	snaps := tr.Sessions()
	assert.Equal(t, int64(1), snaps[0].TotalActions)
	assert.Equal(t, int64(1), snaps[0].CompletedRequests)
}

// Requests from one agent never overlap, and the completion log preserves
// submission order.
func TestExecute_PerAgentSerialization(t *testing.T) {
	tr := NewTracker()

	var inFlight atomic.Int32
	var overlaps atomic.Int32

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Execute("agentA", "scene/save", "", func() (any, error) {
				if inFlight.Add(1) > 1 {
					overlaps.Add(1)
				}
				time.Sleep(time.Millisecond)
				inFlight.Add(-1)
				return nil, nil
			})
		}()
	}
	wg.Wait()

	assert.Zero(t, overlaps.Load(), "two actions from the same agent ran concurrently")

	snaps := tr.Sessions()
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(n), snaps[0].TotalActions)
	assert.Equal(t, int64(0), snaps[0].QueuedRequests)
}

// A second agent's request completes while the first agent's is stalled.
func TestExecute_CrossAgentIndependence(t *testing.T) {
	tr := NewTracker()

	release := make(chan struct{})
	started := make(chan struct{})

	go tr.Execute("agentA", "scene/bake", "", func() (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	<-started

	done := make(chan struct{})
	go func() {
		tr.Execute("agentB", "ping", "", func() (any, error) { return "ok", nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("agentB blocked behind agentA's in-flight request")
	}
	close(release)
}

// While one request executes, a second from the same agent reports queue
// depth 1; after both finish the depth returns to 0 with two total actions.
func TestExecute_QueueDepthAccounting(t *testing.T) {
	tr := NewTracker()

	release := make(chan struct{})
	started := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tr.Execute("agentA", "scene/slow", "", func() (any, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started

	go func() {
		defer wg.Done()
		tr.Execute("agentA", "scene/fast", "", func() (any, error) { return nil, nil })
	}()

	// Wait for the second request to be counted as queued.
	require.Eventually(t, func() bool {
		snaps := tr.Sessions()
		return len(snaps) == 1 && snaps[0].QueuedRequests == 1
	}, 2*time.Second, 5*time.Millisecond, "second request never showed up as queued")

	snaps := tr.Sessions()
	assert.Equal(t, "scene/slow", snaps[0].CurrentAction)
	assert.Equal(t, int64(1), tr.TotalQueuedCount())

	close(release)
	wg.Wait()

	snaps = tr.Sessions()
	assert.Equal(t, int64(0), snaps[0].QueuedRequests)
	assert.Equal(t, int64(2), snaps[0].TotalActions)
	assert.Equal(t, "", snaps[0].CurrentAction)
}

func TestAgentLog_Bounded(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < actionLogSize+10; i++ {
		tr.Execute("agentA", "asset/create", "", func() (any, error) { return nil, nil })
	}

	log := tr.AgentLog("agentA")
	assert.Len(t, log, actionLogSize)

	info := tr.Info()
	assert.Equal(t, actionLogSize+10, info.ResultCacheSize)
	assert.Equal(t, 1, info.ActiveAgents)
}

func TestAgentLog_UnknownAgent(t *testing.T) {
	tr := NewTracker()
	assert.Empty(t, tr.AgentLog("ghost"))
	assert.Equal(t, 0, tr.ActiveSessionCount())
}

func TestObserver(t *testing.T) {
	tr := NewTracker()

	var got []ActionEntry
	var mu sync.Mutex
	tr.SetObserver(func(e ActionEntry) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})

	tr.Execute("agentA", "scene/open", "Main", func() (any, error) { return nil, nil })

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "scene/open", got[0].Command)
	assert.Equal(t, "agentA", got[0].AgentID)
}

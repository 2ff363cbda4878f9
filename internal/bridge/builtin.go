package bridge

import (
	"fmt"
	"time"

	"hostbridge/internal/codec"
	"hostbridge/internal/command"
)

// registerBuiltins installs the bridge's own commands. They are direct:
// none of them touch host state, so they stay responsive even while the
// designated goroutine is stalled or saturated.
func (s *Server) registerBuiltins() {
	s.registry.RegisterDirect("ping", s.handlePing)
	s.registry.RegisterDirect("agents/list", s.handleAgentsList)
	s.registry.RegisterDirect("agents/log", s.handleAgentsLog)
	s.registry.RegisterDirect("categories/list", s.handleCategoriesList)
	s.registry.RegisterDirect("categories/set", s.handleCategoriesSet)
}

// handlePing is the health/identity check. Always reachable: the ping
// category is reserved and bypasses gating.
func (s *Server) handlePing(params map[string]any) (any, error) {
	resp := map[string]any{
		"status":  "ok",
		"service": "hostbridge",
		"version": Version,
	}
	if s.running.Load() {
		resp["uptime"] = time.Since(s.started)
	}
	return resp, nil
}

// handleAgentsList returns a snapshot of every agent session.
func (s *Server) handleAgentsList(params map[string]any) (any, error) {
	sessions := s.tracker.Sessions()
	info := s.tracker.Info()
	return map[string]any{
		"agents":            sessions,
		"count":             len(sessions),
		"total_queued":      info.TotalQueued,
		"per_agent_queued":  info.PerAgentQueued,
		"result_cache_size": info.ResultCacheSize,
	}, nil
}

// handleAgentsLog returns the recent-action log for one agent.
func (s *Server) handleAgentsLog(params map[string]any) (any, error) {
	agentID := codec.String(params, "agent_id")
	if agentID == "" {
		return nil, fmt.Errorf("agent_id parameter required")
	}
	entries := s.tracker.AgentLog(agentID)
	return map[string]any{
		"agent_id": agentID,
		"entries":  entries,
		"count":    len(entries),
	}, nil
}

// handleCategoriesList reports every known category and its gate state.
func (s *Server) handleCategoriesList(params map[string]any) (any, error) {
	cats := s.registry.Categories()
	out := make([]map[string]any, 0, len(cats))
	for _, cat := range cats {
		out = append(out, map[string]any{
			"name":     cat,
			"enabled":  s.gate.Enabled(cat),
			"reserved": command.Reserved(cat),
		})
	}
	return map[string]any{"categories": out, "count": len(out)}, nil
}

// handleCategoriesSet flips a category's gate flag and persists it.
func (s *Server) handleCategoriesSet(params map[string]any) (any, error) {
	name := codec.String(params, "category")
	if name == "" {
		return nil, fmt.Errorf("category parameter required")
	}
	if _, ok := params["enabled"]; !ok {
		return nil, fmt.Errorf("enabled parameter required")
	}
	enabled := codec.Bool(params, "enabled")

	if err := s.gate.SetEnabled(name, enabled); err != nil {
		return nil, err
	}
	return map[string]any{"category": name, "enabled": enabled}, nil
}

// Package tools exposes a running host bridge to MCP clients: each tool is
// a thin HTTP client of the bridge's command endpoint.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// BridgeTools holds the connection details for a running bridge.
type BridgeTools struct {
	baseURL string
	agentID string
	client  *http.Client
}

// NewBridgeTools creates a tools wrapper targeting the bridge at baseURL
// (e.g. "http://127.0.0.1:8765"). agentID becomes the X-Agent-Id of every
// call, so each MCP client shows up as its own agent session.
func NewBridgeTools(baseURL, agentID string) *BridgeTools {
	if agentID == "" {
		agentID = "mcp"
	}
	return &BridgeTools{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		agentID: agentID,
		// The bridge's own main-thread wait is bounded at 25s; leave
		// headroom so its timeout error reaches the client as data.
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// call posts one command to the bridge and decodes the JSON response.
func (bt *BridgeTools) call(path string, params any) (map[string]any, error) {
	var body bytes.Buffer
	if params != nil {
		if err := json.NewEncoder(&body).Encode(params); err != nil {
			return nil, fmt.Errorf("encode params: %w", err)
		}
	}

	req, err := http.NewRequest(http.MethodPost, bt.baseURL+"/api/"+path, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Agent-Id", bt.agentID)

	resp, err := bt.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bridge unreachable at %s: %w", bt.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read bridge response: %w", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("bridge returned non-JSON (%d): %s", resp.StatusCode, raw)
	}
	return decoded, nil
}

// CommandInput defines input for the command tool.
type CommandInput struct {
	Path   string         `json:"path" jsonschema:"Command path, e.g. scene/open or host/info"`
	Params map[string]any `json:"params,omitempty" jsonschema:"Command parameters as a JSON object"`
}

// CommandOutput defines output for command.
type CommandOutput struct {
	Result map[string]any `json:"result,omitempty"`
}

// AgentsInput defines input for the agents tool.
type AgentsInput struct {
	Action  string `json:"action" jsonschema:"Action: list or log"`
	AgentID string `json:"agent_id,omitempty" jsonschema:"Agent id (required for log)"`
}

// AgentsOutput defines output for agents.
type AgentsOutput struct {
	Agents      []map[string]any `json:"agents,omitempty"`
	Count       int              `json:"count"`
	TotalQueued int64            `json:"total_queued,omitempty"`
	Entries     []map[string]any `json:"entries,omitempty"`
}

// CategoriesInput defines input for the categories tool.
type CategoriesInput struct {
	Action   string `json:"action" jsonschema:"Action: list or set"`
	Category string `json:"category,omitempty" jsonschema:"Category name (required for set)"`
	Enabled  bool   `json:"enabled,omitempty" jsonschema:"New flag value (for set)"`
}

// CategoriesOutput defines output for categories.
type CategoriesOutput struct {
	Categories []map[string]any `json:"categories,omitempty"`
	Category   string           `json:"category,omitempty"`
	Enabled    bool             `json:"enabled,omitempty"`
}

// RegisterBridgeTools adds the bridge tools to an MCP server.
func RegisterBridgeTools(server *mcp.Server, bt *BridgeTools) {
	mcp.AddTool(server, &mcp.Tool{
		Name: "command",
		Description: `Execute a named host command through the bridge.

The command runs on the host's main thread; logical failures come back in
the result's "error" field, not as tool errors.

Examples:
  command {path: "ping"}
  command {path: "host/info"}
  command {path: "scene/open", params: {path: "Assets/Main.scene"}}`,
	}, bt.makeCommandHandler())

	mcp.AddTool(server, &mcp.Tool{
		Name: "agents",
		Description: `Inspect agent sessions on the bridge.

Examples:
  agents {action: "list"}
  agents {action: "log", agent_id: "claude-code"}`,
	}, bt.makeAgentsHandler())

	mcp.AddTool(server, &mcp.Tool{
		Name: "categories",
		Description: `List or flip command category gating.

Disabled categories reject every command sharing their prefix before it
reaches the host. ping and agents are reserved and cannot be disabled.

Examples:
  categories {action: "list"}
  categories {action: "set", category: "scene", enabled: false}`,
	}, bt.makeCategoriesHandler())
}

func (bt *BridgeTools) makeCommandHandler() func(context.Context, *mcp.CallToolRequest, CommandInput) (*mcp.CallToolResult, CommandOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input CommandInput) (*mcp.CallToolResult, CommandOutput, error) {
		if input.Path == "" {
			return errorResult("path required"), CommandOutput{}, nil
		}

		result, err := bt.call(input.Path, input.Params)
		if err != nil {
			return errorResult(err.Error()), CommandOutput{}, nil
		}
		return nil, CommandOutput{Result: result}, nil
	}
}

func (bt *BridgeTools) makeAgentsHandler() func(context.Context, *mcp.CallToolRequest, AgentsInput) (*mcp.CallToolResult, AgentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AgentsInput) (*mcp.CallToolResult, AgentsOutput, error) {
		switch input.Action {
		case "list", "":
			result, err := bt.call("agents/list", nil)
			if err != nil {
				return errorResult(err.Error()), AgentsOutput{}, nil
			}
			return nil, AgentsOutput{
				Agents:      getMapSlice(result, "agents"),
				Count:       getInt(result, "count"),
				TotalQueued: int64(getInt(result, "total_queued")),
			}, nil

		case "log":
			if input.AgentID == "" {
				return errorResult("agent_id required for log"), AgentsOutput{}, nil
			}
			result, err := bt.call("agents/log", map[string]any{"agent_id": input.AgentID})
			if err != nil {
				return errorResult(err.Error()), AgentsOutput{}, nil
			}
			if msg := getString(result, "error"); msg != "" {
				return errorResult(msg), AgentsOutput{}, nil
			}
			return nil, AgentsOutput{
				Entries: getMapSlice(result, "entries"),
				Count:   getInt(result, "count"),
			}, nil

		default:
			return errorResult(fmt.Sprintf("unknown action %q", input.Action)), AgentsOutput{}, nil
		}
	}
}

func (bt *BridgeTools) makeCategoriesHandler() func(context.Context, *mcp.CallToolRequest, CategoriesInput) (*mcp.CallToolResult, CategoriesOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input CategoriesInput) (*mcp.CallToolResult, CategoriesOutput, error) {
		switch input.Action {
		case "list", "":
			result, err := bt.call("categories/list", nil)
			if err != nil {
				return errorResult(err.Error()), CategoriesOutput{}, nil
			}
			return nil, CategoriesOutput{Categories: getMapSlice(result, "categories")}, nil

		case "set":
			if input.Category == "" {
				return errorResult("category required for set"), CategoriesOutput{}, nil
			}
			result, err := bt.call("categories/set", map[string]any{
				"category": input.Category,
				"enabled":  input.Enabled,
			})
			if err != nil {
				return errorResult(err.Error()), CategoriesOutput{}, nil
			}
			if msg := getString(result, "error"); msg != "" {
				return errorResult(msg), CategoriesOutput{}, nil
			}
			return nil, CategoriesOutput{
				Category: getString(result, "category"),
				Enabled:  getBool(result, "enabled"),
			}, nil

		default:
			return errorResult(fmt.Sprintf("unknown action %q", input.Action)), CategoriesOutput{}, nil
		}
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getInt(m map[string]any, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}

func getBool(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

func getMapSlice(m map[string]any, key string) []map[string]any {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, elem := range raw {
		if entry, ok := elem.(map[string]any); ok {
			out = append(out, entry)
		}
	}
	return out
}

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bridge health and agent sessions",
	Run:   runStatus,
}

var statusEndpoint string

func init() {
	statusCmd.Flags().StringVar(&statusEndpoint, "endpoint", "", "Bridge base URL (default from settings file)")
}

func defaultEndpoint(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

func runStatus(cmd *cobra.Command, args []string) {
	endpoint := statusEndpoint
	if endpoint == "" {
		endpoint = defaultEndpoint(loadSettings(cmd).Port())
	}

	client := &http.Client{Timeout: 3 * time.Second}

	ping, err := fetch(client, endpoint+"/api/ping")
	if err != nil {
		fmt.Fprintf(os.Stderr, "bridge not reachable at %s: %v\n", endpoint, err)
		os.Exit(1)
	}
	fmt.Printf("bridge:  %s (v%v) at %s\n", ping["status"], ping["version"], endpoint)

	agents, err := fetch(client, endpoint+"/api/agents/list")
	if err != nil {
		fmt.Fprintf(os.Stderr, "agents/list failed: %v\n", err)
		os.Exit(1)
	}

	count, _ := agents["count"].(float64)
	queued, _ := agents["total_queued"].(float64)
	fmt.Printf("agents:  %.0f active, %.0f queued\n", count, queued)

	list, _ := agents["agents"].([]any)
	for _, entry := range list {
		a, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		current, _ := a["current_action"].(string)
		if current == "" {
			current = "idle"
		}
		fmt.Printf("  %-20v total=%v queued=%v avg=%.1fms %s\n",
			a["agent_id"], a["total_actions"], a["queued_requests"],
			floatOf(a["average_response_time_ms"]), current)
	}
}

func fetch(client *http.Client, url string) (map[string]any, error) {
	resp, err := client.Post(url, "application/json", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

func floatOf(v any) float64 {
	f, _ := v.(float64)
	return f
}

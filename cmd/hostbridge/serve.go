package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hostbridge/internal/bridge"
	"hostbridge/internal/command"
	"hostbridge/internal/config"
	"hostbridge/internal/host"
	"hostbridge/internal/mainthread"
	"hostbridge/internal/tools"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge with a simulated host",
	Long: `Run the bridge standalone, with a built-in host simulator driving the
main-thread tick loop. Useful for development and for exercising agents
against the bridge without a real host application.`,
	Run: runServe,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run as MCP server against a running bridge",
	Long: `Run as an MCP (Model Context Protocol) stdio server exposing a running
bridge's commands as tools. Point AI coding assistants at this command to
drive the host.`,
	Run: runMCP,
}

var (
	servePort   int
	mcpEndpoint string
	mcpAgentID  string
)

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides the settings file)")
	mcpCmd.Flags().StringVar(&mcpEndpoint, "endpoint", "", "Bridge base URL (default from settings file)")
	mcpCmd.Flags().StringVar(&mcpAgentID, "agent-id", "", "Agent id reported to the bridge (default \"mcp\")")
}

// loadSettings reads the settings file named by --config, defaulting to
// ./hostbridge.kdl.
func loadSettings(cmd *cobra.Command) *config.Settings {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.SettingsFileName
	}

	settings, err := config.Load(path)
	if err != nil {
		log.Printf("[Serve] settings load failed (%v), using defaults", err)
		return config.Defaults()
	}
	return settings
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	settings := loadSettings(cmd)
	if servePort > 0 {
		settings.SetPort(servePort)
	}

	exec := mainthread.NewExecutor(0)
	registry := command.NewRegistry()

	sim := host.New(exec, 0)
	sim.RegisterCommands(registry)

	server := bridge.New(settings, registry, exec)
	if err := server.Start(); err != nil {
		log.Printf("[Serve] bridge failed to start: %v", err)
		os.Exit(1)
	}

	log.Printf("[Serve] bridge up at http://%s (agent header: X-Agent-Id)", server.Addr())

	// The simulator goroutine is the designated thread: the only place
	// executor ticks, and therefore command handlers, ever run.
	go sim.Run(ctx)

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := server.Stop(stopCtx); err != nil {
		log.Printf("[Serve] shutdown: %v", err)
	}
}

func runMCP(cmd *cobra.Command, args []string) {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	endpoint := mcpEndpoint
	if endpoint == "" {
		settings := loadSettings(cmd)
		endpoint = defaultEndpoint(settings.Port())
	}

	bt := tools.NewBridgeTools(endpoint, mcpAgentID)

	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    appName,
			Version: appVersion,
		},
		&mcp.ServerOptions{
			HasTools: true,
			Instructions: `Control bridge for a single-threaded host application.

Every command runs on the host's main thread; requests from this client are
serialized with each other but run independently of other agents.

Available tools:
- command: execute a named host command (ping, host/info, scene/open, ...)
- agents: inspect agent sessions and per-agent action logs
- categories: list or toggle command category gating`,
		},
	)

	tools.RegisterBridgeTools(server, bt)

	log.SetOutput(os.Stderr)
	log.Printf("Starting %s v%s (MCP mode, bridge at %s)", appName, appVersion, endpoint)

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		if ctx.Err() == nil {
			log.Fatalf("MCP server error: %v", err)
		}
	}

	log.Println("MCP server shutdown complete")
}

// Command agentmuxd is the unified AgentMux core binary. As a daemon it runs
// the Heartbeat & Agent-Status Store, its stale-agent Watchdog, and exposes
// the store to connecting agents over an MCP Streamable HTTP endpoint. Its
// "create-session" subcommand drives the Session Lifecycle Supervisor
// directly, standing in for the external orchestration layer that would
// normally call it over the network.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/coreconfig"
	"github.com/agentmux/agentmux/internal/corelog"
	"github.com/agentmux/agentmux/internal/heartbeat"
	"github.com/agentmux/agentmux/internal/mcpheartbeat"
	"github.com/agentmux/agentmux/internal/storage"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "create-session" {
		runCreateSessionFromCLI(os.Args[2:])
		return
	}

	cfg, err := coreconfig.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := corelog.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting agentmuxd")

	home, err := coreconfig.Home()
	if err != nil {
		log.Error("failed to resolve AGENTMUX_HOME", zap.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	domainStore := storage.New()

	statusPath := filepath.Join(home, "teamAgentStatus.json")
	heartbeatStore := heartbeat.NewStore(statusPath, cfg.Heartbeat, log)
	defer heartbeatStore.Close()

	watchdog := heartbeat.NewWatchdog(
		heartbeatStore,
		domainStore,
		time.Minute,
		cfg.Heartbeat.StaleThreshold(),
		log,
	)
	go watchdog.Start(ctx)
	defer watchdog.Stop()

	heartbeatTools := mcpheartbeat.New(heartbeatStore)
	mcpPort := 8943
	if v := os.Getenv("AGENTMUX_MCP_PORT"); v != "" {
		if p, convErr := parsePort(v); convErr == nil {
			mcpPort = p
		}
	}
	mcpServer := mcpheartbeat.NewHTTPServer(heartbeatTools, mcpheartbeat.HTTPConfig{Port: mcpPort}, log)
	if err := mcpServer.Start(ctx); err != nil {
		log.Error("failed to start heartbeat MCP server", zap.Error(err))
		os.Exit(1)
	}
	log.Info("heartbeat MCP server listening", zap.Int("port", mcpPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down agentmuxd")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := mcpServer.Stop(shutdownCtx); err != nil {
		log.Error("heartbeat MCP server shutdown error", zap.Error(err))
	}

	log.Info("agentmuxd stopped")
}

func parsePort(s string) (int, error) {
	var p int
	_, err := fmt.Sscanf(s, "%d", &p)
	return p, err
}

package mcpheartbeat

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/corelog"
)

// HTTPConfig configures the Streamable HTTP transport the fleet's agents
// connect to.
type HTTPConfig struct {
	Port int
}

// HTTPServer serves the heartbeat tools over the Streamable HTTP transport,
// the one agent CLIs speak when launched with an MCP server URL.
type HTTPServer struct {
	cfg        HTTPConfig
	mcpServer  *server.MCPServer
	httpServer *http.Server
	log        *corelog.Logger

	mu      sync.Mutex
	running bool
}

// NewHTTPServer builds the underlying MCPServer, registers the heartbeat
// tools and middleware, and wraps it for Streamable HTTP serving.
func NewHTTPServer(heartbeats *Server, cfg HTTPConfig, log *corelog.Logger) *HTTPServer {
	if log == nil {
		log = corelog.Default()
	}
	mcpServer := server.NewMCPServer(
		"agentmux-heartbeat",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithToolHandlerMiddleware(heartbeats.Middleware()),
		server.WithHooks(heartbeats.Hooks()),
	)
	heartbeats.Register(mcpServer)

	return &HTTPServer{cfg: cfg, mcpServer: mcpServer, log: log}
}

// Start listens on cfg.Port and serves the Streamable HTTP transport at
// /mcp until ctx is cancelled or Stop is called.
func (s *HTTPServer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("mcpheartbeat: server already running")
	}
	s.mu.Unlock()

	streamSrv := server.NewStreamableHTTPServer(s.mcpServer, server.WithEndpointPath("/mcp"))

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("mcpheartbeat: listen on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{Handler: streamSrv}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("mcpheartbeat: server error", zap.Error(err))
		}
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	return nil
}

// Stop gracefully shuts down the HTTP transport.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running || s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

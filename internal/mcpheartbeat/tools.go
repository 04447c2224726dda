package mcpheartbeat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentmux/agentmux/internal/agentmodel"
	"github.com/agentmux/agentmux/internal/heartbeat"
)

// Server wires the Heartbeat Store into an mcp-go MCPServer: one tool an
// agent calls to bind its MCP session to an AgentMux identity, one to read
// the fleet's current status, and a middleware that heartbeats on every
// other tool call made by a bound session.
type Server struct {
	store    *heartbeat.Store
	sessions *sessionRegistry
}

// New constructs a Server over store. Call Register to attach its tools and
// middleware to an *server.MCPServer during setup.
func New(store *heartbeat.Store) *Server {
	return &Server{store: store, sessions: newSessionRegistry()}
}

// Register adds the heartbeat tools to s. Call once per MCPServer, before
// serving.
func (s *Server) Register(mcpServer *server.MCPServer) {
	s.registerBindSession(mcpServer)
	s.registerGetFleetStatus(mcpServer)
}

func (s *Server) registerBindSession(mcpServer *server.MCPServer) {
	mcpServer.AddTool(
		mcp.NewTool("register_agent_session",
			mcp.WithDescription("Bind this MCP connection to an AgentMux session identity. Call once after connecting, before any other tool call, so subsequent calls count as heartbeats."),
			mcp.WithString("session_name", mcp.Required(), mcp.Description("The tmux session name this agent runs in")),
			mcp.WithString("team_member_id", mcp.Description("Team member ID, if this agent belongs to a team (omit for the orchestrator)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			clientSession := server.ClientSessionFromContext(ctx)
			if clientSession == nil {
				return nil, fmt.Errorf("register_agent_session: no client session in context")
			}
			args := req.GetArguments()
			sessionName, _ := args["session_name"].(string)
			if sessionName == "" {
				return nil, fmt.Errorf("session_name is required")
			}
			teamMemberID, _ := args["team_member_id"].(string)

			s.sessions.bind(clientSession.SessionID(), sessionName, teamMemberID)
			s.store.UpdateAgentHeartbeat(sessionName, teamMemberID, agentmodel.StatusActive)

			return mcp.NewToolResultText(fmt.Sprintf("session %s bound, heartbeat recorded", sessionName)), nil
		},
	)
}

func (s *Server) registerGetFleetStatus(mcpServer *server.MCPServer) {
	mcpServer.AddTool(
		mcp.NewTool("get_fleet_status",
			mcp.WithDescription("Return the current heartbeat record for every known agent."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			all, err := s.store.GetAllAgentHeartbeats()
			if err != nil {
				return nil, err
			}
			data, err := json.Marshal(all)
			if err != nil {
				return nil, err
			}
			return mcp.NewToolResultText(string(data)), nil
		},
	)
}

package mcpheartbeat

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Middleware returns a server.ToolHandlerMiddleware that heartbeats the
// calling session's bound identity on every successful tool call, turning
// "every tool call is a heartbeat" from a design note into the actual
// request path.
func (s *Server) Middleware() server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			result, err := next(ctx, req)
			if err != nil || result == nil || result.IsError {
				return result, err
			}

			clientSession := server.ClientSessionFromContext(ctx)
			if clientSession == nil {
				return result, nil
			}
			identity, ok := s.sessions.lookup(clientSession.SessionID())
			if !ok {
				return result, nil
			}
			s.store.UpdateAgentHeartbeat(identity.sessionName, identity.teamMemberID, "")
			return result, nil
		}
	}
}

// Hooks returns the session-lifecycle hooks to attach via
// server.WithHooks(...) so a disconnecting agent's binding is released.
func (s *Server) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		s.sessions.unbind(session.SessionID())
	})
	return hooks
}

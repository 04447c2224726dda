// Package mcpheartbeat exposes the Heartbeat Store to MCP clients: a tool an
// agent calls once to bind its MCP session to an AgentMux session identity,
// and a middleware that turns every subsequent tool call the agent makes
// into a proof-of-life heartbeat, per the "every tool call is a heartbeat"
// design in the core.
package mcpheartbeat

import "sync"

// sessionIdentity is what register_agent_session binds an MCP session ID to.
type sessionIdentity struct {
	sessionName  string
	teamMemberID string
}

// sessionRegistry maps MCP client session IDs to the AgentMux agent identity
// operating through them. An agent must call register_agent_session once
// after connecting; until then its other tool calls don't heartbeat anyone.
type sessionRegistry struct {
	mu    sync.RWMutex
	byMCP map[string]sessionIdentity
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{byMCP: make(map[string]sessionIdentity)}
}

func (r *sessionRegistry) bind(mcpSessionID, sessionName, teamMemberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byMCP[mcpSessionID] = sessionIdentity{sessionName: sessionName, teamMemberID: teamMemberID}
}

func (r *sessionRegistry) lookup(mcpSessionID string) (sessionIdentity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byMCP[mcpSessionID]
	return id, ok
}

func (r *sessionRegistry) unbind(mcpSessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byMCP, mcpSessionID)
}

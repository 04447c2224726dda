package heartbeat

import (
	"time"

	"github.com/agentmux/agentmux/internal/agentmodel"
)

// fileVersion is stamped into every persisted status file's metadata.
const fileVersion = "1.0.0"

// AgentRecord is one agent's entry in the status file: the orchestrator
// record and every teamMembers[id] entry share this shape.
type AgentRecord struct {
	AgentID        string          `json:"agentId"`
	SessionName    string          `json:"sessionName"`
	TeamMemberID   string          `json:"teamMemberId,omitempty"`
	AgentStatus    agentmodel.Status `json:"agentStatus"`
	LastActiveTime time.Time       `json:"lastActiveTime"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Metadata is the status file's top-level bookkeeping block.
type Metadata struct {
	LastUpdated time.Time `json:"lastUpdated"`
	Version     string    `json:"version"`
}

// TeamAgentStatusFile is the on-disk shape of teamAgentStatus.json, the only
// persisted artifact this module owns.
type TeamAgentStatusFile struct {
	Orchestrator *AgentRecord            `json:"orchestrator,omitempty"`
	TeamMembers  map[string]*AgentRecord `json:"teamMembers"`
	Metadata     Metadata                `json:"metadata"`
}

func defaultStatusFile() *TeamAgentStatusFile {
	return &TeamAgentStatusFile{
		TeamMembers: make(map[string]*AgentRecord),
		Metadata:    Metadata{Version: fileVersion},
	}
}

// BatchedUpdate is one queued heartbeat, keyed by AgentID in the Batcher's
// pending map so repeated updates for the same agent collapse to the latest.
type BatchedUpdate struct {
	AgentID      string
	SessionName  string
	TeamMemberID string
	AgentStatus  agentmodel.Status
	Timestamp    time.Time
}

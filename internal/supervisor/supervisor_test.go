package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/agentmux/agentmux/internal/agentmodel"
	"github.com/agentmux/agentmux/internal/coreconfig"
	"github.com/agentmux/agentmux/internal/corerr"
	"github.com/agentmux/agentmux/internal/delivery"
	"github.com/agentmux/agentmux/internal/prompttemplate"
	"github.com/agentmux/agentmux/internal/ptysession"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	teams           []agentmodel.Team
	orchestrator    *agentmodel.OrchestratorStatus
	teamsErr        error
	orchestratorErr error
	updatedAgents   map[string]agentmodel.Status
	orchestratorSet agentmodel.Status
	updateErr       error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{updatedAgents: make(map[string]agentmodel.Status)}
}

func (f *fakeStorage) GetTeams() ([]agentmodel.Team, error) { return f.teams, f.teamsErr }
func (f *fakeStorage) GetOrchestratorStatus() (*agentmodel.OrchestratorStatus, error) {
	return f.orchestrator, f.orchestratorErr
}
func (f *fakeStorage) UpdateAgentStatus(sessionName string, status agentmodel.Status) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updatedAgents[sessionName] = status
	return nil
}
func (f *fakeStorage) UpdateOrchestratorStatus(status agentmodel.Status) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.orchestratorSet = status
	return nil
}

func testAgentConfig() coreconfig.AgentConfig {
	return coreconfig.AgentConfig{
		Step1BudgetMs:           500,
		Step2BudgetMs:           500,
		RuntimeReadyTimeoutMs:   300,
		RuntimeReadyPollMs:      30,
		OrchestratorReadyMs:     500,
		MemberReadyMs:           500,
		InitTotalTimeoutMs:      1_000,
		DefaultRuntime:          "claude-code",
		OrchestratorSessionName: agentmodel.OrchestratorSessionName,
	}
}

func testDeliveryConfig() coreconfig.DeliveryConfig {
	return coreconfig.DeliveryConfig{
		PromptDetectionTimeoutMs: 500,
		MaxEnterRetries:          2,
		InitialMessageDelayMs:    5,
		PasteCheckDelayMs:        5,
		EnterRetryDelayMs:        10,
		RingBufferBytes:          4096,
		MaxAttempts:              1,
	}
}

func newTestSupervisor(t *testing.T, storage agentmodel.Storage) (*Supervisor, *ptysession.Backend) {
	t.Helper()
	backend := ptysession.New(nil)
	engine := delivery.New(testDeliveryConfig(), nil)
	prompts := prompttemplate.New(t.TempDir(), nil)
	sv := New(backend, engine, prompts, storage, testAgentConfig(), t.TempDir(), nil)
	return sv, backend
}

func TestResolveRuntimeType_ExplicitWins(t *testing.T) {
	sv, _ := newTestSupervisor(t, nil)
	got := sv.resolveRuntimeType("agent-1", "developer", agentmodel.RuntimeGeminiCLI)
	assert.Equal(t, agentmodel.RuntimeGeminiCLI, got)
}

func TestResolveRuntimeType_NoStorageFallsBackToDefault(t *testing.T) {
	sv, _ := newTestSupervisor(t, nil)
	got := sv.resolveRuntimeType("agent-1", "developer", "")
	assert.Equal(t, agentmodel.RuntimeClaudeCode, got)
}

func TestResolveRuntimeType_OrchestratorFromStorage(t *testing.T) {
	storage := newFakeStorage()
	storage.orchestrator = &agentmodel.OrchestratorStatus{PreferredRuntime: agentmodel.RuntimeCodexCLI}
	sv, _ := newTestSupervisor(t, storage)

	got := sv.resolveRuntimeType(agentmodel.OrchestratorSessionName, "orchestrator", "")
	assert.Equal(t, agentmodel.RuntimeCodexCLI, got)
}

func TestResolveRuntimeType_TeamMemberFromStorage(t *testing.T) {
	storage := newFakeStorage()
	storage.teams = []agentmodel.Team{
		{ID: "team-1", Members: []agentmodel.TeamMember{
			{SessionName: "dev-1", PreferredRuntime: agentmodel.RuntimeGeminiCLI},
		}},
	}
	sv, _ := newTestSupervisor(t, storage)

	got := sv.resolveRuntimeType("dev-1", "developer", "")
	assert.Equal(t, agentmodel.RuntimeGeminiCLI, got)
}

func TestResolveRuntimeType_StorageErrorFallsBackToDefault(t *testing.T) {
	storage := newFakeStorage()
	storage.teamsErr = errors.New("boom")
	sv, _ := newTestSupervisor(t, storage)

	got := sv.resolveRuntimeType("dev-1", "developer", "")
	assert.Equal(t, agentmodel.RuntimeClaudeCode, got)
}

func TestSetStatusBestEffort_StorageErrorDoesNotPanic(t *testing.T) {
	storage := newFakeStorage()
	storage.updateErr = errors.New("disk full")
	sv, _ := newTestSupervisor(t, storage)

	assert.NotPanics(t, func() {
		sv.setStatusBestEffort("dev-1", agentmodel.StatusStarted)
	})
}

func TestSetStatusBestEffort_UpdatesStorageOnSuccess(t *testing.T) {
	storage := newFakeStorage()
	sv, _ := newTestSupervisor(t, storage)

	sv.setStatusBestEffort("dev-1", agentmodel.StatusStarted)
	assert.Equal(t, agentmodel.StatusStarted, storage.updatedAgents["dev-1"])

	sv.setStatusBestEffort(agentmodel.OrchestratorSessionName, agentmodel.StatusActive)
	assert.Equal(t, agentmodel.StatusActive, storage.orchestratorSet)
}

func TestInitializeAgentWithRegistration_SessionNotFound(t *testing.T) {
	sv, _ := newTestSupervisor(t, nil)
	_, err := sv.InitializeAgentWithRegistration(InitRequest{
		SessionName:  "ghost",
		TotalTimeout: time.Second,
	})
	assert.ErrorIs(t, err, corerr.ErrSessionNotFound)
}

func TestInitializeAgentWithRegistration_UnknownRuntimeExhaustsEscalation(t *testing.T) {
	sv, backend := newTestSupervisor(t, nil)
	_, err := backend.CreateSession("agent-unknown", t.TempDir(), exec.Command("sh"))
	require.NoError(t, err)
	defer backend.KillSession("agent-unknown")

	_, err = sv.InitializeAgentWithRegistration(InitRequest{
		SessionName:  "agent-unknown",
		Role:         "developer",
		TotalTimeout: time.Second, // too small for step2's 35s guard
		RuntimeType:  agentmodel.RuntimeType("unknown-runtime"),
	})
	assert.ErrorIs(t, err, corerr.ErrEscalationExhausted)
}

func TestCheckAgentHealth_NoSessionReturnsFalse(t *testing.T) {
	sv, _ := newTestSupervisor(t, nil)
	ok := sv.CheckAgentHealth("nope", agentmodel.RuntimeClaudeCode, 50*time.Millisecond)
	assert.False(t, ok)
}

func TestTerminateAgentSession_Idempotent(t *testing.T) {
	sv, backend := newTestSupervisor(t, newFakeStorage())
	_, err := backend.CreateSession("agent-term", t.TempDir(), exec.Command("sh", "-c", "sleep 2"))
	require.NoError(t, err)

	require.NoError(t, sv.TerminateAgentSession("agent-term", "developer"))
	require.NoError(t, sv.TerminateAgentSession("agent-term", "developer"))
	assert.False(t, backend.SessionExists("agent-term"))
}

func TestCreateAgentSession_PTYCreationErrorSurfaced(t *testing.T) {
	sv, _ := newTestSupervisor(t, nil)
	_, err := sv.CreateAgentSession(CreateSessionRequest{
		SessionName: "agent-bad-cwd",
		Role:        "developer",
		Cwd:         "/this/path/does/not/exist-agentmux-test",
		RuntimeType: agentmodel.RuntimeClaudeCode,
	})
	assert.Error(t, err)
}

func TestCreateAgentSession_ConcurrentSameNameCollapses(t *testing.T) {
	sv, _ := newTestSupervisor(t, nil)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := sv.CreateAgentSession(CreateSessionRequest{
				SessionName: "agent-concurrent",
				Role:        "developer",
				Cwd:         "/this/path/does/not/exist-agentmux-test",
				RuntimeType: agentmodel.RuntimeClaudeCode,
			})
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.Error(t, err)
	}
}

// step1CleanupAndReinit is exercised directly against a session whose shell
// command and PATH are fully controlled, avoiding any dependency on a real
// claude/gemini/codex binary or login-shell profile scripts.
func TestStep1CleanupAndReinit_SucceedsWhenWelcomeMarkerAppears(t *testing.T) {
	binDir := writeFakeRuntimeBinary(t, "codex", "OpenAI Codex ready\n")

	sv, backend := newTestSupervisor(t, nil)
	cmd := exec.Command("sh")
	cmd.Env = append(os.Environ(), "PATH="+binDir+":"+os.Getenv("PATH"))
	sess, err := backend.CreateSession("agent-codex", t.TempDir(), cmd)
	require.NoError(t, err)
	defer backend.KillSession("agent-codex")

	req := InitRequest{SessionName: "agent-codex", Role: "developer", RuntimeType: agentmodel.RuntimeCodexCLI}
	res, ok := sv.step1CleanupAndReinit(sess, req, 2*time.Second)
	assert.True(t, ok)
	assert.True(t, res.OK)
}

func TestStep1CleanupAndReinit_FailsWhenMarkerNeverAppears(t *testing.T) {
	sv, backend := newTestSupervisor(t, nil)
	cmd := exec.Command("sh")
	cmd.Env = append(os.Environ(), "PATH=/nonexistent-agentmux-bin")
	sess, err := backend.CreateSession("agent-no-marker", t.TempDir(), cmd)
	require.NoError(t, err)
	defer backend.KillSession("agent-no-marker")

	req := InitRequest{SessionName: "agent-no-marker", Role: "developer", RuntimeType: agentmodel.RuntimeCodexCLI}
	_, ok := sv.step1CleanupAndReinit(sess, req, 300*time.Millisecond)
	assert.False(t, ok)
}

// writeFakeRuntimeBinary writes an executable shell script named name into a
// fresh directory that immediately prints output, and returns that
// directory so it can be prepended to PATH.
func writeFakeRuntimeBinary(t *testing.T, name, output string) string {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/" + name
	script := "#!/bin/sh\nprintf '%s'\n"
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(script, output)), 0o755))
	return dir
}

// Package supervisor implements the Session Lifecycle Supervisor (L4): it
// owns agent session creation, the escalation ladder used to bring a runtime
// to a registered-and-ready state, and idempotent termination. It talks to
// the Storage collaborator; L0-L3 stay storage-free.
package supervisor

import (
	"fmt"
	"os/exec"
	"time"

	"github.com/agentmux/agentmux/internal/agentmodel"
	"github.com/agentmux/agentmux/internal/coreconfig"
	"github.com/agentmux/agentmux/internal/corelog"
	"github.com/agentmux/agentmux/internal/corerr"
	"github.com/agentmux/agentmux/internal/delivery"
	"github.com/agentmux/agentmux/internal/prompttemplate"
	"github.com/agentmux/agentmux/internal/ptysession"
	"github.com/agentmux/agentmux/internal/runtimeadapter"
	"github.com/agentmux/agentmux/internal/sessioncmd"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// InitRequest is the input to InitializeAgentWithRegistration. It assumes a
// PTY session named SessionName already exists.
type InitRequest struct {
	SessionName  string
	Role         string
	Cwd          string
	TotalTimeout time.Duration
	MemberID     string
	RuntimeType  agentmodel.RuntimeType
}

// CreateSessionRequest is the input to CreateAgentSession.
type CreateSessionRequest struct {
	SessionName string
	Role        string
	Cwd         string
	MemberID    string
	RuntimeType agentmodel.RuntimeType // optional; resolved via Storage when empty
}

// Result is the outcome of a lifecycle operation.
type Result struct {
	OK      bool
	Message string
}

// Supervisor wires the PTY backend, runtime adapter construction, delivery
// engine, registration-prompt cache, and the Storage collaborator together
// into the escalation ladder described for agent initialization.
type Supervisor struct {
	backend *ptysession.Backend
	engine  *delivery.Engine
	prompts *prompttemplate.Cache
	storage agentmodel.Storage
	log     *corelog.Logger

	agentCfg    coreconfig.AgentConfig
	projectRoot string

	createGroup singleflight.Group
}

// New constructs a Supervisor. storage may be nil, in which case status
// updates are skipped and runtime-type resolution always falls back to the
// configured default.
func New(
	backend *ptysession.Backend,
	engine *delivery.Engine,
	prompts *prompttemplate.Cache,
	storage agentmodel.Storage,
	agentCfg coreconfig.AgentConfig,
	projectRoot string,
	log *corelog.Logger,
) *Supervisor {
	if log == nil {
		log = corelog.Default()
	}
	return &Supervisor{
		backend:     backend,
		engine:      engine,
		prompts:     prompts,
		storage:     storage,
		agentCfg:    agentCfg,
		projectRoot: projectRoot,
		log:         log,
	}
}

func millis(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// newRuntimeAdapter builds a fresh Runtime Adapter instance. The escalation
// ladder uses one per logically distinct detection phase (pre-register
// probe, post-init verify, orchestrator re-verify) so a cached result from
// one phase never leaks into another.
func (s *Supervisor) newRuntimeAdapter() *runtimeadapter.Adapter {
	return runtimeadapter.New(s.log, 0)
}

// InitializeAgentWithRegistration runs the two-step escalation ladder against
// an already-existing PTY session. The direct-registration fast path is
// intentionally absent: it is brittle under concurrency.
func (s *Supervisor) InitializeAgentWithRegistration(req InitRequest) (Result, error) {
	sess := s.backend.GetSession(req.SessionName)
	if sess == nil {
		return Result{}, fmt.Errorf("%w: %s", corerr.ErrSessionNotFound, req.SessionName)
	}

	start := time.Now()
	remaining := func() time.Duration { return req.TotalTimeout - time.Since(start) }

	step1Budget := millis(s.agentCfg.Step1BudgetMs)
	if res, ok := s.step1CleanupAndReinit(sess, req, step1Budget); ok {
		return res, nil
	}

	step2Budget := millis(s.agentCfg.Step2BudgetMs)
	if remaining() >= 35*time.Second {
		if res, ok := s.step2FullRecreation(req, step2Budget); ok {
			return res, nil
		}
	}

	elapsed := time.Since(start)
	return Result{}, fmt.Errorf("%w: Failed to initialize agent after optimized escalation attempts (%.0fs)",
		corerr.ErrEscalationExhausted, elapsed.Seconds())
}

// step1CleanupAndReinit is escalation Step 1: clear the command line,
// re-execute the init script, wait for readiness, and on success declare the
// session initialized.
func (s *Supervisor) step1CleanupAndReinit(sess *ptysession.Session, req InitRequest, budget time.Duration) (Result, bool) {
	deadline := time.Now().Add(budget)

	_ = sessioncmd.ClearCurrentCommandLine(sess)

	adapter := s.newRuntimeAdapter()
	if err := adapter.ExecuteRuntimeInitScript(sess, req.RuntimeType, req.Cwd); err != nil {
		s.log.Warn("step1: init script failed", zap.String("session_name", req.SessionName), zap.Error(err))
		return Result{}, false
	}

	readyTimeout := millis(s.agentCfg.RuntimeReadyTimeoutMs)
	if untilDeadline := time.Until(deadline); untilDeadline < readyTimeout {
		readyTimeout = untilDeadline
	}
	pollInterval := millis(s.agentCfg.RuntimeReadyPollMs)

	if !adapter.WaitForRuntimeReady(sess, req.RuntimeType, readyTimeout, pollInterval) {
		return Result{}, false
	}

	return s.declareInitialized(sess, req, "Agent registered successfully after cleanup and reinit"), true
}

// step2FullRecreation is escalation Step 2: kill and recreate the session
// from scratch, then run the same readiness/registration sequence, with an
// extra verification pass for the orchestrator.
func (s *Supervisor) step2FullRecreation(req InitRequest, budget time.Duration) (Result, bool) {
	deadline := time.Now().Add(budget)

	if err := s.backend.KillSession(req.SessionName); err != nil {
		s.log.Warn("step2: kill session failed", zap.String("session_name", req.SessionName), zap.Error(err))
	}
	time.Sleep(1 * time.Second)

	cwd := req.Cwd
	if req.Role == "orchestrator" {
		cwd = s.projectRoot
	}

	sess, err := s.backend.CreateSession(req.SessionName, cwd, newCommand(cwd))
	if err != nil {
		s.log.Warn("step2: recreate session failed", zap.String("session_name", req.SessionName), zap.Error(err))
		return Result{}, false
	}

	adapter := s.newRuntimeAdapter()
	if err := adapter.ExecuteRuntimeInitScript(sess, req.RuntimeType, cwd); err != nil {
		return Result{}, false
	}

	readyTimeout := millis(s.agentCfg.MemberReadyMs)
	if req.Role == "orchestrator" {
		readyTimeout = millis(s.agentCfg.OrchestratorReadyMs)
	}
	if untilDeadline := time.Until(deadline); untilDeadline < readyTimeout {
		readyTimeout = untilDeadline
	}
	pollInterval := millis(s.agentCfg.RuntimeReadyPollMs)

	if !adapter.WaitForRuntimeReady(sess, req.RuntimeType, readyTimeout, pollInterval) {
		return Result{}, false
	}

	if req.Role == "orchestrator" {
		time.Sleep(5 * time.Second)
		verifyAdapter := s.newRuntimeAdapter()
		if !verifyAdapter.DetectRuntimeWithCommand(sess, req.SessionName, true) {
			return Result{}, false
		}
	}

	return s.declareInitialized(sess, req, "Agent registered successfully after full recreation"), true
}

// declareInitialized sets status=started (best-effort) and dispatches the
// registration prompt asynchronously, then returns the successful result.
func (s *Supervisor) declareInitialized(sess *ptysession.Session, req InitRequest, message string) Result {
	s.setStatusBestEffort(req.SessionName, agentmodel.StatusStarted)
	s.dispatchRegistrationAsync(sess, req.SessionName, req.Role, req.MemberID, req.RuntimeType)
	return Result{OK: true, Message: message}
}

// dispatchRegistrationAsync fires the registration prompt without blocking
// the caller; failures are logged, never surfaced.
func (s *Supervisor) dispatchRegistrationAsync(sess *ptysession.Session, sessionName, role, memberID string, runtimeType agentmodel.RuntimeType) {
	go func() {
		prompt := s.prompts.Render(role, sessionName, memberID)
		if err := s.engine.SendMessageWithRetry(sess, prompt, runtimeType); err != nil {
			s.log.Warn("registration prompt dispatch failed",
				zap.String("session_name", sessionName), zap.Error(err))
		}
	}()
}

// CreateAgentSession creates the PTY session if missing; otherwise it
// attempts recovery (probe, then Ctrl+C reset, then full recreate) before
// falling through to a fresh session. Concurrent calls for the same
// SessionName collapse into a single in-flight attempt via singleflight, so
// two concurrent creates for the same name never both win.
func (s *Supervisor) CreateAgentSession(req CreateSessionRequest) (Result, error) {
	v, err, _ := s.createGroup.Do(req.SessionName, func() (interface{}, error) {
		return s.createAgentSessionOnce(req)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (s *Supervisor) createAgentSessionOnce(req CreateSessionRequest) (Result, error) {
	runtimeType := s.resolveRuntimeType(req.SessionName, req.Role, req.RuntimeType)

	if s.backend.SessionExists(req.SessionName) {
		if res, ok := s.recoverExistingSession(req, runtimeType); ok {
			return res, nil
		}
		// (c) killSession, wait 1s, fall through to fresh creation.
		_ = s.backend.KillSession(req.SessionName)
		time.Sleep(1 * time.Second)
	}

	cwd := req.Cwd
	if req.Role == "orchestrator" {
		cwd = s.projectRoot
	}

	sess, err := s.backend.CreateSession(req.SessionName, cwd, newCommand(cwd))
	if err != nil {
		return Result{}, fmt.Errorf("supervisor: create session %s: %w", req.SessionName, err)
	}

	_ = sessioncmd.SetEnvironmentVariable(sess, "TMUX_SESSION_NAME", req.SessionName)
	_ = sessioncmd.SetEnvironmentVariable(sess, "AGENTMUX_ROLE", req.Role)

	totalTimeout := millis(s.agentCfg.InitTotalTimeoutMs)
	return s.InitializeAgentWithRegistration(InitRequest{
		SessionName:  req.SessionName,
		Role:         req.Role,
		Cwd:          cwd,
		TotalTimeout: totalTimeout,
		MemberID:     req.MemberID,
		RuntimeType:  runtimeType,
	})
}

// recoverExistingSession implements the three-tier recovery path for a
// session name that is already registered in the PTY backend.
func (s *Supervisor) recoverExistingSession(req CreateSessionRequest, runtimeType agentmodel.RuntimeType) (Result, bool) {
	sess := s.backend.GetSession(req.SessionName)
	if sess == nil {
		return Result{}, false
	}

	probeAdapter := s.newRuntimeAdapter()
	if probeAdapter.DetectRuntimeWithCommand(sess, req.SessionName, true) {
		if res, err := s.InitializeAgentWithRegistration(InitRequest{
			SessionName:  req.SessionName,
			Role:         req.Role,
			Cwd:          req.Cwd,
			TotalTimeout: 25 * time.Second,
			MemberID:     req.MemberID,
			RuntimeType:  runtimeType,
		}); err == nil {
			return res, true
		}
	}

	// (b) two Ctrl+C with a short pause, clear the detection cache, retry once.
	_ = sessioncmd.SendCtrlC(sess)
	time.Sleep(200 * time.Millisecond)
	_ = sessioncmd.SendCtrlC(sess)
	time.Sleep(200 * time.Millisecond)
	probeAdapter.ClearDetectionCache(req.SessionName)

	if res, err := s.InitializeAgentWithRegistration(InitRequest{
		SessionName:  req.SessionName,
		Role:         req.Role,
		Cwd:          req.Cwd,
		TotalTimeout: 25 * time.Second,
		MemberID:     req.MemberID,
		RuntimeType:  runtimeType,
	}); err == nil {
		return res, true
	}

	return Result{}, false
}

// TerminateAgentSession kills the session's PTY, idempotently.
func (s *Supervisor) TerminateAgentSession(sessionName, role string) error {
	if err := s.backend.KillSession(sessionName); err != nil {
		return fmt.Errorf("supervisor: terminate %s: %w", sessionName, err)
	}
	s.setStatusBestEffort(sessionName, agentmodel.StatusInactive)
	return nil
}

// SendMessageToAgent is a thin adapter over the Delivery Engine (L3).
func (s *Supervisor) SendMessageToAgent(sessionName, text string, runtimeType agentmodel.RuntimeType) error {
	sess := s.backend.GetSession(sessionName)
	if sess == nil {
		return fmt.Errorf("%w: %s", corerr.ErrSessionNotFound, sessionName)
	}
	if runtimeType == "" {
		runtimeType = s.resolveRuntimeType(sessionName, "", "")
	}
	return s.engine.SendMessageWithRetry(sess, text, runtimeType)
}

// SendKeyToAgent is a thin adapter over the command helper (L2).
func (s *Supervisor) SendKeyToAgent(sessionName, key string) error {
	sess := s.backend.GetSession(sessionName)
	if sess == nil {
		return fmt.Errorf("%w: %s", corerr.ErrSessionNotFound, sessionName)
	}
	return sessioncmd.SendKey(sess, key)
}

// CheckAgentHealth is a thin adapter over the PTY backend (L1) and Runtime
// Adapter (L0): it reports whether the session exists and, within timeout,
// whether the runtime's welcome/prompt marker shows on screen.
func (s *Supervisor) CheckAgentHealth(sessionName string, runtimeType agentmodel.RuntimeType, timeout time.Duration) bool {
	sess := s.backend.GetSession(sessionName)
	if sess == nil {
		return false
	}
	adapter := s.newRuntimeAdapter()
	return adapter.WaitForRuntimeReady(sess, runtimeType, timeout, 0)
}

// resolveRuntimeType resolves the runtime to launch: explicit value wins;
// otherwise consult Storage; default claude-code.
func (s *Supervisor) resolveRuntimeType(sessionName, role string, explicit agentmodel.RuntimeType) agentmodel.RuntimeType {
	if explicit != "" {
		return explicit
	}
	if s.storage == nil {
		return s.defaultRuntime()
	}

	if sessionName == agentmodel.OrchestratorSessionName {
		status, err := s.storage.GetOrchestratorStatus()
		if err == nil && status != nil && status.PreferredRuntime != "" {
			return status.PreferredRuntime
		}
		return s.defaultRuntime()
	}

	teams, err := s.storage.GetTeams()
	if err != nil {
		return s.defaultRuntime()
	}
	for _, team := range teams {
		for _, member := range team.Members {
			if member.SessionName == sessionName && member.PreferredRuntime != "" {
				return member.PreferredRuntime
			}
		}
	}
	return s.defaultRuntime()
}

func (s *Supervisor) defaultRuntime() agentmodel.RuntimeType {
	if s.agentCfg.DefaultRuntime != "" {
		return agentmodel.RuntimeType(s.agentCfg.DefaultRuntime)
	}
	return agentmodel.RuntimeClaudeCode
}

func (s *Supervisor) setStatusBestEffort(sessionName string, status agentmodel.Status) {
	if s.storage == nil {
		return
	}
	var err error
	if sessionName == agentmodel.OrchestratorSessionName {
		err = s.storage.UpdateOrchestratorStatus(status)
	} else {
		err = s.storage.UpdateAgentStatus(sessionName, status)
	}
	if err != nil {
		s.log.Warn("status update failed, continuing",
			zap.String("session_name", sessionName), zap.Error(err))
	}
}

// newCommand builds the login-shell process a fresh PTY session wraps; the
// runtime's CLI is then launched inside it via the init script, matching how
// a real terminal emulator starts an interactive session.
func newCommand(cwd string) *exec.Cmd {
	cmd := exec.Command("bash", "-l")
	if cwd != "" {
		cmd.Dir = cwd
	}
	return cmd
}

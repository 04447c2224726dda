package runtimeadapter

import (
	"fmt"
	"sync"
	"time"

	"github.com/agentmux/agentmux/internal/agentmodel"
	"github.com/agentmux/agentmux/internal/corelog"
	"go.uber.org/zap"
)

// Session is the minimal PTY surface an adapter needs: write keystrokes and
// read back a screen snapshot. *ptysession.Session satisfies this directly.
type Session interface {
	Write(data []byte) error
	CapturePane(lastN int) string
}

// initCommands gives the canonical start command per runtime. A real
// deployment would resolve these from PATH/config; hardcoding the common
// case keeps the adapter itself free of a config dependency.
var initCommands = map[agentmodel.RuntimeType]string{
	agentmodel.RuntimeClaudeCode: "claude",
	agentmodel.RuntimeGeminiCLI:  "gemini",
	agentmodel.RuntimeCodexCLI:   "codex",
}

type detectionCacheEntry struct {
	result    bool
	expiresAt time.Time
}

// Adapter is the L0 Runtime Adapter: it knows how to boot a runtime inside a
// PTY session and how to read its TUI state back, without knowing anything
// about delivery retries or supervision.
type Adapter struct {
	log *corelog.Logger

	cacheTTL time.Duration
	mu       sync.Mutex
	cache    map[string]detectionCacheEntry
}

// New constructs an Adapter. cacheTTL bounds how long a detection result is
// reused before a fresh probe is sent; zero selects a conservative default.
func New(log *corelog.Logger, cacheTTL time.Duration) *Adapter {
	if log == nil {
		log = corelog.Default()
	}
	if cacheTTL <= 0 {
		cacheTTL = 3 * time.Second
	}
	return &Adapter{
		log:      log,
		cacheTTL: cacheTTL,
		cache:    make(map[string]detectionCacheEntry),
	}
}

// ExecuteRuntimeInitScript writes the canonical start command for runtime
// into sess, followed by Enter. cwd is informational only here: the caller
// is expected to have created the PTY session already rooted at cwd.
func (a *Adapter) ExecuteRuntimeInitScript(sess Session, runtime agentmodel.RuntimeType, cwd string) error {
	cmd, ok := initCommands[runtime]
	if !ok {
		return fmt.Errorf("runtimeadapter: unknown runtime %q", runtime)
	}
	a.log.Debug("executing runtime init script", zap.String("runtime", string(runtime)), zap.String("cwd", cwd))
	return sess.Write([]byte(cmd + "\r"))
}

// DetectRuntimeWithCommand probes the TUI by sending a bare "/" and checking
// whether the runtime's command palette appears in the next snapshot. A
// per-session result is cached for cacheTTL to prevent probe storms from
// repeated supervisor polling; forceRefresh bypasses that cache.
func (a *Adapter) DetectRuntimeWithCommand(sess Session, sessionName string, forceRefresh bool) bool {
	if !forceRefresh {
		if cached, ok := a.readCache(sessionName); ok {
			return cached
		}
	}

	result := a.probeCommandPalette(sess)
	a.writeCache(sessionName, result)
	return result
}

func (a *Adapter) probeCommandPalette(sess Session) bool {
	if err := sess.Write([]byte("/")); err != nil {
		return false
	}
	time.Sleep(150 * time.Millisecond)
	pane := sess.CapturePane(10)
	_ = sess.Write([]byte{0x1b}) // Escape: dismiss whatever the probe opened
	return commandPalettePattern.MatchString(pane)
}

// WaitForRuntimeReady polls screen snapshots for the runtime's welcome/prompt
// marker until timeout elapses, returning whether it appeared in time.
func (a *Adapter) WaitForRuntimeReady(sess Session, runtime agentmodel.RuntimeType, timeout, checkInterval time.Duration) bool {
	marker, ok := welcomeMarkers[string(runtime)]
	if !ok {
		marker = commandPalettePattern
	}
	if checkInterval <= 0 {
		checkInterval = 500 * time.Millisecond
	}

	deadline := time.Now().Add(timeout)
	for {
		pane := sess.CapturePane(0)
		if marker.MatchString(pane) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(checkInterval)
	}
}

// ClearDetectionCache drops any cached probe result for sessionName, so the
// next DetectRuntimeWithCommand call always re-probes.
func (a *Adapter) ClearDetectionCache(sessionName string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.cache, sessionName)
}

func (a *Adapter) readCache(sessionName string) (bool, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.cache[sessionName]
	if !ok || time.Now().After(entry.expiresAt) {
		return false, false
	}
	return entry.result, true
}

func (a *Adapter) writeCache(sessionName string, result bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache[sessionName] = detectionCacheEntry{
		result:    result,
		expiresAt: time.Now().Add(a.cacheTTL),
	}
}

// Package ptysession implements the PTY Session Backend: it owns the
// cross-platform pseudo-terminal handles (creack/pty on Unix, ConPTY on
// Windows) and the registry of live sessions keyed by name.
package ptysession

import (
	"fmt"
	"os/exec"
	"sync"

	"github.com/agentmux/agentmux/internal/corelog"
	"github.com/agentmux/agentmux/internal/corerr"
	"go.uber.org/zap"
)

// Backend is the process-wide registry of live PTY sessions. Prefer
// constructing one explicitly and passing it to collaborators; Default is a
// convenience accessor for wiring code and tests, not a hidden requirement.
type Backend struct {
	log *corelog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// New constructs a Backend with no sessions.
func New(log *corelog.Logger) *Backend {
	if log == nil {
		log = corelog.Default()
	}
	return &Backend{
		log:      log,
		sessions: make(map[string]*Session),
	}
}

var (
	defaultOnce sync.Once
	defaultInst *Backend
)

// Default returns a lazily constructed process-wide Backend. Components that
// can be given a *Backend via their constructor should be; Default exists for
// call sites (CLI entrypoints, ad hoc tooling) that have no natural owner.
func Default() *Backend {
	defaultOnce.Do(func() {
		defaultInst = New(nil)
	})
	return defaultInst
}

// CreateSession starts cmd under a new PTY and registers it under name.
// It fails with corerr.ErrSessionExists if name is already registered.
func (b *Backend) CreateSession(name, cwd string, cmd *exec.Cmd) (*Session, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: session name is required", corerr.ErrInvalidArgument)
	}

	b.mu.Lock()
	if _, exists := b.sessions[name]; exists {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", corerr.ErrSessionExists, name)
	}
	// Reserve the name before starting the process so concurrent callers
	// racing on the same name see ErrSessionExists rather than both
	// spawning a PTY.
	b.sessions[name] = nil
	b.mu.Unlock()

	sess, err := newSession(name, cwd, cmd)
	if err != nil {
		b.mu.Lock()
		delete(b.sessions, name)
		b.mu.Unlock()
		return nil, fmt.Errorf("create pty session %s: %w", name, err)
	}

	b.mu.Lock()
	b.sessions[name] = sess
	b.mu.Unlock()

	log := b.log.WithSessionID(name)
	log.Info("pty session created", zap.Int("pid", sess.Pid()))

	sess.OnExit(func(err error) {
		log.Info("pty session exited", zap.Error(err))
	})

	return sess, nil
}

// SessionExists reports whether name is currently registered and has
// finished starting.
func (b *Backend) SessionExists(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sess, ok := b.sessions[name]
	return ok && sess != nil
}

// GetSession returns the session registered under name, or nil.
func (b *Backend) GetSession(name string) *Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sessions[name]
}

// ListSessionNames returns the names of all currently registered sessions.
func (b *Backend) ListSessionNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.sessions))
	for name, sess := range b.sessions {
		if sess != nil {
			names = append(names, name)
		}
	}
	return names
}

// KillSession terminates and unregisters name. It is idempotent: killing a
// name that is not registered is not an error.
func (b *Backend) KillSession(name string) error {
	b.mu.Lock()
	sess, ok := b.sessions[name]
	delete(b.sessions, name)
	b.mu.Unlock()

	if !ok || sess == nil {
		return nil
	}
	return sess.Kill()
}

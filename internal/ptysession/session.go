package ptysession

import (
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/tuzig/vt10x"
)

// DataCallback receives raw PTY output bytes as they arrive. Defined as an
// alias (not a distinct named type) so structurally-typed collaborators can
// declare "OnData(func(data []byte)) func()" without importing this package.
type DataCallback = func(data []byte)

// ExitCallback is invoked once when the underlying process exits.
type ExitCallback = func(err error)

// Session is the in-memory PTYSession: a live PTY-backed process, a virtual
// terminal used to answer "what does the screen look like right now", and
// the subscriber lists onData/onExit hand out. The Backend exclusively owns
// mutation of a Session's lifecycle; callers elsewhere hold only the name.
type Session struct {
	Name      string
	Cwd       string
	CreatedAt time.Time

	mu      sync.Mutex
	handle  Handle
	cmd     *exec.Cmd
	term    vt10x.Terminal
	cols    int
	rows    int
	closed  bool
	dataSubs map[int]DataCallback
	exitSubs map[int]ExitCallback
	nextSub  int
}

const (
	defaultCols = 120
	defaultRows = 40
)

func newSession(name, cwd string, cmd *exec.Cmd) (*Session, error) {
	setProcGroup(cmd)

	h, err := startWithSize(cmd, defaultCols, defaultRows)
	if err != nil {
		return nil, err
	}

	s := &Session{
		Name:      name,
		Cwd:       cwd,
		CreatedAt: time.Now().UTC(),
		handle:    h,
		cmd:       cmd,
		term:      vt10x.New(vt10x.WithSize(defaultCols, defaultRows)),
		cols:      defaultCols,
		rows:      defaultRows,
		dataSubs:  make(map[int]DataCallback),
		exitSubs:  make(map[int]ExitCallback),
	}
	go s.readLoop()
	go s.waitLoop()
	return s, nil
}

// Pid returns the underlying process ID, or 0 if the process has not started.
func (s *Session) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Write sends bytes to the PTY's stdin side.
func (s *Session) Write(data []byte) error {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h == nil {
		return nil
	}
	_, err := h.Write(data)
	return err
}

// Resize changes the PTY and virtual-terminal dimensions together so
// capturePane stays consistent with what the real terminal would show.
func (s *Session) Resize(cols, rows uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return nil
	}
	if err := s.handle.Resize(cols, rows); err != nil {
		return err
	}
	s.term.Resize(int(cols), int(rows))
	s.cols, s.rows = int(cols), int(rows)
	return nil
}

// OnData subscribes to raw output bytes; the returned func unsubscribes.
func (s *Session) OnData(cb DataCallback) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.dataSubs[id] = cb
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.dataSubs, id)
	}
}

// OnExit subscribes to the single process-exit notification.
func (s *Session) OnExit(cb ExitCallback) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.exitSubs[id] = cb
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.exitSubs, id)
	}
}

// CapturePane returns the last N visible, non-cursor-decorated rows of the
// virtual terminal as plain text, trailing blank rows trimmed. Used only for
// screen checks (stuck-at-prompt, mode detection), never as the primary
// delivery signal.
func (s *Session) CapturePane(lastN int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.rows
	cols := s.cols
	if lastN > 0 && lastN < rows {
		rows = lastN
	}

	lines := make([]string, 0, rows)
	start := s.rows - rows
	for row := start; row < s.rows; row++ {
		var b strings.Builder
		for col := 0; col < cols; col++ {
			g := s.term.Cell(col, row)
			if g.Char == 0 {
				b.WriteRune(' ')
			} else {
				b.WriteRune(g.Char)
			}
		}
		lines = append(lines, strings.TrimRight(b.String(), " \t"))
	}

	// Trim trailing blank lines so "last non-empty line" checks are simple.
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// Kill terminates the session's process group, escalating from SIGTERM to
// SIGKILL, and is idempotent.
func (s *Session) Kill() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pid := 0
	if s.cmd != nil && s.cmd.Process != nil {
		pid = s.cmd.Process.Pid
	}
	h := s.handle
	s.mu.Unlock()

	if pid != 0 {
		_ = terminateProcessGroup(pid)
		time.Sleep(200 * time.Millisecond)
		_ = killProcessGroup(pid)
	}
	if h != nil {
		_ = h.Close()
	}
	return nil
}

func (s *Session) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		s.mu.Lock()
		h := s.handle
		s.mu.Unlock()
		if h == nil {
			return
		}
		n, err := h.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			s.respondToTerminalQueries(data)
			s.mu.Lock()
			_, _ = s.term.Write(data)
			subs := make([]DataCallback, 0, len(s.dataSubs))
			for _, cb := range s.dataSubs {
				subs = append(subs, cb)
			}
			s.mu.Unlock()
			for _, cb := range subs {
				cb(data)
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) waitLoop() {
	var err error
	if s.cmd != nil {
		err = s.cmd.Wait()
	}
	s.mu.Lock()
	s.closed = true
	subs := make([]ExitCallback, 0, len(s.exitSubs))
	for _, cb := range s.exitSubs {
		subs = append(subs, cb)
	}
	s.mu.Unlock()
	for _, cb := range subs {
		cb(err)
	}
}

package ptysession

import "bytes"

// containsDSRQuery reports whether data contains a Device Status Report
// (cursor position) query: ESC [ 6 n or ESC [ ? 6 n.
func containsDSRQuery(data []byte) bool {
	return bytes.Contains(data, []byte("\x1b[6n")) || bytes.Contains(data, []byte("\x1b[?6n"))
}

// containsDA1Query reports whether data contains a Primary Device Attributes
// query: ESC [ c or ESC [ 0 c. ESC [ <1-9> c is excluded since that sequence
// is cursor-forward, not a DA1 query.
func containsDA1Query(data []byte) bool {
	for i := 0; i+2 < len(data); i++ {
		if data[i] != '\x1b' || data[i+1] != '[' {
			continue
		}
		if data[i+2] == 'c' {
			return true
		}
		if data[i+2] == '0' && i+3 < len(data) && data[i+3] == 'c' {
			return true
		}
	}
	return false
}

// respondToTerminalQueries answers DSR/DA1 probes synthetically. Some
// runtimes (Codex CLI in particular) query cursor position or device
// attributes on startup and hang waiting for a reply if nothing answers;
// since nothing in this module attaches a real terminal to a session's PTY
// master, the session always answers on the runtime's behalf.
func (s *Session) respondToTerminalQueries(data []byte) {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h == nil {
		return
	}
	if containsDSRQuery(data) {
		_, _ = h.Write([]byte("\x1b[1;1R"))
	}
	if containsDA1Query(data) {
		_, _ = h.Write([]byte("\x1b[?1;2c"))
	}
}

// Package sessioncmd provides stateless keystroke helpers (L2) over a PTY
// session: sendMessage, control keys, environment export, and pane capture.
// None of these retry or interpret the result; that is the Delivery Engine's
// job.
package sessioncmd

import (
	"fmt"
	"strings"
	"time"
)

// Session is the minimal PTY surface these helpers need.
type Session interface {
	Write(data []byte) error
	CapturePane(lastN int) string
}

// messageSettleDelay is the one timing constant these helpers own: a short
// pause between writing text and committing it with a carriage return, long
// enough for the shell/runtime to echo the typed characters.
const messageSettleDelay = 1 * time.Second

const (
	keyEscape = "\x1b"
	keyEnter  = "\r"
	keyCtrlC  = "\x03"
	// keyCtrlU clears from cursor to start of line in readline-style inputs.
	keyCtrlU = "\x15"
	// keyCtrlK clears from cursor to end of line.
	keyCtrlK = "\x0b"
)

// SendMessage writes text followed by a carriage return after a fixed settle
// delay. It does not inspect the result; callers needing delivery guarantees
// use the delivery engine instead.
func SendMessage(sess Session, text string) error {
	if err := sess.Write([]byte(text)); err != nil {
		return fmt.Errorf("sessioncmd: write message: %w", err)
	}
	time.Sleep(messageSettleDelay)
	return sendEnter(sess)
}

// SendKey writes a literal key or control sequence verbatim.
func SendKey(sess Session, key string) error {
	return sess.Write([]byte(key))
}

// SendEscape writes the Escape key.
func SendEscape(sess Session) error { return sendEscape(sess) }

func sendEscape(sess Session) error { return sess.Write([]byte(keyEscape)) }

// SendEnter writes a carriage return.
func SendEnter(sess Session) error { return sendEnter(sess) }

func sendEnter(sess Session) error { return sess.Write([]byte(keyEnter)) }

// SendCtrlC writes Ctrl-C (SIGINT from the terminal's perspective).
func SendCtrlC(sess Session) error {
	return sess.Write([]byte(keyCtrlC))
}

// ClearCurrentCommandLine drains whatever is currently typed at the prompt:
// Ctrl-U to clear back to start of line, then Ctrl-K for anything ahead of
// the cursor, covering editors that only honor one of the two.
func ClearCurrentCommandLine(sess Session) error {
	if err := sess.Write([]byte(keyCtrlU)); err != nil {
		return fmt.Errorf("sessioncmd: clear command line: %w", err)
	}
	return sess.Write([]byte(keyCtrlK))
}

// SetEnvironmentVariable writes an export-style line for key=value. value is
// single-quoted with embedded quotes escaped, matching POSIX shell quoting.
func SetEnvironmentVariable(sess Session, key, value string) error {
	quoted := "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
	line := fmt.Sprintf("export %s=%s", key, quoted)
	if err := sess.Write([]byte(line)); err != nil {
		return fmt.Errorf("sessioncmd: write export: %w", err)
	}
	return sendEnter(sess)
}

// CapturePane returns the last lastN visible rows of sess as text.
func CapturePane(sess Session, lastN int) string {
	return sess.CapturePane(lastN)
}

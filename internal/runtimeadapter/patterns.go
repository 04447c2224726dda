// Package runtimeadapter abstracts the per-runtime TUI behavior (claude-code,
// gemini-cli, codex-cli) behind a small capability set: init script,
// detection, and ready-wait. It owns the regex patterns that tell the
// Delivery Engine and Lifecycle Supervisor what the screen is saying.
package runtimeadapter

import (
	"regexp"
	"strings"
)

// PromptChars lists end-of-line substrings that mean "a shell/runtime prompt
// is waiting for input" when found on the last non-empty screen line.
var PromptChars = []string{"$", "%", ">", "❯", "›"}

// PromptStream matches a prompt marker at the very end of a raw output
// stream (trailing whitespace allowed), used by the event-driven prompt wait
// (ring buffer scan).
var PromptStream = regexp.MustCompile(`[\$%>❯›]\s*$`)

// ProcessingIndicators matches the runtimes' "I am working" chrome: spinner
// glyphs, "thinking"/"analyzing" banners, and Claude Code / Codex's
// interrupt-hint lines, generalized across runtimes instead of split per
// detector struct.
var ProcessingIndicators = []*regexp.Regexp{
	regexp.MustCompile(`^\s*[✻✽✶∴·○◆▪▫□■☐☑☒★☆✓✔✗✘⚬⚫⚪⬤◯▸▹►▻◂◃◄◅✢*•◦]\s+.+(?:…|\.{2,})\s*\((esc|ctrl\+c)\s+to\s+interrupt`),
	regexp.MustCompile(`^[•◦]\s*.+\(?(\d+h\s+)?(\d+m\s+)?\d+s\s*[•·]\s*(esc|ctrl\+c)\s+to\s+interrup(t)?\)?`),
	regexp.MustCompile(`(?i)\b(thinking|analyzing|working|processing)\b`),
}

// PasteIndicator matches terminal bracketed-paste escape markers, used to
// recognize that a multi-line write landed via paste mode rather than as
// typed keystrokes.
var PasteIndicator = regexp.MustCompile("\x1b\\[20[01]~")

// ShellMode matches Gemini CLI's alternate "!" shell prompt, which must be
// escaped before a message can be sent as a chat turn.
var ShellMode = regexp.MustCompile(`(?m)^\s*!\s*$`)

// welcomeMarkers are runtime-specific banners/prompts that appear once a
// runtime has finished booting, used by waitForRuntimeReady.
var welcomeMarkers = map[string]*regexp.Regexp{
	"claude-code": regexp.MustCompile(`(?i)(Claude Code|Welcome to Claude|╭─+╮)`),
	"gemini-cli":  regexp.MustCompile(`(?i)(Gemini CLI|Welcome to Gemini|Tips for getting started)`),
	"codex-cli":   regexp.MustCompile(`(?i)(OpenAI Codex|Codex CLI|▌ Ask Codex)`),
}

// commandPalettePattern matches the slash-command palette every supported
// runtime shows after a bare "/" keystroke, used as the detection probe.
var commandPalettePattern = regexp.MustCompile(`(?i)(/help|/clear|/model|/quit|/exit)`)

// LastNonEmptyLine returns the last non-blank line of a captured pane, or ""
// if the pane is entirely blank.
func LastNonEmptyLine(pane string) string {
	lines := splitLines(pane)
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i] != "" {
			return lines[i]
		}
	}
	return ""
}

// AtPrompt reports whether line ends with one of PromptChars.
func AtPrompt(line string) bool {
	line = strings.TrimRight(line, " \t")
	for _, c := range PromptChars {
		if len(line) >= len(c) && line[len(line)-len(c):] == c {
			return true
		}
	}
	return false
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

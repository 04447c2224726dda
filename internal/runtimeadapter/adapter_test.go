package runtimeadapter

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agentmux/agentmux/internal/agentmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu      sync.Mutex
	written [][]byte
	pane    string
}

func (f *fakeSession) Write(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, append([]byte(nil), data...))
	return nil
}

func (f *fakeSession) CapturePane(lastN int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pane
}

func (f *fakeSession) setPane(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pane = s
}

func (f *fakeSession) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

func TestExecuteRuntimeInitScript(t *testing.T) {
	a := New(nil, time.Second)
	sess := &fakeSession{}

	require.NoError(t, a.ExecuteRuntimeInitScript(sess, agentmodel.RuntimeClaudeCode, "/tmp/work"))
	require.Len(t, sess.written, 1)
	assert.Equal(t, "claude\r", string(sess.written[0]))
}

func TestExecuteRuntimeInitScript_UnknownRuntime(t *testing.T) {
	a := New(nil, time.Second)
	sess := &fakeSession{}
	err := a.ExecuteRuntimeInitScript(sess, agentmodel.RuntimeType("unknown"), "/tmp")
	assert.Error(t, err)
}

func TestDetectRuntimeWithCommand_CachesResult(t *testing.T) {
	a := New(nil, time.Minute)
	sess := &fakeSession{pane: "/help  /clear  /model"}

	got := a.DetectRuntimeWithCommand(sess, "sess-1", false)
	assert.True(t, got)
	writesAfterFirst := sess.writeCount()

	sess.setPane("")
	got = a.DetectRuntimeWithCommand(sess, "sess-1", false)
	assert.True(t, got, "cached result should still be true even though pane changed")
	assert.Equal(t, writesAfterFirst, sess.writeCount(), "cached call should not re-probe")
}

func TestDetectRuntimeWithCommand_ForceRefreshBypassesCache(t *testing.T) {
	a := New(nil, time.Minute)
	sess := &fakeSession{pane: "/help"}
	assert.True(t, a.DetectRuntimeWithCommand(sess, "sess-2", false))

	sess.setPane("nothing useful here")
	assert.False(t, a.DetectRuntimeWithCommand(sess, "sess-2", true))
}

func TestClearDetectionCache(t *testing.T) {
	a := New(nil, time.Minute)
	sess := &fakeSession{pane: "/help"}
	a.DetectRuntimeWithCommand(sess, "sess-3", false)

	a.ClearDetectionCache("sess-3")
	sess.setPane("")
	assert.False(t, a.DetectRuntimeWithCommand(sess, "sess-3", false))
}

func TestWaitForRuntimeReady(t *testing.T) {
	a := New(nil, time.Second)
	sess := &fakeSession{}

	go func() {
		time.Sleep(50 * time.Millisecond)
		sess.setPane("Welcome to Claude Code\n> ")
	}()

	ok := a.WaitForRuntimeReady(sess, agentmodel.RuntimeClaudeCode, 2*time.Second, 20*time.Millisecond)
	assert.True(t, ok)
}

func TestWaitForRuntimeReady_TimesOut(t *testing.T) {
	a := New(nil, time.Second)
	sess := &fakeSession{pane: "nothing here"}

	ok := a.WaitForRuntimeReady(sess, agentmodel.RuntimeGeminiCLI, 100*time.Millisecond, 20*time.Millisecond)
	assert.False(t, ok)
}

func TestAtPrompt(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"user@host:~$ ", true},
		{"❯ ", true},
		{"some output line", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AtPrompt(tt.line), "line=%q", tt.line)
	}
}

func TestLastNonEmptyLine(t *testing.T) {
	pane := "first\nsecond\n\n   \n"
	assert.Equal(t, "second", LastNonEmptyLine(pane))
}

func TestProcessingIndicatorsMatchClaudeWorkingLine(t *testing.T) {
	line := "✻ Billowing… (ctrl+c to interrupt)"
	matched := false
	for _, re := range ProcessingIndicators {
		if re.MatchString(line) {
			matched = true
		}
	}
	assert.True(t, matched)
}

func TestShellModeDetectsGeminiBang(t *testing.T) {
	assert.True(t, ShellMode.MatchString("some output\n!\n"))
	assert.False(t, ShellMode.MatchString("regular prompt line"))
}

func TestPasteIndicator(t *testing.T) {
	seq := "\x1b[200~pasted text\x1b[201~"
	assert.True(t, PasteIndicator.MatchString(seq))
	assert.False(t, PasteIndicator.MatchString(strings.Repeat("x", 10)))
}

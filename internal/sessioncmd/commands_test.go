package sessioncmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	written []string
	pane    string
}

func (f *fakeSession) Write(data []byte) error {
	f.written = append(f.written, string(data))
	return nil
}

func (f *fakeSession) CapturePane(lastN int) string { return f.pane }

func TestSendMessage(t *testing.T) {
	sess := &fakeSession{}
	require.NoError(t, SendMessage(sess, "hello agent"))
	require.Len(t, sess.written, 2)
	assert.Equal(t, "hello agent", sess.written[0])
	assert.Equal(t, "\r", sess.written[1])
}

func TestSendEscapeEnterCtrlC(t *testing.T) {
	sess := &fakeSession{}
	require.NoError(t, SendEscape(sess))
	require.NoError(t, SendEnter(sess))
	require.NoError(t, SendCtrlC(sess))
	assert.Equal(t, []string{"\x1b", "\r", "\x03"}, sess.written)
}

func TestClearCurrentCommandLine(t *testing.T) {
	sess := &fakeSession{}
	require.NoError(t, ClearCurrentCommandLine(sess))
	assert.Equal(t, []string{"\x15", "\x0b"}, sess.written)
}

func TestSetEnvironmentVariable(t *testing.T) {
	sess := &fakeSession{}
	require.NoError(t, SetEnvironmentVariable(sess, "AGENTMUX_ROLE", "it's \"fine\""))
	require.Len(t, sess.written, 2)
	assert.Equal(t, `export AGENTMUX_ROLE='it'\''s "fine"'`, sess.written[0])
	assert.Equal(t, "\r", sess.written[1])
}

func TestCapturePaneDelegates(t *testing.T) {
	sess := &fakeSession{pane: "line1\nline2"}
	assert.Equal(t, "line1\nline2", CapturePane(sess, 5))
}

func TestSendKeyWritesVerbatim(t *testing.T) {
	sess := &fakeSession{}
	require.NoError(t, SendKey(sess, "abc"))
	assert.Equal(t, []string{"abc"}, sess.written)
}

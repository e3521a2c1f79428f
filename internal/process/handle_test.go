package process

import (
	"bytes"
	"errors"
	"runtime"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireUnixHandle(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix process groups")
	}
}

func TestLaunch_CleanExit(t *testing.T) {
	requireUnixHandle(t)
	s := &Spec{Name: "ok", Command: "true"}
	h, err := Launch(s, nil, nil, nil)
	require.NoError(t, err)
	assert.Greater(t, h.PID(), 0)
	assert.NoError(t, h.Wait())
}

func TestLaunch_CapturesOutput(t *testing.T) {
	requireUnixHandle(t)
	var out bytes.Buffer
	s := &Spec{Name: "echo", Command: "echo hello"}
	h, err := Launch(s, nil, &out, &out)
	require.NoError(t, err)
	require.NoError(t, h.Wait())
	assert.Equal(t, "hello", strings.TrimSpace(out.String()))
}

func TestLaunch_AppliesEnv(t *testing.T) {
	requireUnixHandle(t)
	var out bytes.Buffer
	s := &Spec{Name: "env", Command: `sh -c 'echo "$DESK_TEST_VAR"'`}
	h, err := Launch(s, []string{"PATH=/usr/bin:/bin", "DESK_TEST_VAR=display-1"}, &out, &out)
	require.NoError(t, err)
	require.NoError(t, h.Wait())
	assert.Equal(t, "display-1", strings.TrimSpace(out.String()))
}

func TestLaunch_MissingExecutable(t *testing.T) {
	requireUnixHandle(t)
	s := &Spec{Name: "ghost", Command: "/nonexistent/binary-xyz"}
	_, err := Launch(s, nil, nil, nil)
	require.Error(t, err)
	var le *LaunchError
	assert.True(t, errors.As(err, &le), "expected LaunchError, got %v", err)
}

func TestExitCode_NonZero(t *testing.T) {
	requireUnixHandle(t)
	s := &Spec{Name: "fail", Command: "sh -c 'exit 3'"}
	h, err := Launch(s, nil, nil, nil)
	require.NoError(t, err)
	werr := h.Wait()
	require.Error(t, werr)
	assert.Equal(t, 3, ExitCode(werr))
	assert.Empty(t, ExitSignal(werr))
}

func TestExitCode_Clean(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, "", ExitSignal(nil))
	assert.Equal(t, -1, ExitCode(errors.New("not an exit error")))
}

func TestTerminate_SignalsProcessGroup(t *testing.T) {
	requireUnixHandle(t)
	s := &Spec{Name: "sleeper", Command: "sleep 60"}
	h, err := Launch(s, nil, nil, nil)
	require.NoError(t, err)

	waitErr := make(chan error, 1)
	go func() { waitErr <- h.Wait() }()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, h.Terminate())

	select {
	case werr := <-waitErr:
		require.Error(t, werr)
		assert.Equal(t, -1, ExitCode(werr))
		assert.Equal(t, "terminated", ExitSignal(werr))
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after SIGTERM")
	}
}

func TestParseSignal(t *testing.T) {
	assert.Equal(t, syscall.SIGTERM, ParseSignal(""))
	assert.Equal(t, syscall.SIGTERM, ParseSignal("SIGTERM"))
	assert.Equal(t, syscall.SIGTERM, ParseSignal("TERM"))
	assert.Equal(t, syscall.SIGINT, ParseSignal("INT"))
	assert.Equal(t, syscall.SIGQUIT, ParseSignal("SIGQUIT"))
	assert.Equal(t, syscall.SIGHUP, ParseSignal("HUP"))
	assert.Equal(t, syscall.SIGKILL, ParseSignal("KILL"))
	assert.Equal(t, syscall.SIGTERM, ParseSignal("SIGWHATEVER"))
}

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeDaemon(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(StackStatus{
			Ready: true,
			Processes: []ProcessInfo{
				{Name: "display", State: "running", PID: 100},
				{Name: "vnc", State: "ready", PID: 101, DependsOn: []string{"display"}},
			},
		})
	})
	mux.HandleFunc("/api/status/display", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(ProcessInfo{Name: "display", State: "running", PID: 100})
	})
	mux.HandleFunc("/api/start", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") == "ghost" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unknown process: ghost"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	mux.HandleFunc("/api/stop", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("cascade"))
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	mux.HandleFunc("/api/restart", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	mux.HandleFunc("/api/shutdown", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	mux.HandleFunc("/api/journal", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "vnc", r.URL.Query().Get("name"))
		_ = json.NewEncoder(w).Encode([]Transition{
			{ID: 1, Name: "vnc", From: "pending", To: "starting", PID: 101, At: time.Now()},
		})
	})
	mux.HandleFunc("/api/logs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "vnc", r.URL.Query().Get("name"))
		assert.Equal(t, "5", r.URL.Query().Get("n"))
		_ = json.NewEncoder(w).Encode([]LogLine{{At: time.Now(), Text: "listening on 5900"}})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, New(Config{BaseURL: ts.URL + "/api", Timeout: 2 * time.Second})
}

func TestStatus(t *testing.T) {
	_, c := fakeDaemon(t)
	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Ready)
	require.Len(t, st.Processes, 2)
	assert.Equal(t, "vnc", st.Processes[1].Name)
}

func TestProcessStatus(t *testing.T) {
	_, c := fakeDaemon(t)
	p, err := c.ProcessStatus(context.Background(), "display")
	require.NoError(t, err)
	assert.Equal(t, 100, p.PID)
}

func TestControlCalls(t *testing.T) {
	_, c := fakeDaemon(t)
	ctx := context.Background()
	assert.NoError(t, c.Start(ctx, "display"))
	assert.NoError(t, c.Stop(ctx, "display", true))
	assert.NoError(t, c.Restart(ctx, "display"))
	assert.NoError(t, c.Shutdown(ctx))
}

func TestDaemonErrorSurfaced(t *testing.T) {
	_, c := fakeDaemon(t)
	err := c.Start(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown process: ghost")
}

func TestLogs(t *testing.T) {
	_, c := fakeDaemon(t)
	lines, err := c.Logs(context.Background(), "vnc", 5)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "listening on 5900", lines[0].Text)
}

func TestHistory(t *testing.T) {
	_, c := fakeDaemon(t)
	rows, err := c.History(context.Background(), "vnc", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "starting", rows[0].To)
}

func TestIsReachable(t *testing.T) {
	_, c := fakeDaemon(t)
	assert.True(t, c.IsReachable(context.Background()))

	dead := New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: 200 * time.Millisecond})
	assert.False(t, dead.IsReachable(context.Background()))
}

func TestDefaults(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, "http://127.0.0.1:9090/api", c.baseURL)
	assert.Equal(t, 10*time.Second, c.client.Timeout)
}

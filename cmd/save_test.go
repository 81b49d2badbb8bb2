package cmd

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/babelcloud/gbox/packages/replay/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mockSaveCompleted = `{"status":"completed","path":"/tmp/Recording at 2026-10-15 at 09.30.00.mp4","warnings":["microphone track dropped"]}`

const mockSaveRejected = `{"status":"rejected","reason":"insufficient data: video track shorter than 1s"}`

const mockStatus = `{
	"running": true, "port": 29990, "uptime": "1m0s", "version": "dev",
	"buffering": true, "save_in_progress": false, "window_seconds": 30,
	"tracks": [
		{"kind":"video","codec":"h264","samples":1800,"duration_seconds":30,"ingested":2400},
		{"kind":"system_audio","codec":"aac","samples":1500,"duration_seconds":30,"ingested":2000},
		{"kind":"microphone","samples":0,"duration_seconds":0,"ingested":0}
	],
	"last_save": {"status":"failed","reason":"disk full","at":"2026-10-15T09:30:00Z"}
}`

// withMockServer points the client at a test server for one test
func withMockServer(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	config.Set("server.url", server.URL)
	t.Cleanup(func() { config.Set("server.url", "") })
}

// captureStdout runs fn and returns what it printed
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	runErr := fn()

	w.Close()
	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String(), runErr
}

func TestSaveCompleted(t *testing.T) {
	withMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/replay/save", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("duration"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(mockSaveCompleted))
	})

	output, err := captureStdout(t, func() error {
		cmd := NewSaveCommand()
		cmd.SetArgs([]string{"--duration", "10", "--quiet=false"})
		return cmd.Execute()
	})
	require.NoError(t, err)
	assert.Contains(t, output, "Saved /tmp/Recording at 2026-10-15 at 09.30.00.mp4")
	assert.Contains(t, output, "microphone track dropped")
}

// Output is piped in tests, so the path is printed on its own
func TestSavePipedPrintsPathOnly(t *testing.T) {
	withMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery, "whole window is saved without a duration")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(mockSaveCompleted))
	})

	output, err := captureStdout(t, func() error {
		cmd := NewSaveCommand()
		cmd.SetArgs([]string{})
		return cmd.Execute()
	})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/Recording at 2026-10-15 at 09.30.00.mp4\n", output)
}

func TestSaveRejected(t *testing.T) {
	withMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(mockSaveRejected))
	})

	cmd := NewSaveCommand()
	cmd.SetArgs([]string{})
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save rejected")
	assert.Contains(t, err.Error(), "insufficient data")
}

func TestSaveRejectsNegativeDuration(t *testing.T) {
	cmd := NewSaveCommand()
	cmd.SetArgs([]string{"--duration=-3"})
	cmd.SetErr(io.Discard)
	assert.Error(t, cmd.Execute())
}

func TestStatus(t *testing.T) {
	withMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/status", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(mockStatus))
	})

	output, err := captureStdout(t, func() error {
		cmd := NewStatusCommand()
		cmd.SetArgs([]string{})
		return cmd.Execute()
	})
	require.NoError(t, err)
	assert.Contains(t, output, "Replay server is running")
	assert.Contains(t, output, "buffering")
	assert.Contains(t, output, "TRACK")
	assert.Contains(t, output, "CODEC")
	assert.Contains(t, output, "h264")
	assert.Contains(t, output, "system_audio")
	assert.Contains(t, output, "30.0s")
	assert.Contains(t, output, "2400")
	assert.Contains(t, output, "Last save (09:30:00): failed (disk full)")
}

func TestStatusServerDown(t *testing.T) {
	config.Set("server.url", "http://127.0.0.1:1")
	t.Cleanup(func() { config.Set("server.url", "") })

	output, err := captureStdout(t, func() error {
		cmd := NewStatusCommand()
		cmd.SetArgs([]string{})
		return cmd.Execute()
	})
	require.NoError(t, err)
	assert.Contains(t, output, "Replay server is not running")
}

func TestStartAndStop(t *testing.T) {
	var paths []string
	withMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"buffering":true}`))
	})

	_, err := captureStdout(t, func() error {
		start := NewStartCommand()
		start.SetArgs([]string{})
		if err := start.Execute(); err != nil {
			return err
		}
		stop := NewStopCommand()
		stop.SetArgs([]string{})
		return stop.Execute()
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/api/replay/start", "/api/replay/stop"}, paths)
}

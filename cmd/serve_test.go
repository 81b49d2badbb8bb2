package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/babelcloud/gbox/packages/replay/config"
	"github.com/babelcloud/gbox/packages/replay/internal/client"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/core"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useServeSettings points the server settings at temp dirs and port
func useServeSettings(t *testing.T, port int) string {
	t.Helper()
	prev, err := config.Load()
	require.NoError(t, err)
	prevHome := config.GetReplayHome()
	home := t.TempDir()
	config.Set("server.port", port)
	config.Set("replay.home", home)
	config.Set("replay.output_directory", t.TempDir())
	t.Cleanup(func() {
		config.Set("server.port", prev.ServerPort)
		config.Set("replay.home", prevHome)
		config.Set("replay.output_directory", prev.OutputDirectory)
	})
	return home
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func serverPort(t *testing.T, server *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return port
}

func TestRunServeStartsBufferingAndShutsDown(t *testing.T) {
	port := freePort(t)
	home := useServeSettings(t, port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)

	output, err := captureStdout(t, func() error {
		go func() { done <- runServe(ctx, true) }()

		c := client.New(fmt.Sprintf("http://localhost:%d", port))
		ok := assert.Eventually(t, func() bool {
			status, err := c.Status(context.Background())
			return err == nil && status.Buffering
		}, 10*time.Second, 50*time.Millisecond)

		cancel()
		select {
		case err := <-done:
			if !ok {
				return fmt.Errorf("server never reported buffering: %v", err)
			}
			return err
		case <-time.After(10 * time.Second):
			return fmt.Errorf("server did not shut down")
		}
	})
	require.NoError(t, err)
	assert.Contains(t, output, "Replay Server")
	assert.Contains(t, output, fmt.Sprintf("http://localhost:%d", port))

	logData, err := os.ReadFile(filepath.Join(home, "server.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logData), "Replay buffering started")
	assert.Contains(t, string(logData), "shutting down server")
}

func TestRunServeRefusesForeignService(t *testing.T) {
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"healthy","service":"gbox-server"}`))
	}))
	defer other.Close()
	useServeSettings(t, serverPort(t, other))

	err := runServe(context.Background(), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ServerMismatchedError)
}

func TestRunServeWithServerAlreadyRunning(t *testing.T) {
	running := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/health", r.URL.Path)
		w.Write([]byte(`{"status":"healthy","service":"gbox-replay"}`))
	}))
	defer running.Close()
	useServeSettings(t, serverPort(t, running))

	output, err := captureStdout(t, func() error {
		return runServe(context.Background(), true)
	})
	require.NoError(t, err)
	assert.Contains(t, output, "has been already started")
}

func TestReplayStackResetsCaptureCountsWhenStopped(t *testing.T) {
	settings := config.Settings{
		Window:          30 * time.Second,
		MinDuration:     time.Second,
		Preferences:     format.DefaultPreferences(),
		OutputDirectory: t.TempDir(),
		InputQueueSize:  8,
	}
	sess, adapter := newReplayStack(settings, slog.New(slog.NewTextHandler(io.Discard, nil)))

	sess.StartBuffering()
	adapter.SetFormat(core.KindSystemAudio, &core.FormatDescriptor{Codec: core.CodecAAC, SampleRate: 48000, ChannelCount: 2})
	adapter.OnSample(core.KindSystemAudio, core.Sample{Duration: 20 * time.Millisecond, Data: []byte{0x21}})
	assert.Equal(t, uint64(1), adapter.Counts()[core.KindSystemAudio])
	assert.Equal(t, 20*time.Millisecond, sess.Store().TotalDuration(core.KindSystemAudio))

	sess.StopBuffering()
	assert.Zero(t, adapter.Counts()[core.KindSystemAudio])
	assert.NotNil(t, adapter.Format(core.KindSystemAudio))
	assert.Zero(t, sess.Store().TotalDuration(core.KindSystemAudio))
}

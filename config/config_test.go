package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fresh swaps in a viper instance with defaults only for one test.
func fresh(t *testing.T) {
	t.Helper()
	orig := v
	v = newViper()
	t.Cleanup(func() { v = orig })
}

func TestLoadDefaults(t *testing.T) {
	fresh(t)
	Set("replay.output_directory", t.TempDir())

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, s.Window)
	assert.Equal(t, time.Second, s.MinDuration)
	assert.Equal(t, format.DefaultPreferences(), s.Preferences)
	assert.Equal(t, "Recording at %t", s.FileNameTemplate)
	assert.Equal(t, 64, s.InputQueueSize)
	assert.Equal(t, 29990, s.ServerPort)
	assert.False(t, s.AutoCopyToClipboard)
}

func TestLoadFromEnvironment(t *testing.T) {
	fresh(t)
	t.Setenv("REPLAY_WINDOW_DURATION_SECONDS", "12.5")
	t.Setenv("REPLAY_VIDEO_CODEC", "hevc")
	t.Setenv("REPLAY_AUDIO_QUALITY_TIER", "low")
	t.Setenv("REPLAY_OUTPUT_DIRECTORY", "~/clips")
	t.Setenv("REPLAY_SERVER_PORT", "31000")

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 12500*time.Millisecond, s.Window)
	assert.Equal(t, format.VideoCodecEfficient, s.Preferences.VideoCodec)
	assert.Equal(t, format.AudioQualityLow, s.Preferences.AudioQuality)
	assert.Equal(t, filepath.Join(xdg.Home, "clips"), s.OutputDirectory)
	assert.Equal(t, 31000, s.ServerPort)
	assert.Equal(t, "http://localhost:31000", GetServerURL())
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		key   string
		value any
	}{
		{"replay.window_duration_seconds", 0},
		{"replay.min_duration_seconds", -1},
		{"replay.video_codec", "vp9"},
		{"replay.audio_format", "mp3"},
		{"replay.audio_quality_tier", "ultra"},
		{"replay.video_format", "avi"},
		{"replay.video_quality_factor", 1.5},
		{"replay.frame_rate_target", 0},
		{"replay.output_directory", " "},
		{"replay.input_queue_size", 0},
		{"server.port", 70000},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			fresh(t)
			Set("replay.output_directory", t.TempDir())
			Set(tt.key, tt.value)

			_, err := Load()
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.key, cfgErr.Key)
		})
	}
}

func TestServerURLOverride(t *testing.T) {
	fresh(t)
	Set("server.url", "http://replay.local:8080/")
	assert.Equal(t, "http://replay.local:8080", GetServerURL())
}

func TestReplayHomeAndLogPath(t *testing.T) {
	fresh(t)
	Set("replay.home", "~/.replay-test")

	assert.Equal(t, filepath.Join(xdg.Home, ".replay-test"), GetReplayHome())
	assert.Equal(t, filepath.Join(xdg.Home, ".replay-test", "server.log"), GetLogPath())
}

func TestOnChangeWithoutConfigFile(t *testing.T) {
	fresh(t)
	assert.False(t, OnChange(func(Settings) {}, func(error) {}))
}

func TestOnChangeReloadsSettings(t *testing.T) {
	fresh(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	write := func(body string) {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	write("replay:\n  window_duration_seconds: 30\n  output_directory: " + dir + "\n")
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	var (
		mu      sync.Mutex
		windows []time.Duration
		errs    []error
	)
	require.True(t, OnChange(func(s Settings) {
		mu.Lock()
		defer mu.Unlock()
		windows = append(windows, s.Window)
	}, func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
	}))

	write("replay:\n  window_duration_seconds: 12\n  output_directory: " + dir + "\n")
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(windows) > 0 && windows[len(windows)-1] == 12*time.Second
	}, 5*time.Second, 20*time.Millisecond)

	write("replay:\n  window_duration_seconds: -1\n  output_directory: " + dir + "\n")
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) > 0
	}, 5*time.Second, 20*time.Millisecond)
}

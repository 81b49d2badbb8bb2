package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/format"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var v *viper.Viper

func init() {
	v = newViper()

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			panic(fmt.Sprintf("Fatal error reading config file: %s", err))
		}
		// Config file not found; ignore error and use defaults
	}
}

func newViper() *viper.Viper {
	v := viper.New()

	// Set default values
	v.SetDefault("replay.window_duration_seconds", 30.0)
	v.SetDefault("replay.min_duration_seconds", format.MinimumDuration.Seconds())
	v.SetDefault("replay.video_codec", "legacy")
	v.SetDefault("replay.video_quality_factor", 1.0)
	v.SetDefault("replay.frame_rate_target", 60)
	v.SetDefault("replay.audio_format", "aac")
	v.SetDefault("replay.audio_quality_tier", "high")
	v.SetDefault("replay.video_format", "mp4")
	v.SetDefault("replay.output_directory", defaultOutputDirectory())
	v.SetDefault("replay.file_name_template", "Recording at %t")
	v.SetDefault("replay.auto_copy_to_clipboard", false)
	v.SetDefault("replay.input_queue_size", 64)

	v.SetDefault("server.port", 29990)
	v.SetDefault("server.url", "")
	v.SetDefault("log.verbose", false)

	v.SetDefault("replay.home", filepath.Join(xdg.Home, ".gbox-replay"))

	// Environment variables
	v.AutomaticEnv()
	v.BindEnv("replay.window_duration_seconds", "REPLAY_WINDOW_DURATION_SECONDS", "REPLAY_WINDOW")
	v.BindEnv("replay.min_duration_seconds", "REPLAY_MIN_DURATION_SECONDS")
	v.BindEnv("replay.video_codec", "REPLAY_VIDEO_CODEC")
	v.BindEnv("replay.video_quality_factor", "REPLAY_VIDEO_QUALITY_FACTOR")
	v.BindEnv("replay.frame_rate_target", "REPLAY_FRAME_RATE_TARGET")
	v.BindEnv("replay.audio_format", "REPLAY_AUDIO_FORMAT")
	v.BindEnv("replay.audio_quality_tier", "REPLAY_AUDIO_QUALITY_TIER")
	v.BindEnv("replay.video_format", "REPLAY_VIDEO_FORMAT")
	v.BindEnv("replay.output_directory", "REPLAY_OUTPUT_DIRECTORY")
	v.BindEnv("replay.file_name_template", "REPLAY_FILE_NAME_TEMPLATE")
	v.BindEnv("replay.auto_copy_to_clipboard", "REPLAY_AUTO_COPY_TO_CLIPBOARD")
	v.BindEnv("replay.input_queue_size", "REPLAY_INPUT_QUEUE_SIZE")
	v.BindEnv("replay.home", "REPLAY_HOME")
	v.BindEnv("server.port", "REPLAY_SERVER_PORT")
	v.BindEnv("server.url", "REPLAY_SERVER_URL")
	v.BindEnv("log.verbose", "REPLAY_VERBOSE")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Look for config in the following paths
	configPaths := []string{
		".",
		"$HOME/.gbox-replay",
		"/etc/gbox-replay",
	}

	for _, path := range configPaths {
		expandedPath := os.ExpandEnv(path)
		v.AddConfigPath(expandedPath)
	}
	return v
}

func defaultOutputDirectory() string {
	if xdg.UserDirs.Videos != "" {
		return xdg.UserDirs.Videos
	}
	return xdg.Home
}

// ConfigurationError reports an invalid setting. It is not retried.
type ConfigurationError struct {
	Key string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %v", e.Key, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Settings are the validated replay settings.
type Settings struct {
	Window              time.Duration
	MinDuration         time.Duration
	Preferences         format.Preferences
	OutputDirectory     string
	FileNameTemplate    string
	AutoCopyToClipboard bool
	InputQueueSize      int
	ServerPort          int
	Verbose             bool
}

// Load reads and validates the current settings.
func Load() (Settings, error) {
	s := Settings{
		OutputDirectory:     v.GetString("replay.output_directory"),
		FileNameTemplate:    v.GetString("replay.file_name_template"),
		AutoCopyToClipboard: v.GetBool("replay.auto_copy_to_clipboard"),
		InputQueueSize:      v.GetInt("replay.input_queue_size"),
		ServerPort:          v.GetInt("server.port"),
		Verbose:             v.GetBool("log.verbose"),
	}

	window := v.GetFloat64("replay.window_duration_seconds")
	if window <= 0 {
		return Settings{}, &ConfigurationError{Key: "replay.window_duration_seconds", Err: fmt.Errorf("must be positive, got %v", window)}
	}
	s.Window = seconds(window)

	minDuration := v.GetFloat64("replay.min_duration_seconds")
	if minDuration < 0 {
		return Settings{}, &ConfigurationError{Key: "replay.min_duration_seconds", Err: fmt.Errorf("must not be negative, got %v", minDuration)}
	}
	s.MinDuration = seconds(minDuration)

	prefs, err := loadPreferences()
	if err != nil {
		return Settings{}, err
	}
	s.Preferences = prefs

	if strings.TrimSpace(s.OutputDirectory) == "" {
		return Settings{}, &ConfigurationError{Key: "replay.output_directory", Err: fmt.Errorf("must not be empty")}
	}
	s.OutputDirectory = expandHome(s.OutputDirectory)

	if s.InputQueueSize <= 0 {
		return Settings{}, &ConfigurationError{Key: "replay.input_queue_size", Err: fmt.Errorf("must be positive, got %d", s.InputQueueSize)}
	}
	if s.ServerPort <= 0 || s.ServerPort > 65535 {
		return Settings{}, &ConfigurationError{Key: "server.port", Err: fmt.Errorf("out of range: %d", s.ServerPort)}
	}
	return s, nil
}

func loadPreferences() (format.Preferences, error) {
	var (
		prefs format.Preferences
		err   error
	)
	if prefs.VideoCodec, err = format.ParseVideoCodec(v.GetString("replay.video_codec")); err != nil {
		return prefs, &ConfigurationError{Key: "replay.video_codec", Err: err}
	}
	if prefs.AudioFormat, err = format.ParseAudioFormat(v.GetString("replay.audio_format")); err != nil {
		return prefs, &ConfigurationError{Key: "replay.audio_format", Err: err}
	}
	if prefs.AudioQuality, err = format.ParseAudioQuality(v.GetString("replay.audio_quality_tier")); err != nil {
		return prefs, &ConfigurationError{Key: "replay.audio_quality_tier", Err: err}
	}
	if prefs.VideoFormat, err = format.ParseVideoFormat(v.GetString("replay.video_format")); err != nil {
		return prefs, &ConfigurationError{Key: "replay.video_format", Err: err}
	}

	prefs.QualityFactor = v.GetFloat64("replay.video_quality_factor")
	if prefs.QualityFactor <= 0 || prefs.QualityFactor > 1 {
		return prefs, &ConfigurationError{Key: "replay.video_quality_factor", Err: fmt.Errorf("must be in (0, 1], got %v", prefs.QualityFactor)}
	}
	prefs.FrameRate = v.GetInt("replay.frame_rate_target")
	if prefs.FrameRate <= 0 {
		return prefs, &ConfigurationError{Key: "replay.frame_rate_target", Err: fmt.Errorf("must be positive, got %d", prefs.FrameRate)}
	}
	return prefs, nil
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func expandHome(path string) string {
	if path == "~" {
		return xdg.Home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(xdg.Home, path[2:])
	}
	return path
}

// OnChange calls fn with the reloaded settings whenever the config file in use
// is written. Edits that fail validation go to onError and are otherwise
// ignored. It reports false when no config file is in use.
func OnChange(fn func(Settings), onError func(error)) bool {
	if v.ConfigFileUsed() == "" {
		return false
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		s, err := Load()
		if err != nil {
			onError(err)
			return
		}
		fn(s)
	})
	v.WatchConfig()
	return true
}

// Set overrides a setting for this process, e.g. from a command line flag.
func Set(key string, value any) {
	v.Set(key, value)
}

// GetServerPort returns the port of the replay server
func GetServerPort() int {
	return v.GetInt("server.port")
}

// GetServerURL returns the base URL clients use to reach the replay server
func GetServerURL() string {
	if url := v.GetString("server.url"); url != "" {
		return strings.TrimRight(url, "/")
	}
	return fmt.Sprintf("http://localhost:%d", GetServerPort())
}

// GetVerbose reports whether debug logging is enabled
func GetVerbose() bool {
	return v.GetBool("log.verbose")
}

// GetReplayHome returns the replay home directory
func GetReplayHome() string {
	return expandHome(v.GetString("replay.home"))
}

// GetLogPath returns the server log file path
func GetLogPath() string {
	return filepath.Join(GetReplayHome(), "server.log")
}

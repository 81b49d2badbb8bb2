package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/babelcloud/gbox/packages/replay/config"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/capture"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/session"
	"github.com/babelcloud/gbox/packages/replay/internal/server"
	"github.com/babelcloud/gbox/packages/replay/internal/util"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the 'serve' command
func NewServeCommand() *cobra.Command {
	var (
		port    int
		noStart bool
	)

	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Run the replay server in the foreground",
		Long:         `Run the replay server. Capture sources stream samples to it and clients ask it to save replays.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				config.Set("server.port", port)
			}
			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, !noStart)
		},
		Example: `  # Start the server and begin buffering
  gbox-replay serve

  # Serve on a specific port
  gbox-replay serve -p 31000

  # Serve without buffering until 'gbox-replay start'
  gbox-replay serve --no-start`,
	}

	flags := cmd.Flags()
	flags.IntVarP(&port, "port", "p", config.GetServerPort(), "Server port")
	flags.BoolVar(&noStart, "no-start", false, "Do not start buffering on launch")

	return cmd
}

func runServe(ctx context.Context, startBuffering bool) error {
	settings, err := config.Load()
	if err != nil {
		return err
	}
	port := settings.ServerPort

	if err := checkServerStatus(port); err != nil {
		if err == ServerMismatchedError {
			return errors.Wrapf(err, "port %d is already been used", port)
		}
	} else {
		fmt.Printf("replay server has been already started on port %d\n", port)
		return nil
	}

	logFile, err := openServerLog()
	if err != nil {
		return err
	}
	defer logFile.Close()
	util.InitLoggerTo(io.MultiWriter(os.Stdout, logFile), settings.Verbose)
	defer util.InitLogger(settings.Verbose)
	logger := util.GetLogger()

	sess, adapter := newReplayStack(settings, logger)
	if config.OnChange(func(s config.Settings) {
		sess.SetWindow(s.Window)
	}, func(err error) {
		logger.Warn("ignoring invalid config change", "error", err)
	}) {
		logger.Debug("watching config file for window changes")
	}

	srv := server.NewReplayServer(port, sess, adapter, logger)
	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	ready := false
	for range 3 {
		time.Sleep(time.Second)
		if err := checkServerStatus(port); err == nil {
			ready = true
			break
		}
		select {
		case startErr := <-errChan:
			return errors.Wrapf(startErr, "fail to start server on port %d", port)
		default:
		}
	}
	if !ready {
		srv.Stop()
		return errors.Errorf("server did not become healthy on port %d", port)
	}

	if startBuffering {
		sess.StartBuffering()
	}

	fmt.Printf("%s %s %s\n",
		color.GreenString("🎬 Replay Server"),
		color.CyanString("➜"),
		color.BlueString("http://localhost:%d", port))
	fmt.Printf("   Window: %s, saving to %s\n", settings.Window, settings.OutputDirectory)
	fmt.Printf("   Log: %s\n", logFile.Name())
	color.Cyan("Press Ctrl+C to stop...")

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errChan:
		runErr = errors.Wrap(err, "server stopped unexpectedly")
	}

	logger.Info("shutting down server")
	if err := srv.Stop(); err != nil {
		logger.Error("error stopping server", "error", err)
	}
	return runErr
}

// newReplayStack wires the buffering session to the capture adapter. The
// adapter's counters and timing restart with every buffering session.
func newReplayStack(settings config.Settings, logger *slog.Logger) (*session.Session, *capture.Adapter) {
	var adapter *capture.Adapter
	sess := session.New(session.Config{
		WindowDuration:   settings.Window,
		MinDuration:      settings.MinDuration,
		Preferences:      settings.Preferences,
		OutputDirectory:  settings.OutputDirectory,
		FileNameTemplate: settings.FileNameTemplate,
		QueueSize:        settings.InputQueueSize,
		Notifier:         savedNotifier(logger, settings.AutoCopyToClipboard),
		OnStopped: func() {
			adapter.Reset()
			logger.Info("buffering stopped")
		},
	}, logger)
	adapter = capture.NewAdapter(sess, logger)
	return sess, adapter
}

func openServerLog() (*os.File, error) {
	if err := os.MkdirAll(config.GetReplayHome(), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create replay home")
	}
	f, err := os.OpenFile(config.GetLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open server log")
	}
	return f, nil
}

func savedNotifier(logger *slog.Logger, copyPath bool) session.Notifier {
	return session.NotifierFunc(func(path string) {
		logger.Info("replay saved", "path", path)
		if !copyPath {
			return
		}
		if err := util.CopyToClipboard(path); err != nil {
			logger.Warn("failed to copy replay path to clipboard", "error", err)
		}
	})
}

func checkServerStatus(port int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://localhost:%d/api/health", port), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return ServerPortUnavailableError
	}
	defer resp.Body.Close()

	var body struct {
		Status  string `json:"status"`
		Service string `json:"service"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ServerMismatchedError
	}
	if body.Service != "gbox-replay" {
		return ServerMismatchedError
	}
	return nil
}

var ServerPortUnavailableError = &serverPortUnavailableError{}

type serverPortUnavailableError struct{}

func (e *serverPortUnavailableError) Error() string {
	return "server port unavailable"
}

var ServerMismatchedError = &serverMismatchedError{}

type serverMismatchedError struct{}

func (e *serverMismatchedError) Error() string {
	return "server mismatched"
}

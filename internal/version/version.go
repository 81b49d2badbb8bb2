// Package version holds build metadata injected with -ldflags, e.g.
//
//	-X github.com/babelcloud/gbox/packages/replay/internal/version.Version=v0.3.0
package version

import (
	"fmt"
	"os"
	"runtime"
	"time"
)

var (
	// Version is the release tag, "dev" for local builds
	Version = "dev"
	// BuildTime is the RFC 3339 build timestamp
	BuildTime = "unknown"
	// CommitID is the git commit hash
	CommitID = "unknown"
)

func formatBuildTime() string {
	t, err := time.Parse(time.RFC3339, BuildTime)
	if err != nil {
		return BuildTime
	}
	return t.Format("Mon Jan 2 15:04:05 2006")
}

// Summary is the one-line version shown by --version
func Summary() string {
	return fmt.Sprintf("gbox-replay version %s, build %s", Version, CommitID)
}

// BuildID identifies the running binary. Two servers with the same build ID
// run the same executable, even for unreleased "dev" builds.
func BuildID() string {
	stamp := "unknown"
	if path, err := os.Executable(); err == nil {
		if info, err := os.Stat(path); err == nil {
			stamp = fmt.Sprintf("%s-%d", info.ModTime().UTC().Format("20060102T150405"), info.Size())
		}
	}
	return fmt.Sprintf("%s-%s-%s", Version, CommitID, stamp)
}

// WritingApp names this build in container metadata
func WritingApp() string {
	return "gbox-replay " + Version
}

// ClientInfo returns structured version information
func ClientInfo() map[string]string {
	return map[string]string{
		"Version":       Version,
		"GoVersion":     runtime.Version(),
		"GitCommit":     CommitID,
		"BuildTime":     BuildTime,
		"FormattedTime": formatBuildTime(),
		"OS":            runtime.GOOS,
		"Arch":          runtime.GOARCH,
	}
}

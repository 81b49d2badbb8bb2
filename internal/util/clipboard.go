package util

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// clipboardCommand returns the platform command that reads the clipboard
// contents from stdin.
func clipboardCommand(goos string, lookPath func(string) (string, error)) ([]string, error) {
	switch goos {
	case "darwin":
		return []string{"pbcopy"}, nil
	case "windows":
		return []string{"clip"}, nil
	case "linux":
		// Prefer Wayland, then X11
		for _, candidate := range [][]string{
			{"wl-copy"},
			{"xclip", "-selection", "clipboard"},
			{"xsel", "--clipboard", "--input"},
		} {
			if _, err := lookPath(candidate[0]); err == nil {
				return candidate, nil
			}
		}
		return nil, fmt.Errorf("no clipboard tool found (install wl-clipboard, xclip or xsel)")
	}
	return nil, fmt.Errorf("clipboard not supported on %s", goos)
}

// CopyToClipboard places text on the system clipboard.
func CopyToClipboard(text string) error {
	args, err := clipboardCommand(runtime.GOOS, exec.LookPath)
	if err != nil {
		return err
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin = strings.NewReader(text)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", args[0], err, strings.TrimSpace(string(output)))
	}
	return nil
}

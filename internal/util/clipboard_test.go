package util

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClipboardCommand(t *testing.T) {
	only := func(names ...string) func(string) (string, error) {
		return func(name string) (string, error) {
			for _, n := range names {
				if n == name {
					return "/usr/bin/" + name, nil
				}
			}
			return "", errors.New("not found")
		}
	}

	args, err := clipboardCommand("darwin", only())
	require.NoError(t, err)
	assert.Equal(t, []string{"pbcopy"}, args)

	args, err = clipboardCommand("linux", only("xclip", "xsel"))
	require.NoError(t, err)
	assert.Equal(t, []string{"xclip", "-selection", "clipboard"}, args)

	_, err = clipboardCommand("linux", only())
	assert.Error(t, err)

	_, err = clipboardCommand("plan9", only())
	assert.Error(t, err)
}

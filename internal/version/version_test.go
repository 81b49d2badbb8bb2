package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientInfo(t *testing.T) {
	origTime, origCommit := BuildTime, CommitID
	t.Cleanup(func() { BuildTime, CommitID = origTime, origCommit })

	BuildTime = "2026-10-15T09:30:00Z"
	CommitID = "abc1234"

	info := ClientInfo()
	assert.Equal(t, "Thu Oct 15 09:30:00 2026", info["FormattedTime"])
	assert.Equal(t, "abc1234", info["GitCommit"])
	assert.Equal(t, "gbox-replay version dev, build abc1234", Summary())
}

func TestClientInfoUnparsedBuildTime(t *testing.T) {
	assert.Equal(t, "unknown", ClientInfo()["FormattedTime"])
}

func TestBuildID(t *testing.T) {
	id := BuildID()
	assert.True(t, strings.HasPrefix(id, Version+"-"+CommitID+"-"), id)
	assert.False(t, strings.HasSuffix(id, "-unknown"), "test binary has a stamp")
}

package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTrackKind(t *testing.T) {
	tests := []struct {
		name string
		want TrackKind
	}{
		{"video", KindVideo},
		{"system_audio", KindSystemAudio},
		{"audio", KindSystemAudio},
		{"Microphone", KindMicrophone},
		{"mic", KindMicrophone},
		{"screen", KindUnknown},
		{"", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTrackKind(tt.name))
		})
	}
}

func TestTrackKindString(t *testing.T) {
	for _, k := range Kinds {
		assert.Equal(t, k, ParseTrackKind(k.String()))
	}
	assert.Equal(t, "unknown", KindUnknown.String())
	assert.True(t, KindMicrophone.IsAudio())
	assert.False(t, KindVideo.IsAudio())
}

func TestTotalDuration(t *testing.T) {
	samples := []Sample{
		{PTS: 0, Duration: 500 * time.Millisecond},
		{PTS: 500 * time.Millisecond, Duration: 250 * time.Millisecond},
	}
	assert.Equal(t, 750*time.Millisecond, TotalDuration(samples))
	assert.Equal(t, 750*time.Millisecond, samples[1].End())
	assert.Zero(t, TotalDuration(nil))
	assert.Nil(t, FirstFormat(samples))
}

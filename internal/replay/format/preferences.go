package format

import (
	"fmt"
	"strings"
)

// VideoCodecPreference selects the codec family used for bitrate targeting.
type VideoCodecPreference string

const (
	VideoCodecLegacy    VideoCodecPreference = "legacy"
	VideoCodecEfficient VideoCodecPreference = "efficient"
)

// AudioFormat is the user's preferred audio output format.
type AudioFormat string

const (
	AudioFormatAAC  AudioFormat = "aac"
	AudioFormatALAC AudioFormat = "alac"
	AudioFormatFLAC AudioFormat = "flac"
	AudioFormatOpus AudioFormat = "opus"
	AudioFormatWAV  AudioFormat = "wav"
)

// VideoFormat is the user's preferred audio+video container.
type VideoFormat string

const (
	VideoFormatMP4  VideoFormat = "mp4"
	VideoFormatMOV  VideoFormat = "mov"
	VideoFormatWebM VideoFormat = "webm"
)

// AudioQuality is a lossy audio quality tier, valued in kbit/s.
type AudioQuality int

const (
	AudioQualityLow    AudioQuality = 128
	AudioQualityMedium AudioQuality = 192
	AudioQualityHigh   AudioQuality = 320
)

// Preferences are the user-facing output choices.
type Preferences struct {
	VideoCodec    VideoCodecPreference
	QualityFactor float64
	FrameRate     int
	AudioFormat   AudioFormat
	AudioQuality  AudioQuality
	VideoFormat   VideoFormat
}

// DefaultPreferences mirrors the defaults of a fresh install.
func DefaultPreferences() Preferences {
	return Preferences{
		VideoCodec:    VideoCodecLegacy,
		QualityFactor: 1.0,
		FrameRate:     60,
		AudioFormat:   AudioFormatAAC,
		AudioQuality:  AudioQualityHigh,
		VideoFormat:   VideoFormatMP4,
	}
}

// ParseVideoCodec accepts the family names as well as the codec names.
func ParseVideoCodec(s string) (VideoCodecPreference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "legacy", "h264", "avc":
		return VideoCodecLegacy, nil
	case "efficient", "h265", "hevc":
		return VideoCodecEfficient, nil
	}
	return "", fmt.Errorf("unknown video codec %q", s)
}

// ParseAudioQuality maps a tier name to its value.
func ParseAudioQuality(s string) (AudioQuality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return AudioQualityLow, nil
	case "medium":
		return AudioQualityMedium, nil
	case "high":
		return AudioQualityHigh, nil
	}
	return 0, fmt.Errorf("unknown audio quality %q", s)
}

// ParseAudioFormat validates an audio format name.
func ParseAudioFormat(s string) (AudioFormat, error) {
	f := AudioFormat(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case AudioFormatAAC, AudioFormatALAC, AudioFormatFLAC, AudioFormatOpus, AudioFormatWAV:
		return f, nil
	}
	return "", fmt.Errorf("unknown audio format %q", s)
}

// ParseVideoFormat validates a video container name.
func ParseVideoFormat(s string) (VideoFormat, error) {
	f := VideoFormat(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case VideoFormatMP4, VideoFormatMOV, VideoFormatWebM:
		return f, nil
	}
	return "", fmt.Errorf("unknown video format %q", s)
}

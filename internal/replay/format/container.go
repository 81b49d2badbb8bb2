package format

import "github.com/babelcloud/gbox/packages/replay/internal/replay/core"

// SessionKind tells whether an output carries video.
type SessionKind int

const (
	SessionAudioOnly SessionKind = iota
	SessionAudioVideo
)

func (k SessionKind) String() string {
	if k == SessionAudioVideo {
		return "audio+video"
	}
	return "audio-only"
}

// Container is an output file format.
type Container int

const (
	ContainerMP4 Container = iota
	ContainerMOV
	ContainerM4A
	ContainerWebM
	ContainerWAV
)

var containerExtensions = map[Container]string{
	ContainerMP4:  "mp4",
	ContainerMOV:  "mov",
	ContainerM4A:  "m4a",
	ContainerWebM: "webm",
	ContainerWAV:  "wav",
}

// Extension returns the file extension without a leading dot.
func (c Container) Extension() string {
	return containerExtensions[c]
}

func (c Container) String() string {
	return c.Extension()
}

// IsFMP4 reports whether the container is written as fragmented ISO-BMFF.
func (c Container) IsFMP4() bool {
	return c == ContainerMP4 || c == ContainerMOV || c == ContainerM4A
}

// Supports reports whether the container can carry a codec.
func (c Container) Supports(codec core.Codec) bool {
	switch c {
	case ContainerMP4, ContainerMOV:
		return codec == core.CodecH264 || codec == core.CodecH265 ||
			codec == core.CodecAAC || codec == core.CodecOpus || codec == core.CodecLPCM
	case ContainerM4A:
		return codec == core.CodecAAC || codec == core.CodecOpus || codec == core.CodecLPCM
	case ContainerWebM:
		return codec == core.CodecH264 || codec == core.CodecOpus
	case ContainerWAV:
		return codec == core.CodecLPCM
	}
	return false
}

// DefaultContainer is the fallback for unsupported preferences.
func DefaultContainer(kind SessionKind) Container {
	if kind == SessionAudioVideo {
		return ContainerMP4
	}
	return ContainerM4A
}

// ContainerFor looks up the container for a session kind and the user's
// preferences. The second result is false when the preference is unsupported
// and the default was used.
func ContainerFor(kind SessionKind, prefs Preferences) (Container, bool) {
	if kind == SessionAudioVideo {
		switch prefs.VideoFormat {
		case VideoFormatMP4:
			return ContainerMP4, true
		case VideoFormatMOV:
			return ContainerMOV, true
		case VideoFormatWebM:
			return ContainerWebM, true
		}
		return ContainerMP4, false
	}

	switch prefs.AudioFormat {
	case AudioFormatAAC, AudioFormatALAC:
		return ContainerM4A, true
	case AudioFormatOpus:
		return ContainerWebM, true
	case AudioFormatWAV:
		return ContainerWAV, true
	}
	return ContainerM4A, false
}

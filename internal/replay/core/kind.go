package core

import (
	"strings"

	"github.com/vishalkuo/bimap"
)

// TrackKind identifies which capture track a sample belongs to.
type TrackKind int

const (
	KindUnknown TrackKind = iota
	KindVideo
	KindSystemAudio
	KindMicrophone
)

// Kinds lists every buffered track kind in mux order.
var Kinds = []TrackKind{KindVideo, KindSystemAudio, KindMicrophone}

var kindNames = bimap.NewBiMap[TrackKind, string]()

func init() {
	kindNames.Insert(KindVideo, "video")
	kindNames.Insert(KindSystemAudio, "system_audio")
	kindNames.Insert(KindMicrophone, "microphone")
}

func (k TrackKind) String() string {
	if name, ok := kindNames.Get(k); ok {
		return name
	}
	return "unknown"
}

// IsAudio reports whether the kind carries audio.
func (k TrackKind) IsAudio() bool {
	return k == KindSystemAudio || k == KindMicrophone
}

// ParseTrackKind maps a track name to its kind. Unrecognized names yield KindUnknown.
func ParseTrackKind(name string) TrackKind {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "audio", "system-audio", "systemaudio":
		name = "system_audio"
	case "mic":
		name = "microphone"
	}
	if k, ok := kindNames.GetInverse(name); ok {
		return k
	}
	return KindUnknown
}

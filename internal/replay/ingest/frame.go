// Package ingest defines the framing used to stream samples into a replay
// server over a WebSocket.
//
// The first text message of a stream is the JSON format descriptor. Every
// following binary message carries one sample:
//
//	flags u8 | pts int64 ns BE | duration int64 ns BE | payload
//
// Bit 0 of flags marks a keyframe.
//
// Media streams stamp samples with the wall-clock capture time instead of a
// stream PTS, the way pion media samples are timed:
//
//	capture time int64 unix ns BE | duration int64 ns BE | payload
//
// A zero capture time means the sample directly follows the previous one.
package ingest

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/babelcloud/gbox/packages/replay/internal/replay/core"
	"github.com/pion/webrtc/v4/pkg/media"
)

const (
	headerSize      = 17
	mediaHeaderSize = 16
	flagKeyframe    = 0x01
)

// EncodeFrame serializes a sample into a binary frame.
func EncodeFrame(s core.Sample) []byte {
	out := make([]byte, headerSize+len(s.Data))
	if s.IsKey {
		out[0] |= flagKeyframe
	}
	binary.BigEndian.PutUint64(out[1:], uint64(s.PTS))
	binary.BigEndian.PutUint64(out[9:], uint64(s.Duration))
	copy(out[headerSize:], s.Data)
	return out
}

// DecodeFrame parses a binary frame. Kind and Format are left to the caller.
// The payload aliases frame.
func DecodeFrame(frame []byte) (core.Sample, error) {
	if len(frame) < headerSize {
		return core.Sample{}, fmt.Errorf("frame too short: %d bytes", len(frame))
	}
	s := core.Sample{
		IsKey:    frame[0]&flagKeyframe != 0,
		PTS:      time.Duration(int64(binary.BigEndian.Uint64(frame[1:]))),
		Duration: time.Duration(int64(binary.BigEndian.Uint64(frame[9:]))),
		Data:     frame[headerSize:],
	}
	if s.PTS < 0 || s.Duration < 0 {
		return core.Sample{}, fmt.Errorf("negative timing in frame: pts=%d duration=%d", s.PTS, s.Duration)
	}
	return s, nil
}

// EncodeMediaFrame serializes a media sample into a binary media frame.
func EncodeMediaFrame(s media.Sample) []byte {
	out := make([]byte, mediaHeaderSize+len(s.Data))
	if !s.Timestamp.IsZero() {
		binary.BigEndian.PutUint64(out, uint64(s.Timestamp.UnixNano()))
	}
	binary.BigEndian.PutUint64(out[8:], uint64(s.Duration))
	copy(out[mediaHeaderSize:], s.Data)
	return out
}

// DecodeMediaFrame parses a binary media frame. The payload aliases frame.
func DecodeMediaFrame(frame []byte) (media.Sample, error) {
	if len(frame) < mediaHeaderSize {
		return media.Sample{}, fmt.Errorf("media frame too short: %d bytes", len(frame))
	}
	stamp := int64(binary.BigEndian.Uint64(frame))
	duration := time.Duration(int64(binary.BigEndian.Uint64(frame[8:])))
	if stamp < 0 || duration < 0 {
		return media.Sample{}, fmt.Errorf("negative timing in media frame: time=%d duration=%d", stamp, duration)
	}

	s := media.Sample{Data: frame[mediaHeaderSize:], Duration: duration}
	if stamp != 0 {
		s.Timestamp = time.Unix(0, stamp)
	}
	return s, nil
}

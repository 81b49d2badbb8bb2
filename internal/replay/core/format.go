package core

// Codec names an encoding carried by a track.
type Codec string

const (
	CodecH264 Codec = "h264"
	CodecH265 Codec = "h265"
	CodecAAC  Codec = "aac"
	CodecOpus Codec = "opus"
	CodecLPCM Codec = "lpcm"
)

// IsVideo reports whether the codec is a video codec.
func (c Codec) IsVideo() bool {
	return c == CodecH264 || c == CodecH265
}

// IsLossy reports whether the codec is a lossy compressed audio codec.
func (c Codec) IsLossy() bool {
	return c == CodecAAC || c == CodecOpus
}

// FormatDescriptor describes the encoding of a track's samples.
type FormatDescriptor struct {
	Codec Codec `json:"codec"`

	// Video
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	VPS    []byte `json:"vps,omitempty"`
	SPS    []byte `json:"sps,omitempty"`
	PPS    []byte `json:"pps,omitempty"`

	// Audio
	SampleRate   int    `json:"sample_rate,omitempty"`
	ChannelCount int    `json:"channel_count,omitempty"`
	BitDepth     int    `json:"bit_depth,omitempty"`
	AudioConfig  []byte `json:"audio_config,omitempty"` // MPEG-4 AudioSpecificConfig for AAC
}

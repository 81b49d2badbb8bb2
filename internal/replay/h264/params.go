package h264

import (
	"encoding/binary"

	"github.com/babelcloud/gbox/packages/replay/internal/replay/core"
	mch264 "github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	mch265 "github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
)

// NAL unit types used to locate parameter sets.
const (
	h264NALSPS = 7
	h264NALPPS = 8
	h264NALIDR = 5

	h265NALVPS = 32
	h265NALSPS = 33
	h265NALPPS = 34
)

// ParameterSets holds the codec configuration NAL units of a video track.
type ParameterSets struct {
	VPS []byte
	SPS []byte
	PPS []byte
}

// Complete reports whether the sets are enough to describe the codec.
func (p ParameterSets) Complete(codec core.Codec) bool {
	if codec == core.CodecH265 && len(p.VPS) == 0 {
		return false
	}
	return len(p.SPS) > 0 && len(p.PPS) > 0
}

// units returns the NAL units of a payload in either Annex-B or AVCC framing.
func units(data []byte) [][]byte {
	if IsAnnexB(data) {
		return SplitAnnexB(data)
	}
	var out [][]byte
	offset := 0
	for offset+4 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[offset:]))
		offset += 4
		if length <= 0 || offset+length > len(data) {
			break
		}
		out = append(out, data[offset:offset+length])
		offset += length
	}
	return out
}

// ExtractParameterSets scans a payload for in-band parameter sets.
func ExtractParameterSets(codec core.Codec, data []byte) ParameterSets {
	var ps ParameterSets
	for _, nal := range units(data) {
		if len(nal) == 0 {
			continue
		}
		if codec == core.CodecH265 {
			switch (nal[0] >> 1) & 0x3F {
			case h265NALVPS:
				ps.VPS = append([]byte(nil), nal...)
			case h265NALSPS:
				ps.SPS = append([]byte(nil), nal...)
			case h265NALPPS:
				ps.PPS = append([]byte(nil), nal...)
			}
			continue
		}
		switch nal[0] & 0x1F {
		case h264NALSPS:
			ps.SPS = append([]byte(nil), nal...)
		case h264NALPPS:
			ps.PPS = append([]byte(nil), nal...)
		}
	}
	return ps
}

// ParameterSetsFromSamples returns the parameter sets of a video track, taken
// from its format descriptor or, failing that, from the first sample carrying them.
func ParameterSetsFromSamples(codec core.Codec, samples []core.Sample) ParameterSets {
	var ps ParameterSets
	if f := core.FirstFormat(samples); f != nil {
		ps = ParameterSets{VPS: f.VPS, SPS: f.SPS, PPS: f.PPS}
		// Capture sources may hand over an avcC record in place of a bare SPS
		if codec == core.CodecH264 && len(f.PPS) == 0 {
			if sps, pps, ok := ParseAvccForSpsPps(f.SPS); ok {
				ps.SPS, ps.PPS = sps, pps
			}
		}
	}
	for _, s := range samples {
		if ps.Complete(codec) {
			break
		}
		found := ExtractParameterSets(codec, s.Data)
		if len(ps.VPS) == 0 {
			ps.VPS = found.VPS
		}
		if len(ps.SPS) == 0 {
			ps.SPS = found.SPS
		}
		if len(ps.PPS) == 0 {
			ps.PPS = found.PPS
		}
	}
	return ps
}

// Dimensions parses the picture size from an SPS.
func Dimensions(codec core.Codec, sps []byte) (width, height int, ok bool) {
	if len(sps) == 0 {
		return 0, 0, false
	}
	if codec == core.CodecH265 {
		var s mch265.SPS
		if err := s.Unmarshal(sps); err != nil {
			return 0, 0, false
		}
		return s.Width(), s.Height(), true
	}
	var s mch264.SPS
	if err := s.Unmarshal(sps); err != nil {
		return 0, 0, false
	}
	return s.Width(), s.Height(), true
}

// IsKeyFrame reports whether an H.264 payload contains an IDR slice.
func IsKeyFrame(data []byte) bool {
	for _, nal := range units(data) {
		if len(nal) > 0 && nal[0]&0x1F == h264NALIDR {
			return true
		}
	}
	return false
}

// ParseAvccForSpsPps extracts the first SPS and PPS from an avcC configuration record.
func ParseAvccForSpsPps(avcc []byte) (sps, pps []byte, ok bool) {
	if len(avcc) < 7 || avcc[0] != 0x01 {
		return nil, nil, false
	}
	// version, profile, compatibility, level, lengthSizeMinusOne, then numOfSPS in the low 3 bits
	i := 5
	numSps := int(avcc[i] & 0x07)
	i++
	for n := 0; n < numSps && i+2 <= len(avcc); n++ {
		l := int(avcc[i])<<8 | int(avcc[i+1])
		i += 2
		if i+l > len(avcc) {
			return nil, nil, false
		}
		if l > 0 && sps == nil {
			sps = append([]byte{}, avcc[i:i+l]...)
		}
		i += l
	}
	if i >= len(avcc) {
		return sps, nil, false
	}

	numPps := int(avcc[i])
	i++
	for n := 0; n < numPps && i+2 <= len(avcc); n++ {
		l := int(avcc[i])<<8 | int(avcc[i+1])
		i += 2
		if i+l > len(avcc) {
			break
		}
		if l > 0 && pps == nil {
			pps = append([]byte{}, avcc[i:i+l]...)
		}
		i += l
	}
	return sps, pps, sps != nil && pps != nil
}

// AVCDecoderConfig builds an avcC configuration record from one SPS and PPS.
func AVCDecoderConfig(sps, pps []byte) []byte {
	if len(sps) < 4 || len(pps) == 0 {
		return nil
	}
	out := make([]byte, 0, 11+len(sps)+len(pps))
	out = append(out, 0x01, sps[1], sps[2], sps[3], 0xFF, 0xE1)
	out = binary.BigEndian.AppendUint16(out, uint16(len(sps)))
	out = append(out, sps...)
	out = append(out, 0x01)
	out = binary.BigEndian.AppendUint16(out, uint16(len(pps)))
	out = append(out, pps...)
	return out
}

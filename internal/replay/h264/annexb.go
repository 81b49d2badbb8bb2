package h264

import (
	"encoding/binary"
	"fmt"
)

// SplitAnnexB splits Annex-B data into NAL units without start codes.
// Data without any start code is returned as a single unit.
func SplitAnnexB(data []byte) [][]byte {
	var units [][]byte
	offset := 0
	for offset < len(data) {
		pos := findStartCode(data[offset:])
		if pos == -1 {
			units = append(units, data[offset:])
			break
		}
		actual := offset + pos
		if actual > offset {
			units = append(units, data[offset:actual])
		}
		offset = actual + startCodeLength(data[actual:])
	}
	return units
}

// findStartCode returns the position of the next 3- or 4-byte start code, or -1.
func findStartCode(data []byte) int {
	for i := 0; i+2 < len(data); i++ {
		if data[i] != 0x00 || data[i+1] != 0x00 {
			continue
		}
		if data[i+2] == 0x01 {
			return i
		}
		if i+3 < len(data) && data[i+2] == 0x00 && data[i+3] == 0x01 {
			return i
		}
	}
	return -1
}

func startCodeLength(data []byte) int {
	if len(data) >= 4 && data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x00 && data[3] == 0x01 {
		return 4
	}
	if len(data) >= 3 && data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x01 {
		return 3
	}
	return 0
}

// IsAnnexB reports whether data starts with a start code.
func IsAnnexB(data []byte) bool {
	return startCodeLength(data) > 0
}

// ConvertAnnexBToAVC converts Annex-B data to 4-byte length-prefixed AVCC.
// Data that is already length-prefixed is returned unchanged.
func ConvertAnnexBToAVC(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if !IsAnnexB(data) {
		if !ValidateAVCData(data) {
			return nil, fmt.Errorf("payload is neither Annex-B nor AVCC")
		}
		return data, nil
	}

	units := SplitAnnexB(data)
	size := 0
	for _, u := range units {
		size += 4 + len(u)
	}
	out := make([]byte, 0, size)
	for _, u := range units {
		out = binary.BigEndian.AppendUint32(out, uint32(len(u)))
		out = append(out, u...)
	}
	return out, nil
}

// ValidateAVCData checks that data is a well-formed sequence of length-prefixed NAL units.
func ValidateAVCData(data []byte) bool {
	if len(data) < 4 || IsAnnexB(data) {
		return false
	}
	offset := 0
	for offset < len(data) {
		if offset+4 > len(data) {
			return false
		}
		length := int(binary.BigEndian.Uint32(data[offset:]))
		offset += 4
		if length == 0 || offset+length > len(data) {
			return false
		}
		offset += length
	}
	return true
}

// ConvertAVCToAnnexB converts length-prefixed AVCC data back to Annex-B.
func ConvertAVCToAnnexB(data []byte) ([]byte, error) {
	var result []byte
	offset := 0
	for offset < len(data) {
		if offset+4 > len(data) {
			break
		}
		length := int(binary.BigEndian.Uint32(data[offset:]))
		offset += 4
		if offset+length > len(data) {
			return nil, fmt.Errorf("invalid length prefix: %d", length)
		}
		result = append(result, 0x00, 0x00, 0x00, 0x01)
		result = append(result, data[offset:offset+length]...)
		offset += length
	}
	return result, nil
}

package h264

import (
	"testing"

	"github.com/babelcloud/gbox/packages/replay/internal/replay/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSPS = []byte{0x67, 0x42, 0x00, 0x1e, 0x96, 0x54, 0x05, 0x01, 0xed, 0x80}
	testPPS = []byte{0x68, 0xce, 0x38, 0x80}
	testIDR = []byte{0x65, 0x88, 0x84, 0x00}
)

func annexB(units ...[]byte) []byte {
	var out []byte
	for _, u := range units {
		out = append(out, 0x00, 0x00, 0x00, 0x01)
		out = append(out, u...)
	}
	return out
}

func TestAnnexBToAVCConversion(t *testing.T) {
	avcData, err := ConvertAnnexBToAVC(annexB(testSPS, testPPS))
	require.NoError(t, err)

	assert.False(t, IsAnnexB(avcData))
	assert.True(t, ValidateAVCData(avcData))
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x0a}, avcData[:4])
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x04}, avcData[14:18])
	assert.Len(t, avcData, 4+len(testSPS)+4+len(testPPS))
}

func TestAnnexBShortStartCodes(t *testing.T) {
	data := append([]byte{0x00, 0x00, 0x01}, testSPS...)
	data = append(data, 0x00, 0x00, 0x01)
	data = append(data, testPPS...)

	units := SplitAnnexB(data)
	require.Len(t, units, 2)
	assert.Equal(t, testSPS, units[0])
	assert.Equal(t, testPPS, units[1])
}

func TestAVCRoundTrip(t *testing.T) {
	original := annexB(testSPS, testPPS, testIDR)
	avc, err := ConvertAnnexBToAVC(original)
	require.NoError(t, err)

	back, err := ConvertAVCToAnnexB(avc)
	require.NoError(t, err)
	assert.Equal(t, original, back)

	// Already length-prefixed data passes through untouched
	again, err := ConvertAnnexBToAVC(avc)
	require.NoError(t, err)
	assert.Equal(t, avc, again)
}

func TestConvertRejectsGarbage(t *testing.T) {
	_, err := ConvertAnnexBToAVC([]byte{0xff, 0xff, 0xff, 0xff, 0x01})
	assert.Error(t, err)

	out, err := ConvertAnnexBToAVC(nil)
	assert.NoError(t, err)
	assert.Nil(t, out)
}

func TestExtractParameterSets(t *testing.T) {
	ps := ExtractParameterSets(core.CodecH264, annexB(testSPS, testPPS, testIDR))
	assert.Equal(t, testSPS, ps.SPS)
	assert.Equal(t, testPPS, ps.PPS)
	assert.True(t, ps.Complete(core.CodecH264))
	assert.False(t, ps.Complete(core.CodecH265))

	assert.True(t, IsKeyFrame(annexB(testSPS, testPPS, testIDR)))
	assert.False(t, IsKeyFrame(annexB([]byte{0x41, 0x9a})))
}

func TestParameterSetsFromSamples(t *testing.T) {
	samples := []core.Sample{
		{Data: annexB([]byte{0x41, 0x9a}), Format: &core.FormatDescriptor{Codec: core.CodecH264}},
		{Data: annexB(testSPS, testPPS, testIDR), IsKey: true},
	}
	ps := ParameterSetsFromSamples(core.CodecH264, samples)
	assert.Equal(t, testSPS, ps.SPS)
	assert.Equal(t, testPPS, ps.PPS)

	described := []core.Sample{{Format: &core.FormatDescriptor{Codec: core.CodecH264, SPS: testSPS, PPS: testPPS}}}
	assert.Equal(t, testSPS, ParameterSetsFromSamples(core.CodecH264, described).SPS)
}

func TestParseAvccForSpsPps(t *testing.T) {
	avcc := []byte{0x01, 0x42, 0x00, 0x1e, 0xff, 0xe1, 0x00, byte(len(testSPS))}
	avcc = append(avcc, testSPS...)
	avcc = append(avcc, 0x01, 0x00, byte(len(testPPS)))
	avcc = append(avcc, testPPS...)

	sps, pps, ok := ParseAvccForSpsPps(avcc)
	require.True(t, ok)
	assert.Equal(t, testSPS, sps)
	assert.Equal(t, testPPS, pps)

	_, _, ok = ParseAvccForSpsPps(testSPS)
	assert.False(t, ok)

	described := []core.Sample{{Format: &core.FormatDescriptor{Codec: core.CodecH264, SPS: avcc}}}
	ps := ParameterSetsFromSamples(core.CodecH264, described)
	assert.Equal(t, testPPS, ps.PPS)
}

func TestDimensionsRejectsEmptySPS(t *testing.T) {
	_, _, ok := Dimensions(core.CodecH264, nil)
	assert.False(t, ok)
}

func TestAVCDecoderConfigRoundTrip(t *testing.T) {
	record := AVCDecoderConfig(testSPS, testPPS)
	require.NotNil(t, record)

	sps, pps, ok := ParseAvccForSpsPps(record)
	require.True(t, ok)
	assert.Equal(t, testSPS, sps)
	assert.Equal(t, testPPS, pps)

	assert.Nil(t, AVCDecoderConfig(nil, testPPS))
}

func TestDimensionsFromSPS(t *testing.T) {
	sps := []byte{
		0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02,
		0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04,
		0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60, 0xc9,
		0x20,
	}
	w, h, ok := Dimensions(core.CodecH264, sps)
	require.True(t, ok)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)
}

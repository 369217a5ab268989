package audio

import (
	"encoding/base64"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat32ToPCM16Clamping(t *testing.T) {
	pcm := Float32ToPCM16([]float32{0, 1, -1, 2, -2, 0.5, float32(math.NaN())})
	got := make([]int16, len(pcm)/2)
	for i := range got {
		got[i] = int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
	}
	assert.Equal(t, []int16{0, 32767, -32768, 32767, -32768, 16384, 0}, got)
}

func TestPCM16RoundTrip(t *testing.T) {
	values := []int16{math.MinInt16, -12345, -1, 0, 1, 255, 256, 12345, math.MaxInt16}
	pcm := make([]byte, 0, len(values)*2)
	for _, v := range values {
		pcm = append(pcm, byte(uint16(v)), byte(uint16(v)>>8))
	}

	samples := PCM16ToFloat32(pcm)
	require.Len(t, samples, len(values))
	for _, s := range samples {
		assert.GreaterOrEqual(t, s, float32(-1))
		assert.Less(t, s, float32(1))
	}
	assert.Equal(t, pcm, Float32ToPCM16(samples))
}

func TestPCM16ToFloat32IgnoresOddByte(t *testing.T) {
	assert.Len(t, PCM16ToFloat32([]byte{0x00, 0x40, 0x01}), 1)
	assert.Empty(t, PCM16ToFloat32(nil))
}

func TestBase64PCM(t *testing.T) {
	in := []float32{0, 0.25, -0.25, 0.999}
	encoded := EncodeBase64PCM(in)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Len(t, raw, len(in)*2)

	out, err := DecodeBase64PCM(encoded)
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for i := range in {
		assert.InDelta(t, in[i], out[i], 1.0/32768)
	}

	_, err = DecodeBase64PCM("%%%")
	assert.Error(t, err)
}

func TestFloat32Bytes(t *testing.T) {
	in := []float32{0, -1, 0.5, 3.25}
	assert.Equal(t, in, BytesToFloat32(Float32ToBytes(in)))
	assert.Len(t, BytesToFloat32([]byte{1, 2, 3}), 0)
}

func TestInputMIMEType(t *testing.T) {
	assert.Equal(t, "audio/pcm;rate=16000", InputMIMEType(InputSampleRate))
}

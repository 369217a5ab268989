// Package audio holds the PCM codec, the capture block queue and the malgo
// device layer used by the live assistant.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// Sample formats exchanged with the live endpoint.
const (
	InputSampleRate  = 16000
	OutputSampleRate = 24000
	BytesPerSample   = 2
)

// InputMIMEType labels outbound realtime audio.
func InputMIMEType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// Float32ToPCM16 converts samples in [-1, 1] to little-endian 16-bit PCM.
// Out of range samples are clamped.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

func floatToInt16(s float32) int16 {
	if s != s { // NaN
		return 0
	}
	v := math.Round(float64(s) * 32768)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// PCM16ToFloat32 converts little-endian 16-bit PCM to samples in [-1, 1).
// A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / BytesPerSample
	out := make([]float32, n)
	for i := range n {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return out
}

// EncodeBase64PCM converts float samples to base64 encoded 16-bit PCM.
func EncodeBase64PCM(samples []float32) string {
	return base64.StdEncoding.EncodeToString(Float32ToPCM16(samples))
}

// DecodeBase64PCM decodes base64 encoded 16-bit PCM to float samples.
func DecodeBase64PCM(data string) ([]float32, error) {
	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio payload: %w", err)
	}
	return PCM16ToFloat32(pcm), nil
}

// BytesToFloat32 reinterprets little-endian IEEE-754 bytes, as delivered by
// an F32 capture device, as samples.
func BytesToFloat32(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := range n {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// PutFloat32 writes samples as little-endian IEEE-754 bytes into dst, which
// must hold at least 4*len(samples) bytes.
func PutFloat32(dst []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(s))
	}
}

// Float32ToBytes is the inverse of BytesToFloat32.
func Float32ToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	PutFloat32(out, samples)
	return out
}

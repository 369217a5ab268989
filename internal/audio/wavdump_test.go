package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWAVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.wav")
	w, err := NewWAVWriter(path, InputSampleRate)
	require.NoError(t, err)

	require.NoError(t, w.Write(ramp(160, 0)))
	require.NoError(t, w.Write(ramp(160, 0)))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.NoError(t, w.Write(ramp(10, 0)))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	assert.Equal(t, uint32(InputSampleRate), dec.SampleRate)
	assert.Equal(t, uint16(1), dec.NumChans)
	assert.Equal(t, uint16(16), dec.BitDepth)

	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Len(t, buf.Data, 320)
}

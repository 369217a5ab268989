package audio

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVWriter records mono float32 audio to a 16-bit WAV file.
type WAVWriter struct {
	mu         sync.Mutex
	file       *os.File
	encoder    *wav.Encoder
	sampleRate int
	closed     bool
}

// NewWAVWriter creates path and writes a WAV header for sampleRate.
func NewWAVWriter(path string, sampleRate int) (*WAVWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create WAV file: %w", err)
	}
	return &WAVWriter{
		file:       file,
		encoder:    wav.NewEncoder(file, sampleRate, 16, 1, 1),
		sampleRate: sampleRate,
	}, nil
}

// Write appends samples. Writes after Close are ignored.
func (w *WAVWriter) Write(samples []float32) error {
	if len(samples) == 0 {
		return nil
	}
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(floatToInt16(s))
	}
	buf := &audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: w.sampleRate, NumChannels: 1},
		SourceBitDepth: 16,
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if err := w.encoder.Write(buf); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	return nil
}

// Close finalizes the header and closes the file.
func (w *WAVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.encoder.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}
	return w.file.Close()
}

package audio

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/onfert/analyst/internal/errors"
)

// Microphone delivers captured mono F32 little-endian frames to a sink.
type Microphone interface {
	Start(sink func(frames []byte)) error
	Close() error
}

// Speaker pulls mono float32 samples from a render function.
type Speaker interface {
	Start(render func(out []float32)) error
	Close() error
}

// Devices opens the host's audio endpoints.
type Devices interface {
	OpenMicrophone(sampleRate int) (Microphone, error)
	OpenSpeaker(sampleRate int) (Speaker, error)
}

// DeviceInfo describes one audio endpoint.
type DeviceInfo struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Kind      string `json:"kind"` // "capture" or "playback"
	IsDefault bool   `json:"isDefault"`
}

// Backend owns a malgo context and opens devices on it.
type Backend struct {
	ctx    *malgo.AllocatedContext
	logger *slog.Logger
}

// NewBackend initializes the platform audio backend.
func NewBackend(logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "audio"))

	// if Linux set malgo.BackendAlsa, else let malgo pick
	var backends []malgo.Backend
	switch runtime.GOOS {
	case "linux":
		backends = []malgo.Backend{malgo.BackendAlsa}
	case "windows":
		backends = []malgo.Backend{malgo.BackendWasapi}
	case "darwin":
		backends = []malgo.Backend{malgo.BackendCoreaudio}
	}

	ctx, err := malgo.InitContext(backends, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", slog.String("message", message))
	})
	if err != nil {
		return nil, errors.DeviceUnavailable("audio.init", fmt.Errorf("context init failed: %w", err))
	}
	return &Backend{ctx: ctx, logger: logger}, nil
}

// Close releases the malgo context.
func (b *Backend) Close() error {
	if b == nil || b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	return err
}

// ListDevices returns the capture and playback endpoints.
func (b *Backend) ListDevices() ([]DeviceInfo, error) {
	var devices []DeviceInfo
	for _, kind := range []struct {
		name string
		typ  malgo.DeviceType
	}{
		{"capture", malgo.Capture},
		{"playback", malgo.Playback},
	} {
		infos, err := b.ctx.Devices(kind.typ)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s devices: %w", kind.name, err)
		}
		for i, info := range infos {
			devices = append(devices, DeviceInfo{
				Index:     i,
				Name:      info.Name(),
				Kind:      kind.name,
				IsDefault: info.IsDefault != 0,
			})
		}
	}
	return devices, nil
}

// OpenMicrophone checks that a capture device exists and prepares a mono F32
// capture stream at sampleRate.
func (b *Backend) OpenMicrophone(sampleRate int) (Microphone, error) {
	infos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.DeviceUnavailable("audio.open_microphone", err)
	}
	if len(infos) == 0 {
		return nil, errors.New(errors.CategoryDeviceUnavailable, "audio.open_microphone",
			"Nenhum microfone encontrado.", nil)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1
	return &captureDevice{backend: b, config: cfg}, nil
}

// OpenSpeaker prepares a mono F32 playback stream at sampleRate.
func (b *Backend) OpenSpeaker(sampleRate int) (Speaker, error) {
	infos, err := b.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, errors.DeviceUnavailable("audio.open_speaker", err)
	}
	if len(infos) == 0 {
		return nil, errors.New(errors.CategoryDeviceUnavailable, "audio.open_speaker",
			"Nenhum dispositivo de saída de áudio encontrado.", nil)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1
	return &playbackDevice{backend: b, config: cfg}, nil
}

type captureDevice struct {
	backend *Backend
	config  malgo.DeviceConfig
	device  *malgo.Device
	once    sync.Once
}

func (c *captureDevice) Start(sink func(frames []byte)) error {
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			sink(input)
		},
		Stop: func() {
			c.backend.logger.Debug("capture device stopped")
		},
	}
	device, err := malgo.InitDevice(c.backend.ctx.Context, c.config, callbacks)
	if err != nil {
		return errors.DeviceUnavailable("audio.capture", fmt.Errorf("device init failed: %w", err))
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return errors.DeviceUnavailable("audio.capture", fmt.Errorf("device start failed: %w", err))
	}
	c.device = device
	return nil
}

func (c *captureDevice) Close() error {
	var err error
	c.once.Do(func() {
		if c.device == nil {
			return
		}
		err = c.device.Stop()
		c.device.Uninit()
	})
	return err
}

type playbackDevice struct {
	backend *Backend
	config  malgo.DeviceConfig
	device  *malgo.Device
	scratch []float32
	frames  atomic.Int64
	once    sync.Once
}

func (p *playbackDevice) Start(render func(out []float32)) error {
	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, framecount uint32) {
			n := int(framecount)
			if cap(p.scratch) < n {
				p.scratch = make([]float32, n)
			}
			buf := p.scratch[:n]
			render(buf)
			PutFloat32(output, buf)
			p.frames.Add(int64(n))
		},
	}
	device, err := malgo.InitDevice(p.backend.ctx.Context, p.config, callbacks)
	if err != nil {
		return errors.DeviceUnavailable("audio.playback", fmt.Errorf("device init failed: %w", err))
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return errors.DeviceUnavailable("audio.playback", fmt.Errorf("device start failed: %w", err))
	}
	p.device = device
	return nil
}

func (p *playbackDevice) Close() error {
	var err error
	p.once.Do(func() {
		if p.device == nil {
			return
		}
		err = p.device.Stop()
		p.device.Uninit()
		p.backend.logger.Debug("playback device closed", slog.Int64("frames", p.frames.Load()))
	})
	return err
}

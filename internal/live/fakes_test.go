package live

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/onfert/analyst/internal/audio"
)

var errFakeClosed = stderrors.New("fake connection closed")

type fakeMic struct {
	mu       sync.Mutex
	sink     func([]byte)
	closed   int
	startErr error
}

func (m *fakeMic) Start(sink func([]byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.sink = sink
	return nil
}

func (m *fakeMic) Close() error {
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
	return nil
}

func (m *fakeMic) push(samples []float32) {
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()
	sink(audio.Float32ToBytes(samples))
}

func (m *fakeMic) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type fakeSpeaker struct {
	mu     sync.Mutex
	render func([]float32)
	closed int
}

func (s *fakeSpeaker) Start(render func([]float32)) error {
	s.mu.Lock()
	s.render = render
	s.mu.Unlock()
	return nil
}

func (s *fakeSpeaker) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

func (s *fakeSpeaker) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeDevices struct {
	mic      *fakeMic
	speaker  *fakeSpeaker
	micErr   error
	micOpens int
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{mic: &fakeMic{}, speaker: &fakeSpeaker{}}
}

func (d *fakeDevices) OpenMicrophone(int) (audio.Microphone, error) {
	d.micOpens++
	if d.micErr != nil {
		return nil, d.micErr
	}
	return d.mic, nil
}

func (d *fakeDevices) OpenSpeaker(int) (audio.Speaker, error) {
	return d.speaker, nil
}

type fakeConn struct {
	sendErr   error // returned by every SendAudio when set
	closeErr  error // returned by Recv once closed; errFakeClosed when nil
	in        chan *ServerMessage
	errs      chan error
	sent      chan Blob
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan *ServerMessage),
		errs:   make(chan error, 1),
		sent:   make(chan Blob, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) SendAudio(blob Blob) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	select {
	case c.sent <- blob:
		return nil
	case <-c.closed:
		return errFakeClosed
	}
}

func (c *fakeConn) Recv() (*ServerMessage, error) {
	select {
	case m := <-c.in:
		return m, nil
	case err := <-c.errs:
		return nil, err
	case <-c.closed:
		if c.closeErr != nil {
			return nil, c.closeErr
		}
		return nil, errFakeClosed
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	mu    sync.Mutex
	conn  *fakeConn
	err   error
	block bool // wait for ctx before failing
	dials int
	setup SetupConfig
}

func (d *fakeDialer) Dial(ctx context.Context, setup SetupConfig) (Conn, error) {
	d.mu.Lock()
	d.dials++
	d.setup = setup
	block, err, conn := d.block, d.err, d.conn
	d.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

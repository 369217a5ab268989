package live

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onfert/analyst/internal/audio"
	"github.com/onfert/analyst/internal/errors"
	"github.com/onfert/analyst/internal/metrics"
	"github.com/onfert/analyst/internal/models"
)

// System transcript messages.
const (
	MsgConnecting   = "Conectando ao Assistente ao Vivo..."
	MsgConnected    = "Conectado! Comece a falar."
	MsgEnded        = "Conversa encerrada."
	MsgRemoteClosed = "Conexão encerrada."
)

// Options configures a Session.
type Options struct {
	Dialer           Dialer
	Devices          audio.Devices
	Setup            SetupConfig
	InputSampleRate  int
	OutputSampleRate int
	BlockSize        int // samples per transmitted block
	BufferBlocks     int // capture queue depth in blocks
	DumpDir          string
	Logger           *slog.Logger
	Metrics          *metrics.LiveMetrics
	ReportError      func(error)
}

// EventKind distinguishes session events.
type EventKind int

const (
	EventEntry EventKind = iota
	EventState
)

// Event is delivered to subscribers for every transcript entry and state
// change.
type Event struct {
	Kind  EventKind
	Entry models.TranscriptionEntry
	State State
}

// Session is the live voice conversation. At most one conversation runs at a
// time; Start and Stop may be called from any goroutine.
type Session struct {
	opts       Options
	logger     *slog.Logger
	transcript Transcript
	scheduler  *Scheduler

	mu       sync.Mutex
	state    State
	stopping bool
	cancel   context.CancelFunc
	done     chan struct{}

	subMu   sync.RWMutex
	subs    map[uint64]func(Event)
	nextSub uint64
}

// NewSession creates an idle session.
func NewSession(opts Options) *Session {
	if opts.InputSampleRate <= 0 {
		opts.InputSampleRate = audio.InputSampleRate
	}
	if opts.OutputSampleRate <= 0 {
		opts.OutputSampleRate = audio.OutputSampleRate
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = 4096
	}
	if opts.BufferBlocks < 2 {
		opts.BufferBlocks = 8
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		opts:      opts,
		logger:    logger.With(slog.String("component", "live")),
		scheduler: NewScheduler(),
		subs:      make(map[uint64]func(Event)),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns the entries of the current or last session.
func (s *Session) Transcript() []models.TranscriptionEntry {
	return s.transcript.Entries()
}

// Subscribe registers fn for session events and returns a function that
// removes it. fn runs on session goroutines; it must not block and must not
// call Start or Stop.
func (s *Session) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Session) emit(ev Event) {
	s.subMu.RLock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func (s *Session) appendEntry(speaker models.Speaker, text string) {
	entry := s.transcript.Append(speaker, text)
	s.emit(Event{Kind: EventEntry, Entry: entry})
}

func (s *Session) system(text string) {
	s.appendEntry(models.SpeakerSystem, text)
}

// setState changes the state and notifies subscribers.
func (s *Session) setState(st State) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	s.mu.Unlock()
	if changed {
		s.emit(Event{Kind: EventState, State: st})
	}
}

// setRunningState toggles between Open and Interrupted while the session runs.
func (s *Session) setRunningState(st State) {
	s.mu.Lock()
	if s.state != StateOpen && s.state != StateInterrupted || s.state == st {
		s.mu.Unlock()
		return
	}
	s.state = st
	s.mu.Unlock()
	s.emit(Event{Kind: EventState, State: st})
}

// resources are acquired by Start and released exactly once when the
// session ends.
type resources struct {
	mic     audio.Microphone
	speaker audio.Speaker
	conn    Conn
	queue   *audio.BlockQueue
	inDump  *audio.WAVWriter
	outDump *audio.WAVWriter
}

func (r *resources) release(logger *slog.Logger) {
	closeLogged := func(name string, c interface{ Close() error }) {
		if err := c.Close(); err != nil {
			logger.Debug("failed to close "+name, slog.Any("error", err))
		}
	}
	if r.mic != nil {
		closeLogged("microphone", r.mic)
	}
	if r.speaker != nil {
		closeLogged("speaker", r.speaker)
	}
	if r.conn != nil {
		closeLogged("connection", r.conn)
	}
	if r.inDump != nil {
		closeLogged("capture dump", r.inDump)
	}
	if r.outDump != nil {
		closeLogged("playback dump", r.outDump)
	}
	r.queue.Reset()
}

// Start opens the microphone and speaker, connects to the endpoint and
// starts streaming. It is a no-op unless the session is idle. Device
// failures are DeviceUnavailable errors and transport failures are
// Connection errors; both leave the session idle with a system entry.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.state = StateConnecting
	s.stopping = false
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.transcript.Clear()
	s.scheduler.Reset()
	s.emit(Event{Kind: EventState, State: StateConnecting})
	s.system(MsgConnecting)

	// Stop while connecting cancels the dial through runCtx.
	dialCtx, cancelDial := context.WithCancel(ctx)
	unlink := context.AfterFunc(runCtx, cancelDial)
	res, err := s.acquire(dialCtx)
	unlink()
	cancelDial()

	s.mu.Lock()
	stopped := s.stopping
	if err == nil && !stopped {
		s.state = StateOpen
	}
	s.mu.Unlock()

	if err != nil || stopped {
		res.release(s.logger)
		cancel()
		if stopped {
			s.system(MsgEnded)
			s.opts.Metrics.SessionEnded("stopped")
			err = nil
		} else {
			s.logger.Warn("live session failed to start", slog.Any("error", err))
			s.system("Falha ao iniciar: " + errors.UserMessage(err))
			s.opts.Metrics.SessionEnded("failed")
			s.report(err)
		}
		s.finish(done)
		return err
	}

	s.emit(Event{Kind: EventState, State: StateOpen})
	s.system(MsgConnected)
	s.opts.Metrics.SessionStarted()
	s.logger.Info("live session open")

	go s.run(runCtx, res, done)
	return nil
}

func (s *Session) acquire(ctx context.Context) (*resources, error) {
	res := &resources{queue: audio.NewBlockQueue(s.opts.BlockSize, s.opts.BufferBlocks)}
	if s.opts.Devices == nil || s.opts.Dialer == nil {
		return res, errors.New(errors.CategoryConfiguration, "live.start", "assistente ao vivo não configurado", nil)
	}

	mic, err := s.opts.Devices.OpenMicrophone(s.opts.InputSampleRate)
	if err != nil {
		return res, asDeviceError("live.microphone", err)
	}
	res.mic = mic

	speaker, err := s.opts.Devices.OpenSpeaker(s.opts.OutputSampleRate)
	if err != nil {
		return res, asDeviceError("live.speaker", err)
	}
	res.speaker = speaker
	if err := speaker.Start(s.scheduler.Render); err != nil {
		return res, asDeviceError("live.speaker", err)
	}

	if s.opts.DumpDir != "" {
		if err := s.openDumps(res); err != nil {
			s.logger.Warn("audio dump disabled", slog.Any("error", err))
		}
	}

	conn, err := s.opts.Dialer.Dial(ctx, s.opts.Setup)
	if err != nil {
		if errors.GetCategory(err) == errors.CategoryGeneric {
			err = errors.Connection("live.dial", err)
		}
		return res, err
	}
	res.conn = conn

	if err := mic.Start(res.queue.Write); err != nil {
		return res, asDeviceError("live.microphone", err)
	}
	return res, nil
}

func asDeviceError(op string, err error) error {
	if errors.GetCategory(err) == errors.CategoryGeneric {
		return errors.DeviceUnavailable(op, err)
	}
	return err
}

func (s *Session) openDumps(res *resources) error {
	if err := os.MkdirAll(s.opts.DumpDir, 0o755); err != nil {
		return fmt.Errorf("failed to create dump directory: %w", err)
	}
	stamp := time.Now().Format("20060102-150405")
	in, err := audio.NewWAVWriter(filepath.Join(s.opts.DumpDir, "live-"+stamp+"-mic.wav"), s.opts.InputSampleRate)
	if err != nil {
		return err
	}
	out, err := audio.NewWAVWriter(filepath.Join(s.opts.DumpDir, "live-"+stamp+"-model.wav"), s.opts.OutputSampleRate)
	if err != nil {
		in.Close()
		return err
	}
	res.inDump, res.outDump = in, out
	return nil
}

// run supervises the sender and receiver until one fails or Stop cancels ctx.
func (s *Session) run(ctx context.Context, res *resources, done chan struct{}) {
	var recvErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.sendLoop(gctx, res) })
	g.Go(func() error {
		recvErr = s.receiveLoop(gctx, res)
		return recvErr
	})
	g.Go(func() error {
		<-gctx.Done()
		// Unblocks Recv and any SendAudio stuck on the network.
		res.conn.Close()
		return nil
	})
	err := g.Wait()
	// A send that fails on a socket the endpoint closed is not an error.
	if errors.Is(recvErr, ErrRemoteClosed) {
		err = recvErr
	}

	s.finalize(err, res)
	s.finish(done)
}

// sendLoop transmits captured audio in fixed blocks. Only this goroutine
// waits on the network; the capture callback never does.
func (s *Session) sendLoop(ctx context.Context, res *resources) error {
	mime := audio.InputMIMEType(s.opts.InputSampleRate)
	var dropped int64
	for {
		block, err := res.queue.ReadBlock(ctx)
		if err != nil {
			return nil
		}
		if d := res.queue.Dropped(); d > dropped {
			s.opts.Metrics.AddDroppedFrames(d - dropped)
			dropped = d
		}
		if res.inDump != nil {
			_ = res.inDump.Write(block)
		}

		blob := Blob{MIMEType: mime, Data: audio.EncodeBase64PCM(block)}
		if err := res.conn.SendAudio(blob); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.opts.Metrics.IncrementBlocksSent()
	}
}

// receiveLoop handles server messages in arrival order. The turn text
// accumulators live here and nowhere else.
func (s *Session) receiveLoop(ctx context.Context, res *resources) error {
	var turn turnText
	for {
		msg, err := res.conn.Recv()
		if err != nil {
			if errors.Is(err, ErrRemoteClosed) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.handleMessage(msg, &turn, res)
	}
}

func (s *Session) handleMessage(msg *ServerMessage, turn *turnText, res *resources) {
	if msg.GoAway != nil {
		s.logger.Warn("endpoint is closing the session", slog.String("time_left", msg.GoAway.TimeLeft))
	}
	sc := msg.ServerContent
	if sc == nil {
		return
	}

	if t := sc.OutputTranscription; t != nil {
		turn.addOutput(t.Text)
	}
	if t := sc.InputTranscription; t != nil {
		turn.addInput(t.Text)
	}

	if sc.TurnComplete {
		for _, f := range turn.flush() {
			s.appendEntry(f.speaker, f.text)
		}
		s.opts.Metrics.IncrementTurns()
		s.setRunningState(StateOpen)
	}

	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.InlineData == nil || !strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
				continue
			}
			samples, err := audio.DecodeBase64PCM(part.InlineData.Data)
			if err != nil {
				s.logger.Warn("dropping undecodable audio chunk", slog.Any("error", err))
				continue
			}
			if len(samples) == 0 {
				continue
			}
			s.setRunningState(StateOpen)
			p := s.scheduler.Schedule(samples)
			if res.outDump != nil {
				_ = res.outDump.Write(samples)
			}
			s.opts.Metrics.IncrementChunksReceived()
			s.logger.Debug("scheduled model audio", slog.Int64("start", p.Start), slog.Int64("frames", p.Frames))
		}
	}

	if sc.Interrupted {
		n := s.scheduler.Interrupt()
		turn.discard()
		s.opts.Metrics.IncrementInterruptions()
		s.setRunningState(StateInterrupted)
		s.logger.Debug("model turn interrupted", slog.Int("stopped_chunks", n))
	}
}

// finalize releases everything and writes the terminal transcript entries.
func (s *Session) finalize(err error, res *resources) {
	s.mu.Lock()
	stopped := s.stopping
	s.mu.Unlock()
	s.setState(StateClosing)

	res.release(s.logger)
	s.scheduler.Interrupt()

	switch {
	case stopped || err == nil:
		s.system(MsgEnded)
		s.opts.Metrics.SessionEnded("stopped")
	case errors.Is(err, ErrRemoteClosed):
		s.system(MsgRemoteClosed)
		s.opts.Metrics.SessionEnded("remote_closed")
	default:
		s.logger.Error("live session failed", slog.Any("error", err))
		s.system(fmt.Sprintf("Erro: %s. Por favor, tente novamente.", errors.UserMessage(err)))
		s.system(MsgEnded)
		s.opts.Metrics.SessionEnded("error")
		s.report(err)
	}
	s.logger.Info("live session closed")
}

func (s *Session) finish(done chan struct{}) {
	s.mu.Lock()
	cancel := s.cancel
	s.state = StateIdle
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.emit(Event{Kind: EventState, State: StateIdle})
	close(done)
}

func (s *Session) report(err error) {
	if s.opts.ReportError != nil {
		s.opts.ReportError(err)
	}
}

// Stop ends the session and waits until every resource is released. It is
// safe from any state; calling it while idle does nothing.
func (s *Session) Stop() {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.mu.Unlock()
		return
	case StateClosing:
		done := s.done
		s.mu.Unlock()
		<-done
		return
	}
	s.state = StateClosing
	s.stopping = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	s.emit(Event{Kind: EventState, State: StateClosing})
	cancel()
	<-done
}

// Close implements io.Closer.
func (s *Session) Close() error {
	s.Stop()
	return nil
}

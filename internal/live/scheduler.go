package live

import "sync"

// Placement is where a chunk landed on the playback timeline, in frames.
type Placement struct {
	ID     uint64
	Start  int64
	Frames int64
}

// End returns the first frame after the chunk.
func (p Placement) End() int64 {
	return p.Start + p.Frames
}

type scheduledChunk struct {
	id      uint64
	start   int64
	samples []float32
}

func (c *scheduledChunk) end() int64 {
	return c.start + int64(len(c.samples))
}

// Scheduler places decoded model audio back to back on a frame timeline and
// mixes it into the playback device's buffers. The timeline clock is the
// number of frames rendered so far. Schedule is called from the receive loop
// and Render from the device callback; one mutex guards both.
type Scheduler struct {
	mu     sync.Mutex
	now    int64 // frames rendered
	cursor int64 // next start frame
	chunks []*scheduledChunk
	nextID uint64
}

// NewScheduler creates an empty scheduler at frame zero.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Schedule queues samples to start when the previous chunk ends, or
// immediately if the timeline has already passed that point.
func (s *Scheduler) Schedule(samples []float32) Placement {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := max(s.cursor, s.now)
	s.nextID++
	c := &scheduledChunk{id: s.nextID, start: start, samples: samples}
	s.chunks = append(s.chunks, c)
	s.cursor = c.end()
	return Placement{ID: c.id, Start: start, Frames: int64(len(samples))}
}

// Render fills out with the scheduled audio for the next len(out) frames,
// advances the clock and retires chunks that finished.
func (s *Scheduler) Render(out []float32) {
	clear(out)

	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.now
	to := from + int64(len(out))
	kept := s.chunks[:0]
	for _, c := range s.chunks {
		lo, hi := max(c.start, from), min(c.end(), to)
		for f := lo; f < hi; f++ {
			out[f-from] += c.samples[f-c.start]
		}
		if c.end() > to {
			kept = append(kept, c)
		}
	}
	clear(s.chunks[len(kept):])
	s.chunks = kept
	s.now = to

	for i, v := range out {
		if v > 1 {
			out[i] = 1
		} else if v < -1 {
			out[i] = -1
		}
	}
}

// Interrupt stops every scheduled chunk and resets the cursor to zero. It
// returns how many chunks were dropped.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.chunks)
	clear(s.chunks)
	s.chunks = s.chunks[:0]
	s.cursor = 0
	return n
}

// Pending returns the number of chunks scheduled or playing.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// Now returns the timeline position in frames.
func (s *Scheduler) Now() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Cursor returns the frame where the next chunk would start if the timeline
// had not advanced past it.
func (s *Scheduler) Cursor() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Reset drops all chunks and rewinds the timeline for a new session.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.chunks)
	s.chunks = nil
	s.cursor = 0
	s.now = 0
}

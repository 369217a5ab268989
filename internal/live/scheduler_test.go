package live

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(n int, v float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestSchedulerBackToBack(t *testing.T) {
	s := NewScheduler()
	rng := rand.New(rand.NewSource(7))

	var prev Placement
	for i := range 50 {
		p := s.Schedule(constant(1+rng.Intn(4000), 0.1))
		if i > 0 {
			assert.Equal(t, prev.End(), p.Start, "chunk %d", i)
		}
		prev = p
		// Render less than was scheduled so the cursor stays ahead.
		if i%5 == 0 {
			s.Render(make([]float32, 10))
		}
	}
}

func TestSchedulerStartsAtNowAfterUnderrun(t *testing.T) {
	s := NewScheduler()
	first := s.Schedule(constant(100, 0.1))
	assert.Equal(t, int64(0), first.Start)

	s.Render(make([]float32, 480))
	assert.Zero(t, s.Pending())

	next := s.Schedule(constant(100, 0.1))
	assert.Equal(t, int64(480), next.Start)
}

func TestSchedulerRenderMixesAcrossBuffers(t *testing.T) {
	s := NewScheduler()
	s.Schedule([]float32{0.1, 0.2, 0.3})
	s.Schedule([]float32{0.4})

	out := make([]float32, 2)
	s.Render(out)
	assert.Equal(t, []float32{0.1, 0.2}, out)
	assert.Equal(t, 2, s.Pending())

	s.Render(out)
	assert.Equal(t, []float32{0.3, 0.4}, out)
	assert.Zero(t, s.Pending())

	s.Render(out)
	assert.Equal(t, []float32{0, 0}, out)
	assert.Equal(t, int64(6), s.Now())
}

func TestSchedulerRenderClips(t *testing.T) {
	s := NewScheduler()
	s.Schedule([]float32{0.9, -0.9})
	// Force an overlap by interrupting the cursor only.
	s.mu.Lock()
	s.cursor = 0
	s.mu.Unlock()
	s.Schedule([]float32{0.9, -0.9})

	out := make([]float32, 2)
	s.Render(out)
	assert.Equal(t, []float32{1, -1}, out)
}

func TestSchedulerInterrupt(t *testing.T) {
	s := NewScheduler()
	for _, n := range []int{2400, 1200, 4800} {
		s.Schedule(constant(n, 0.5))
	}
	out := make([]float32, 1000)
	s.Render(out)
	require.Equal(t, 3, s.Pending())

	assert.Equal(t, 3, s.Interrupt())
	assert.Zero(t, s.Pending())
	assert.Equal(t, int64(0), s.Cursor())

	s.Render(out)
	assert.Equal(t, make([]float32, 1000), out, "stopped chunks must not be heard")

	next := s.Schedule(constant(10, 0.5))
	assert.GreaterOrEqual(t, next.Start, s.Now())
	assert.Equal(t, int64(2000), next.Start)
}

func TestSchedulerReset(t *testing.T) {
	s := NewScheduler()
	s.Schedule(constant(10, 0.5))
	s.Render(make([]float32, 4))
	s.Reset()
	assert.Zero(t, s.Now())
	assert.Zero(t, s.Cursor())
	assert.Zero(t, s.Pending())
}

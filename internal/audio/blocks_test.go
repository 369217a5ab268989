package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(n int, offset float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = offset + float32(i)/1000
	}
	return s
}

func TestBlockQueueAssemblesFixedBlocks(t *testing.T) {
	q := NewBlockQueue(8, 4)
	ctx := context.Background()

	// Device callbacks deliver arbitrary frame counts.
	q.Write(Float32ToBytes(ramp(5, 0)))
	q.Write(Float32ToBytes(ramp(5, 1)))

	block, err := q.ReadBlock(ctx)
	require.NoError(t, err)
	require.Len(t, block, 8)
	assert.Equal(t, append(ramp(5, 0), ramp(3, 1)...), block)
	assert.Zero(t, q.Dropped())
}

func TestBlockQueueDropsWhenFull(t *testing.T) {
	q := NewBlockQueue(4, 2)
	for range 3 {
		q.Write(Float32ToBytes(ramp(4, 0)))
	}
	assert.Equal(t, int64(4), q.Dropped())

	q.Reset()
	assert.Zero(t, q.Dropped())
}

func TestBlockQueueReadHonorsContext(t *testing.T) {
	q := NewBlockQueue(4, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.ReadBlock(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBlockQueueWakesReader(t *testing.T) {
	q := NewBlockQueue(4, 4)
	got := make(chan []float32, 1)
	go func() {
		block, err := q.ReadBlock(context.Background())
		if err == nil {
			got <- block
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Write(Float32ToBytes(ramp(4, 0)))

	select {
	case block := <-got:
		assert.Len(t, block, 4)
	case <-time.After(time.Second):
		t.Fatal("reader was not woken")
	}
}

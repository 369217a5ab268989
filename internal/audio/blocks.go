package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/smallnest/ringbuffer"
)

// BlockQueue carries captured float32 frames from the device callback to the
// sender in fixed-size blocks. Write never blocks: when the queue is full the
// incoming frames are dropped and counted.
type BlockQueue struct {
	mu         sync.Mutex
	buffer     *ringbuffer.RingBuffer
	blockBytes int
	ready      chan struct{}
	dropped    atomic.Int64
}

// NewBlockQueue creates a queue of blockSize-sample blocks holding at most
// depth blocks.
func NewBlockQueue(blockSize, depth int) *BlockQueue {
	if depth < 2 {
		depth = 2
	}
	blockBytes := blockSize * 4
	return &BlockQueue{
		buffer:     ringbuffer.New(blockBytes * depth),
		blockBytes: blockBytes,
		ready:      make(chan struct{}, 1),
	}
}

// Write queues raw F32 little-endian frames. It is called from the capture
// callback and returns immediately.
func (q *BlockQueue) Write(frames []byte) {
	if len(frames) == 0 {
		return
	}
	q.mu.Lock()
	if q.buffer.Free() < len(frames) {
		q.mu.Unlock()
		q.dropped.Add(int64(len(frames) / 4))
		return
	}
	_, err := q.buffer.Write(frames)
	full := q.buffer.Length() >= q.blockBytes
	q.mu.Unlock()

	if errors.Is(err, ringbuffer.ErrIsFull) {
		q.dropped.Add(int64(len(frames) / 4))
	}
	if full {
		select {
		case q.ready <- struct{}{}:
		default:
		}
	}
}

// ReadBlock waits for one complete block. It returns ctx.Err() when the
// context is done first.
func (q *BlockQueue) ReadBlock(ctx context.Context) ([]float32, error) {
	buf := make([]byte, q.blockBytes)
	for {
		q.mu.Lock()
		if q.buffer.Length() >= q.blockBytes {
			n, err := q.buffer.Read(buf)
			q.mu.Unlock()
			if err != nil {
				return nil, err
			}
			return BytesToFloat32(buf[:n]), nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.ready:
		}
	}
}

// Dropped returns the number of frames discarded so far.
func (q *BlockQueue) Dropped() int64 {
	return q.dropped.Load()
}

// BlockSize returns the number of samples per block.
func (q *BlockQueue) BlockSize() int {
	return q.blockBytes / 4
}

// Reset discards queued frames and the drop counter.
func (q *BlockQueue) Reset() {
	q.mu.Lock()
	q.buffer.Reset()
	q.mu.Unlock()
	q.dropped.Store(0)
}

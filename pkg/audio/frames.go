package audio

import (
	"context"
	"sync"
)

// recordQueue is the bounded frame FIFO between the capture callback and
// GetRecordedAudio. When full, the oldest frame is evicted.
type recordQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	frames   [][]int16
	capacity int

	// active mirrors the recording flag so waiters see stop under mu.
	active bool
}

func newRecordQueue(capacity int) *recordQueue {
	q := &recordQueue{
		frames:   make([][]int16, 0, capacity),
		capacity: capacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push copies in to the tail and reports whether a frame was evicted.
func (q *recordQueue) push(in []int16) (evicted bool) {
	q.mu.Lock()
	var buf []int16
	if len(q.frames) >= q.capacity {
		// Reuse the evicted frame's storage when it fits.
		buf = q.frames[0]
		q.frames[0] = nil
		q.frames = q.frames[1:]
		evicted = true
	}
	if cap(buf) < len(in) {
		buf = make([]int16, len(in))
	}
	buf = buf[:len(in)]
	copy(buf, in)
	q.frames = append(q.frames, buf)
	q.mu.Unlock()

	q.cond.Signal()
	return evicted
}

// pop blocks while the queue is empty and the stream is active. It returns
// false at end of stream or when ctx is done.
func (q *recordQueue) pop(ctx context.Context) ([]int16, bool) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.frames) == 0 && q.active && ctx.Err() == nil {
		q.cond.Wait()
	}
	if len(q.frames) == 0 {
		return nil, false
	}

	frame := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	return frame, true
}

func (q *recordQueue) setActive(active bool) {
	q.mu.Lock()
	q.active = active
	q.mu.Unlock()
	q.cond.Broadcast()
}

// snapshot returns a copy of the queued frames without removing them.
func (q *recordQueue) snapshot() [][]int16 {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([][]int16, len(q.frames))
	for i, f := range q.frames {
		out[i] = append([]int16(nil), f...)
	}
	return out
}

func (q *recordQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

func (q *recordQueue) clear() {
	q.mu.Lock()
	clear(q.frames)
	q.frames = q.frames[:0]
	q.mu.Unlock()
}

// playbackQueue is the frame FIFO between AddFrameToPlaybackQueue and the
// render callback.
type playbackQueue struct {
	mu     sync.Mutex
	frames [][]int16

	// offset is how much of frames[0] has already been rendered.
	offset int
}

func (q *playbackQueue) push(frame []int16) {
	q.mu.Lock()
	q.frames = append(q.frames, frame)
	q.mu.Unlock()
}

// fill renders at most one queued frame into out and pads the rest with
// silence. A head frame longer than out is consumed partially and the rest
// stays at the head. It reports whether the queue was empty.
func (q *playbackQueue) fill(out []int16) (underrun bool) {
	q.mu.Lock()
	n := 0
	if len(q.frames) == 0 {
		underrun = true
	} else {
		head := q.frames[0][q.offset:]
		n = copy(out, head)
		if n == len(head) {
			q.frames[0] = nil
			q.frames = q.frames[1:]
			q.offset = 0
		} else {
			q.offset += n
		}
	}
	q.mu.Unlock()

	clear(out[n:])
	return underrun
}

func (q *playbackQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

func (q *playbackQueue) clear() {
	q.mu.Lock()
	clear(q.frames)
	q.frames = q.frames[:0]
	q.offset = 0
	q.mu.Unlock()
}

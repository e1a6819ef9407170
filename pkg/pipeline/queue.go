package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-camlat/pkg/camera"
)

// BasicFrame is a plain Frame implementation shared by backends.
type BasicFrame struct {
	Seq      uint64
	W, H     int
	Format   camera.FrameType
	Exposure time.Duration
	Payload  []byte
	Captured time.Time
}

func (f *BasicFrame) Sequence() uint64            { return f.Seq }
func (f *BasicFrame) Width() int                  { return f.W }
func (f *BasicFrame) Height() int                 { return f.H }
func (f *BasicFrame) Type() camera.FrameType      { return f.Format }
func (f *BasicFrame) ExposureTime() time.Duration { return f.Exposure }
func (f *BasicFrame) Data() []byte                { return f.Payload }
func (f *BasicFrame) Timestamp() time.Time        { return f.Captured }

var _ Frame = (*BasicFrame)(nil)

// FrameQueue is a bounded host-side output queue.
//
// A non-blocking queue drops the oldest frame when full so the consumer
// always sees the freshest one. A blocking queue makes the producer wait.
type FrameQueue struct {
	ch       chan Frame
	blocking bool

	closeOnce sync.Once
	closed    chan struct{}

	dropped atomic.Uint64
	pushed  atomic.Uint64
}

// NewFrameQueue creates a queue holding at most size frames.
func NewFrameQueue(size int, blocking bool) *FrameQueue {
	if size < 1 {
		size = 1
	}
	return &FrameQueue{
		ch:       make(chan Frame, size),
		blocking: blocking,
		closed:   make(chan struct{}),
	}
}

// Push hands a frame to the consumer. It reports false if the queue is closed.
func (q *FrameQueue) Push(f Frame) bool {
	select {
	case <-q.closed:
		return false
	default:
	}

	if q.blocking {
		select {
		case q.ch <- f:
			q.pushed.Add(1)
			return true
		case <-q.closed:
			return false
		}
	}

	for {
		select {
		case q.ch <- f:
			q.pushed.Add(1)
			return true
		default:
		}
		// Full: evict the oldest and retry
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
		}
	}
}

// Get implements OutputQueue.
func (q *FrameQueue) Get(ctx context.Context) (Frame, error) {
	select {
	case f := <-q.ch:
		if f == nil {
			return nil, ErrNoFrame
		}
		return f, nil
	default:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case f := <-q.ch:
		if f == nil {
			return nil, ErrNoFrame
		}
		return f, nil
	case <-q.closed:
		// frames queued before Close are still delivered
		select {
		case f := <-q.ch:
			if f == nil {
				return nil, ErrNoFrame
			}
			return f, nil
		default:
			return nil, ErrStopped
		}
	}
}

// Close wakes blocked producers and consumers. Safe to call more than once.
func (q *FrameQueue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

// Dropped returns how many frames were evicted because the consumer lagged.
func (q *FrameQueue) Dropped() uint64 {
	return q.dropped.Load()
}

// Pushed returns how many frames were accepted.
func (q *FrameQueue) Pushed() uint64 {
	return q.pushed.Load()
}

var _ OutputQueue = (*FrameQueue)(nil)

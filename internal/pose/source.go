package pose

import (
	"context"
	"errors"
	"sync"
)

// ErrEndOfStream is returned by a Source when no more frames will come.
var ErrEndOfStream = errors.New("end of frame stream")

// ErrSourceClosed is returned by Push after Close.
var ErrSourceClosed = errors.New("frame source closed")

// Source delivers landmark frames in strictly increasing index order.
// Batch (decoded video) and live (camera) inputs both implement it.
type Source interface {
	// Next blocks until a frame is available, the stream ends
	// (ErrEndOfStream) or ctx is done (ctx.Err()).
	Next(ctx context.Context) (Frame, error)
}

// SliceSource serves a pre-decoded batch of frames.
type SliceSource struct {
	frames []Frame
	pos    int
}

func NewSliceSource(frames []Frame) *SliceSource {
	return &SliceSource{frames: frames}
}

func (s *SliceSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.pos >= len(s.frames) {
		return Frame{}, ErrEndOfStream
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

// LiveSource buffers frames coming from a real-time producer.
//
// The buffer is bounded: when the producer outpaces the consumer, the
// oldest not-yet-consumed frame is dropped, so end-to-end latency stays
// bounded instead of the queue growing. Consumers detect drops through
// gaps in the frame index sequence and treat them like detection loss.
type LiveSource struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buf     []Frame
	cap     int
	dropped uint64
	closed  bool
}

const DefaultLiveBufferSize = 8

func NewLiveSource(bufferSize int) *LiveSource {
	if bufferSize <= 0 {
		bufferSize = DefaultLiveBufferSize
	}
	s := &LiveSource{cap: bufferSize}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Push adds a frame to the buffer, evicting the oldest buffered frame
// when full. Never blocks.
func (s *LiveSource) Push(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSourceClosed
	}
	if len(s.buf) >= s.cap {
		// drop-oldest: keep feedback latency bounded
		s.buf = s.buf[1:]
		s.dropped++
	}
	s.buf = append(s.buf, f)
	s.cond.Signal()
	return nil
}

// Close marks the end of the stream. Buffered frames are still
// delivered, then Next returns ErrEndOfStream.
func (s *LiveSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
}

// Dropped returns the number of frames evicted due to backpressure.
func (s *LiveSource) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *LiveSource) Next(ctx context.Context) (Frame, error) {
	// wake the cond wait when the context is cancelled
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		if s.closed {
			return Frame{}, ErrEndOfStream
		}
		s.cond.Wait()
	}

	f := s.buf[0]
	s.buf = s.buf[1:]
	return f, nil
}

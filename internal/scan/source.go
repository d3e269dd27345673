package scan

import (
	"context"
	"image"
	"io"
	"sync"
	"sync/atomic"
)

// Frame is one captured image, optionally with a structured payload decoded
// by the capturing device.
type Frame struct {
	Name    string
	Image   image.Image
	Payload string
}

// FrameSource yields frames to a session. Next must not block for long: it
// returns ok=false when no new frame is available and io.EOF when the source
// is exhausted.
type FrameSource interface {
	Next(ctx context.Context) (f Frame, ok bool, err error)
	Close() error
}

// SliceSource replays a fixed list of frames, one per call.
type SliceSource struct {
	mu     sync.Mutex
	frames []Frame
	closed atomic.Int32
}

// NewSliceSource returns a source that yields frames in order, then io.EOF.
func NewSliceSource(frames ...Frame) *SliceSource {
	return &SliceSource{frames: frames}
}

// Next implements FrameSource.
func (s *SliceSource) Next(context.Context) (Frame, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return Frame{}, false, io.EOF
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, true, nil
}

// Close implements FrameSource.
func (s *SliceSource) Close() error {
	s.closed.Add(1)
	return nil
}

// CloseCount reports how many times Close was called.
func (s *SliceSource) CloseCount() int { return int(s.closed.Load()) }

// ChannelSource reads frames pushed by a producer such as a websocket
// connection. Only the newest pending frame is used; older ones are dropped,
// as a live preview would.
type ChannelSource struct {
	frames  <-chan Frame
	onClose func()
	once    sync.Once
	dropped atomic.Int64
}

// NewChannelSource wraps frames. onClose, if set, runs once on Close.
func NewChannelSource(frames <-chan Frame, onClose func()) *ChannelSource {
	return &ChannelSource{frames: frames, onClose: onClose}
}

// Next implements FrameSource. A closed channel is reported as io.EOF.
func (c *ChannelSource) Next(context.Context) (Frame, bool, error) {
	var (
		latest Frame
		got    bool
	)
	for {
		select {
		case f, open := <-c.frames:
			if !open {
				if got {
					return latest, true, nil
				}
				return Frame{}, false, io.EOF
			}
			if got {
				c.dropped.Add(1)
			}
			latest, got = f, true
		default:
			return latest, got, nil
		}
	}
}

// Close implements FrameSource.
func (c *ChannelSource) Close() error {
	c.once.Do(func() {
		if c.onClose != nil {
			c.onClose()
		}
	})
	return nil
}

// Dropped reports how many frames were superseded before being read.
func (c *ChannelSource) Dropped() int64 { return c.dropped.Load() }

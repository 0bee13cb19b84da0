package proctor

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoFrame is returned by CaptureFrame when no usable frame is
// available.
var ErrNoFrame = errors.New("no camera frame available")

// FrameBuffer holds the most recent camera frame pushed by a client
// and serves it to the camera loop. A frame older than the max age is
// treated as missing.
type FrameBuffer struct {
	maxAge time.Duration
	now    func() time.Time

	mu    sync.Mutex
	frame []byte
	at    time.Time
}

// NewFrameBuffer creates a buffer. maxAge <= 0 defaults to 30s.
func NewFrameBuffer(maxAge time.Duration) *FrameBuffer {
	if maxAge <= 0 {
		maxAge = 30 * time.Second
	}
	return &FrameBuffer{maxAge: maxAge, now: time.Now}
}

// SetClock overrides the wall clock, used by tests.
func (b *FrameBuffer) SetClock(now func() time.Time) { b.now = now }

// Push stores a frame, replacing the previous one.
func (b *FrameBuffer) Push(frame []byte) {
	buf := make([]byte, len(frame))
	copy(buf, frame)
	b.mu.Lock()
	b.frame = buf
	b.at = b.now()
	b.mu.Unlock()
}

// CaptureFrame returns the latest pushed frame, or ErrNoFrame when
// none has arrived or the last one has gone stale.
func (b *FrameBuffer) CaptureFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frame) == 0 || b.now().Sub(b.at) > b.maxAge {
		return nil, ErrNoFrame
	}
	out := make([]byte, len(b.frame))
	copy(out, b.frame)
	return out, nil
}

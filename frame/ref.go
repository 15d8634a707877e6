package frame

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/videoinput/internal"
	"github.com/xaionaro-go/videoinput/logger"
	"go.uber.org/atomic"
)

// Ref is a reference-counted handle of a decoded frame.
//
// A new Ref has a count of 1, owned by whoever received it from the decoder
// (normally the Queue). Whoever gets a Ref from an Input must call
// DecrementRefCount when done with it. The Image is freed exactly when
// the count goes from 1 to 0.
type Ref struct {
	pts      time.Duration
	image    Image
	refCount atomic.Int64
}

func NewRef(
	pts time.Duration,
	image Image,
) *Ref {
	r := &Ref{
		pts:   pts,
		image: image,
	}
	r.refCount.Store(1)
	return r
}

// PTS returns the presentation timestamp in the decoder-local clock.
func (r *Ref) PTS() time.Duration {
	return r.pts
}

// Image must not be used after the reference was dropped.
func (r *Ref) Image() Image {
	return r.image
}

func (r *Ref) RefCount() int64 {
	return r.refCount.Load()
}

func (r *Ref) IsReleased() bool {
	return r.refCount.Load() <= 0
}

func (r *Ref) IncrementRefCount(ctx context.Context) {
	newCount := r.refCount.Inc()
	internal.Assert(ctx, newCount > 1, "incremented the reference count of an already released frame", r.pts)
}

func (r *Ref) DecrementRefCount(ctx context.Context) {
	newCount := r.refCount.Dec()
	switch {
	case newCount > 0:
		return
	case newCount == 0:
		logger.Tracef(ctx, "releasing frame %v", r.pts)
		if r.image != nil {
			r.image.Free()
		}
	default:
		internal.Assert(ctx, false, "decremented the reference count below zero", r.pts, newCount)
	}
}

func (r *Ref) String() string {
	if r == nil {
		return "Ref(nil)"
	}
	return fmt.Sprintf("Ref(pts:%v, refs:%d)", r.pts, r.refCount.Load())
}

package frame

import (
	"context"
	"time"

	"github.com/xaionaro-go/xsync"
)

// Queue is the FIFO of decoded frames of a single input.
//
// Frames are kept in insertion order, which for a well-formed stream is
// the non-decreasing PTS order; the Queue never re-sorts. It is safe to
// push from the decoder goroutine while the frame-request path reads or
// pops: the lock is held only for a single operation.
//
// The Queue owns one reference of every frame it holds. Pop-ing
// transfers that reference to the caller.
type Queue struct {
	locker   xsync.Mutex
	refs     []*Ref
	isClosed bool
}

func NewQueue() *Queue {
	return &Queue{}
}

// Push appends the frame. It returns false (and keeps nothing) if the
// queue is closed; the caller still owns the reference then.
func (q *Queue) Push(ctx context.Context, ref *Ref) bool {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.locker, func() bool {
		if q.isClosed {
			return false
		}
		q.refs = append(q.refs, ref)
		return true
	})
}

// Pop removes the front frame and returns it, or returns nil if the queue is empty.
func (q *Queue) Pop(ctx context.Context) *Ref {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.locker, func() *Ref {
		return q.pop()
	})
}

func (q *Queue) pop() *Ref {
	if len(q.refs) == 0 {
		return nil
	}
	ref := q.refs[0]
	q.refs[0] = nil
	q.refs = q.refs[1:]
	return ref
}

// Front returns the front frame without removing it (and without touching
// its reference count).
func (q *Queue) Front(ctx context.Context) *Ref {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.locker, func() *Ref {
		if len(q.refs) == 0 {
			return nil
		}
		return q.refs[0]
	})
}

func (q *Queue) Len(ctx context.Context) int {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.locker, func() int {
		return len(q.refs)
	})
}

// Refs returns a snapshot of the queued frames, front first.
func (q *Queue) Refs(ctx context.Context) []*Ref {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.locker, func() []*Ref {
		result := make([]*Ref, len(q.refs))
		copy(result, q.refs)
		return result
	})
}

// PopOlderThan pops every front frame with a PTS strictly less than pts
// and returns them, oldest first. Frames pushed concurrently go to the back
// and so are never affected by a concurrent PopOlderThan of older frames.
func (q *Queue) PopOlderThan(ctx context.Context, pts time.Duration) []*Ref {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.locker, func() []*Ref {
		var popped []*Ref
		for len(q.refs) > 0 && q.refs[0].PTS() < pts {
			popped = append(popped, q.pop())
		}
		return popped
	})
}

// Close pops all the frames; every later Push is rejected.
func (q *Queue) Close(ctx context.Context) []*Ref {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.locker, func() []*Ref {
		q.isClosed = true
		result := q.refs
		q.refs = nil
		return result
	})
}

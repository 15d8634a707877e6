package main

import (
	"context"
	"time"

	"github.com/xaionaro-go/videoinput/compositor"
	"github.com/xaionaro-go/videoinput/logger"
	"go.uber.org/atomic"
)

// statsRenderer only counts what it is given; it stands where a real
// mixer/encoder would consume the frames.
type statsRenderer struct {
	ticks  atomic.Uint64
	frames atomic.Uint64
}

var _ compositor.Renderer = (*statsRenderer)(nil)

func (r *statsRenderer) Render(
	ctx context.Context,
	pts time.Duration,
	frames []compositor.InputFrame,
) error {
	r.ticks.Inc()
	r.frames.Add(uint64(len(frames)))
	for _, f := range frames {
		logger.Tracef(ctx, "%v: input %s: %s", pts, f.InputID, f.Frame)
	}
	return nil
}

func (r *statsRenderer) Counts() (ticks, frames uint64) {
	return r.ticks.Load(), r.frames.Load()
}

package compositor

import (
	"context"
	"time"

	"github.com/xaionaro-go/videoinput/frame"
	"github.com/xaionaro-go/videoinput/types"
)

// InputFrame is the frame an input provides for the current tick.
type InputFrame struct {
	InputID types.InputID
	Frame   *frame.Ref
}

// Renderer consumes the frames selected on every tick. The frames are
// valid only until Render returns; a renderer keeping one longer must
// call IncrementRefCount on it.
type Renderer interface {
	Render(ctx context.Context, pts time.Duration, frames []InputFrame) error
}

type RendererFunc func(ctx context.Context, pts time.Duration, frames []InputFrame) error

var _ Renderer = RendererFunc(nil)

func (fn RendererFunc) Render(ctx context.Context, pts time.Duration, frames []InputFrame) error {
	return fn(ctx, pts, frames)
}

package internal

import (
	"context"
	"runtime"

	"github.com/xaionaro-go/videoinput/logger"
)

// SetFinalizerFree makes sure a libav object is freed if its owner
// was dropped without being closed.
func SetFinalizerFree[T interface{ Free() }](
	ctx context.Context,
	freer T,
) {
	runtime.SetFinalizer(freer, func(freer T) {
		logger.Debugf(ctx, "freeing %T", freer)
		freer.Free()
	})
}

package avconv

import (
	"context"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/videoinput/logger"
)

// FirstVideoStream returns the lowest-indexed video stream of the format
// context, or nil if there is none.
func FirstVideoStream(
	ctx context.Context,
	fmtCtx *astiav.FormatContext,
) *astiav.Stream {
	for _, stream := range fmtCtx.Streams() {
		if stream.CodecParameters().MediaType() != astiav.MediaTypeVideo {
			logger.Debugf(ctx, "skipping stream #%d: %s", stream.Index(), stream.CodecParameters().MediaType())
			continue
		}
		return stream
	}
	return nil
}

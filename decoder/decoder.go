// decoder.go defines the contract between an input and its video decoder.

// Package decoder defines the video decoder contract used by inputs.
package decoder

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/videoinput/frame"
	"github.com/xaionaro-go/videoinput/types"
)

// FrameHandler receives decoded frames. It may be called from a goroutine
// other than the one calling Decode. The handler takes ownership of the
// (single) reference of the frame.
type FrameHandler func(ctx context.Context, ref *frame.Ref)

// Decoder turns chunks into frames asynchronously.
//
// For every chunk accepted by Decode exactly one frame is eventually
// delivered to the FrameHandler, in PTS order (unless the decoder is closed
// first).
type Decoder interface {
	fmt.Stringer

	// Configure applies codec parameters; may be called again if the
	// stream renegotiates.
	Configure(ctx context.Context, cfg types.DecoderConfig) error

	// Decode submits a chunk without waiting for the result.
	Decode(ctx context.Context, chunk types.Chunk) error

	// DecodeQueueSize is the amount of submitted chunks which have not
	// produced a frame, yet.
	DecodeQueueSize() int

	// Flush blocks until every submitted chunk produced its frame.
	Flush(ctx context.Context) error

	// Close releases the resources; in-flight work is discarded. The
	// FrameHandler is not called after Close returns.
	Close(ctx context.Context) error
}

type Factory interface {
	fmt.Stringer

	NewDecoder(ctx context.Context, onFrame FrameHandler) (Decoder, error)
}

type FactoryFunc func(ctx context.Context, onFrame FrameHandler) (Decoder, error)

var _ Factory = FactoryFunc(nil)

func (fn FactoryFunc) NewDecoder(ctx context.Context, onFrame FrameHandler) (Decoder, error) {
	return fn(ctx, onFrame)
}

func (fn FactoryFunc) String() string {
	return "FactoryFunc"
}

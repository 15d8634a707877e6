// source.go defines the contract between an input and the supplier of its encoded chunks.

// Package source defines where an input takes encoded chunks from.
package source

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/videoinput/types"
)

type Callbacks struct {
	// OnDecoderConfig is called when the codec parameters of the stream
	// are discovered (or changed). It may be called from any goroutine.
	OnDecoderConfig func(ctx context.Context, cfg types.DecoderConfig)
}

// Source supplies encoded chunks in non-decreasing PTS order.
type Source interface {
	fmt.Stringer

	// Init prepares the source; it has to be called before Start.
	Init(ctx context.Context) error

	// Start begins producing chunks.
	Start(ctx context.Context) error

	// RegisterCallbacks sets the callbacks; a decoder configuration
	// discovered before the registration is delivered right away.
	RegisterCallbacks(ctx context.Context, callbacks Callbacks)

	// IsFinished is true if the source won't produce more chunks and there
	// is nothing left to pull. Once true, it stays true.
	IsFinished(ctx context.Context) bool

	// GetFramerate returns an unset value while the framerate is not known.
	GetFramerate(ctx context.Context) typing.Optional[types.Rational]

	// NextChunk pulls the next chunk, or returns nil if none is available right now.
	NextChunk(ctx context.Context) *types.Chunk

	// PeekChunk is the same as NextChunk, but does not consume the chunk.
	PeekChunk(ctx context.Context) *types.Chunk
}

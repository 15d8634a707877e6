package input

import (
	"go.uber.org/atomic"
)

type Statistics struct {
	ChunksSubmitted uint64 `json:",omitempty"`
	FramesDecoded   uint64 `json:",omitempty"`
	FramesDropped   uint64 `json:",omitempty"`
	FramesServed    uint64 `json:",omitempty"`
	FramesConsumed  uint64 `json:",omitempty"`
	FramesDiscarded uint64 `json:",omitempty"`
}

type Counters struct {
	// ChunksSubmitted is the amount of chunks passed to the decoder.
	ChunksSubmitted atomic.Uint64
	// FramesDecoded is the amount of frames received from the decoder.
	FramesDecoded atomic.Uint64
	// FramesDropped is the amount of frames evicted as too old.
	FramesDropped atomic.Uint64
	// FramesServed is the amount of non-consuming references handed out.
	FramesServed atomic.Uint64
	// FramesConsumed is the amount of frames popped for the final delivery.
	FramesConsumed atomic.Uint64
	// FramesDiscarded is the amount of frames released on Close.
	FramesDiscarded atomic.Uint64
}

func (c *Counters) ToStatistics() Statistics {
	return Statistics{
		ChunksSubmitted: c.ChunksSubmitted.Load(),
		FramesDecoded:   c.FramesDecoded.Load(),
		FramesDropped:   c.FramesDropped.Load(),
		FramesServed:    c.FramesServed.Load(),
		FramesConsumed:  c.FramesConsumed.Load(),
		FramesDiscarded: c.FramesDiscarded.Load(),
	}
}

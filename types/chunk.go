package types

import (
	"fmt"
	"time"
)

// Chunk is a single unit of still-encoded video.
//
// Chunks are immutable after creation: Data must not be modified by anybody
// once the chunk was handed to a Source consumer.
type Chunk struct {
	Data []byte

	// PTS is the presentation timestamp in the stream's own clock.
	PTS time.Duration

	// Duration is optional (zero if unknown).
	Duration time.Duration

	IsKey bool
}

func (c Chunk) String() string {
	return fmt.Sprintf("Chunk(pts:%v, size:%d, key:%t)", c.PTS, len(c.Data), c.IsKey)
}

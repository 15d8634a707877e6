package source

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/videoinput/logger"
	"github.com/xaionaro-go/videoinput/types"
	"github.com/xaionaro-go/xsync"
)

// Buffered is a Source fed by a producer through Push and Finish.
//
// It is used directly for in-memory streams and as the chunk queue of the
// demuxing sources. Push blocks while MaxQueuedChunks chunks are waiting
// to be pulled (zero means no limit). The zero value is ready to use.
type Buffered struct {
	Name            string
	MaxQueuedChunks int

	// RebasePTS makes the chunk PTSes relative to the PTS origin: the one
	// given to SetPTSOrigin or, if none, the PTS of the first pushed chunk.
	// Live transports start at arbitrary timestamps.
	RebasePTS bool

	locker        xsync.Mutex
	chunks        []types.Chunk
	lastPTS       typing.Optional[time.Duration]
	ptsOrigin     typing.Optional[time.Duration]
	eos           bool
	started       bool
	framerate     typing.Optional[types.Rational]
	callbacks     Callbacks
	decoderConfig typing.Optional[types.DecoderConfig]
	spaceFreedCh  chan struct{}
}

var _ Source = (*Buffered)(nil)

func NewBuffered(
	name string,
	maxQueuedChunks int,
) *Buffered {
	return &Buffered{
		Name:            name,
		MaxQueuedChunks: maxQueuedChunks,
	}
}

func (b *Buffered) String() string {
	return fmt.Sprintf("Buffered(%s)", b.Name)
}

func (b *Buffered) Init(ctx context.Context) error {
	return nil
}

func (b *Buffered) Start(ctx context.Context) error {
	return xsync.DoR1(ctx, &b.locker, func() error {
		if b.started {
			return fmt.Errorf("already started")
		}
		b.started = true
		return nil
	})
}

func (b *Buffered) RegisterCallbacks(
	ctx context.Context,
	callbacks Callbacks,
) {
	cfg := xsync.DoR1(ctx, &b.locker, func() typing.Optional[types.DecoderConfig] {
		b.callbacks = callbacks
		return b.decoderConfig
	})
	if cfg.IsSet() && callbacks.OnDecoderConfig != nil {
		callbacks.OnDecoderConfig(ctx, cfg.Get())
	}
}

// SetDecoderConfig stores the codec parameters of the stream and passes
// them to OnDecoderConfig (if registered).
func (b *Buffered) SetDecoderConfig(
	ctx context.Context,
	cfg types.DecoderConfig,
) {
	logger.Debugf(ctx, "SetDecoderConfig(%s)", cfg)
	callback := xsync.DoR1(ctx, &b.locker, func() func(context.Context, types.DecoderConfig) {
		b.decoderConfig = typing.Opt(cfg)
		return b.callbacks.OnDecoderConfig
	})
	if callback != nil {
		callback(ctx, cfg)
	}
}

// SetPTSOrigin sets the PTS which becomes zero if RebasePTS is set. It
// has no effect once a chunk was pushed.
func (b *Buffered) SetPTSOrigin(
	ctx context.Context,
	origin time.Duration,
) {
	logger.Debugf(ctx, "SetPTSOrigin(%v)", origin)
	b.locker.Do(ctx, func() {
		if b.ptsOrigin.IsSet() {
			logger.Warnf(ctx, "the PTS origin is already %v", b.ptsOrigin.Get())
			return
		}
		b.ptsOrigin = typing.Opt(origin)
	})
}

func (b *Buffered) SetFramerate(
	ctx context.Context,
	framerate types.Rational,
) {
	b.locker.Do(ctx, func() {
		b.framerate = typing.Opt(framerate)
	})
}

func (b *Buffered) GetFramerate(ctx context.Context) typing.Optional[types.Rational] {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &b.locker, func() typing.Optional[types.Rational] {
		return b.framerate
	})
}

// Push appends a chunk, waiting for free space if needed.
func (b *Buffered) Push(
	ctx context.Context,
	chunk types.Chunk,
) error {
	for {
		spaceFreedCh, err := xsync.DoR2(xsync.WithNoLogging(ctx, true), &b.locker, func() (<-chan struct{}, error) {
			return b.tryPush(ctx, chunk)
		})
		if err != nil {
			return err
		}
		if spaceFreedCh == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-spaceFreedCh:
		}
	}
}

func (b *Buffered) tryPush(
	ctx context.Context,
	chunk types.Chunk,
) (<-chan struct{}, error) {
	if b.eos {
		return nil, fmt.Errorf("the source is already finished")
	}
	if b.MaxQueuedChunks > 0 && len(b.chunks) >= b.MaxQueuedChunks {
		if b.spaceFreedCh == nil {
			b.spaceFreedCh = make(chan struct{})
		}
		return b.spaceFreedCh, nil
	}
	if b.RebasePTS {
		if !b.ptsOrigin.IsSet() {
			logger.Debugf(ctx, "the PTS origin is %v", chunk.PTS)
			b.ptsOrigin = typing.Opt(chunk.PTS)
		}
		chunk.PTS -= b.ptsOrigin.Get()
	}
	if b.lastPTS.IsSet() && chunk.PTS < b.lastPTS.Get() {
		logger.Warnf(ctx, "non-monotonic chunk PTS: %v < %v", chunk.PTS, b.lastPTS.Get())
	}
	logger.Tracef(ctx, "pushing %s", chunk)
	b.lastPTS = typing.Opt(chunk.PTS)
	b.chunks = append(b.chunks, chunk)
	return nil, nil
}

// Finish marks the end of the stream: no chunks may be pushed after that.
func (b *Buffered) Finish(ctx context.Context) {
	logger.Debugf(ctx, "Finish")
	b.locker.Do(ctx, func() {
		b.eos = true
	})
}

func (b *Buffered) IsFinished(ctx context.Context) bool {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &b.locker, func() bool {
		return b.eos && len(b.chunks) == 0
	})
}

func (b *Buffered) NextChunk(ctx context.Context) *types.Chunk {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &b.locker, func() *types.Chunk {
		if len(b.chunks) == 0 {
			return nil
		}
		chunk := b.chunks[0]
		b.chunks[0] = types.Chunk{}
		b.chunks = b.chunks[1:]
		if b.spaceFreedCh != nil {
			close(b.spaceFreedCh)
			b.spaceFreedCh = nil
		}
		return &chunk
	})
}

func (b *Buffered) PeekChunk(ctx context.Context) *types.Chunk {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &b.locker, func() *types.Chunk {
		if len(b.chunks) == 0 {
			return nil
		}
		chunk := b.chunks[0]
		return &chunk
	})
}

// Len returns the amount of chunks waiting to be pulled.
func (b *Buffered) Len(ctx context.Context) int {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &b.locker, func() int {
		return len(b.chunks)
	})
}

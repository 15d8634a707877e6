package input

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/videoinput/decoder"
	"github.com/xaionaro-go/videoinput/event"
	"github.com/xaionaro-go/videoinput/frame"
	"github.com/xaionaro-go/videoinput/logger"
	"github.com/xaionaro-go/videoinput/source"
	"github.com/xaionaro-go/videoinput/types"
)

const ms = time.Millisecond

func testCtx(t *testing.T) context.Context {
	l := logrus.Default().WithLevel(logger.LevelDebug)
	ctx := logger.CtxWithLogger(context.Background(), l)
	t.Cleanup(func() { belt.Flush(ctx) })
	return ctx
}

// dummyDecoder produces a frame per chunk either right in Decode (if
// Synchronous) or when Complete/Flush is called.
//
// If Delay is set, an asynchronous dummyDecoder also emits the frame of a
// chunk on its own once Delay newer chunks were submitted, the way a
// reordering codec holds back its input.
type dummyDecoder struct {
	Synchronous bool
	Delay       int
	DecodeErr   error

	// DecodeErrOnce is returned (and reset) by the next Decode call.
	DecodeErrOnce error

	locker   sync.Mutex
	onFrame  decoder.FrameHandler
	pending  []types.Chunk
	configs  []types.DecoderConfig
	released map[time.Duration]int

	DecodeCallCount int
	FlushCallCount  int
	CloseCallCount  int
}

var _ decoder.Decoder = (*dummyDecoder)(nil)

func (d *dummyDecoder) Factory() decoder.Factory {
	return decoder.FactoryFunc(func(_ context.Context, onFrame decoder.FrameHandler) (decoder.Decoder, error) {
		d.onFrame = onFrame
		return d, nil
	})
}

func (d *dummyDecoder) String() string {
	return "dummyDecoder"
}

func (d *dummyDecoder) Configure(_ context.Context, cfg types.DecoderConfig) error {
	d.locker.Lock()
	defer d.locker.Unlock()
	d.configs = append(d.configs, cfg)
	return nil
}

func (d *dummyDecoder) Decode(ctx context.Context, chunk types.Chunk) error {
	d.locker.Lock()
	d.DecodeCallCount++
	if d.DecodeErr != nil {
		d.locker.Unlock()
		return d.DecodeErr
	}
	if err := d.DecodeErrOnce; err != nil {
		d.DecodeErrOnce = nil
		d.locker.Unlock()
		return err
	}
	if !d.Synchronous {
		d.pending = append(d.pending, chunk)
		ready := 0
		if d.Delay > 0 && len(d.pending) > d.Delay {
			ready = len(d.pending) - d.Delay
		}
		d.locker.Unlock()
		d.Complete(ctx, ready)
		return nil
	}
	d.locker.Unlock()
	d.onFrame(ctx, d.newRef(chunk.PTS))
	return nil
}

func (d *dummyDecoder) newRef(pts time.Duration) *frame.Ref {
	return frame.NewRef(pts, &frame.RawImage{
		OnFree: func() {
			d.locker.Lock()
			defer d.locker.Unlock()
			if d.released == nil {
				d.released = map[time.Duration]int{}
			}
			d.released[pts]++
		},
	})
}

func (d *dummyDecoder) ReleaseCount(pts time.Duration) int {
	d.locker.Lock()
	defer d.locker.Unlock()
	return d.released[pts]
}

func (d *dummyDecoder) DecodeQueueSize() int {
	d.locker.Lock()
	defer d.locker.Unlock()
	return len(d.pending)
}

// Complete makes the decoder produce the frames of the n oldest pending chunks.
func (d *dummyDecoder) Complete(ctx context.Context, n int) {
	d.locker.Lock()
	if n > len(d.pending) {
		n = len(d.pending)
	}
	chunks := d.pending[:n]
	d.pending = d.pending[n:]
	d.locker.Unlock()
	for _, chunk := range chunks {
		d.onFrame(ctx, d.newRef(chunk.PTS))
	}
}

func (d *dummyDecoder) Flush(ctx context.Context) error {
	d.locker.Lock()
	d.FlushCallCount++
	n := len(d.pending)
	d.locker.Unlock()
	d.Complete(ctx, n)
	return nil
}

func (d *dummyDecoder) Close(context.Context) error {
	d.locker.Lock()
	defer d.locker.Unlock()
	d.CloseCallCount++
	d.pending = nil
	return nil
}

type eventCollector struct {
	locker sync.Mutex
	Events []event.Event
}

var _ event.Sender = (*eventCollector)(nil)

func (c *eventCollector) SendEvent(_ context.Context, ev event.Event) {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.Events = append(c.Events, ev)
}

func (c *eventCollector) Types() []event.Type {
	c.locker.Lock()
	defer c.locker.Unlock()
	var result []event.Type
	for _, ev := range c.Events {
		result = append(result, ev.Type)
	}
	return result
}

// newTestSource returns a source with the given chunk PTSes (in
// milliseconds); if finished is true, no more chunks will be added.
func newTestSource(
	ctx context.Context,
	t *testing.T,
	framerate *types.Rational,
	finished bool,
	ptsMS ...int,
) *source.Buffered {
	src := source.NewBuffered(t.Name(), 0)
	if framerate != nil {
		src.SetFramerate(ctx, *framerate)
	}
	for _, pts := range ptsMS {
		require.NoError(t, src.Push(ctx, types.Chunk{
			Data: []byte(fmt.Sprintf("chunk-%d", pts)),
			PTS:  time.Duration(pts) * ms,
		}))
	}
	if finished {
		src.Finish(ctx)
	}
	return src
}

func fps(n int) *types.Rational {
	return &types.Rational{Num: n, Den: 1}
}

func newTestInput(
	ctx context.Context,
	t *testing.T,
	src source.Source,
	dec *dummyDecoder,
) (*Input, *eventCollector) {
	events := &eventCollector{}
	i, err := New(ctx, types.InputID(t.Name()), src, dec.Factory(), events, Config{})
	require.NoError(t, err)
	return i, events
}

func queuedPTSs(ctx context.Context, i *Input) []time.Duration {
	var result []time.Duration
	for _, ref := range i.frames.Refs(ctx) {
		result = append(result, ref.PTS())
	}
	return result
}

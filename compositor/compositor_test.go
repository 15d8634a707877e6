package compositor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/videoinput/decoder"
	"github.com/xaionaro-go/videoinput/event"
	"github.com/xaionaro-go/videoinput/frame"
	"github.com/xaionaro-go/videoinput/input"
	"github.com/xaionaro-go/videoinput/logger"
	"github.com/xaionaro-go/videoinput/source"
	"github.com/xaionaro-go/videoinput/types"
)

func testCtx(t *testing.T) context.Context {
	l := logrus.Default().WithLevel(logger.LevelDebug)
	ctx := logger.CtxWithLogger(context.Background(), l)
	t.Cleanup(func() { belt.Flush(ctx) })
	return ctx
}

// instantDecoder produces a frame right inside Decode.
type instantDecoder struct {
	onFrame decoder.FrameHandler

	locker   sync.Mutex
	released int
}

func (d *instantDecoder) String() string                                       { return "instantDecoder" }
func (d *instantDecoder) Configure(context.Context, types.DecoderConfig) error { return nil }
func (d *instantDecoder) DecodeQueueSize() int                                 { return 0 }
func (d *instantDecoder) Flush(context.Context) error                          { return nil }
func (d *instantDecoder) Close(context.Context) error                          { return nil }

func (d *instantDecoder) Decode(ctx context.Context, chunk types.Chunk) error {
	d.onFrame(ctx, frame.NewRef(chunk.PTS, &frame.RawImage{
		Data: chunk.Data,
		OnFree: func() {
			d.locker.Lock()
			defer d.locker.Unlock()
			d.released++
		},
	}))
	return nil
}

func (d *instantDecoder) Released() int {
	d.locker.Lock()
	defer d.locker.Unlock()
	return d.released
}

type instantDecoderFactory struct {
	decoders []*instantDecoder
}

func (f *instantDecoderFactory) String() string { return "instantDecoderFactory" }

func (f *instantDecoderFactory) NewDecoder(_ context.Context, onFrame decoder.FrameHandler) (decoder.Decoder, error) {
	d := &instantDecoder{onFrame: onFrame}
	f.decoders = append(f.decoders, d)
	return d, nil
}

func newSource(ctx context.Context, t *testing.T, count int) *source.Buffered {
	src := source.NewBuffered(t.Name(), 0)
	src.SetFramerate(ctx, types.Rational{Num: 30, Den: 1})
	for idx := 0; idx < count; idx++ {
		require.NoError(t, src.Push(ctx, types.Chunk{
			Data: []byte{byte(idx)},
			PTS:  time.Duration(idx) * time.Second / 30,
		}))
	}
	src.Finish(ctx)
	return src
}

type renderLog struct {
	locker sync.Mutex
	ticks  [][]types.InputID
}

func (l *renderLog) Render(_ context.Context, _ time.Duration, frames []InputFrame) error {
	l.locker.Lock()
	defer l.locker.Unlock()
	var ids []types.InputID
	for _, f := range frames {
		if f.Frame.IsReleased() {
			return errors.New("a released frame was passed to the renderer")
		}
		ids = append(ids, f.InputID)
	}
	l.ticks = append(l.ticks, ids)
	return nil
}

func (l *renderLog) Ticks() [][]types.InputID {
	l.locker.Lock()
	defer l.locker.Unlock()
	return append([][]types.InputID(nil), l.ticks...)
}

func TestCompositorRegistration(t *testing.T) {
	ctx := testCtx(t)
	factory := &instantDecoderFactory{}
	c := New(Config{Framerate: types.Rational{Num: 30, Den: 1}}, nil, nil)

	in, err := c.RegisterInput(ctx, "a", newSource(ctx, t, 3), factory)
	require.NoError(t, err)
	require.Equal(t, input.StateWaitingForStart, in.State())
	require.Same(t, in, c.GetInput(ctx, "a"))

	_, err = c.RegisterInput(ctx, "a", newSource(ctx, t, 3), factory)
	require.ErrorIs(t, err, ErrInputAlreadyRegistered)

	require.ErrorIs(t, c.StartInput(ctx, "b"), ErrInputNotFound)
	require.NoError(t, c.StartInput(ctx, "a"))
	require.Equal(t, input.StateBuffering, in.State())

	require.NoError(t, c.UnregisterInput(ctx, "a"))
	require.Nil(t, c.GetInput(ctx, "a"))
	require.ErrorIs(t, c.UnregisterInput(ctx, "a"), ErrInputNotFound)
	require.False(t, c.AllFinished(ctx))
}

func TestCompositorTick(t *testing.T) {
	ctx := testCtx(t)
	factory := &instantDecoderFactory{}
	renderer := &renderLog{}
	var (
		eventsLocker sync.Mutex
		events       []event.Event
	)
	c := New(Config{}, renderer, event.SenderFunc(func(_ context.Context, ev event.Event) {
		eventsLocker.Lock()
		defer eventsLocker.Unlock()
		events = append(events, ev)
	}))

	_, err := c.RegisterInput(ctx, "b", newSource(ctx, t, 3), factory)
	require.NoError(t, err)
	_, err = c.RegisterInput(ctx, "a", newSource(ctx, t, 3), factory)
	require.NoError(t, err)
	require.NoError(t, c.StartAll(ctx))

	frameDuration := time.Second / 30
	for tickIdx := 0; tickIdx < 10; tickIdx++ {
		require.NoError(t, c.Tick(ctx, time.Duration(tickIdx)*frameDuration))
	}
	require.True(t, c.AllFinished(ctx))

	ticks := renderer.Ticks()
	require.Len(t, ticks, 10)
	for tickIdx := 0; tickIdx < 3; tickIdx++ {
		require.Empty(t, ticks[tickIdx], "tick #%d", tickIdx)
	}
	for tickIdx := 3; tickIdx < 6; tickIdx++ {
		require.Equal(t, []types.InputID{"a", "b"}, ticks[tickIdx], "tick #%d", tickIdx)
	}
	for tickIdx := 6; tickIdx < 10; tickIdx++ {
		require.Empty(t, ticks[tickIdx], "tick #%d", tickIdx)
	}

	for _, d := range factory.decoders {
		require.Equal(t, 3, d.Released())
	}

	eventsLocker.Lock()
	require.Len(t, events, 6)
	eventsLocker.Unlock()

	stats := c.GetStatistics(ctx)
	require.Len(t, stats, 2)
	require.EqualValues(t, 3, stats["a"].FramesDecoded)
	require.NoError(t, c.Close(ctx))
	require.Empty(t, c.Inputs(ctx))
}

func TestCompositorServeStopsWhenAllFinished(t *testing.T) {
	ctx, cancelFn := context.WithTimeout(testCtx(t), 10*time.Second)
	defer cancelFn()

	factory := &instantDecoderFactory{}
	renderer := &renderLog{}
	c := New(Config{
		Framerate:           types.Rational{Num: 1000, Den: 1},
		StopWhenAllFinished: true,
	}, renderer, nil)
	_, err := c.RegisterInput(ctx, "a", newSource(ctx, t, 5), factory)
	require.NoError(t, err)
	require.NoError(t, c.StartAll(ctx))

	require.NoError(t, c.Serve(ctx))
	require.True(t, c.AllFinished(ctx))
	require.Equal(t, 5, factory.decoders[0].Released())
}

func TestCompositorServeInvalidFramerate(t *testing.T) {
	ctx := testCtx(t)
	c := New(Config{}, nil, nil)
	require.Error(t, c.Serve(ctx))
}

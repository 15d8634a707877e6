package libav

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/videoinput/avconv"
	"github.com/xaionaro-go/videoinput/frame"
	"github.com/xaionaro-go/videoinput/logger"
	"github.com/xaionaro-go/videoinput/types"
)

func testCtx(t *testing.T) context.Context {
	l := logrus.Default().WithLevel(logger.LevelDebug)
	ctx := logger.CtxWithLogger(context.Background(), l)
	t.Cleanup(func() { belt.Flush(ctx) })
	return ctx
}

type frameCollector struct {
	locker sync.Mutex
	refs   []*frame.Ref
}

func (c *frameCollector) onFrame(_ context.Context, ref *frame.Ref) {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.refs = append(c.refs, ref)
}

func (c *frameCollector) PTSs() []time.Duration {
	c.locker.Lock()
	defer c.locker.Unlock()
	var result []time.Duration
	for _, ref := range c.refs {
		result = append(result, ref.PTS())
	}
	return result
}

func TestDecoderRawVideo(t *testing.T) {
	ctx := testCtx(t)
	const width, height = 16, 16

	collector := &frameCollector{}
	factory := &Factory{
		Options: types.DictionaryItems{{Key: "pixel_format", Value: "gray"}},
	}
	dec, err := factory.NewDecoder(ctx, collector.onFrame)
	require.NoError(t, err)
	defer dec.Close(ctx)

	require.ErrorAs(t, dec.Decode(ctx, types.Chunk{}), &ErrNotConfigured{})

	require.NoError(t, dec.Configure(ctx, types.DecoderConfig{
		Codec:  "rawvideo",
		Width:  width,
		Height: height,
	}))

	for idx, pts := range []time.Duration{0, 33 * time.Millisecond, 66 * time.Millisecond} {
		require.NoError(t, dec.Decode(ctx, types.Chunk{
			Data:  bytes.Repeat([]byte{byte(idx)}, width*height),
			PTS:   pts,
			IsKey: true,
		}))
	}
	require.NoError(t, dec.Flush(ctx))
	require.Zero(t, dec.DecodeQueueSize())
	require.Equal(t, []time.Duration{0, 33 * time.Millisecond, 66 * time.Millisecond}, collector.PTSs())

	for _, ref := range collector.refs {
		img, ok := ref.Image().(*Image)
		require.True(t, ok)
		require.Equal(t, width, img.Frame.Width())
		require.Equal(t, height, img.Frame.Height())
		ref.DecrementRefCount(ctx)
		require.Nil(t, img.Frame)
	}

	// decoding goes on after a flush
	require.NoError(t, dec.Decode(ctx, types.Chunk{
		Data: make([]byte, width*height),
		PTS:  100 * time.Millisecond,
	}))
	require.NoError(t, dec.Flush(ctx))
	require.Len(t, collector.PTSs(), 4)
	collector.refs[3].DecrementRefCount(ctx)

	require.NoError(t, dec.Close(ctx))
	require.NoError(t, dec.Close(ctx))
	require.Error(t, dec.Decode(ctx, types.Chunk{PTS: time.Second}))
}

func TestPopInFlightPTS(t *testing.T) {
	d := &Decoder{
		inFlightPTS: []time.Duration{40, 0, 80},
	}
	require.Equal(t, time.Duration(40), d.popInFlightPTS(40))
	require.Equal(t, time.Duration(0), d.popInFlightPTS(avconv.NoDuration))
	require.Equal(t, []time.Duration{80}, d.inFlightPTS)
	require.Equal(t, time.Duration(120), d.popInFlightPTS(120))
	require.Empty(t, d.inFlightPTS)
	require.Equal(t, time.Duration(7), d.popInFlightPTS(7))
}

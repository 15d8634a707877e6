// Package libav implements decoder.Decoder on top of libavcodec.
package libav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/videoinput/avconv"
	"github.com/xaionaro-go/videoinput/decoder"
	"github.com/xaionaro-go/videoinput/frame"
	"github.com/xaionaro-go/videoinput/helpers/closuresignaler"
	"github.com/xaionaro-go/videoinput/logger"
	"github.com/xaionaro-go/videoinput/packet"
	"github.com/xaionaro-go/videoinput/types"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

const (
	DefaultRequestQueueSize = 64
)

// chunks are passed to libav with microsecond timestamps
var codecTimeBase = astiav.NewRational(1, 1000000)

type ErrNotConfigured struct{}

func (ErrNotConfigured) Error() string {
	return "the decoder is not configured, yet"
}

type requestType int

const (
	requestTypeDecode = requestType(iota)
	requestTypeFlush
)

type request struct {
	Type  requestType
	Chunk types.Chunk
	Done  chan error
}

// Decoder decodes chunks on a dedicated goroutine, so Decode never waits
// for libav.
//
// DecodeQueueSize is the amount of chunks waiting in the request queue
// plus the chunks libav holds without having returned their frames.
type Decoder struct {
	OnFrame decoder.FrameHandler
	Options types.DictionaryItems

	locker       xsync.Mutex
	codecContext *astiav.CodecContext
	config       typing.Optional[types.DecoderConfig]
	isDraining   bool
	inFlightPTS  []time.Duration
	lastErr      error

	pending    atomic.Int64
	requestCh  chan request
	closer     *closuresignaler.ClosureSignaler
	workerDone chan struct{}
}

var _ decoder.Decoder = (*Decoder)(nil)

func New(
	ctx context.Context,
	onFrame decoder.FrameHandler,
	options types.DictionaryItems,
	requestQueueSize int,
) *Decoder {
	if requestQueueSize <= 0 {
		requestQueueSize = DefaultRequestQueueSize
	}
	d := &Decoder{
		OnFrame:    onFrame,
		Options:    options,
		requestCh:  make(chan request, requestQueueSize),
		closer:     closuresignaler.New(),
		workerDone: make(chan struct{}),
	}

	ctx = xcontext.DetachDone(ctx)
	observability.Go(ctx, func(ctx context.Context) {
		defer close(d.workerDone)
		d.loop(ctx)
	})
	return d
}

func (d *Decoder) String() string {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &d.locker, func() string {
		if !d.config.IsSet() {
			return "libav.Decoder(<unconfigured>)"
		}
		return fmt.Sprintf("libav.Decoder(%s)", d.config.Get().Codec)
	})
}

// Configure (re)opens the codec if cfg differs from the current
// configuration. Frames still held by the old codec are delivered first.
func (d *Decoder) Configure(
	ctx context.Context,
	cfg types.DecoderConfig,
) (_err error) {
	logger.Debugf(ctx, "Configure(ctx, %s)", cfg)
	defer func() { logger.Debugf(ctx, "/Configure(ctx, %s): %v", cfg, _err) }()
	if d.closer.IsClosed() {
		return io.ErrClosedPipe
	}
	return xsync.DoA2R1(ctx, &d.locker, d.configure, ctx, cfg)
}

func (d *Decoder) configure(
	ctx context.Context,
	cfg types.DecoderConfig,
) error {
	if d.codecContext != nil && d.config.IsSet() && reflect.DeepEqual(d.config.Get(), cfg) {
		logger.Debugf(ctx, "the configuration has not changed")
		return nil
	}
	d.config = typing.Opt(cfg)
	return d.reopen(ctx)
}

func (d *Decoder) reopen(ctx context.Context) error {
	if !d.config.IsSet() {
		return ErrNotConfigured{}
	}
	if d.codecContext != nil {
		if !d.isDraining && len(d.inFlightPTS) > 0 {
			if err := d.flush(ctx); err != nil {
				logger.Errorf(ctx, "unable to drain the previous codec context: %v", err)
			}
		}
		d.codecContext.Free()
		d.codecContext = nil
	}
	d.isDraining = false

	cfg := d.config.Get()
	codec := astiav.FindDecoderByName(cfg.Codec)
	if codec == nil {
		return fmt.Errorf("unable to find a decoder by name '%s'", cfg.Codec)
	}
	codecContext := astiav.AllocCodecContext(codec)
	if codecContext == nil {
		return fmt.Errorf("unable to allocate a codec context for '%s'", codec.Name())
	}
	if len(cfg.Extradata) > 0 {
		codecContext.SetExtraData(cfg.Extradata)
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		codecContext.SetWidth(cfg.Width)
		codecContext.SetHeight(cfg.Height)
	}
	codecContext.SetTimeBase(codecTimeBase)
	codecContext.SetPktTimeBase(codecTimeBase)

	options := avconv.DictionaryItemsToAstiav(ctx, d.Options)
	logger.Tracef(ctx, "codecContext.Open(%s, %v)", codec.Name(), d.Options)
	if err := codecContext.Open(codec, options); err != nil {
		codecContext.Free()
		return fmt.Errorf("unable to open codec context: %w", err)
	}
	d.codecContext = codecContext
	return nil
}

func (d *Decoder) Decode(
	ctx context.Context,
	chunk types.Chunk,
) error {
	logger.Tracef(ctx, "Decode(ctx, %s)", chunk)
	err := xsync.DoR1(xsync.WithNoLogging(ctx, true), &d.locker, func() error {
		if err := d.takeLastError(); err != nil {
			return err
		}
		if !d.config.IsSet() {
			return ErrNotConfigured{}
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.pending.Inc()
	if err := d.sendRequest(ctx, request{Type: requestTypeDecode, Chunk: chunk}); err != nil {
		d.pending.Dec()
		return err
	}
	return nil
}

func (d *Decoder) DecodeQueueSize() int {
	return int(d.pending.Load())
}

// Flush waits until every submitted chunk went through libav and the
// codec returned every frame it held.
func (d *Decoder) Flush(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Flush")
	defer func() { logger.Debugf(ctx, "/Flush: %v", _err) }()

	req := request{Type: requestTypeFlush, Done: make(chan error, 1)}
	if err := d.sendRequest(ctx, req); err != nil {
		return err
	}
	select {
	case err := <-req.Done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.closer.CloseChan():
		return io.ErrClosedPipe
	}
}

func (d *Decoder) sendRequest(
	ctx context.Context,
	req request,
) error {
	if d.closer.IsClosed() {
		return io.ErrClosedPipe
	}
	select {
	case d.requestCh <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.closer.CloseChan():
		return io.ErrClosedPipe
	}
}

func (d *Decoder) loop(ctx context.Context) {
	logger.Debugf(ctx, "loop")
	defer func() { logger.Debugf(ctx, "/loop") }()
	for {
		select {
		case <-d.closer.CloseChan():
			return
		case req := <-d.requestCh:
			d.processRequest(ctx, req)
		}
	}
}

func (d *Decoder) processRequest(
	ctx context.Context,
	req request,
) {
	ctx = xsync.WithNoLogging(ctx, true)
	switch req.Type {
	case requestTypeDecode:
		err := xsync.DoA2R1(ctx, &d.locker, d.decode, ctx, req.Chunk)
		if err != nil {
			logger.Errorf(ctx, "unable to decode %s: %v", req.Chunk, err)
		}
	case requestTypeFlush:
		req.Done <- xsync.DoR1(ctx, &d.locker, func() error {
			return errors.Join(d.takeLastError(), d.flush(ctx))
		})
	default:
		logger.Errorf(ctx, "unknown request type %d", req.Type)
	}
}

func (d *Decoder) takeLastError() error {
	err := d.lastErr
	d.lastErr = nil
	return err
}

func (d *Decoder) decode(
	ctx context.Context,
	chunk types.Chunk,
) (_err error) {
	submitted := false
	defer func() {
		if _err == nil {
			return
		}
		if !submitted {
			d.pending.Dec()
		}
		d.lastErr = _err
	}()

	if d.codecContext == nil || d.isDraining {
		if err := d.reopen(ctx); err != nil {
			return fmt.Errorf("unable to open the codec: %w", err)
		}
	}

	pkt := packet.Pool.Get()
	defer packet.Pool.Put(pkt)
	if err := packet.FromChunk(pkt, chunk, codecTimeBase); err != nil {
		return fmt.Errorf("unable to fill a packet: %w", err)
	}

	err := d.codecContext.SendPacket(pkt)
	if errors.Is(err, astiav.ErrEagain) {
		// the output has to be consumed before the codec accepts more input
		if err := d.receiveFrames(ctx); err != nil {
			return err
		}
		err = d.codecContext.SendPacket(pkt)
	}
	if err != nil {
		return fmt.Errorf("unable to send the packet: %w", err)
	}
	d.inFlightPTS = append(d.inFlightPTS, chunk.PTS)
	submitted = true
	return d.receiveFrames(ctx)
}

func (d *Decoder) flush(ctx context.Context) error {
	if d.codecContext == nil || d.isDraining {
		return nil
	}
	if err := d.codecContext.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		return fmt.Errorf("unable to start draining: %w", err)
	}
	d.isDraining = true
	err := d.receiveFrames(ctx)

	// the chunks the codec swallowed will never produce frames
	if lost := len(d.inFlightPTS); lost > 0 {
		logger.Debugf(ctx, "%d chunks produced no frames", lost)
		d.pending.Sub(int64(lost))
		d.inFlightPTS = d.inFlightPTS[:0]
	}
	return err
}

func (d *Decoder) receiveFrames(ctx context.Context) error {
	for {
		f := framePool.Get()
		err := d.codecContext.ReceiveFrame(f)
		if err != nil {
			framePool.Put(f)
			isEOF := errors.Is(err, astiav.ErrEof)
			isEAgain := errors.Is(err, astiav.ErrEagain)
			logger.Tracef(ctx, "codecContext.ReceiveFrame(): %v (isEOF:%t, isEAgain:%t)", err, isEOF, isEAgain)
			if isEOF || isEAgain {
				return nil
			}
			return fmt.Errorf("unable to receive a frame from the decoder: %w", err)
		}

		pts := d.popInFlightPTS(avconv.Duration(f.Pts(), codecTimeBase))
		ref := frame.NewRef(pts, &Image{Frame: f})
		logger.Tracef(ctx, "decoded %s", ref)
		d.OnFrame(ctx, ref)
		d.pending.Dec()
	}
}

// popInFlightPTS forgets the submitted PTS matching the decoded frame. If
// libav lost the timestamp, the oldest submitted one is used.
func (d *Decoder) popInFlightPTS(pts time.Duration) time.Duration {
	if len(d.inFlightPTS) == 0 {
		if pts == avconv.NoDuration {
			return 0
		}
		return pts
	}

	idx := -1
	if pts != avconv.NoDuration {
		for i, candidate := range d.inFlightPTS {
			if candidate == pts {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		idx = 0
		for i, candidate := range d.inFlightPTS {
			if candidate < d.inFlightPTS[idx] {
				idx = i
			}
		}
		if pts == avconv.NoDuration {
			pts = d.inFlightPTS[idx]
		}
	}
	d.inFlightPTS = append(d.inFlightPTS[:idx], d.inFlightPTS[idx+1:]...)
	return pts
}

// Close stops the worker and frees the codec. Frames already delivered stay
// valid until their references are dropped.
func (d *Decoder) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()
	if !d.closer.Close(ctx) {
		return nil
	}
	<-d.workerDone

	d.locker.Do(ctx, func() {
		if d.codecContext != nil {
			d.codecContext.Free()
			d.codecContext = nil
		}
		d.inFlightPTS = nil
	})
	d.pending.Store(0)
	return nil
}

// Factory creates libav decoders.
type Factory struct {
	// Options are passed to the codec when it is opened
	// (e.g. "threads" or "pixel_format").
	Options          types.DictionaryItems
	RequestQueueSize int
}

var _ decoder.Factory = (*Factory)(nil)

func (f *Factory) String() string {
	return "libav.Factory"
}

func (f *Factory) NewDecoder(
	ctx context.Context,
	onFrame decoder.FrameHandler,
) (decoder.Decoder, error) {
	return New(ctx, onFrame, f.Options, f.RequestQueueSize), nil
}

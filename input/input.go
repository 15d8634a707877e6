// input.go implements the state machine delivering decoded frames of a single stream to the compositing clock.

// Package input synchronizes a video stream (a Source feeding a Decoder)
// with the compositing clock requesting frames.
package input

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/go-ng/xatomic"
	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/videoinput/decoder"
	"github.com/xaionaro-go/videoinput/event"
	"github.com/xaionaro-go/videoinput/frame"
	"github.com/xaionaro-go/videoinput/internal"
	"github.com/xaionaro-go/videoinput/logger"
	"github.com/xaionaro-go/videoinput/source"
	"github.com/xaionaro-go/videoinput/types"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

const (
	// DefaultMaxBufferingSize is the amount of frames decoded ahead
	// before the input starts playing.
	DefaultMaxBufferingSize = 3
)

type Config struct {
	MaxBufferingSize int `yaml:"max_buffering_size,omitempty"`
}

func (cfg Config) maxBufferingSize() int {
	if cfg.MaxBufferingSize <= 0 {
		return DefaultMaxBufferingSize
	}
	return cfg.MaxBufferingSize
}

// Input decodes a stream and selects, on every tick of the compositing
// clock, the decoded frame closest to the requested time.
//
// Start, GetFrameRef and Close are expected to be called by a single
// consumer (the clock); they are serialized anyway. Decoded frames arrive
// through the decoder callback from any goroutine.
type Input struct {
	ID          types.InputID
	Source      source.Source
	Decoder     decoder.Decoder
	EventSender event.Sender
	Config      Config
	Counters    Counters

	locker   xsync.Mutex
	state    xatomic.Value[State]
	isClosed atomic.Bool
	frames   *frame.Queue

	// startPTS is the clock time of the first frame request in the playing
	// state; the stream-local PTS is the clock time minus startPTS.
	startPTS typing.Optional[time.Duration]
}

// New creates an Input. The Source is expected to be initialized already.
func New(
	ctx context.Context,
	id types.InputID,
	src source.Source,
	decoderFactory decoder.Factory,
	eventSender event.Sender,
	cfg Config,
) (_ret *Input, _err error) {
	ctx = belt.WithField(ctx, "input_id", id)
	logger.Debugf(ctx, "New(ctx, %s, %s, %s)", id, src, decoderFactory)
	defer func() { logger.Debugf(ctx, "/New(ctx, %s, %s, %s): %v", id, src, decoderFactory, _err) }()

	i := &Input{
		ID:          id,
		Source:      src,
		EventSender: eventSender,
		Config:      cfg,
		frames:      frame.NewQueue(),
	}
	i.state.Store(StateWaitingForStart)

	dec, err := decoderFactory.NewDecoder(ctx, i.onFrame)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a decoder: %w", err)
	}
	i.Decoder = dec

	src.RegisterCallbacks(ctx, source.Callbacks{
		OnDecoderConfig: i.onDecoderConfig,
	})
	return i, nil
}

func (i *Input) String() string {
	return fmt.Sprintf("Input(%s)", i.ID)
}

func (i *Input) State() State {
	return i.state.Load()
}

func (i *Input) GetStatistics() Statistics {
	return i.Counters.ToStatistics()
}

func (i *Input) onFrame(
	ctx context.Context,
	ref *frame.Ref,
) {
	logger.Tracef(ctx, "onFrame: %s", ref)
	i.Counters.FramesDecoded.Inc()
	if !i.frames.Push(ctx, ref) {
		logger.Debugf(ctx, "received a frame after the input was closed, releasing it")
		ref.DecrementRefCount(ctx)
	}
}

func (i *Input) onDecoderConfig(
	ctx context.Context,
	cfg types.DecoderConfig,
) {
	logger.Debugf(ctx, "onDecoderConfig: %s", cfg)
	if err := i.Decoder.Configure(ctx, cfg); err != nil {
		logger.Errorf(ctx, "unable to configure the decoder with %s: %v", cfg, err)
	}
}

// Start begins buffering. Starting an input which is already started is a
// no-op (reported as a warning).
func (i *Input) Start(ctx context.Context) error {
	ctx = belt.WithField(ctx, "input_id", i.ID)
	return xsync.DoA1R1(ctx, &i.locker, i.start, ctx)
}

func (i *Input) start(ctx context.Context) error {
	if state := i.state.Load(); state != StateWaitingForStart {
		logger.Warnf(ctx, "tried to start an already started input %q (state: %s)", i.ID, state)
		return nil
	}

	if err := i.Source.Start(ctx); err != nil {
		return fmt.Errorf("unable to start the source %s: %w", i.Source, err)
	}
	i.setState(ctx, StateBuffering)
	i.sendEvent(ctx, event.TypeVideoInputDelivered)
	return nil
}

// GetFrameRef is called on every tick of the compositing clock with
// a non-decreasing clock time. It returns the frame to be shown at that
// time, or nil if there is none.
//
// The caller owns one reference of the returned frame and must call
// DecrementRefCount when done with it.
func (i *Input) GetFrameRef(
	ctx context.Context,
	currentQueuePTS time.Duration,
) (_ret *frame.Ref, _err error) {
	ctx = belt.WithField(ctx, "input_id", i.ID)
	logger.Tracef(ctx, "GetFrameRef(ctx, %v)", currentQueuePTS)
	defer func() { logger.Tracef(ctx, "/GetFrameRef(ctx, %v): %s %v", currentQueuePTS, _ret, _err) }()
	return xsync.DoA2R2(xsync.WithNoLogging(ctx, true), &i.locker, i.getFrameRef, ctx, currentQueuePTS)
}

func (i *Input) getFrameRef(
	ctx context.Context,
	currentQueuePTS time.Duration,
) (*frame.Ref, error) {
	if i.isClosed.Load() {
		return nil, io.ErrClosedPipe
	}

	switch i.state.Load() {
	case StateBuffering:
		return nil, i.handleBuffering(ctx)
	case StatePlaying:
	default:
		return nil, nil
	}

	if !i.startPTS.IsSet() {
		logger.Debugf(ctx, "start PTS is %v", currentQueuePTS)
		i.startPTS = typing.Opt(currentQueuePTS)
	}

	i.dropOldFrames(ctx, currentQueuePTS)
	if err := i.enqueueChunks(ctx, currentQueuePTS); err != nil {
		return nil, err
	}

	// no more chunks will come, so the decoder has to give away everything it holds
	if i.Source.IsFinished(ctx) && i.Decoder.DecodeQueueSize() != 0 {
		logger.Debugf(ctx, "the source is finished, flushing the decoder (queue size: %d)", i.Decoder.DecodeQueueSize())
		if err := i.Decoder.Flush(ctx); err != nil {
			return nil, fmt.Errorf("unable to flush the decoder: %w", err)
		}
	}

	var ref *frame.Ref
	if i.Source.IsFinished(ctx) && i.frames.Len(ctx) == 1 {
		// the last frame is never dropped by dropOldFrames, so handing it over
		ref = i.frames.Pop(ctx)
		i.Counters.FramesConsumed.Inc()
	} else {
		ref = i.getLatestFrame(ctx)
	}
	if ref != nil {
		return ref, nil
	}

	if i.Source.IsFinished(ctx) {
		return nil, i.handleEOS(ctx)
	}
	return nil, nil
}

// getLatestFrame returns the front frame with its reference count incremented.
func (i *Input) getLatestFrame(ctx context.Context) *frame.Ref {
	ref := i.frames.Front(ctx)
	if ref == nil {
		return nil
	}
	ref.IncrementRefCount(ctx)
	i.Counters.FramesServed.Inc()
	return ref
}

// dropOldFrames finds the frame closest to currentQueuePTS and releases
// every frame older than it. On equal distance the older frame is
// considered the closest one.
func (i *Input) dropOldFrames(
	ctx context.Context,
	currentQueuePTS time.Duration,
) {
	refs := i.frames.Refs(ctx)
	if len(refs) == 0 {
		return
	}

	targetPTS := i.queuePTSToInputPTS(ctx, currentQueuePTS)
	target := refs[0]
	for _, ref := range refs[1:] {
		if absDuration(ref.PTS()-targetPTS) < absDuration(target.PTS()-targetPTS) {
			target = ref
		}
	}

	for _, ref := range i.frames.PopOlderThan(ctx, target.PTS()) {
		logger.Tracef(ctx, "dropping %s (target: %s)", ref, target)
		ref.DecrementRefCount(ctx)
		i.Counters.FramesDropped.Inc()
	}
}

func (i *Input) handleBuffering(ctx context.Context) error {
	maxBufferingSize := i.Config.maxBufferingSize()
	// chunks held inside the decoder are not counted: a reordering decoder
	// emits nothing until it got enough input
	if i.frames.Len(ctx) < maxBufferingSize {
		if err := i.tryEnqueueChunk(ctx); err != nil {
			return err
		}
	}

	if i.frames.Len(ctx) < maxBufferingSize {
		if !i.Source.IsFinished(ctx) || i.Decoder.DecodeQueueSize() != 0 {
			return nil
		}
		logger.Debugf(ctx, "the stream ended before buffering %d frames (got %d)", maxBufferingSize, i.frames.Len(ctx))
	}

	i.setState(ctx, StatePlaying)
	i.sendEvent(ctx, event.TypeVideoInputPlaying)
	return nil
}

func (i *Input) handleEOS(ctx context.Context) error {
	i.setState(ctx, StateFinished)
	i.sendEvent(ctx, event.TypeVideoInputEOS)

	if err := i.Decoder.Close(ctx); err != nil {
		return fmt.Errorf("unable to close the decoder: %w", err)
	}
	return nil
}

func (i *Input) queuePTSToInputPTS(
	ctx context.Context,
	queuePTS time.Duration,
) time.Duration {
	internal.Assert(ctx, i.startPTS.IsSet(), "the start PTS is not set")
	return queuePTS - i.startPTS.Get()
}

// tryEnqueueChunk submits the next chunk, if any. The chunk is consumed
// only if the decoder accepted it.
func (i *Input) tryEnqueueChunk(ctx context.Context) error {
	chunk := i.Source.PeekChunk(ctx)
	if chunk == nil {
		return nil
	}
	if err := i.decode(ctx, *chunk); err != nil {
		return err
	}
	i.Source.NextChunk(ctx)
	return nil
}

// enqueueChunks submits the chunks to be shown within the next
// MaxBufferingSize frames.
func (i *Input) enqueueChunks(
	ctx context.Context,
	currentQueuePTS time.Duration,
) error {
	framerate := i.Source.GetFramerate(ctx)
	internal.Assert(ctx, framerate.IsSet() && framerate.Get().IsValid(), "the framerate is not known", framerate)

	frameDuration := framerate.Get().FrameDuration()
	targetPTS := i.queuePTSToInputPTS(ctx, currentQueuePTS) + frameDuration*time.Duration(i.Config.maxBufferingSize())

	for chunk := i.Source.PeekChunk(ctx); chunk != nil && chunk.PTS < targetPTS; chunk = i.Source.PeekChunk(ctx) {
		if err := i.decode(ctx, *chunk); err != nil {
			return err
		}
		i.Source.NextChunk(ctx)
	}
	return nil
}

func (i *Input) decode(
	ctx context.Context,
	chunk types.Chunk,
) error {
	logger.Tracef(ctx, "decoding %s", chunk)
	if err := i.Decoder.Decode(ctx, chunk); err != nil {
		return fmt.Errorf("unable to decode %s: %w", chunk, err)
	}
	i.Counters.ChunksSubmitted.Inc()
	return nil
}

func (i *Input) setState(
	ctx context.Context,
	newState State,
) {
	oldState := i.state.Load()
	internal.Assert(ctx, newState == oldState+1, "invalid state transition", oldState, newState)
	logger.Debugf(ctx, "state: %s -> %s", oldState, newState)
	i.state.Store(newState)
}

func (i *Input) sendEvent(
	ctx context.Context,
	eventType event.Type,
) {
	if i.EventSender == nil {
		return
	}
	i.EventSender.SendEvent(ctx, event.New(eventType, i.ID))
}

// Close releases every queued frame and the decoder; a source which
// implements types.Closer is closed as well. It is the teardown path of an
// unregistered input.
func (i *Input) Close(ctx context.Context) error {
	ctx = belt.WithField(ctx, "input_id", i.ID)
	return xsync.DoA1R1(ctx, &i.locker, i.close, ctx)
}

func (i *Input) close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "close()")
	defer func() { logger.Debugf(ctx, "/close(): %v", _err) }()
	if i.isClosed.Swap(true) {
		return nil
	}

	var errs []error
	if i.state.Load() != StateFinished {
		if err := i.Decoder.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unable to close the decoder: %w", err))
		}
	}
	for _, ref := range i.frames.Close(ctx) {
		ref.DecrementRefCount(ctx)
		i.Counters.FramesDiscarded.Inc()
	}
	if closer, ok := i.Source.(types.Closer); ok {
		if err := closer.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unable to close the source: %w", err))
		}
	}
	return errors.Join(errs...)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

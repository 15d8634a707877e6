// Package compositor drives a set of inputs with a common clock and hands
// the frames they select to a Renderer.
package compositor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/xaionaro-go/videoinput/decoder"
	"github.com/xaionaro-go/videoinput/event"
	"github.com/xaionaro-go/videoinput/input"
	"github.com/xaionaro-go/videoinput/logger"
	"github.com/xaionaro-go/videoinput/source"
	"github.com/xaionaro-go/videoinput/types"
	"github.com/xaionaro-go/xsync"
)

var (
	ErrInputAlreadyRegistered = errors.New("the input is already registered")
	ErrInputNotFound          = errors.New("the input is not found")
)

type Config struct {
	// Framerate is the rate of the ticks produced by Serve.
	Framerate types.Rational `yaml:"framerate"`

	// StopWhenAllFinished makes Serve return once every registered
	// input reached the finished state.
	StopWhenAllFinished bool `yaml:"stop_when_all_finished"`

	Input input.Config `yaml:"input"`
}

type Compositor struct {
	Config      Config
	Renderer    Renderer
	EventSender event.Sender

	locker xsync.Mutex
	inputs map[types.InputID]*input.Input
}

func New(
	cfg Config,
	renderer Renderer,
	eventSender event.Sender,
) *Compositor {
	return &Compositor{
		Config:      cfg,
		Renderer:    renderer,
		EventSender: eventSender,
		inputs:      map[types.InputID]*input.Input{},
	}
}

// RegisterInput initializes the source and creates an input in the
// waiting-for-start state.
func (c *Compositor) RegisterInput(
	ctx context.Context,
	id types.InputID,
	src source.Source,
	decoderFactory decoder.Factory,
) (_ret *input.Input, _err error) {
	logger.Debugf(ctx, "RegisterInput(ctx, %s, %s, %s)", id, src, decoderFactory)
	defer func() { logger.Debugf(ctx, "/RegisterInput(ctx, %s, %s, %s): %v", id, src, decoderFactory, _err) }()
	if c.GetInput(ctx, id) != nil {
		return nil, fmt.Errorf("%w: %q", ErrInputAlreadyRegistered, id)
	}

	// opening a source may take a while, the clock must not wait for it
	if err := src.Init(ctx); err != nil {
		closeSource(ctx, src)
		return nil, fmt.Errorf("unable to initialize the source %s: %w", src, err)
	}
	in, err := input.New(ctx, id, src, decoderFactory, c.EventSender, c.Config.Input)
	if err != nil {
		closeSource(ctx, src)
		return nil, fmt.Errorf("unable to create input %q: %w", id, err)
	}

	err = xsync.DoR1(ctx, &c.locker, func() error {
		if _, ok := c.inputs[id]; ok {
			return fmt.Errorf("%w: %q", ErrInputAlreadyRegistered, id)
		}
		c.inputs[id] = in
		return nil
	})
	if err != nil {
		if err := in.Close(ctx); err != nil {
			logger.Errorf(ctx, "unable to close the input %s: %v", in, err)
		}
		return nil, err
	}
	return in, nil
}

func closeSource(ctx context.Context, src source.Source) {
	closer, ok := src.(types.Closer)
	if !ok {
		return
	}
	if err := closer.Close(ctx); err != nil {
		logger.Errorf(ctx, "unable to close the source %s: %v", src, err)
	}
}

// UnregisterInput removes the input and releases its resources.
func (c *Compositor) UnregisterInput(
	ctx context.Context,
	id types.InputID,
) (_err error) {
	logger.Debugf(ctx, "UnregisterInput(ctx, %s)", id)
	defer func() { logger.Debugf(ctx, "/UnregisterInput(ctx, %s): %v", id, _err) }()
	in, err := xsync.DoR2(ctx, &c.locker, func() (*input.Input, error) {
		in, ok := c.inputs[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInputNotFound, id)
		}
		delete(c.inputs, id)
		return in, nil
	})
	if err != nil {
		return err
	}
	return in.Close(ctx)
}

func (c *Compositor) StartInput(
	ctx context.Context,
	id types.InputID,
) error {
	in := c.GetInput(ctx, id)
	if in == nil {
		return fmt.Errorf("%w: %q", ErrInputNotFound, id)
	}
	return in.Start(ctx)
}

// StartAll starts every registered input which is not started, yet.
func (c *Compositor) StartAll(ctx context.Context) error {
	var errs []error
	for _, in := range c.Inputs(ctx) {
		if in.State() != input.StateWaitingForStart {
			continue
		}
		if err := in.Start(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unable to start input %q: %w", in.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Compositor) GetInput(
	ctx context.Context,
	id types.InputID,
) *input.Input {
	return xsync.DoR1(ctx, &c.locker, func() *input.Input {
		return c.inputs[id]
	})
}

// Inputs returns the registered inputs ordered by ID.
func (c *Compositor) Inputs(ctx context.Context) []*input.Input {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &c.locker, c.sortedInputs)
}

func (c *Compositor) sortedInputs() []*input.Input {
	result := make([]*input.Input, 0, len(c.inputs))
	for _, in := range c.inputs {
		result = append(result, in)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// Tick requests a frame from every input for the given clock time and
// renders the collected frames.
func (c *Compositor) Tick(
	ctx context.Context,
	pts time.Duration,
) (_err error) {
	logger.Tracef(ctx, "Tick(ctx, %v)", pts)
	defer func() { logger.Tracef(ctx, "/Tick(ctx, %v): %v", pts, _err) }()
	return xsync.DoA2R1(xsync.WithNoLogging(ctx, true), &c.locker, c.tick, ctx, pts)
}

func (c *Compositor) tick(
	ctx context.Context,
	pts time.Duration,
) error {
	var (
		errs   []error
		frames []InputFrame
	)
	for _, in := range c.sortedInputs() {
		ref, err := in.GetFrameRef(ctx, pts)
		if err != nil {
			errs = append(errs, fmt.Errorf("input %q: %w", in.ID, err))
		}
		if ref == nil {
			continue
		}
		frames = append(frames, InputFrame{
			InputID: in.ID,
			Frame:   ref,
		})
	}
	defer func() {
		for _, f := range frames {
			f.Frame.DecrementRefCount(ctx)
		}
	}()

	if c.Renderer != nil {
		if err := c.Renderer.Render(ctx, pts, frames); err != nil {
			errs = append(errs, fmt.Errorf("unable to render: %w", err))
		}
	}
	return errors.Join(errs...)
}

// AllFinished returns true if there is at least one input and all the
// inputs are finished.
func (c *Compositor) AllFinished(ctx context.Context) bool {
	inputs := c.Inputs(ctx)
	if len(inputs) == 0 {
		return false
	}
	for _, in := range inputs {
		if in.State() != input.StateFinished {
			return false
		}
	}
	return true
}

// Serve ticks at the configured framerate until the context is cancelled
// (or, if StopWhenAllFinished is set, until every input is finished).
// Tick errors are logged and do not stop the loop.
func (c *Compositor) Serve(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Serve")
	defer func() { logger.Debugf(ctx, "/Serve: %v", _err) }()

	frameDuration := c.Config.Framerate.FrameDuration()
	if frameDuration <= 0 {
		return fmt.Errorf("invalid framerate: %s", c.Config.Framerate)
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for tickIdx := 0; ; tickIdx++ {
		if c.Config.StopWhenAllFinished && c.AllFinished(ctx) {
			return nil
		}
		pts := time.Duration(tickIdx) * frameDuration
		if err := c.Tick(belt.WithField(ctx, "tick", tickIdx), pts); err != nil {
			logger.Errorf(ctx, "tick #%d (%v) failed: %v", tickIdx, pts, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Compositor) GetStatistics(ctx context.Context) map[types.InputID]input.Statistics {
	result := map[types.InputID]input.Statistics{}
	for _, in := range c.Inputs(ctx) {
		result[in.ID] = in.GetStatistics()
	}
	return result
}

// Close unregisters every input.
func (c *Compositor) Close(ctx context.Context) error {
	var errs []error
	for _, in := range c.Inputs(ctx) {
		if err := c.UnregisterInput(ctx, in.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

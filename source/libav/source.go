// Package libav implements a Source demuxing a URL (file, RTMP, SRT, ...)
// with libavformat.
package libav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/davecgh/go-spew/spew"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/secret"
	"github.com/xaionaro-go/unsafetools"
	"github.com/xaionaro-go/videoinput/avconv"
	"github.com/xaionaro-go/videoinput/helpers/closuresignaler"
	"github.com/xaionaro-go/videoinput/logger"
	"github.com/xaionaro-go/videoinput/packet"
	"github.com/xaionaro-go/videoinput/source"
	"github.com/xaionaro-go/videoinput/types"
	"github.com/xaionaro-go/videoinput/urltools"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
)

const (
	DefaultMaxQueuedChunks = 64

	// DefaultMaxQueuedChunksLive is larger since a network stream cannot
	// be paused without the sender noticing.
	DefaultMaxQueuedChunksLive = 256
)

type Config struct {
	URL     string
	AuthKey secret.String

	// Options are passed to the demuxer; the special key "f" forces
	// the input format.
	Options types.DictionaryItems

	// MaxQueuedChunks limits how far the demuxer may read ahead of
	// the consumer.
	MaxQueuedChunks int
}

// Source reads the first video stream of a URL. Chunks are queued in
// the embedded Buffered by a reader goroutine started by Start.
type Source struct {
	*source.Buffered
	Config Config

	locker        xsync.Mutex
	formatContext *astiav.FormatContext
	stream        *astiav.Stream
	closer        *closuresignaler.ClosureSignaler
	astiCloser    *astikit.Closer
	cancelFunc    context.CancelFunc
	readerDone    chan struct{}
}

var (
	_ source.Source = (*Source)(nil)
	_ types.Closer  = (*Source)(nil)
)

func New(cfg Config) *Source {
	if cfg.MaxQueuedChunks <= 0 {
		cfg.MaxQueuedChunks = DefaultMaxQueuedChunks
		if urltools.IsLive(cfg.URL) {
			cfg.MaxQueuedChunks = DefaultMaxQueuedChunksLive
		}
	}
	buffered := source.NewBuffered(cfg.URL, cfg.MaxQueuedChunks)
	buffered.RebasePTS = true
	return &Source{
		Buffered:   buffered,
		Config:     cfg,
		closer:     closuresignaler.New(),
		astiCloser: astikit.NewCloser(),
	}
}

func (s *Source) String() string {
	return fmt.Sprintf("libav.Source(%s)", s.Config.URL)
}

// Init opens the URL and probes the streams; the decoder configuration
// and the framerate are known after it returns.
func (s *Source) Init(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Init")
	defer func() { logger.Debugf(ctx, "/Init: %v", _err) }()
	return xsync.DoA1R1(ctx, &s.locker, s.init, ctx)
}

func (s *Source) init(ctx context.Context) error {
	if s.formatContext != nil {
		return fmt.Errorf("already initialized")
	}
	if s.Config.URL == "" {
		return fmt.Errorf("the provided URL is empty")
	}
	if path, ok := urltools.FilePath(s.Config.URL); ok {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("unable to access the file: %w", err)
		}
	}

	var options types.DictionaryItems
	for _, opt := range s.Config.Options {
		if opt.Key != "f" {
			options = append(options, opt)
		}
	}

	var inputFormat *astiav.InputFormat
	if formatName, ok := s.Config.Options.Get("f"); ok {
		logger.Debugf(ctx, "overriding input format to '%s'", formatName)
		inputFormat = astiav.FindInputFormat(formatName)
		if inputFormat == nil {
			return fmt.Errorf("unable to find input format by name '%s'", formatName)
		}
		logger.Debugf(ctx, "using format '%s'", inputFormat.Name())
	}

	formatContext := astiav.AllocFormatContext()
	if formatContext == nil {
		return fmt.Errorf("unable to allocate a format context")
	}

	urlWithSecret := s.Config.URL + s.Config.AuthKey.Get()
	if err := formatContext.OpenInput(urlWithSecret, inputFormat, avconv.DictionaryItemsToAstiav(ctx, options)); err != nil {
		formatContext.Free()
		if s.Config.AuthKey.Get() != "" {
			return fmt.Errorf("unable to open input by URL '%s<HIDDEN>': %w", s.Config.URL, err)
		}
		return fmt.Errorf("unable to open input by URL '%s': %w", s.Config.URL, err)
	}
	s.astiCloser.Add(formatContext.Free)
	s.astiCloser.Add(formatContext.CloseInput)
	s.formatContext = formatContext

	if err := formatContext.FindStreamInfo(nil); err != nil {
		return fmt.Errorf("unable to get stream info: %w", err)
	}

	if logger.FromCtx(ctx).Level() >= logger.LevelTrace {
		for _, stream := range formatContext.Streams() {
			logger.Tracef(ctx, "input stream #%d: %s", stream.Index(), spew.Sdump(unsafetools.FieldByNameInValue(reflect.ValueOf(stream.CodecParameters()), "c").Elem().Elem().Interface()))
		}
	}

	stream := avconv.FirstVideoStream(ctx, formatContext)
	if stream == nil {
		return fmt.Errorf("no video stream found in '%s'", s.Config.URL)
	}
	s.stream = stream

	if startTime := avconv.Duration(stream.StartTime(), stream.TimeBase()); startTime != avconv.NoDuration {
		s.Buffered.SetPTSOrigin(ctx, startTime)
	}

	if framerate := avconv.Framerate(stream); framerate.IsSet() {
		s.Buffered.SetFramerate(ctx, framerate.Get())
	} else {
		logger.Warnf(ctx, "the framerate of stream #%d is unknown", stream.Index())
	}

	codecParams := stream.CodecParameters()
	codec := astiav.FindDecoder(codecParams.CodecID())
	if codec == nil {
		return fmt.Errorf("unable to find a decoder for codec %s", codecParams.CodecID())
	}
	extradata := codecParams.ExtraData()
	s.Buffered.SetDecoderConfig(ctx, types.DecoderConfig{
		Codec:     codec.Name(),
		Extradata: append([]byte(nil), extradata...),
		Width:     codecParams.Width(),
		Height:    codecParams.Height(),
	})
	return nil
}

// Start launches the reader goroutine.
func (s *Source) Start(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Start")
	defer func() { logger.Debugf(ctx, "/Start: %v", _err) }()
	return xsync.DoA1R1(ctx, &s.locker, s.start, ctx)
}

func (s *Source) start(ctx context.Context) error {
	if s.formatContext == nil {
		return fmt.Errorf("not initialized")
	}
	if s.readerDone != nil {
		return fmt.Errorf("already started")
	}
	if s.closer.IsClosed() {
		return io.ErrClosedPipe
	}
	if err := s.Buffered.Start(ctx); err != nil {
		return err
	}

	ctx, s.cancelFunc = context.WithCancel(xcontext.DetachDone(ctx))
	s.readerDone = make(chan struct{})
	observability.Go(ctx, func(ctx context.Context) {
		defer close(s.readerDone)
		defer s.Buffered.Finish(ctx)
		err := s.readLoop(ctx)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
			logger.Debugf(ctx, "the reader loop ended: %v", err)
		default:
			logger.Errorf(ctx, "the reader loop ended: %v", err)
		}
	})
	return nil
}

func (s *Source) readLoop(ctx context.Context) error {
	streamIndex := s.stream.Index()
	timeBase := s.stream.TimeBase()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pkt := packet.Pool.Get()
		err := s.formatContext.ReadFrame(pkt)
		switch {
		case err == nil:
		case errors.Is(err, astiav.ErrEof), errors.Is(err, astiav.ErrEio):
			packet.Pool.Put(pkt)
			return nil
		default:
			packet.Pool.Put(pkt)
			return fmt.Errorf("unable to read a packet: %w", err)
		}

		if pkt.StreamIndex() != streamIndex {
			packet.Pool.Put(pkt)
			continue
		}
		chunk := packet.ToChunk(pkt, timeBase)
		packet.Pool.Put(pkt)
		if chunk.PTS == avconv.NoDuration {
			logger.Warnf(ctx, "skipping a packet without timestamps")
			continue
		}
		if err := s.Buffered.Push(ctx, chunk); err != nil {
			return err
		}
	}
}

// Close stops reading and frees the demuxer; chunks already queued may
// still be pulled.
func (s *Source) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()
	if !s.closer.Close(ctx) {
		return nil
	}

	readerDone := xsync.DoR1(ctx, &s.locker, func() chan struct{} {
		if s.cancelFunc != nil {
			s.cancelFunc()
		}
		return s.readerDone
	})
	if readerDone != nil {
		<-readerDone
	}
	s.Buffered.Finish(ctx)
	return s.astiCloser.Close()
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/pkg/runtime"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/videoinput/avconv"
	"github.com/xaionaro-go/videoinput/compositor"
	"github.com/xaionaro-go/videoinput/config"
	"github.com/xaionaro-go/videoinput/event"
	"github.com/xaionaro-go/videoinput/logger"
	sourcelibav "github.com/xaionaro-go/videoinput/source/libav"
	"github.com/xaionaro-go/videoinput/types"
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [--config <path>] [URL ...]\n", os.Args[0])
		pflag.PrintDefaults()
	}

	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	configPath := pflag.String("config", "", "path to a YAML configuration file")
	var framerate types.Rational
	pflag.Var(&framerate, "framerate", "output framerate (e.g. 30, 30000/1001, ~29.97); overrides the config")
	maxBufferingSize := pflag.Int("max-buffering-size", 0, "amount of frames decoded ahead before an input starts playing; overrides the config")
	keepRunning := pflag.Bool("keep-running", false, "do not exit when all the inputs are finished")
	dumpConfig := pflag.Bool("dump-config", false, "print the effective configuration and exit")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	pflag.Parse()

	runtime.DefaultCallerPCFilter = observability.CallerPCFilter(runtime.DefaultCallerPCFilter)
	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt)
	defer cancelFn()
	logger.SetDefault(func() logger.Logger {
		return l
	})
	defer belt.Flush(ctx)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatalf(ctx, "unable to load the configuration: %v", err)
	}
	for _, url := range pflag.Args() {
		cfg.AddURL(url)
	}
	if framerate != (types.Rational{}) {
		cfg.Compositor.Framerate = framerate
	}
	if *maxBufferingSize > 0 {
		cfg.Compositor.Input.MaxBufferingSize = *maxBufferingSize
	}
	if !*keepRunning {
		cfg.Compositor.StopWhenAllFinished = true
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf(ctx, "invalid configuration: %v", err)
	}
	if *dumpConfig {
		b, err := cfg.Bytes()
		if err != nil {
			logger.Fatalf(ctx, "unable to serialize the configuration: %v", err)
		}
		os.Stdout.Write(b)
		return
	}
	if len(cfg.Inputs) == 0 {
		pflag.Usage()
		os.Exit(1)
	}

	if *netPprofAddr != "" {
		observability.Go(ctx, func(ctx context.Context) { logger.Error(ctx, http.ListenAndServe(*netPprofAddr, nil)) })
	}

	astiav.SetLogLevel(avconv.LogLevelToAstiav(l.Level()))
	astiav.SetLogCallback(func(c astiav.Classer, level astiav.LogLevel, fmt, msg string) {
		var cs string
		if c != nil {
			if cl := c.Class(); cl != nil {
				cs = " - class: " + cl.String()
			}
		}
		logger.Logf(ctx,
			avconv.LogLevelFromAstiav(level),
			"%s%s",
			strings.TrimSpace(msg), cs,
		)
	})

	renderer := &statsRenderer{}
	comp := compositor.New(cfg.Compositor, renderer, event.LogSender{})
	defer func() {
		if err := comp.Close(ctx); err != nil {
			logger.Errorf(ctx, "unable to close: %v", err)
		}
	}()

	decoderFactory := cfg.Decoder.Factory()
	for _, inCfg := range cfg.Inputs {
		logger.Debugf(ctx, "opening '%s' as input %s...", inCfg.URL, inCfg.ID)
		_, err := comp.RegisterInput(ctx, inCfg.ID, sourcelibav.New(inCfg.SourceConfig()), decoderFactory)
		if err != nil {
			logger.Fatalf(ctx, "unable to register input %s: %v", inCfg.ID, err)
		}
	}
	if err := comp.StartAll(ctx); err != nil {
		logger.Fatalf(ctx, "unable to start the inputs: %v", err)
	}

	serveDone := make(chan struct{})
	observability.Go(ctx, func(ctx context.Context) {
		defer close(serveDone)
		if err := comp.Serve(ctx); err != nil && ctx.Err() == nil {
			logger.Errorf(ctx, "unable to serve: %v", err)
		}
	})

	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-serveDone:
			printStatistics(ctx, comp, renderer)
			return
		case <-t.C:
			printStatistics(ctx, comp, renderer)
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Parse(nil)
	}
	return config.Load(path)
}

func printStatistics(
	ctx context.Context,
	comp *compositor.Compositor,
	renderer *statsRenderer,
) {
	statsJSON, err := json.Marshal(comp.GetStatistics(ctx))
	if err != nil {
		logger.Fatalf(ctx, "unable to serialize the statistics: %v", err)
	}
	ticks, frames := renderer.Counts()
	fmt.Printf("ticks:%s frames:%s inputs:%s\n", humanize.Comma(int64(ticks)), humanize.Comma(int64(frames)), statsJSON)
}

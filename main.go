/*
This is the demo application: it runs the testbed frame graph
on the configured backend for a number of frames
*/
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/framegraph/engine"
	"github.com/spaghettifunk/framegraph/engine/core"
	_ "github.com/spaghettifunk/framegraph/engine/renderer/null"
	_ "github.com/spaghettifunk/framegraph/engine/renderer/vulkan"
	"github.com/spaghettifunk/framegraph/testbed"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	backend := flag.String("backend", "", "renderer backend, overrides the config")
	frames := flag.Int("frames", -1, "frames to render, 0 runs until interrupted")
	flag.Parse()

	cfg := core.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = core.LoadConfig(*configPath); err != nil {
			core.LogFatal("failed to load config: %s", err)
		}
	}
	if *backend != "" {
		cfg.Renderer.Backend = *backend
	}
	if *frames >= 0 {
		cfg.Renderer.Frames = *frames
	}

	tb := testbed.NewDemo()

	engine, err := engine.New(cfg, tb.Game)
	if err != nil {
		core.LogFatal(err.Error())
	}

	if err := engine.Initialize(); err != nil {
		_ = engine.Shutdown()
		core.LogFatal(err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// stop the run loop on sigterm and other system calls
	go func() {
		<-sigCh
		cancel()
	}()

	// run engine
	runErr := engine.Run(ctx)
	if err := engine.Shutdown(); err != nil {
		core.LogError(err.Error())
	}
	if runErr != nil {
		core.LogFatal(runErr.Error())
	}
}

// tailstatd tails a set of append-only log files, accumulates
// per-zone counters through a pluggable line parser, and serves those
// counters over a line-based TCP protocol.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthropics/tailstatd/internal/config"
	"github.com/anthropics/tailstatd/internal/engine"
	"github.com/anthropics/tailstatd/internal/logging"
	"github.com/anthropics/tailstatd/internal/plugin"
	_ "github.com/anthropics/tailstatd/internal/plugin/apache"
	_ "github.com/anthropics/tailstatd/internal/plugin/clamd"
	"github.com/anthropics/tailstatd/internal/sched"
	"github.com/anthropics/tailstatd/internal/server"
	"github.com/rs/zerolog"
)

const (
	exitOK = iota
	exitConfigError
	exitPluginError
	exitListenError
	exitSnapshotError
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "tailstatd: %v\n", err)
		return exitConfigError
	}
	if cfg.Version {
		fmt.Println("tailstatd 1.0.0")
		return exitOK
	}

	log := logging.New(os.Stderr, cfg.Identity)
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tailstatd: open log file: %v\n", err)
			return exitConfigError
		}
		defer f.Close()
		log = logging.New(f, cfg.Identity)
	}

	p, err := plugin.New(cfg.PluginName, cfg.PluginOptions)
	if err != nil {
		log.Error().Err(err).Msg("plugin load failed")
		return exitPluginError
	}

	var parseErrorLevel *zerolog.Level
	if cfg.ParseError != "" {
		lvl, err := logging.ParseLevel(cfg.ParseError)
		if err != nil {
			log.Error().Err(err).Msg("invalid --parse-error level")
			return exitConfigError
		}
		parseErrorLevel = &lvl
	}

	srv, err := server.Listen(cfg.ListenAddr, log)
	if err != nil {
		log.Error().Err(err).Msg("listen failed")
		return exitListenError
	}

	sc := sched.New(cfg.ExpandPeriod, cfg.WindowSize, cfg.StorePeriod, cfg.Timers)

	eng := engine.New(engine.Config{
		Zones:           cfg.Zones,
		ChangeDir:       cfg.ChangeDir,
		Multiple:        cfg.Multiple,
		WindowsNum:      cfg.WindowsNum,
		DatabasePath:    cfg.DatabasePath,
		Basename:        cfg.Basename,
		ParseErrorLevel: parseErrorLevel,
	}, p, sc, srv, log)

	if err := eng.Bootstrap(); err != nil {
		log.Error().Err(err).Msg("startup snapshot load failed")
		return exitSnapshotError
	}

	if cfg.PIDFile != "" {
		if err := os.WriteFile(cfg.PIDFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644); err != nil {
			log.Warn().Err(err).Msg("could not write pid file")
		}
		defer os.Remove(cfg.PIDFile)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sc.Run(ctx)
	go srv.Serve()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)
	go func() {
		for s := range sig {
			switch s {
			case syscall.SIGHUP:
				log.Info().Msg("SIGHUP: re-expanding wildcards")
				sc.TriggerExpand()
			case syscall.SIGUSR1:
				log.Info().Msg("SIGUSR1: log reopen requested (handled externally by log rotation tooling)")
			case syscall.SIGINT, syscall.SIGTERM:
				log.Info().Msg("shutting down")
				cancel()
				return
			}
		}
	}()

	eng.Run(ctx)
	return exitOK
}

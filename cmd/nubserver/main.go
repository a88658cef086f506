// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The nubserver command listens for a debug nub and runs a console session
// with each executor that connects, one at a time.
//
// Usage:
//
//	nubserver [port]
//
// The port defaults to 9001. TRACE=1 logs protocol activity; TRACE=2 logs
// every message.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"golang.org/x/nub/internal/config"
	"golang.org/x/nub/internal/console"
	"golang.org/x/nub/internal/logging"
	"golang.org/x/nub/program/server"
	"golang.org/x/nub/socket"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "nubserver: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	config      string
	trace       int
	arch        string
	interactive bool
}

func (f *flags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.config, "config", "c", "", "YAML configuration file")
	fs.IntVar(&f.trace, "trace", 0, "trace level; overrides $TRACE")
	fs.StringVar(&f.arch, "arch", "", "target layout: amd64, 386, arm, arm64 or sparc")
	fs.BoolVarP(&f.interactive, "interactive", "i", false, "prompt for commands at each stop (default: when stdin is a terminal)")
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "nubserver [port]",
		Short:         "Serve debug nub connections",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), &f, args)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("interactive") {
				f.interactive = term.IsTerminal(int(os.Stdin.Fd()))
			}
			return run(cmd.Context(), cfg, f.interactive)
		},
	}
	f.register(cmd.Flags())
	return cmd
}

// loadConfig layers the command line over the configuration file and the
// environment.
func loadConfig(fs *pflag.FlagSet, f *flags, args []string) (*config.Config, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return nil, err
	}
	if len(args) == 1 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("bad port %q", args[0])
		}
		cfg.Port = port
	}
	if fs.Changed("trace") {
		cfg.Trace = f.trace
	}
	if f.arch != "" {
		cfg.Arch = f.arch
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, interactive bool) error {
	log := logging.NewWithComponent(cfg.LogConfig(), "nubserver")
	a, err := cfg.Architecture()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := socket.ListenContext(ctx, cfg.Port)
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", cfg.Port, err)
	}
	defer l.Close()
	log.Info().Str("addr", l.Addr().String()).Stringer("arch", a).Msg("listening")

	con, closeConsole, err := newConsole(interactive, log)
	if err != nil {
		return err
	}
	defer closeConsole()
	// Unblock a prompt so the live session can wind down.
	defer context.AfterFunc(ctx, closeConsole)()

	err = server.Serve(ctx, l, con.Startup, con.Fault, server.Options{
		Arch:        a,
		Logger:      logging.NewWithComponent(cfg.LogConfig(), "server"),
		QuitTimeout: cfg.QuitTimeout,
	})
	if err != nil {
		return err
	}
	log.Info().Msg("shut down")
	return nil
}

// newConsole returns the session owner: a readline prompt when interactive,
// otherwise a console that logs each stop and continues.
func newConsole(interactive bool, log zerolog.Logger) (*console.Console, func(), error) {
	if !interactive {
		return console.New(os.Stdout, nil, log), func() {}, nil
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "(nub) ",
		InterruptPrompt: "^C",
		EOFPrompt:       "continue",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("console: %w", err)
	}
	closeConsole := sync.OnceFunc(func() {
		if err := rl.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			log.Debug().Err(err).Msg("closing console")
		}
	})
	return console.New(rl.Stdout(), rl, log), closeConsole, nil
}

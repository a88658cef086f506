// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The nubsim command is a stand-in executor. It connects to a nubserver
// and plays a scripted program described in YAML, answering requests from
// its memory, stack and source table.
//
// Usage:
//
//	nubsim --script prog.yaml [host:port]
//
// The address defaults to the local host on port 9001.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"golang.org/x/nub/internal/config"
	"golang.org/x/nub/internal/logging"
	"golang.org/x/nub/program/client"
	"golang.org/x/nub/program/local"
	"golang.org/x/nub/socket"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "nubsim: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		script     string
		archName   string
		trace      int
	)
	cmd := &cobra.Command{
		Use:           "nubsim --script FILE [host:port]",
		Short:         "Play a scripted program against a nubserver",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if archName != "" {
				cfg.Arch = archName
			}
			if cmd.Flags().Changed("trace") {
				cfg.Trace = trace
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			addr := strconv.Itoa(cfg.Port)
			if len(args) == 1 {
				addr = args[0]
			}
			return run(cmd.Context(), cfg, script, addr)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	cmd.Flags().StringVarP(&script, "script", "s", "", "program description (YAML)")
	cmd.Flags().StringVar(&archName, "arch", "", "target layout: amd64, 386, arm, arm64 or sparc")
	cmd.Flags().IntVar(&trace, "trace", 0, "trace level; overrides $TRACE")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, script, addr string) error {
	log := logging.NewWithComponent(cfg.LogConfig(), "nubsim")
	a, err := cfg.Architecture()
	if err != nil {
		return err
	}
	target, err := local.Load(script)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := socket.Dial(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info().Str("addr", conn.RemoteAddr().String()).Str("script", script).Msg("connected")

	if err := client.Run(ctx, conn, target, client.Options{Arch: a, Logger: log}); err != nil {
		return err
	}
	log.Info().Msg("program exited")
	return nil
}

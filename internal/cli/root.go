// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package cli wires the mangavault command surface: serve, ingest, and
// groups, sharing the same signal-aware root the sync-tool wrapper used.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// RootOpts holds global CLI options.
type RootOpts struct {
	LogLevel string
	Server   string
}

// Execute runs the CLI with the given version string.
func Execute(version string) error {
	ro := &RootOpts{}
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	root := &cobra.Command{
		Use:           "mangavault",
		Short:         "Multi-remote manga image vault: ingest, proxy, and storage-group routing",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	defaultLogLevel := "info"
	if fileCfg, found, err := loadServeFileConfig(); err == nil && found && fileCfg.LogLevel != "" {
		defaultLogLevel = fileCfg.LogLevel
	}
	root.PersistentFlags().StringVar(&ro.LogLevel, "log-level", defaultLogLevel, "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&ro.Server, "server", "http://127.0.0.1:8080", "Base URL of a running mangavault server (used by ingest/groups)")

	root.AddCommand(newServeCmd(ro))
	root.AddCommand(newIngestCmd(ro))
	root.AddCommand(newGroupsCmd(ro))
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd(version))
	root.SetHelpCommand(&cobra.Command{Use: "help", Hidden: true})

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

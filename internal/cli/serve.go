// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mangavault/mangavault/internal/server"
	"github.com/mangavault/mangavault/pkg/vault"
)

func newServeCmd(ro *RootOpts) *cobra.Command {
	var (
		addr           string
		port           int
		baseFolder     string
		allowedOrigins []string
		thumbnails     bool
	)

	fileCfg, _, err := loadServeFileConfig()
	if err != nil {
		fileCfg = DefaultServeConfig()
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP proxy/ingest server",
		Long: `Start an HTTP server that provides:
  - GET  /proxy/<stored_path>   streamed image reads across storage groups
  - POST /ingest                bulk manga/chapter ingest from a zip archive
  - GET  /health, GET /metrics  per-group and per-remote health
  - GET  /ws                    job/group state on connect, then periodic health over WebSocket

Storage groups, remotes, and daemon tuning are read entirely from the
environment; see the documented PRIMARY_REMOTE/GROUP_n_* variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(context.Background())
			defer cancel()

			cfg, err := vault.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logLevel := cfg.LogLevel
			if cmd.Flags().Changed("log-level") || os.Getenv("LOG_LEVEL") == "" {
				logLevel = vault.ParseLevel(ro.LogLevel)
			}
			log := vault.NewLogger(logLevel)

			var supervisor *vault.DaemonSupervisor
			if cfg.ServeHTTPEnabled {
				supervisor = vault.NewDaemonSupervisor(cfg.Daemon)
				for _, g := range cfg.Groups {
					for _, remote := range append([]string{g.Primary}, g.Backups...) {
						if err := supervisor.Start(ctx, remote); err != nil {
							log.Warn("daemon for %s did not start: %v", remote, err)
						}
					}
				}
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					supervisor.Shutdown(shutdownCtx)
				}()
			}

			router := vault.NewRouter(cfg.Daemon.Exe, cfg.Groups, supervisor)
			statePath := filepath.Join(cfg.RemoteCacheDir, "mangavault_active_group")
			policy, err := vault.NewGroupPolicy(router, statePath, cfg.AutoSwitchGroup)
			if err != nil {
				return fmt.Errorf("load group policy: %w", err)
			}

			progress := vault.NewProgressStore(ctx)
			pool := vault.NewClientPool()
			read := vault.NewReadPipeline(router, pool)
			engine := &vault.Engine{
				Router:     router,
				Policy:     policy,
				Progress:   progress,
				Catalog:    vault.NewMemStore(),
				Thumbnails: thumbnails,
				TempRoot:   cfg.RemoteCacheDir,
			}

			srvCfg := server.Config{
				Addr:           addr,
				Port:           port,
				BaseFolder:     baseFolder,
				AllowedOrigins: allowedOrigins,
			}
			srv := server.New(srvCfg, router, policy, read, engine, progress, log)

			log.Info("mangavault serving on %s:%d (%d storage groups)", addr, port, len(cfg.Groups))
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", fileCfg.Addr, "Address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", fileCfg.Port, "Port to listen on")
	cmd.Flags().StringVar(&baseFolder, "base-folder", fileCfg.BaseFolder, "Default remote base folder new ingests land under")
	cmd.Flags().StringSliceVar(&allowedOrigins, "allowed-origins", fileCfg.AllowedOrigins, "CORS origins to allow (default: allow any)")
	cmd.Flags().BoolVar(&thumbnails, "thumbnails", fileCfg.Thumbnails, "Generate a chapter thumbnail when no preview image is present")

	return cmd
}

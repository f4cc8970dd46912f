package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/aintyourcupoftea/PDF-Signer/internal/config"
	"github.com/aintyourcupoftea/PDF-Signer/internal/server"
	"github.com/aintyourcupoftea/PDF-Signer/internal/staging"
)

func (a *app) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the upload form and signing API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&a.cfg.Addr, "addr", a.cfg.Addr, "listen address")
	fs.StringVar(&a.cfg.StagingDir, "staging-dir", a.cfg.StagingDir, "directory for signed files awaiting download")
	fs.DurationVar(&a.cfg.StagingTTL, "staging-ttl", a.cfg.StagingTTL, "how long signed files stay downloadable")
	fs.Int64Var(&a.cfg.MaxUploadBytes, "max-upload-bytes", a.cfg.MaxUploadBytes, "maximum request body size")
	fs.BoolVar(&a.cfg.Watch, "watch", a.cfg.Watch, "reload placement when the config file changes")
	addPlacementFlags(fs, &a.cfg)

	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	a.logger.Info().Interface("config", cfg).Msg("configuration")

	store, err := staging.New(cfg.StagingDir, cfg.StagingTTL, staging.WithLogger(a.logger))
	if err != nil {
		return err
	}
	a.logger.Info().Str("staging_dir", store.Dir()).Dur("staging_ttl", cfg.StagingTTL).Msg("staging ready")
	go store.Run(ctx, sweepInterval(cfg.StagingTTL))

	opts := []server.Option{
		server.WithAddr(cfg.Addr),
		server.WithStamper(a.stamper()),
		server.WithMaxUploadBytes(cfg.MaxUploadBytes),
		server.WithLogger(a.logger),
		server.WithPlacement(cfg.Placement()),
	}

	if cfg.Watch {
		if a.cfgPath == "" {
			return goerr.New("--watch needs a config file")
		}
		w, err := config.NewWatcher(a.cfgPath, a.base, a.changed, a.logger)
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				a.logger.Warn().Err(err).Str("path", a.cfgPath).Msg("config watcher stopped")
			}
		}()
		opts = append(opts, server.WithPlacementSource(w))
	}

	srv, err := server.New(store, opts...)
	if err != nil {
		return err
	}
	return srv.Start(ctx)
}

// sweepInterval runs the sweeper twice per TTL, at most once per second.
func sweepInterval(ttl time.Duration) time.Duration {
	if d := ttl / 2; d > time.Second {
		return d
	}
	return time.Second
}

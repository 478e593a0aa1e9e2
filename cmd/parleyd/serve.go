package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xonecas/parley/internal/config"
	"github.com/xonecas/parley/internal/devserver"
	"github.com/xonecas/parley/internal/provider"
	"github.com/xonecas/parley/internal/store"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		listen   string
		deferred bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			if deferred {
				cfg.Server.PlaceholderReply = false
			}

			creds, err := config.LoadCredentials()
			if err != nil {
				log.Warn().Err(err).Msg("Failed to load credentials")
				creds = &config.Credentials{}
			}
			p, err := provider.FromConfig(cfg.Responder, creds)
			if err != nil {
				return err
			}

			st, err := openStore(cfg.Server.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			srv, err := devserver.New(cfg.Server, st, p)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			defer srv.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info().
				Str("version", Version).
				Str("listen", cfg.Server.Listen).
				Str("responder", p.Name()).
				Bool("placeholder_reply", cfg.Server.PlaceholderReply).
				Bool("auth", cfg.Server.APIToken != "").
				Msg("Starting parleyd")

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.ListenAndServe(gctx)
			})
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info().Msg("parleyd shutdown complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides config)")
	cmd.Flags().BoolVar(&deferred, "deferred", false, "Reply with a separate assistant message instead of a placeholder")
	return cmd
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.dbPath != "" {
		cfg.Server.DBPath = opts.dbPath
	}
	return cfg, nil
}

// openStore opens path, or the default database in the data directory.
func openStore(path string) (*store.Store, error) {
	var (
		st  *store.Store
		err error
	)
	if path != "" {
		st, err = store.Open(path)
	} else {
		st, err = store.New()
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

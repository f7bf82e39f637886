package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newRootCmd() *cobra.Command {
	v := newViper()
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "godeliver",
		Short:         "Storefront server issuing one-time download passwords.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newServeCmd(v, &cfgFile))
	cmd.AddCommand(newCheckConfigCmd(v, &cfgFile))
	return cmd
}

func newServeCmd(v *viper.Viper, cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, *cfgFile)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log.Level)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.String("addr", ":8080", "listen address")
	flags.String("db-driver", "sqlite", "catalog database driver (sqlite, postgres)")
	flags.String("db-dsn", "godeliver.db", "catalog database DSN")
	flags.String("redis", "", `redis address, or "embedded" for an in-process server (development only, not durable)`)
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	_ = v.BindPFlag("server.addr", flags.Lookup("addr"))
	_ = v.BindPFlag("database.driver", flags.Lookup("db-driver"))
	_ = v.BindPFlag("database.dsn", flags.Lookup("db-dsn"))
	_ = v.BindPFlag("redis.addr", flags.Lookup("redis"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	return cmd
}

// newCheckConfigCmd wires every dependency once, runs a single sweep and exits.
func newCheckConfigCmd(v *viper.Viper, cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load the configuration, build the engine and exit.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, *cfgFile)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log.Level)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.engine.SweepExpired(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("configuration ok",
				zap.String("backend", cfg.Credentials.Backend),
				zap.String("database", cfg.Database.Driver),
				zap.Int("reclaimed", n),
			)
			return nil
		},
	}
}

func serve(ctx context.Context, cfg serverConfig, logger *zap.Logger) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

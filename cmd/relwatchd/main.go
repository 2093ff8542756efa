// Command relwatchd runs the release watcher service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brightgate/relwatch/authsvc"
	"github.com/brightgate/relwatch/config"
	"github.com/brightgate/relwatch/credentialresolver"
	"github.com/brightgate/relwatch/crypto"
	"github.com/brightgate/relwatch/httpapi"
	"github.com/brightgate/relwatch/logging"
	"github.com/brightgate/relwatch/metrics"
	"github.com/brightgate/relwatch/notifier"
	"github.com/brightgate/relwatch/oidcsvc"
	"github.com/brightgate/relwatch/scheduler"
	"github.com/brightgate/relwatch/store"
)

func main() {
	root := &cobra.Command{
		Use:   "relwatchd",
		Short: "Poll release sources, classify, and notify on change.",
	}
	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and HTTP admin surface.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context())
		},
	}
}

func loadAll(ctx context.Context) (config.Cfg, *zap.Logger, store.DataStore, error) {
	cfg, warnings, err := config.Load()
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("building logger: %w", err)
	}
	for _, w := range warnings {
		log.Warn(w)
	}

	box, err := crypto.NewBox(cfg.EncryptionKey, log)
	if err != nil {
		return cfg, log, nil, fmt.Errorf("building encryption box: %w", err)
	}

	ds, err := store.Open(ctx, cfg.StoreDSN, box, log)
	if err != nil {
		return cfg, log, nil, fmt.Errorf("opening store: %w", err)
	}
	return cfg, log, ds, nil
}

func runMigrate(ctx context.Context) error {
	_, log, ds, err := loadAll(ctx)
	if err != nil {
		return err
	}
	defer ds.Close()
	log.Info("migrations applied")
	return nil
}

func serve(ctx context.Context) error {
	cfg, log, ds, err := loadAll(ctx)
	if err != nil {
		return err
	}
	defer ds.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	resolver := credentialresolver.New(ds, log)
	dispatcher := notifier.New(ds, log)
	sched := scheduler.New(ds, resolver, dispatcher, m, log)

	if err := sched.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing scheduler: %w", err)
	}
	sched.Start(ctx)
	defer sched.Stop()

	authService := authsvc.New(ds, cfg.JWTSecret)
	oidcService := oidcsvc.New(ds, cfg.FrontendURL, cfg.JWTSecret)
	if err := oidcService.RegisterProviders(ctx, cfg.FrontendURL); err != nil {
		log.Warn("registering oidc providers", zap.Error(err))
	}

	e := httpapi.NewServer(ds, sched, authService, oidcService, dispatcher, cfg, log)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: e}
	go func() {
		log.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server exited", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

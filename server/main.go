package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "taskboard",
		Short:         "Taskboard - collaborative boards, lists and cards over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (defaults to $CONFIG_FILE)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create collections, tables and indexes, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context(), configPath)
		},
	})
	return root
}

func newLogger(cfg Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.slogLevel()}))
}

func openStore(ctx context.Context, cfg Config) (Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	switch cfg.StoreDriver {
	case driverMongo:
		s, err := openMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		return s, nil
	case driverPostgres:
		s, err := openPGStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func runMigrate(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return err
	}
	log := newLogger(cfg)
	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Error("store open", "driver", cfg.StoreDriver, "err", err)
		return err
	}
	defer store.Close(context.Background())
	if err := store.Migrate(ctx); err != nil {
		log.Error("migrate", "err", err)
		return err
	}
	log.Info("migrated", "driver", cfg.StoreDriver)
	return nil
}

func newLimiter(ctx context.Context, cfg Config, log *slog.Logger) Limiter {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB})
		log.Info("rate limiter", "backend", "redis", "addr", cfg.RedisAddr)
		return newRedisLimiter(client, cfg.AuthPerMin, cfg.AuthBurst)
	}
	l := newMemLimiter(cfg.AuthPerMin, cfg.AuthBurst)
	go l.run(ctx)
	return l
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return err
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Error("store open", "driver", cfg.StoreDriver, "err", err)
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Error("store close", "err", err)
		}
	}()
	if err := store.Migrate(ctx); err != nil {
		log.Error("migrate", "err", err)
		return err
	}

	blobs, err := newBlobStore(ctx, cfg.Blobs)
	if err != nil {
		log.Error("blob store", "backend", cfg.Blobs.Backend, "err", err)
		return err
	}

	bus := NewEventBus(log)
	svc := newService(store, blobs, newTokenSigner(cfg.JWTSecret, cfg.JWTTTL), log)
	a := newAPI(svc, bus, newLimiter(ctx, cfg, log), log)

	// no WriteTimeout: board event streams stay open
	srv := &http.Server{Addr: cfg.Addr, Handler: a.handler(cfg.CORSOrigins),
		ReadTimeout: 60 * time.Second, ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Addr, "store", cfg.StoreDriver, "blobs", cfg.Blobs.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			log.Error("listen", "err", err)
			return err
		}
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Error("shutdown", "err", err)
		return err
	}
	return nil
}

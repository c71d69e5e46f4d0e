package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/entitygrid/entitygrid/internal/cache"
	"github.com/entitygrid/entitygrid/internal/config"
	"github.com/entitygrid/entitygrid/internal/engine"
	"github.com/entitygrid/entitygrid/internal/identity"
	"github.com/entitygrid/entitygrid/internal/schema"
	"github.com/entitygrid/entitygrid/internal/store"
)

var servePort int

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the entity API server",
	Long:  "Load the configuration, open the backing store, and serve the entity API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		logger, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer logger.Sync()

		eng, cleanup, err := buildEngine(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := registerEntities(eng); err != nil {
			return err
		}
		if err := eng.Validate(); err != nil {
			return err
		}

		resolver := identity.Chain{identity.NewJWTResolver([]byte(cfg.Auth.JWTSecret))}
		handler := eng.Handler(resolver, logger, cfg.Auth.Require)

		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{Addr: addr, Handler: handler}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("server listening", zap.String("addr", addr))
			errCh <- srv.ListenAndServe()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case <-sigCh:
			logger.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		}
	},
}

// buildEngine opens the configured store and cache backends.
func buildEngine(cfg *config.Config) (*engine.Engine, func(), error) {
	cleanup := func() {}

	var c cache.Cache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c = cache.NewRedis(client)
	}

	if cfg.Database.Driver == "" {
		return engine.New(store.NewMemory(), c), cleanup, nil
	}

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, cleanup, fmt.Errorf("failed to open database: %w", err)
	}
	cleanup = func() { db.Close() }

	dialect := store.DialectPostgres
	if cfg.Database.Driver == "sqlite3" {
		dialect = store.DialectSQLite
	}

	reg := schema.NewRegistry()
	return engine.NewWithRegistry(reg, store.NewSQL(db, reg, dialect), c), cleanup, nil
}

package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/iliyamo/securevault/internal/config"
	"github.com/iliyamo/securevault/internal/database"
	"github.com/iliyamo/securevault/internal/handler"
	"github.com/iliyamo/securevault/internal/logging"
	"github.com/iliyamo/securevault/internal/metrics"
	"github.com/iliyamo/securevault/internal/queue"
	"github.com/iliyamo/securevault/internal/repository"
	"github.com/iliyamo/securevault/internal/router"
	"github.com/iliyamo/securevault/internal/service"
	"github.com/iliyamo/securevault/internal/storage"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "securevault",
		Short: "SecureVault - private document storage API",
		Long: `SecureVault stores user documents in S3 and their metadata in MySQL.

  # Apply schema migrations
  securevault migrate

  # Start the API server
  securevault serve --config vault.yaml

Every setting can also be given as an environment variable (see .env).`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (overrides config)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}
	rootCmd.AddCommand(serveCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE:  runMigrate,
	}
	rootCmd.AddCommand(migrateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads and validates the configuration and installs the logger.
func setup() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := logging.Setup(cfg.LogLevel, cfg.IsDevelopment(), nil); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(cmd.Context(), db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info().Msg("migrations applied")
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	store, err := storage.New(ctx, storage.Options{
		Region:          cfg.Region(),
		Bucket:          cfg.S3.Bucket,
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
	})
	if err != nil {
		return fmt.Errorf("object store: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Str("bucket", store.Bucket()).Msg("object store not reachable; uploads will fail until it is")
	} else {
		log.Info().Str("bucket", store.Bucket()).Str("region", store.Region()).Msg("object store ready")
	}
	cancel()

	m := metrics.New()

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	} else if cfg.RateLimit.Enabled {
		log.Warn().Str("addr", cfg.Redis.Addr).Msg("redis unavailable; rate limiting per instance")
	}

	var events queue.Publisher = queue.NopPublisher{}
	if cfg.Events.Enabled {
		events = queue.NewAMQPPublisher(cfg.Events.URL, m)
	}

	users := repository.NewUserRepo(db)
	docs := repository.NewDocumentRepo(db)
	accounts := service.NewAccountService(users, docs, store, m, cfg.BcryptCost)
	documents := service.NewDocumentService(docs, store, events, m)

	e := router.New(router.Deps{
		Config:    cfg,
		Users:     users,
		Docs:      docs,
		Redis:     rdb,
		Metrics:   m,
		Auth:      handler.NewAuthHandler(cfg, accounts),
		Documents: handler.NewDocumentHandler(cfg.IsDevelopment(), documents),
		UserPages: handler.NewUserHandler(cfg.IsDevelopment(), accounts, documents),
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("securevault listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

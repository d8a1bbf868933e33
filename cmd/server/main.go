/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Check-Mate presence server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment), apply flag overrides
  2. Build the zap logger
  3. Initialize SQLite store, optionally apply a YAML seed
  4. Choose the admission lock (Redis when REDIS_ADDR is set, else in-process)
  5. Create API handler and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS (override the environment):
  -port    HTTP server port (SERVER_PORT, default 8080)
  -db      SQLite database path (DB_PATH, default checkmate.db)
           Use ":memory:" for in-memory database
  -seed    YAML seed file applied at startup (SEED_FILE)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close Redis and database connections
  4. Exit

EXAMPLES:
  ./server -db="./data/checkmate.db" -seed=./seed.yaml
  REDIS_ADDR=localhost:6379 ./server -port=3000

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/checkmate/api"
	"github.com/warp/checkmate/config"
	"github.com/warp/checkmate/lock"
	"github.com/warp/checkmate/logger"
	"github.com/warp/checkmate/presence"
	"github.com/warp/checkmate/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Flags
	port := flag.String("port", cfg.ServerPort, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	seedFile := flag.String("seed", cfg.SeedFile, "YAML seed file applied at startup")
	flag.Parse()

	zl := logger.New(cfg.LoggerLevel, cfg.LoggerFormat, cfg.IsDevelopment())
	defer logger.Sync(zl)

	if err := run(cfg, *port, *dbPath, *seedFile, zl); err != nil {
		zl.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.Config, port, dbPath, seedFile string, zl *zap.Logger) error {
	// Initialize store
	store, err := sqlite.New(dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	if seedFile != "" {
		sum, err := api.LoadSeedFile(context.Background(), store, seedFile)
		if err != nil {
			return fmt.Errorf("failed to load seed: %w", err)
		}
		zl.Info("seed loaded", zap.String("file", seedFile),
			zap.Int("employees", sum.Employees), zap.Int("schedules", sum.Schedules))
	}

	// Initialize handler
	handler := api.NewHandler(store, zl)
	handler.Validator.Window = presence.AdmissionWindowPolicy{BufferMinutes: cfg.BufferMinutes}
	handler.Aggregator.WindowDays = cfg.ReportWindowDays
	handler.Aggregator.Concurrency = cfg.ReportConcurrency

	if cfg.RedisAddr != "" {
		client, err := lock.NewRedisClient(context.Background(), lock.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()

		rl := lock.NewRedis(client, cfg.LockTTL)
		rl.Logger = zl
		handler.Validator.Locker = rl
		zl.Info("admission lock: redis", zap.String("addr", cfg.RedisAddr))
	} else {
		handler.Validator.Locker = lock.NewKeyedMutex()
		zl.Info("admission lock: in-process")
	}

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{CORSOrigins: cfg.CORSOrigins})

	// Create server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		zl.Info("server starting", zap.String("addr", "http://localhost:"+port), zap.String("db", dbPath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	zl.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	zl.Info("server stopped")
	return nil
}

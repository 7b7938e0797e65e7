/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the rehearsal room booking server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load .env and environment
  2. Build the zap logger
  3. Open (and migrate) the SQLite store
  4. Load the band identity table
  5. Create booking service, API handler and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -env     dotenv file to load before reading the environment (default: .env)
  -port    overrides PORT
  -db      overrides DB_PATH; ":memory:" for an in-memory database

ENVIRONMENT:
  See config/config.go. JWT_SECRET is required.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  JWT_SECRET=dev ./server -db=":memory:"
  ./server -env=/etc/rehearsal/prod.env

SEE ALSO:
  - api/server.go: Router configuration
  - booking/service.go: Reservation transactions
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

	"github.com/tnsmusic/rehearsal-booking/api"
	"github.com/tnsmusic/rehearsal-booking/booking"
	"github.com/tnsmusic/rehearsal-booking/config"
	"github.com/tnsmusic/rehearsal-booking/store/sqlite"
)

func main() {
	// Flags
	envFile := flag.String("env", ".env", "dotenv file to load")
	port := flag.Int("port", 0, "HTTP server port (overrides PORT)")
	dbPath := flag.String("db", "", "SQLite database path (overrides DB_PATH)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg config.App, logger *zap.Logger) error {
	rules, err := cfg.Rules()
	if err != nil {
		return err
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath, sqlite.WithLogger(logger.Named("store")))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	bands, err := config.LoadBandTable(cfg.BandTableFile)
	if err != nil {
		return err
	}

	svc := booking.NewService(store, rules,
		booking.WithLogger(logger.Named("booking")),
		booking.WithIdentityTable(bands),
	)

	handler := api.NewHandler(svc, logger.Named("api"))
	handler.Store = store
	handler.LeaderboardLimit = cfg.LeaderboardLimit

	router := api.NewRouter(handler, api.RouterOptions{
		JWTSecret:       []byte(cfg.JWTSecret),
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Logger:          logger.Named("http"),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("Server starting",
			zap.Int("port", cfg.Port),
			zap.String("db", cfg.DBPath),
			zap.String("timezone", rules.Location.String()),
			zap.String("band_table_version", bands.Version()),
			zap.Int("bands", bands.Len()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		return err
	case <-quit:
	}

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

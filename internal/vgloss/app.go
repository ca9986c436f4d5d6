// Package vgloss wires the sync engine, its transport, journal and event bus
// into the dependencies CLI commands consume.
package vgloss

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hay-kot/vgloss/internal/core/config"
	"github.com/hay-kot/vgloss/internal/core/logging"
	"github.com/hay-kot/vgloss/internal/data/db"
	"github.com/hay-kot/vgloss/internal/data/stores"
	"github.com/hay-kot/vgloss/internal/transport"
)

// App is the central entry point for all vgloss operations.
// Commands consume App instead of cherry-picking raw dependencies.
type App struct {
	Config *config.Config
	DB     *db.DB
	KV     *stores.KVStore
}

// NewApp constructs an App from explicit dependencies.
func NewApp(cfg *config.Config, database *db.DB) *App {
	return &App{
		Config: cfg,
		DB:     database,
		KV:     stores.NewKVStore(database),
	}
}

// OpenDatabase opens the local database in dataDir. A corrupted database file
// is moved aside and a fresh one is created; its journal is lost.
func OpenDatabase(dataDir string, opts db.OpenOptions, logger zerolog.Logger) (*db.DB, error) {
	database, err := db.Open(dataDir, opts)
	if err == nil {
		return database, nil
	}
	if !stores.IsCorruptionError(err) {
		return nil, err
	}

	logger.Warn().Err(err).Str("data_dir", dataDir).Msg("database corrupted, starting fresh")
	if rerr := stores.RecoverFromCorruption(dataDir); rerr != nil {
		return nil, fmt.Errorf("recover corrupted database: %w", rerr)
	}
	return db.Open(dataDir, opts)
}

// Client returns an HTTP transport configured with the CSRF names from the
// config.
func (a *App) Client() (*transport.Client, error) {
	return transport.New(
		transport.WithCSRF(a.Config.CSRF.Cookie, a.Config.CSRF.Header),
		transport.WithLogger(logging.Component("transport")),
	)
}

// Server returns the configured backend URL.
func (a *App) Server() string {
	return a.Config.Server
}

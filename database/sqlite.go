package database

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"netsentry/logger"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the single durability boundary for sessions, observed URL events
// and security logs. It is constructed once and handed to the engine and the
// API handlers; nothing else touches the database.
type Store struct {
	db *sql.DB
}

// InitDB opens (creating if necessary) the SQLite database at dataSourceName
// and applies any pending migrations. Use ":memory:" for an ephemeral store.
func InitDB(dataSourceName string) (*Store, error) {
	dbDir := filepath.Dir(dataSourceName)
	if dataSourceName != ":memory:" && dbDir != "." && dbDir != "" {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			logger.Error("Failed to create database directory %s: %v", dbDir, err)
			return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName+"?_foreign_keys=on")
	if err != nil {
		logger.Error("Failed to open database: %v", err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		logger.Error("Failed to connect to database: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// The in-memory database disappears when its last connection closes.
	if dataSourceName == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		logger.Error("Failed to load embedded migrations: %v", err)
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	// Migrate over the live handle so an in-memory database gets the schema
	// on the same connection the store will use.
	driver, err := migratesqlite3.WithInstance(db, &migratesqlite3.Config{})
	if err != nil {
		db.Close()
		logger.Error("Failed to prepare migration driver: %v", err)
		return nil, fmt.Errorf("failed to prepare migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		db.Close()
		logger.Error("Failed to initialize migrations: %v", err)
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}

	logger.Info("Applying database migrations...")
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		db.Close()
		logger.Error("Failed to apply migrations: %v", err)
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	logger.Info("Database migrations applied successfully (or no changes).")
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

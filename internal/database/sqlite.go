package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	sqlitedriver "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SingleWriterDB implements Single Writer Principle for SQLite.
// Only one writer can access the database at a time.
type SingleWriterDB struct {
	db     *sqlx.DB
	logger *zap.Logger
	mu     sync.Mutex // Mutex to ensure single writer
}

// NewSingleWriterDB opens the database and applies pending migrations
func NewSingleWriterDB(path string, logger *zap.Logger) (*SingleWriterDB, error) {
	if !isMemory(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)
	if !isMemory(path) {
		db.SetConnMaxLifetime(time.Hour)
	}

	swdb := &SingleWriterDB{
		db:     db,
		logger: logger,
	}

	if err := swdb.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return swdb, nil
}

// Migrate applies the embedded migrations
func (swdb *SingleWriterDB) Migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(swdb.db.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite3 migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	// m.Close would close the shared *sql.DB, so only the source is released.
	defer source.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err == nil {
		swdb.logger.Info("Database schema up to date",
			zap.Uint("version", version),
			zap.Bool("dirty", dirty),
		)
	}
	return nil
}

// DB returns the underlying handle for reads outside a transaction
func (swdb *SingleWriterDB) DB() *sqlx.DB {
	return swdb.db
}

// WithTx runs fn inside a transaction holding the writer lock. The
// transaction commits when fn returns nil and rolls back otherwise.
func (swdb *SingleWriterDB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	swdb.mu.Lock()
	defer swdb.mu.Unlock()

	tx, err := swdb.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			swdb.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (swdb *SingleWriterDB) Ping(ctx context.Context) error {
	return swdb.db.PingContext(ctx)
}

// Close closes the database connection
func (swdb *SingleWriterDB) Close() error {
	return swdb.db.Close()
}

// IsUniqueViolation reports whether err is a SQLite UNIQUE/PRIMARY KEY failure
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlitedriver.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlitedriver.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlitedriver.ErrConstraintPrimaryKey
}

func dsn(path string) string {
	if isMemory(path) {
		return ":memory:?_foreign_keys=1"
	}
	return path + "?_journal_mode=WAL&_foreign_keys=1&_busy_timeout=5000"
}

func isMemory(path string) bool {
	return path == "" || path == ":memory:"
}

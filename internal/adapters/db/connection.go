package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"procurex-bidding-engine/internal/config"
	"procurex-bidding-engine/internal/domain/shared"

	"github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
)

const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
)

// Connection represents a database connection
type Connection struct {
	db      *sql.DB
	builder squirrel.StatementBuilderType
}

// NewConnection creates a new database connection
func NewConnection(cfg *config.Config) (*Connection, error) {
	db, err := sql.Open("postgres", cfg.Database.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &Connection{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

// Migrate applies pending schema migrations
func (client *Connection) Migrate(sourceURL string) error {
	driver, err := pgmigrate.WithInstance(client.db, &pgmigrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	migrations, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := migrations.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// GetDB returns the underlying sql.DB instance
func (client *Connection) GetDB() *sql.DB {
	return client.db
}

// Builder returns the shared statement builder ($n placeholders)
func (client *Connection) Builder() squirrel.StatementBuilderType {
	return client.builder
}

// Close closes the database connection
func (client *Connection) Close() error {
	return client.db.Close()
}

// ExecuteTx executes a function within a transaction at the given isolation
// level. The transaction is rolled back on error or panic.
func (client *Connection) ExecuteTx(ctx context.Context, opts *sql.TxOptions, fn func(*sql.Tx) error) error {
	tx, err := client.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx failed: %v, rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ExecuteSerializableTx runs fn in a serializable transaction, retrying on
// serialization conflicts with exponential backoff up to retryCap attempts.
// Once the cap is exhausted the caller sees ErrConflict.
func (client *Connection) ExecuteSerializableTx(ctx context.Context, retryCap int, retryBase time.Duration, fn func(*sql.Tx) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}

	var err error
	for attempt := 0; ; attempt++ {
		err = client.ExecuteTx(ctx, opts, fn)
		if err == nil || !IsSerializationFailure(err) {
			return err
		}
		if attempt >= retryCap {
			return fmt.Errorf("%w: %v", shared.ErrConflict, err)
		}

		backoff := retryBase << uint(attempt)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// IsSerializationFailure reports whether err is a retryable Postgres
// serialization or deadlock error
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqSerializationFailure || string(pqErr.Code) == pqDeadlockDetected
	}
	return false
}

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation on the named constraint. An empty constraint matches any.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if string(pqErr.Code) != pqUniqueViolation {
			return false
		}
		return constraint == "" || pqErr.Constraint == constraint
	}
	return false
}

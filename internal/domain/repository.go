package domain

import (
	"context"
	"time"
)

// Repository persists transaction batches and the alert logs produced from
// them. Implementations must preserve input order for transactions and
// evaluation order for alerts.
type Repository interface {
	// Transaction batch operations
	SaveTransactions(ctx context.Context, txs []*Transaction) error
	ListTransactions(ctx context.Context) ([]*Transaction, error)

	// Run and alert log operations
	SaveRun(ctx context.Context, result *RunResult) error
	GetRun(ctx context.Context, runID string) (*RunResult, error)
	ListAlertsByRun(ctx context.Context, runID string) ([]*Alert, error)
	GetAlert(ctx context.Context, runID, alertID string) (*Alert, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

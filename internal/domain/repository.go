// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"context"
	"time"
)

// Store is the transaction store adapter every scoring component reads through.
// Malformed rows are quarantined inside the adapter and never returned.
type Store interface {
	// Transaction ingestion
	SaveTransactions(ctx context.Context, txs []*Transaction) (int, error)

	// Snapshot reads, ordered by timestamp ascending unless noted
	FetchAllTransactions(ctx context.Context) ([]*Transaction, error)
	FetchAccountTransactions(ctx context.Context, accountID string) ([]*Transaction, error)
	// FetchRecentAccountTransactions returns the newest rows first.
	FetchRecentAccountTransactions(ctx context.Context, accountID string, limit int) ([]*Transaction, error)
	// FetchTransactionsSince filters by scenario label unless scenario is "" or "all".
	FetchTransactionsSince(ctx context.Context, since time.Time, scenario string) ([]*Transaction, error)
	CountTransactions(ctx context.Context) (int, error)
	DistinctAccounts(ctx context.Context) ([]string, error)

	// Optional account enrichment
	SaveAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, accountID string) (*Account, error)

	// Risk scores
	UpsertRiskScore(ctx context.Context, record *RiskScoreRecord) error
	GetRiskScore(ctx context.Context, accountID string) (*RiskScoreRecord, error)
	FetchAccountsAboveThreshold(ctx context.Context, threshold float64, limit int) ([]*RiskScoreRecord, error)

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

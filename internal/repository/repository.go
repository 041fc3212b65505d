// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Store using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string

	quarantined atomic.Int64
}

var _ domain.Store = (*SQLRepository)(nil)

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// Quarantined returns how many malformed rows have been rejected so far.
func (r *SQLRepository) Quarantined() int64 {
	return r.quarantined.Load()
}

func (r *SQLRepository) quarantine(tx *domain.Transaction, err error) {
	n := r.quarantined.Add(1)
	slog.Warn("transaction quarantined",
		"tx_id", tx.ID,
		"error", err,
		"quarantined_total", n,
	)
}

// UpsertRiskScore stores the latest score for an account. Last write wins.
func (r *SQLRepository) UpsertRiskScore(ctx context.Context, record *domain.RiskScoreRecord) error {
	if record == nil || record.AccountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	if record.RiskScore < 0 || record.RiskScore > 100 {
		return fmt.Errorf("%w: risk score %.2f out of range", ErrInvalidInput, record.RiskScore)
	}

	updated := record.LastUpdated
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	query := `
		INSERT INTO account_risk_scores (account_id, risk_score, last_updated)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			risk_score = excluded.risk_score,
			last_updated = excluded.last_updated
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), record.AccountID, record.RiskScore, updated)
	return err
}

// GetRiskScore retrieves the persisted score of an account.
func (r *SQLRepository) GetRiskScore(ctx context.Context, accountID string) (*domain.RiskScoreRecord, error) {
	query := `
		SELECT account_id, risk_score, last_updated
		FROM account_risk_scores
		WHERE account_id = ?
	`

	var rec domain.RiskScoreRecord
	err := r.db.QueryRowContext(ctx, r.rebind(query), accountID).Scan(
		&rec.AccountID, &rec.RiskScore, &rec.LastUpdated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FetchAccountsAboveThreshold lists scores at or above threshold, highest first.
func (r *SQLRepository) FetchAccountsAboveThreshold(ctx context.Context, threshold float64, limit int) ([]*domain.RiskScoreRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT account_id, risk_score, last_updated
		FROM account_risk_scores
		WHERE risk_score >= ?
		ORDER BY risk_score DESC, account_id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.RiskScoreRecord
	for rows.Next() {
		var rec domain.RiskScoreRecord
		if err := rows.Scan(&rec.AccountID, &rec.RiskScore, &rec.LastUpdated); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// SaveAccount stores account enrichment.
func (r *SQLRepository) SaveAccount(ctx context.Context, account *domain.Account) error {
	if account == nil || account.ID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}

	created := account.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	query := `
		INSERT INTO accounts (id, account_type, country, risk_tier, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_type = excluded.account_type,
			country = excluded.country,
			risk_tier = excluded.risk_tier
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		account.ID, account.AccountType, account.Country, account.RiskTier, created,
	)
	return err
}

// GetAccount retrieves account enrichment. Most accounts have none.
func (r *SQLRepository) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	query := `
		SELECT id, account_type, country, risk_tier, created_at
		FROM accounts
		WHERE id = ?
	`

	var a domain.Account
	err := r.db.QueryRowContext(ctx, r.rebind(query), accountID).Scan(
		&a.ID, &a.AccountType, &a.Country, &a.RiskTier, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

const transactionColumns = `id, from_account, to_account, amount, timestamp, type, pattern_label, scenario_label`

// SaveTransactions inserts transactions in one database transaction.
// Malformed rows are quarantined and duplicates are ignored; the count of
// newly stored rows is returned.
func (r *SQLRepository) SaveTransactions(ctx context.Context, txs []*domain.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	query := `
		INSERT INTO transactions (
			id, from_account, to_account, amount, timestamp,
			type, pattern_label, scenario_label, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	stmt, err := dbTx.PrepareContext(ctx, r.rebind(query))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	inserted := 0
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			r.quarantine(tx, err)
			continue
		}

		txType := tx.Type
		if txType == "" {
			txType = "transfer"
		}

		res, err := stmt.ExecContext(ctx,
			tx.ID, tx.FromAccount, tx.ToAccount, tx.Amount, tx.Timestamp.UTC(),
			txType, tx.PatternLabel, tx.ScenarioLabel, now,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert %s: %w", tx.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return inserted, nil
}

// FetchAllTransactions returns the whole transaction universe in timestamp order.
func (r *SQLRepository) FetchAllTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions ORDER BY timestamp, id`
	return r.queryTransactions(ctx, query)
}

// FetchAccountTransactions returns every transaction the account is party to.
func (r *SQLRepository) FetchAccountTransactions(ctx context.Context, accountID string) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE from_account = ? OR to_account = ?
		ORDER BY timestamp, id
	`
	return r.queryTransactions(ctx, query, accountID, accountID)
}

// FetchRecentAccountTransactions returns the newest transactions of an account, newest first.
func (r *SQLRepository) FetchRecentAccountTransactions(ctx context.Context, accountID string, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE from_account = ? OR to_account = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`
	return r.queryTransactions(ctx, query, accountID, accountID, limit)
}

// FetchTransactionsSince returns transactions at or after since.
// A scenario of "" or "all" disables the scenario filter.
func (r *SQLRepository) FetchTransactionsSince(ctx context.Context, since time.Time, scenario string) ([]*domain.Transaction, error) {
	if scenario == "" || scenario == "all" {
		query := `
			SELECT ` + transactionColumns + `
			FROM transactions
			WHERE timestamp >= ?
			ORDER BY timestamp, id
		`
		return r.queryTransactions(ctx, query, since.UTC())
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE timestamp >= ? AND scenario_label = ?
		ORDER BY timestamp, id
	`
	return r.queryTransactions(ctx, query, since.UTC(), scenario)
}

// CountTransactions returns the number of stored transactions.
func (r *SQLRepository) CountTransactions(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n)
	return n, err
}

// DistinctAccounts returns every account that appears on either side of a transaction.
func (r *SQLRepository) DistinctAccounts(ctx context.Context) ([]string, error) {
	query := `
		SELECT from_account AS account FROM transactions
		UNION
		SELECT to_account AS account FROM transactions
		ORDER BY account
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		accounts = append(accounts, id)
	}
	return accounts, rows.Err()
}

func (r *SQLRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanTransactions(rows)
}

func (r *SQLRepository) scanTransactions(rows *sql.Rows) ([]*domain.Transaction, error) {
	var transactions []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(
			&tx.ID, &tx.FromAccount, &tx.ToAccount, &tx.Amount, &tx.Timestamp,
			&tx.Type, &tx.PatternLabel, &tx.ScenarioLabel,
		); err != nil {
			return nil, err
		}

		if err := tx.Validate(); err != nil {
			r.quarantine(&tx, err)
			continue
		}
		tx.Timestamp = tx.Timestamp.UTC()
		transactions = append(transactions, &tx)
	}
	return transactions, rows.Err()
}

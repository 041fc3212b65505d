package repository

// Schema definitions for Harrier database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    from_account TEXT NOT NULL,
    to_account TEXT NOT NULL,
    amount DOUBLE PRECISION NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    type TEXT NOT NULL DEFAULT 'transfer',
    pattern_label TEXT NOT NULL DEFAULT '',
    scenario_label TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_from ON transactions(from_account, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_to ON transactions(to_account, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_scenario ON transactions(scenario_label);
`

const schemaAccounts = `
CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    account_type TEXT NOT NULL DEFAULT '',
    country TEXT NOT NULL DEFAULT '',
    risk_tier TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);
`

// schemaRiskScores holds one row per account. Upserts overwrite; no history is kept.
const schemaRiskScores = `
CREATE TABLE IF NOT EXISTS account_risk_scores (
    account_id TEXT PRIMARY KEY,
    risk_score DOUBLE PRECISION NOT NULL,
    last_updated TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_account_risk_scores_score ON account_risk_scores(risk_score);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaAccounts,
		schemaRiskScores,
	}
}

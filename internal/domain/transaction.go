package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Transaction is an immutable money movement between two accounts.
// Rows are never mutated after ingestion.
type Transaction struct {
	ID          string    `json:"id"`
	FromAccount string    `json:"fromAccount"`
	ToAccount   string    `json:"toAccount"`
	Amount      float64   `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`

	// Transaction type (e.g., "transfer", "payment", "withdrawal")
	Type string `json:"type"`

	// Optional labels carried by labelled datasets.
	PatternLabel  string `json:"patternLabel,omitempty"`
	ScenarioLabel string `json:"scenarioLabel,omitempty"`
}

// ErrMalformedTransaction marks a row rejected at the store boundary.
var ErrMalformedTransaction = errors.New("malformed transaction")

// Validate reports whether the transaction is usable by the detectors.
func (t *Transaction) Validate() error {
	switch {
	case t.ID == "":
		return fmt.Errorf("%w: missing id", ErrMalformedTransaction)
	case t.FromAccount == "" || t.ToAccount == "":
		return fmt.Errorf("%w: %s missing account", ErrMalformedTransaction, t.ID)
	case math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) || t.Amount < 0:
		return fmt.Errorf("%w: %s amount %v", ErrMalformedTransaction, t.ID, t.Amount)
	case t.Timestamp.IsZero():
		return fmt.Errorf("%w: %s missing timestamp", ErrMalformedTransaction, t.ID)
	}
	return nil
}

// Involves reports whether the account is on either side of the transaction.
func (t *Transaction) Involves(accountID string) bool {
	return t.FromAccount == accountID || t.ToAccount == accountID
}

// TransactionRequest is the API payload for ingesting a transaction.
type TransactionRequest struct {
	ID            string     `json:"id,omitempty"`
	FromAccount   string     `json:"fromAccount"`
	ToAccount     string     `json:"toAccount"`
	Amount        float64    `json:"amount"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
	Type          string     `json:"type,omitempty"`
	PatternLabel  string     `json:"patternLabel,omitempty"`
	ScenarioLabel string     `json:"scenarioLabel,omitempty"`
}

// ToTransaction converts a request to a Transaction domain object.
// A missing timestamp defaults to now; the id is left to the caller.
func (r *TransactionRequest) ToTransaction(now time.Time) *Transaction {
	ts := now.UTC()
	if r.Timestamp != nil {
		ts = r.Timestamp.UTC()
	}
	txType := r.Type
	if txType == "" {
		txType = "transfer"
	}
	return &Transaction{
		ID:            r.ID,
		FromAccount:   r.FromAccount,
		ToAccount:     r.ToAccount,
		Amount:        r.Amount,
		Timestamp:     ts,
		Type:          txType,
		PatternLabel:  r.PatternLabel,
		ScenarioLabel: r.ScenarioLabel,
	}
}

// Account holds optional enrichment for an account id.
// Accounts exist implicitly through transactions; enrichment may be absent.
type Account struct {
	ID          string    `json:"id"`
	AccountType string    `json:"accountType,omitempty"`
	Country     string    `json:"country,omitempty"`
	RiskTier    string    `json:"riskTier,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

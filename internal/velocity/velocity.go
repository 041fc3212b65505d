// Package velocity provides the recency-weighted velocity component of the fused risk score.
package velocity

import (
	"math"
	"sort"

	"github.com/opensource-finance/harrier/internal/domain"
)

// saturationRate is the transactions-per-hour rate that maps to a full score.
const saturationRate = 10.0

// Service scores velocity over an account's newest transactions.
type Service struct {
	window int
}

// NewService creates a new velocity service over the newest window transactions.
func NewService(window int) *Service {
	if window <= 0 {
		window = 100
	}
	return &Service{window: window}
}

// Score returns the velocity component in [0,1] for an account history
// taken from the same snapshot as the other channels.
func (s *Service) Score(history []*domain.Transaction) float64 {
	return Score(Newest(history, s.window))
}

// Newest returns up to n transactions, newest first, ordered by timestamp
// then id descending like the store's recent-transactions query.
func Newest(txs []*domain.Transaction, n int) []*domain.Transaction {
	out := make([]*domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx != nil {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Score maps a set of recent transactions to [0,1]. Transactions all at the
// same instant score 1; otherwise the hourly rate, floored at one hour of
// span, is scaled against the saturation rate.
func Score(txs []*domain.Transaction) float64 {
	if len(txs) == 0 {
		return 0
	}

	first, last := txs[0].Timestamp, txs[0].Timestamp
	for _, tx := range txs[1:] {
		if tx.Timestamp.Before(first) {
			first = tx.Timestamp
		}
		if tx.Timestamp.After(last) {
			last = tx.Timestamp
		}
	}

	span := last.Sub(first).Hours()
	if span == 0 {
		return 1.0
	}
	rate := float64(len(txs)) / math.Max(span, 1)
	return math.Min(rate/saturationRate, 1.0)
}

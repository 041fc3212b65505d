package layering

import (
	"sort"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Structuring finds bursts of outbound transfers sized just under a reporting
// threshold. With an account id only that account is checked; with "" every
// sender is. Each account contributes at most its first qualifying window.
func (d *Detector) Structuring(txs []*domain.Transaction, accountID string) []domain.StructuringCluster {
	lo := d.cfg.StructuringCenter - d.cfg.StructuringTolerance
	hi := d.cfg.StructuringCenter + d.cfg.StructuringTolerance

	near := make(map[string][]*domain.Transaction)
	for _, tx := range txs {
		if accountID != "" && tx.FromAccount != accountID {
			continue
		}
		if tx.Amount >= lo && tx.Amount <= hi {
			near[tx.FromAccount] = append(near[tx.FromAccount], tx)
		}
	}

	accounts := make([]string, 0, len(near))
	for a := range near {
		accounts = append(accounts, a)
	}
	sort.Strings(accounts)

	clusters := []domain.StructuringCluster{}
	for _, a := range accounts {
		if c, ok := d.firstWindow(a, near[a]); ok {
			clusters = append(clusters, c)
		}
	}
	return clusters
}

func (d *Detector) firstWindow(account string, txs []*domain.Transaction) (domain.StructuringCluster, bool) {
	if len(txs) < d.cfg.StructuringMinCount {
		return domain.StructuringCluster{}, false
	}

	sorted := make([]*domain.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	for i := 0; i+d.cfg.StructuringMinCount <= len(sorted); i++ {
		start := sorted[i].Timestamp
		var window []domain.Transaction
		total := 0.0
		for j := i; j < len(sorted); j++ {
			if sorted[j].Timestamp.Sub(start) > d.cfg.StructuringWindow {
				break
			}
			window = append(window, *sorted[j])
			total += sorted[j].Amount
		}
		if len(window) >= d.cfg.StructuringMinCount {
			return domain.StructuringCluster{
				Account:       account,
				Transactions:  window,
				TotalAmount:   total,
				AverageAmount: total / float64(len(window)),
				WindowHours:   window[len(window)-1].Timestamp.Sub(window[0].Timestamp).Hours(),
			}, true
		}
	}
	return domain.StructuringCluster{}, false
}

// Package behavior profiles an account's own transaction history for
// temporal anomalies typical of money mules.
package behavior

import (
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Profiler derives behavioral features from one account's history.
// It does not look at the wider graph.
type Profiler struct {
	cfg domain.DetectionConfig
	now func() time.Time
}

// NewProfiler creates a profiler. now defaults to time.Now.
func NewProfiler(cfg domain.DetectionConfig, now func() time.Time) *Profiler {
	if now == nil {
		now = time.Now
	}
	return &Profiler{cfg: cfg, now: now}
}

// Profile computes the features, composite score and band for an account.
// Transactions not involving the account are ignored; an account with no
// history gets the zero baseline.
func (p *Profiler) Profile(accountID string, txs []*domain.Transaction) domain.BehavioralProfile {
	f := p.Features(accountID, txs)
	score := p.Score(f)
	return domain.BehavioralProfile{Features: f, Score: score, Level: Level(score)}
}

// Features computes the behavioral feature set.
func (p *Profiler) Features(accountID string, txs []*domain.Transaction) domain.BehavioralFeatures {
	var history []*domain.Transaction
	for _, tx := range txs {
		if tx.Involves(accountID) {
			history = append(history, tx)
		}
	}
	if len(history) == 0 {
		return domain.BehavioralFeatures{}
	}
	sort.SliceStable(history, func(i, j int) bool { return history[i].Timestamp.Before(history[j].Timestamp) })

	var inbound, outbound []*domain.Transaction
	total := 0.0
	for _, tx := range history {
		total += tx.Amount
		if tx.ToAccount == accountID {
			inbound = append(inbound, tx)
		}
		if tx.FromAccount == accountID {
			outbound = append(outbound, tx)
		}
	}

	return domain.BehavioralFeatures{
		TransactionCount:    len(history),
		InboundCount:        len(inbound),
		OutboundCount:       len(outbound),
		TotalVolume:         total,
		TransactionVelocity: velocity(history),
		InOutRatio:          inOutRatio(len(inbound), len(outbound)),
		AccountAgeDays:      math.Floor(p.now().Sub(history[0].Timestamp).Hours() / 24),
		DormantActivation:   p.dormantActivation(history),
		SmallToLarge:        p.smallToLarge(history, inbound, outbound),
		HighThroughput:      total > p.cfg.HighThroughputVolume,
		RapidInOut:          p.rapidInOut(history, inbound, outbound),
	}
}

// Score combines the features into [0,1].
func (p *Profiler) Score(f domain.BehavioralFeatures) float64 {
	score := 0.0
	if f.RapidInOut {
		score += 0.30
	}
	if f.SmallToLarge {
		score += 0.25
	}
	if f.DormantActivation {
		score += 0.15
	}
	if f.TransactionVelocity > p.cfg.VelocityThreshold {
		score += 0.15
	}
	if f.TransactionCount > 0 && f.AccountAgeDays < p.cfg.NewAccountDays && f.HighThroughput {
		score += 0.15
	}
	return min(score, 1.0)
}

// Level bands a behavioral score.
func Level(score float64) domain.RiskLevel {
	switch {
	case score >= 0.7:
		return domain.RiskHigh
	case score >= 0.4:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// velocity is transactions per hour over the observed span, floored at one hour.
func velocity(history []*domain.Transaction) float64 {
	span := history[len(history)-1].Timestamp.Sub(history[0].Timestamp).Hours()
	return float64(len(history)) / math.Max(span, 1)
}

func inOutRatio(in, out int) float64 {
	if out == 0 {
		if in > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return float64(in) / float64(out)
}

// dormantActivation looks for a silent gap followed by a burst of activity
// from the first post-gap transaction onward.
func (p *Profiler) dormantActivation(history []*domain.Transaction) bool {
	if len(history) < 2 {
		return false
	}
	gapDays := math.Floor(p.cfg.DormantGap.Hours() / 24)
	for i := 0; i+1 < len(history); i++ {
		gap := math.Floor(history[i+1].Timestamp.Sub(history[i].Timestamp).Hours() / 24)
		if gap < gapDays {
			continue
		}
		after := history[i+1].Timestamp
		n := 0
		for _, tx := range history {
			if !tx.Timestamp.Before(after) {
				n++
			}
		}
		if n >= p.cfg.DormantFollowUps {
			return true
		}
	}
	return false
}

// smallToLarge looks for a large outbound preceded within the pattern window
// by several small inbound transfers.
func (p *Profiler) smallToLarge(history, inbound, outbound []*domain.Transaction) bool {
	if len(history) < p.cfg.SmallInboundCount+1 {
		return false
	}
	for _, out := range outbound {
		if out.Amount <= p.cfg.LargeAmount {
			continue
		}
		start := out.Timestamp.Add(-p.cfg.PatternWindow)
		n := 0
		for _, in := range inbound {
			if in.Amount < p.cfg.SmallAmount && !in.Timestamp.Before(start) && in.Timestamp.Before(out.Timestamp) {
				n++
			}
		}
		if n >= p.cfg.SmallInboundCount {
			return true
		}
	}
	return false
}

// rapidInOut reports an outbound within RapidWindow after any inbound.
func (p *Profiler) rapidInOut(history, inbound, outbound []*domain.Transaction) bool {
	if len(history) < 2 {
		return false
	}
	for _, in := range inbound {
		end := in.Timestamp.Add(p.cfg.RapidWindow)
		for _, out := range outbound {
			if out == in {
				continue
			}
			if !out.Timestamp.Before(in.Timestamp) && !out.Timestamp.After(end) {
				return true
			}
		}
	}
	return false
}

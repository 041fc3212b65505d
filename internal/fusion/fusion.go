// Package fusion combines the behavioral, network, layering and velocity
// channels into one persisted, explainable risk assessment per account.
package fusion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/harrier/internal/behavior"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/explain"
	"github.com/opensource-finance/harrier/internal/graph"
	"github.com/opensource-finance/harrier/internal/layering"
	"github.com/opensource-finance/harrier/internal/topology"
	"github.com/opensource-finance/harrier/internal/velocity"
)

var tracer = otel.Tracer("harrier-fusion")

// Engine scores accounts against a fresh snapshot of the store.
type Engine struct {
	store    domain.Store
	cache    domain.Cache
	cfg      domain.FusionConfig
	topology *topology.Analyzer
	layering *layering.Detector
	behavior *behavior.Profiler
	velocity *velocity.Service
	now      func() time.Time

	mu        sync.RWMutex
	explainer explain.Explainer
}

type options struct {
	cache     domain.Cache
	explainer explain.Explainer
	sampler   graph.Sampler
	now       func() time.Time
}

// Option customizes an Engine.
type Option func(*options)

// WithCache stores assessments so explanations reuse the scored components.
func WithCache(c domain.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithExplainer replaces the default rule-based explainer.
func WithExplainer(e explain.Explainer) Option {
	return func(o *options) { o.explainer = e }
}

// WithSampler replaces the seeded sampler used by the graph detectors.
func WithSampler(s graph.Sampler) Option {
	return func(o *options) { o.sampler = s }
}

// WithClock sets the clock used for account age and assessment time.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewEngine creates a fusion engine over the store.
func NewEngine(store domain.Store, cfg *domain.Config, opts ...Option) (*Engine, error) {
	o := options{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&o)
	}

	if o.explainer == nil {
		rb, err := explain.NewRuleBased(nil, cfg.Explain.TopReasons)
		if err != nil {
			return nil, fmt.Errorf("failed to build explainer: %w", err)
		}
		o.explainer = rb
	}
	if o.sampler == nil {
		o.sampler = graph.NewSeededSampler(cfg.Detection.SampleSeed)
	}

	return &Engine{
		store:     store,
		cache:     o.cache,
		cfg:       cfg.Fusion,
		topology:  topology.NewAnalyzer(cfg.Detection, o.sampler),
		layering:  layering.NewDetector(cfg.Detection, o.sampler),
		behavior:  behavior.NewProfiler(cfg.Detection, o.now),
		velocity:  velocity.NewService(cfg.Fusion.VelocityWindow),
		now:       o.now,
		explainer: o.explainer,
	}, nil
}

// SetExplainer swaps the explainer, e.g. after training a model.
func (e *Engine) SetExplainer(x explain.Explainer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.explainer = x
}

// Explainer returns the active explainer.
func (e *Engine) Explainer() explain.Explainer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.explainer
}

// snapshot is one read of the store with the whole-graph work done once.
type snapshot struct {
	txs      []*domain.Transaction
	graph    *graph.Graph
	network  *topology.Prepared
	findings layering.Findings
}

// load reads every transaction. A store failure degrades to an empty
// snapshot.
func (e *Engine) load(ctx context.Context) ([]*domain.Transaction, *graph.Graph) {
	ctx, span := tracer.Start(ctx, "fusion.load")
	defer span.End()

	txs, err := e.store.FetchAllTransactions(ctx)
	if err != nil {
		slog.Error("failed to fetch transactions", "error", err)
		span.RecordError(err)
		txs = nil
	}
	g := graph.Build(txs)
	span.SetAttributes(
		attribute.Int("graph.nodes", g.NodeCount()),
		attribute.Int("graph.edges", g.EdgeCount()),
	)
	return txs, g
}

func (e *Engine) prepare(ctx context.Context, txs []*domain.Transaction, g *graph.Graph) *snapshot {
	ctx, span := tracer.Start(ctx, "fusion.prepare")
	defer span.End()

	return &snapshot{
		txs:      txs,
		graph:    g,
		network:  e.topology.Prepare(ctx, g),
		findings: e.layering.Find(ctx, g),
	}
}

// Assess scores one account, persists the score and refreshes the cache.
func (e *Engine) Assess(ctx context.Context, accountID string) (*domain.RiskAssessment, error) {
	ctx, span := tracer.Start(ctx, "fusion.Assess",
		trace.WithAttributes(attribute.String("account.id", accountID)),
	)
	defer span.End()

	txs, g := e.load(ctx)
	if !g.HasNode(accountID) {
		err := &domain.AssessmentError{AccountID: accountID, Err: domain.ErrAccountNotFound}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	a, err := e.assess(ctx, e.prepare(ctx, txs, g), accountID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Float64("risk.score", a.RiskScore))
	return a, nil
}

func (e *Engine) assess(ctx context.Context, s *snapshot, accountID string) (*domain.RiskAssessment, error) {
	a, err := e.score(ctx, s, accountID)
	if err != nil {
		return nil, err
	}

	if err := e.store.UpsertRiskScore(ctx, &domain.RiskScoreRecord{
		AccountID:   a.AccountID,
		RiskScore:   a.RiskScore,
		LastUpdated: a.AssessedAt,
	}); err != nil {
		return nil, &domain.AssessmentError{AccountID: accountID, Err: fmt.Errorf("persist score: %w", err)}
	}

	if e.cache != nil {
		if err := e.cache.SetAssessment(ctx, a, e.cfg.AssessmentTTL); err != nil {
			slog.Warn("failed to cache assessment", "account_id", accountID, "error", err)
		}
	}
	return a, nil
}

// score runs every channel for one account without persisting anything.
func (e *Engine) score(ctx context.Context, s *snapshot, accountID string) (*domain.RiskAssessment, error) {
	network, err := e.topology.Profile(s.network, accountID)
	if err != nil {
		return nil, &domain.AssessmentError{AccountID: accountID, Err: err}
	}

	history := make([]*domain.Transaction, 0)
	for _, tx := range s.txs {
		if tx.Involves(accountID) {
			history = append(history, tx)
		}
	}
	behavioral := e.behavior.Profile(accountID, history)
	layered := e.layering.Report(s.findings, s.txs, accountID)

	vel := e.velocity.Score(history)

	components := domain.ComponentScores{
		Behavioral: clamp01(behavioral.Score),
		Network:    clamp01(network.Score),
		Layering:   clamp01(layered.Score),
		Velocity:   clamp01(vel),
	}
	score, level := Fuse(e.cfg, components)

	return &domain.RiskAssessment{
		AccountID:  accountID,
		RiskScore:  score,
		RiskLevel:  level,
		Components: components,
		Behavioral: behavioral,
		Network:    network,
		Layering:   layered,
		AssessedAt: e.now(),
	}, nil
}

// Fuse weights the component scores onto 0-100. The band is taken from the
// unrounded score; only the returned score is rounded to cents, so full
// evidence lands on exactly 100.
func Fuse(cfg domain.FusionConfig, c domain.ComponentScores) (float64, domain.RiskLevel) {
	combined := cfg.BehavioralWeight*c.Behavioral +
		cfg.NetworkWeight*c.Network +
		cfg.LayeringWeight*c.Layering +
		cfg.VelocityWeight*c.Velocity

	raw := decimal.NewFromFloat(100 * combined)
	// Nine places only absorbs float noise such as 69.99999999999999.
	band := math.Max(0, math.Min(100, raw.Round(9).InexactFloat64()))
	score := math.Max(0, math.Min(100, raw.Round(2).InexactFloat64()))
	return score, domain.LevelForScore(band)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// Assessment returns the cached assessment for an account, assessing it
// afresh on a miss.
func (e *Engine) Assessment(ctx context.Context, accountID string) (*domain.RiskAssessment, error) {
	if e.cache != nil {
		a, err := e.cache.GetAssessment(ctx, accountID)
		if err != nil {
			slog.Warn("assessment cache read failed", "account_id", accountID, "error", err)
		}
		if a != nil {
			return a, nil
		}
	}
	return e.Assess(ctx, accountID)
}

// Explain returns the ranked reasons behind an account's assessment.
func (e *Engine) Explain(ctx context.Context, accountID string) (*domain.Explanation, *domain.RiskAssessment, error) {
	ctx, span := tracer.Start(ctx, "fusion.Explain",
		trace.WithAttributes(attribute.String("account.id", accountID)),
	)
	defer span.End()

	a, err := e.Assessment(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}

	x := e.Explainer()
	exp, err := x.Explain(ctx, a)
	if err != nil {
		return nil, nil, &domain.AssessmentError{AccountID: accountID, Err: fmt.Errorf("explain: %w", err)}
	}
	span.SetAttributes(attribute.String("explain.method", x.Method()))
	return exp, a, nil
}

// EgoGraph returns the account and its direct counterparties.
func (e *Engine) EgoGraph(ctx context.Context, accountID string) (*graph.Graph, error) {
	_, g := e.load(ctx)
	ego := g.Ego(accountID)
	if ego == nil {
		return nil, &domain.AssessmentError{AccountID: accountID, Err: domain.ErrAccountNotFound}
	}
	return ego, nil
}

// IsNotFound reports whether err means the account is unknown.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrAccountNotFound)
}

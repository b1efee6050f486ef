// Package trust orchestrates the full analysis pipeline: scope → store
// fetch → normalize → fold → derive → score → report, memoized in the
// TTL snapshot cache.
package trust

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"billing-trust/core/aggregate"
	"billing-trust/core/billing"
	"billing-trust/core/governance"
	"billing-trust/core/metrics"
	"billing-trust/core/policy"
	"billing-trust/core/scoring"
	"billing-trust/core/snapshot"
	apperrors "billing-trust/internal/errors"
)

// Store is the upstream billing repository contract. Implementations must
// return an empty slice, not an error, when the scope carries no upload
// IDs; the engine additionally never calls the store in that case.
type Store interface {
	FetchBillingRows(ctx context.Context, scope Scope) ([]billing.RawRow, error)
	FetchExpectedAccountIDs(ctx context.Context, uploadIDs []string, provider string) ([]string, error)
}

// Scope bounds one analysis to a provider/service/region slice, a date
// range and an explicit upload set.
type Scope struct {
	Provider  string   `json:"provider,omitempty"`
	Service   string   `json:"service,omitempty"`
	Region    string   `json:"region,omitempty"`
	StartDate string   `json:"start_date,omitempty"`
	EndDate   string   `json:"end_date,omitempty"`
	UploadIDs []string `json:"upload_ids"`
}

// Fingerprint derives the cache key for the scope. Upload IDs are sorted
// first so callers listing the same uploads in different orders share one
// cache entry.
func (s Scope) Fingerprint() string {
	sorted := make([]string, len(s.UploadIDs))
	copy(sorted, s.UploadIDs)
	sort.Strings(sorted)
	key := s
	key.UploadIDs = sorted
	return snapshot.Fingerprint(key)
}

// BucketView is one day of the daily spend series carried in the analysis.
type BucketView struct {
	Date       string          `json:"date"`
	Total      decimal.Decimal `json:"total"`
	Tagged     decimal.Decimal `json:"tagged"`
	Allocated  decimal.Decimal `json:"allocated"`
	Shared     decimal.Decimal `json:"shared"`
	Violated   decimal.Decimal `json:"violated"`
	Credit     decimal.Decimal `json:"credit"`
	Commitment decimal.Decimal `json:"commitment"`
}

// Analysis is the full cached result of one pipeline run.
type Analysis struct {
	Score           float64           `json:"score"`
	ConfidenceLevel string            `json:"confidence_level"`
	TotalRows       int               `json:"total_rows"`
	TotalSpend      decimal.Decimal   `json:"total_spend"`
	CostAtRisk      decimal.Decimal   `json:"cost_at_risk"`
	Buckets         []BucketView      `json:"buckets"`
	Governance      governance.Report `json:"governance"`
	GeneratedAt     time.Time         `json:"generated_at"`
}

// Engine runs analyses against one store, policy and cache.
type Engine struct {
	store  Store
	cache  *snapshot.Cache[*Analysis]
	policy *policy.Policy
	clock  func() time.Time
	logger *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock, used by tests to pin time.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// NewEngine creates an engine with the given snapshot TTL.
func NewEngine(store Store, pol *policy.Policy, ttl time.Duration, logger *zap.Logger, opts ...Option) *Engine {
	if pol == nil {
		pol = policy.Default()
	} else {
		pol.Normalize()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:  store,
		policy: pol,
		clock:  time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cache = snapshot.New[*Analysis](ttl, e.clock)
	return e
}

// Analyze produces the analysis for one scope. An empty upload set yields
// the zero-value analysis without touching the store; store failures
// propagate to the caller. Within the TTL, identical scopes return the
// cached analysis unchanged.
func (e *Engine) Analyze(ctx context.Context, scope Scope) (*Analysis, error) {
	now := e.clock()
	if len(scope.UploadIDs) == 0 {
		return e.zeroAnalysis(now), nil
	}

	key := scope.Fingerprint()
	if cached, ok := e.cache.Get(key); ok {
		e.logger.Debug("snapshot cache hit", zap.String("scope", key[:12]))
		return cached, nil
	}

	raws, err := e.store.FetchBillingRows(ctx, scope)
	if err != nil {
		return nil, apperrors.Store("fetching billing rows", err)
	}
	if len(raws) == 0 {
		analysis := e.zeroAnalysis(now)
		e.cache.Set(key, analysis)
		return analysis, nil
	}

	expected, err := e.store.FetchExpectedAccountIDs(ctx, scope.UploadIDs, scope.Provider)
	if err != nil {
		return nil, apperrors.Store("fetching expected accounts", err)
	}

	analysis := e.run(raws, len(expected), now)
	e.cache.Set(key, analysis)

	e.logger.Info("analysis computed",
		zap.Int("rows", analysis.TotalRows),
		zap.Float64("trust_score", analysis.Score),
		zap.String("confidence", analysis.ConfidenceLevel))
	return analysis, nil
}

// run executes the pure pipeline over fetched rows.
func (e *Engine) run(raws []billing.RawRow, expectedAccounts int, now time.Time) *Analysis {
	normalizer := billing.NewNormalizer(e.policy)
	rows := make([]billing.NormalizedRow, 0, len(raws))
	for _, raw := range raws {
		rows = append(rows, normalizer.Normalize(raw))
	}

	acc := aggregate.Fold(rows, e.policy)
	derived := metrics.Derive(acc, now)
	in := scoring.Inputs{Metrics: derived, ExpectedAccounts: expectedAccounts}
	subs := scoring.Compute(in)
	comp := scoring.Composite(subs, in, e.policy.Weights, e.policy.Gates)
	report := governance.Build(acc, derived, subs, comp, expectedAccounts, now)

	return &Analysis{
		Score:           comp.Score,
		ConfidenceLevel: scoring.ConfidenceLevel(comp.Score),
		TotalRows:       acc.RowCount,
		TotalSpend:      acc.Total,
		CostAtRisk:      report.Overview.CostAtRisk,
		Buckets:         buckets(acc),
		Governance:      report,
		GeneratedAt:     now,
	}
}

// zeroAnalysis is the documented empty-scope shape: score 0, no rows, no
// buckets, a fully populated default report.
func (e *Engine) zeroAnalysis(now time.Time) *Analysis {
	acc := aggregate.NewAccumulator()
	report := governance.Build(acc, metrics.Derived{}, scoring.SubScores{TrustGateStatus: scoring.GateStatusBlocked},
		scoring.CompositeResult{}, 0, now)
	return &Analysis{
		ConfidenceLevel: scoring.ConfidenceLow,
		Buckets:         []BucketView{},
		Governance:      report,
		GeneratedAt:     now,
	}
}

// buckets renders the daily series sorted by date, unknown-date bucket last.
func buckets(acc *aggregate.Accumulator) []BucketView {
	dates := make([]string, 0, len(acc.Days))
	for date := range acc.Days {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool {
		if (dates[i] == billing.UnknownDateKey) != (dates[j] == billing.UnknownDateKey) {
			return dates[j] == billing.UnknownDateKey
		}
		return dates[i] < dates[j]
	})

	out := make([]BucketView, 0, len(dates))
	for _, date := range dates {
		day := acc.Days[date]
		out = append(out, BucketView{
			Date:       date,
			Total:      day.Total,
			Tagged:     day.Tagged,
			Allocated:  day.Allocated,
			Shared:     day.Shared,
			Violated:   day.Violated,
			Credit:     day.Credit,
			Commitment: day.Commitment,
		})
	}
	return out
}

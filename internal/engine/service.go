// Package engine runs the allocation checks against a live inventory. It owns
// the caller-side concerns the core functions leave out: caching, parallel
// report computation, re-validation on inventory edits and instrumentation.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/allocation-engine/core"
	"github.com/signalsfoundry/allocation-engine/internal/logging"
	"github.com/signalsfoundry/allocation-engine/internal/observability"
	"github.com/signalsfoundry/allocation-engine/kb"
	"github.com/signalsfoundry/allocation-engine/model"
	"github.com/signalsfoundry/allocation-engine/timectrl"
)

// Report is everything the engine knows about one opportunity.
type Report struct {
	OpportunityID string                 `json:"opportunityId"`
	Status        core.Status            `json:"status"`
	Capacity      core.CapacityResult    `json:"capacity"`
	Conflicts     []core.Conflict        `json:"conflicts"`
	Health        core.HealthAnalysis    `json:"health"`
	Optimizations []core.Optimization    `json:"optimizations"`
	Findings      []core.ValidationError `json:"findings"`
	GeneratedAt   time.Time              `json:"generatedAt"`
}

// Clone returns a copy sharing no slices with r.
func (r Report) Clone() Report {
	out := r
	out.Capacity.Warnings = cloneSlice(r.Capacity.Warnings)
	out.Conflicts = cloneSlice(r.Conflicts)
	out.Health.Issues = cloneSlice(r.Health.Issues)
	out.Findings = cloneSlice(r.Findings)
	if r.Optimizations != nil {
		out.Optimizations = make([]core.Optimization, len(r.Optimizations))
		for i, o := range r.Optimizations {
			o.Sites = cloneSlice(o.Sites)
			out.Optimizations[i] = o
		}
	}
	return out
}

// Options configures a Service.
type Options struct {
	Thresholds  core.Thresholds
	Weights     core.HealthWeights
	Latency     core.LatencyModel
	CacheTTL    time.Duration
	MaxParallel int
	// SkipContendedSites keeps the advisor from offering sites already held
	// by another opportunity on the same satellite.
	SkipContendedSites bool
	// Clock stamps reports and ages cache entries; nil uses wall-clock time.
	Clock timectrl.Clock
}

// DefaultOptions returns the stock thresholds, weights and planar latency.
func DefaultOptions() Options {
	return Options{
		Thresholds:  core.DefaultThresholds(),
		Weights:     core.DefaultHealthWeights(),
		Latency:     core.DefaultPlanarLatency(),
		CacheTTL:    defaultReportCacheTTL,
		MaxParallel: 8,
		Clock:       timectrl.SystemClock{},
	}
}

// Service evaluates opportunities held in a knowledge base.
type Service struct {
	inv     *kb.KnowledgeBase
	opts    Options
	advisor core.Advisor
	cache   *ReportCache
	log     logging.Logger
	metrics *observability.EngineCollector

	unsubscribe func()
}

// NewService validates opts and subscribes to inventory changes. metrics may
// be nil.
func NewService(inv *kb.KnowledgeBase, opts Options, log logging.Logger, metrics *observability.EngineCollector) (*Service, error) {
	if inv == nil {
		return nil, fmt.Errorf("engine: knowledge base is required")
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Weights.Validate(); err != nil {
		return nil, err
	}
	if opts.Latency == nil {
		opts.Latency = core.DefaultPlanarLatency()
	}
	if opts.Clock == nil {
		opts.Clock = timectrl.SystemClock{}
	}
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 1
	}
	if log == nil {
		log = logging.Noop()
	}

	s := &Service{
		inv:     inv,
		opts:    opts,
		advisor: core.Advisor{Latency: opts.Latency, SkipContended: opts.SkipContendedSites},
		cache:   NewReportCache(opts.CacheTTL),
		log:     log,
		metrics: metrics,
	}
	s.cache.now = opts.Clock.Now
	s.unsubscribe = inv.Subscribe(s.onInventoryEvent)
	return s, nil
}

// Close stops listening to inventory events.
func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Thresholds returns the thresholds the service classifies with.
func (s *Service) Thresholds() core.Thresholds { return s.opts.Thresholds }

// Weights returns the health weights the service scores with.
func (s *Service) Weights() core.HealthWeights { return s.opts.Weights }

// Advisor returns the optimization advisor configured for the service.
func (s *Service) Advisor() core.Advisor { return s.advisor }

// Inventory exposes the underlying knowledge base.
func (s *Service) Inventory() *kb.KnowledgeBase { return s.inv }

// CacheStats reports report cache hits, misses and invalidations.
func (s *Service) CacheStats() (hits, misses, invalids int64) { return s.cache.Stats() }

// Report returns the full evaluation of one opportunity, from cache when the
// inventory has not changed since it was computed.
func (s *Service) Report(ctx context.Context, id string) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	if r, ok := s.cache.Get(id); ok {
		s.metrics.SetReportCacheHitRatio(s.cache.HitRatio())
		return r, nil
	}
	s.metrics.SetReportCacheHitRatio(s.cache.HitRatio())

	ctx, span := observability.Tracer().Start(ctx, "engine.Report")
	defer span.End()
	span.SetAttributes(attribute.String("opportunity.id", id))

	epoch := s.cache.Epoch()
	start := time.Now()
	snap := s.inv.Snapshot()
	opp, err := snap.Opportunity(id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Report{}, err
	}
	r := s.evaluate(opp, snap)
	s.metrics.ObserveReport(time.Since(start))
	s.cache.PutIfEpoch(epoch, r)

	span.SetAttributes(
		attribute.String("opportunity.status", string(r.Status)),
		attribute.Int("opportunity.conflicts", len(r.Conflicts)),
		attribute.Float64("health.score", r.Health.Score),
	)
	s.log.Debug(ctx, "opportunity report computed",
		logging.OpportunityID(id),
		logging.String("status", string(r.Status)),
		logging.Float("health_score", r.Health.Score),
		logging.Int("findings", len(r.Findings)),
	)
	return r, nil
}

// Reports evaluates every opportunity in parallel, bounded by MaxParallel.
// Results are ordered by opportunity ID.
func (s *Service) Reports(ctx context.Context) ([]Report, error) {
	ctx, span := observability.Tracer().Start(ctx, "engine.Reports")
	defer span.End()

	opps := s.inv.ListOpportunities()
	out := make([]Report, len(opps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxParallel)
	for i, opp := range opps {
		g.Go(func() error {
			r, err := s.Report(gctx, opp.ID)
			if err != nil {
				return fmt.Errorf("report %s: %w", opp.ID, err)
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("opportunities", len(out)))
	return out, nil
}

// SweepSummary counts opportunities by status after a sweep.
type SweepSummary struct {
	Opportunities int
	ByStatus      map[core.Status]int
	Elapsed       time.Duration
}

// Sweep recomputes every report, refilling the cache ahead of callers, and
// logs how many opportunities sit in each status.
func (s *Service) Sweep(ctx context.Context) (SweepSummary, error) {
	start := time.Now()
	reports, err := s.Reports(ctx)
	if err != nil {
		s.log.Warn(ctx, "inventory sweep failed", logging.Err(err))
		return SweepSummary{}, err
	}
	sum := SweepSummary{
		Opportunities: len(reports),
		ByStatus:      make(map[core.Status]int, 3),
		Elapsed:       time.Since(start),
	}
	for _, r := range reports {
		sum.ByStatus[r.Status]++
	}
	s.metrics.SetReportCacheHitRatio(s.cache.HitRatio())
	s.log.Info(ctx, "inventory sweep complete",
		logging.Int("opportunities", sum.Opportunities),
		logging.Int("optimal", sum.ByStatus[core.StatusOptimal]),
		logging.Int("warning", sum.ByStatus[core.StatusWarning]),
		logging.Int("critical", sum.ByStatus[core.StatusCritical]),
		logging.Duration("elapsed", sum.Elapsed),
	)
	return sum, nil
}

// BatchValidate validates the whole inventory and merges cross-opportunity
// conflicts. Opportunities without findings are omitted.
func (s *Service) BatchValidate(ctx context.Context) (map[string][]core.ValidationError, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := observability.Tracer().Start(ctx, "engine.BatchValidate")
	defer span.End()

	start := time.Now()
	opps := s.inv.ListOpportunities()
	result := core.BatchValidate(opps, s.opts.Thresholds)
	elapsed := time.Since(start)
	s.metrics.ObserveBatch(elapsed)

	errorsN, warningsN := 0, 0
	for _, findings := range result {
		for _, f := range findings {
			s.metrics.ObserveFinding(string(f.Severity))
			if f.Severity == core.SeverityError {
				errorsN++
			} else {
				warningsN++
			}
		}
	}
	span.SetAttributes(
		attribute.Int("opportunities", len(opps)),
		attribute.Int("findings.error", errorsN),
		attribute.Int("findings.warning", warningsN),
	)
	s.log.Info(ctx, "batch validation complete",
		logging.Int("opportunities", len(opps)),
		logging.Int("flagged", len(result)),
		logging.Int("errors", errorsN),
		logging.Int("warnings", warningsN),
		logging.Duration("elapsed", elapsed),
	)
	return result, nil
}

// Conflicts detects conflicts across the whole inventory.
func (s *Service) Conflicts(ctx context.Context) ([]core.Conflict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, span := observability.Tracer().Start(ctx, "engine.Conflicts")
	defer span.End()

	conflicts := core.DetectConflicts(s.inv.ListOpportunities())
	for _, c := range conflicts {
		s.metrics.ObserveConflict(string(c.Severity))
	}
	span.SetAttributes(attribute.Int("conflicts", len(conflicts)))
	return conflicts, nil
}

// evaluate builds a report for opp against a consistent inventory snapshot.
// Conflicts are computed over opp's satellite group only.
func (s *Service) evaluate(opp model.CollectionOpportunity, snap kb.Snapshot) Report {
	th := s.opts.Thresholds

	group := make([]model.CollectionOpportunity, 0, len(snap.Opportunities))
	for _, o := range snap.Opportunities {
		if o.Satellite.ID == opp.Satellite.ID {
			group = append(group, o)
		}
	}

	capacity := core.ValidateCapacity(opp.Sites, opp.Satellite, th)
	conflicts := core.ConflictsFor(opp.ID, core.DetectConflicts(group))
	if conflicts == nil {
		conflicts = []core.Conflict{}
	}

	findings := core.ValidateOpportunity(opp, th)
	for _, c := range conflicts {
		other := c.ConflictsWith
		if other == opp.ID {
			other = c.OpportunityID
		}
		findings = append(findings, core.ValidationError{
			OpportunityID: opp.ID,
			Field:         core.FieldConflicts,
			Message:       fmt.Sprintf("%s (conflicts with %s)", c.Reason, other),
			Severity:      core.SeverityForConflict(c.Severity),
		})
	}
	if findings == nil {
		findings = []core.ValidationError{}
	}

	return Report{
		OpportunityID: opp.ID,
		Status:        core.DetermineOpportunityStatus(opp, capacity, conflicts),
		Capacity:      capacity,
		Conflicts:     conflicts,
		Health:        core.AnalyzeHealth(opp, th, s.opts.Weights),
		Optimizations: s.advisor.Suggest(opp, snap.Sites, snap.Opportunities),
		Findings:      findings,
		GeneratedAt:   s.opts.Clock.Now().UTC(),
	}
}

// onInventoryEvent invalidates the edited opportunities and every
// opportunity sharing a satellite with them, since conflicts and suggestions
// depend on the whole group.
func (s *Service) onInventoryEvent(e kb.Event) {
	// Site changes can alter the advisor's candidates for any opportunity.
	if e.Type == kb.EventSiteUpdated {
		n := s.cache.InvalidateAll()
		s.metrics.AddInvalidations(n)
		s.log.Debug(context.Background(), "site changed; report cache cleared",
			logging.Any("opportunities", e.Opportunities),
			logging.Int("dropped", n),
		)
		return
	}

	affected := make(map[string]struct{}, len(e.Opportunities))
	for _, id := range e.Opportunities {
		affected[id] = struct{}{}
	}
	for _, sat := range e.SatelliteIDs {
		for _, id := range s.inv.OpportunitiesOnSatellite(sat) {
			affected[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(affected))
	for id := range affected {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	n := s.cache.Invalidate(ids...)
	s.metrics.AddInvalidations(n)
	s.log.Debug(context.Background(), "inventory changed; reports invalidated",
		logging.String("event", e.Type.String()),
		logging.Any("opportunities", ids),
		logging.Int("dropped", n),
	)
}

func cloneSlice[T any](src []T) []T {
	if src == nil {
		return nil
	}
	return append([]T(nil), src...)
}

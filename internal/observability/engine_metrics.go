package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineCollector exposes allocation engine metrics.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	FindingsTotal       *prometheus.CounterVec
	ConflictsTotal      *prometheus.CounterVec
	BatchDuration       prometheus.Histogram
	ReportDuration      prometheus.Histogram
	CacheInvalidations  prometheus.Counter
	ReportCacheHitRatio prometheus.Gauge
}

// NewEngineCollector registers engine metrics against the provided registerer.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	findings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocation_validation_findings_total",
		Help: "Validation findings produced by batch validation, labeled by severity.",
	}, []string{"severity"})
	findings, err := registerCounterVec(reg, findings, "allocation_validation_findings_total")
	if err != nil {
		return nil, err
	}

	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocation_conflicts_detected_total",
		Help: "Conflicts detected between opportunities, labeled by severity.",
	}, []string{"severity"})
	conflicts, err = registerCounterVec(reg, conflicts, "allocation_conflicts_detected_total")
	if err != nil {
		return nil, err
	}

	batch := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "allocation_batch_validation_duration_seconds",
		Help:    "Duration of whole-inventory batch validation.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	})
	batch, err = registerHistogram(reg, batch, "allocation_batch_validation_duration_seconds")
	if err != nil {
		return nil, err
	}

	report := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "allocation_report_duration_seconds",
		Help:    "Duration of uncached opportunity report computation.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
	})
	report, err = registerHistogram(reg, report, "allocation_report_duration_seconds")
	if err != nil {
		return nil, err
	}

	invalidations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "allocation_report_cache_invalidations_total",
		Help: "Cached reports dropped because the inventory changed.",
	})
	invalidations, err = registerCounter(reg, invalidations, "allocation_report_cache_invalidations_total")
	if err != nil {
		return nil, err
	}

	cacheRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "allocation_report_cache_hit_ratio",
		Help: "Hit ratio for the opportunity report cache.",
	})
	cacheRatio, err = registerGauge(reg, cacheRatio, "allocation_report_cache_hit_ratio")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:            gatherer,
		FindingsTotal:       findings,
		ConflictsTotal:      conflicts,
		BatchDuration:       batch,
		ReportDuration:      report,
		CacheInvalidations:  invalidations,
		ReportCacheHitRatio: cacheRatio,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *EngineCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveFinding counts one validation finding of the given severity.
func (c *EngineCollector) ObserveFinding(severity string) {
	if c == nil || c.FindingsTotal == nil {
		return
	}
	c.FindingsTotal.WithLabelValues(severity).Inc()
}

// ObserveConflict counts one detected conflict of the given severity.
func (c *EngineCollector) ObserveConflict(severity string) {
	if c == nil || c.ConflictsTotal == nil {
		return
	}
	c.ConflictsTotal.WithLabelValues(severity).Inc()
}

// ObserveBatch records a batch validation duration.
func (c *EngineCollector) ObserveBatch(d time.Duration) {
	if c == nil || c.BatchDuration == nil {
		return
	}
	c.BatchDuration.Observe(d.Seconds())
}

// ObserveReport records an uncached report computation duration.
func (c *EngineCollector) ObserveReport(d time.Duration) {
	if c == nil || c.ReportDuration == nil {
		return
	}
	c.ReportDuration.Observe(d.Seconds())
}

// AddInvalidations counts cached reports dropped after an inventory change.
func (c *EngineCollector) AddInvalidations(n int) {
	if c == nil || c.CacheInvalidations == nil || n <= 0 {
		return
	}
	c.CacheInvalidations.Add(float64(n))
}

// SetReportCacheHitRatio sets the report cache hit ratio.
func (c *EngineCollector) SetReportCacheHitRatio(ratio float64) {
	if c == nil || c.ReportCacheHitRatio == nil {
		return
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	c.ReportCacheHitRatio.Set(ratio)
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

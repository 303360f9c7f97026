package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/allocation-engine/model"
)

// OverallHealth is the presentation bucket for a health score. AnalyzeHealth
// never produces good; it stays in the vocabulary for dashboards that bucket
// scores themselves.
type OverallHealth string

const (
	HealthExcellent OverallHealth = "excellent"
	HealthGood      OverallHealth = "good"
	HealthFair      OverallHealth = "fair"
	HealthPoor      OverallHealth = "poor"
)

const (
	healthWarningScore  = 70
	healthCriticalScore = 40
	notMeasured         = "N/A"
)

// priorityTargets is the capacity percentage each priority is expected to reach.
var priorityTargets = map[model.Priority]float64{
	model.PriorityCritical: 90,
	model.PriorityHigh:     70,
	model.PriorityMedium:   50,
	model.PriorityLow:      30,
}

// HealthWeights weights the three health metrics. Weights of absent metrics
// are dropped and the remainder renormalised.
type HealthWeights struct {
	Capacity   float64 `json:"capacity" yaml:"capacity" mapstructure:"capacity"`
	Efficiency float64 `json:"efficiency" yaml:"efficiency" mapstructure:"efficiency"`
	Alignment  float64 `json:"alignment" yaml:"alignment" mapstructure:"alignment"`
}

// DefaultHealthWeights favours capacity adequacy over the other two metrics.
func DefaultHealthWeights() HealthWeights {
	return HealthWeights{Capacity: 0.4, Efficiency: 0.3, Alignment: 0.3}
}

// RawMetrics are the individual health inputs. A nil field was not measured,
// which is distinct from a measured zero.
type RawMetrics struct {
	CapacityPercentage    *float64 `json:"capacityPercentage,omitempty"`
	UtilizationEfficiency *float64 `json:"utilizationEfficiency,omitempty"`
	PriorityAlignment     *float64 `json:"priorityAlignment,omitempty"`
}

// HealthMetrics is the raw output of the health computation.
type HealthMetrics struct {
	Score    float64        `json:"score"`
	Level    Status         `json:"level"`
	Metrics  RawMetrics     `json:"metrics"`
	Capacity CapacityResult `json:"capacity"`
}

// HealthAnalysis is the presentation-facing health summary.
type HealthAnalysis struct {
	Score         float64       `json:"score"`
	OverallHealth OverallHealth `json:"overallHealth"`
	Coverage      string        `json:"coverage"`
	Efficiency    string        `json:"efficiency"`
	Balance       string        `json:"balance"`
	Issues        []string      `json:"issues,omitempty"`
	Level         Status        `json:"level"`
}

// ComputeHealthMetrics scores an opportunity from capacity adequacy,
// utilization efficiency and priority alignment.
func ComputeHealthMetrics(opp model.CollectionOpportunity, th Thresholds, w HealthWeights) HealthMetrics {
	capacity := ValidateCapacity(opp.Sites, opp.Satellite, th)

	var m RawMetrics
	if len(opp.Sites) > 0 {
		m.CapacityPercentage = ptr(math.Min(capacity.Percentage, 100))
	}

	var siteCapacity, siteAllocated int
	for _, s := range opp.Sites {
		siteCapacity += s.Capacity
		siteAllocated += s.Allocated
	}
	if siteCapacity > 0 {
		u := float64(siteAllocated) / float64(siteCapacity) * 100
		if u > 100 {
			u = math.Max(0, 200-u)
		}
		m.UtilizationEfficiency = ptr(math.Max(0, u))
	}

	if target, ok := priorityTargets[opp.Priority]; ok && m.CapacityPercentage != nil {
		m.PriorityAlignment = ptr(math.Min(100, *m.CapacityPercentage/target*100))
	}

	score := weightedScore(m, w)
	level := StatusOptimal
	switch {
	case score < healthCriticalScore:
		level = StatusCritical
	case score < healthWarningScore:
		level = StatusWarning
	}
	level = level.Worse(capacity.Status)

	return HealthMetrics{Score: score, Level: level, Metrics: m, Capacity: capacity}
}

// AnalyzeHealth adapts ComputeHealthMetrics into a HealthAnalysis.
func AnalyzeHealth(opp model.CollectionOpportunity, th Thresholds, w HealthWeights) HealthAnalysis {
	h := ComputeHealthMetrics(opp, th, w)

	analysis := HealthAnalysis{
		Score:      math.Round(h.Score*10) / 10,
		Coverage:   formatPercent(h.Metrics.CapacityPercentage),
		Efficiency: formatPercent(h.Metrics.UtilizationEfficiency),
		Balance:    formatPercent(h.Metrics.PriorityAlignment),
		Level:      h.Level,
	}

	switch h.Level {
	case StatusOptimal:
		analysis.OverallHealth = HealthExcellent
	case StatusWarning:
		analysis.OverallHealth = HealthFair
	case StatusCritical:
		analysis.OverallHealth = HealthPoor
	default:
		analysis.OverallHealth = HealthPoor
	}

	analysis.Issues = append(analysis.Issues, h.Capacity.Warnings...)
	if len(opp.Sites) == 0 {
		analysis.Issues = append(analysis.Issues, "No sites allocated")
	}
	if e := h.Metrics.UtilizationEfficiency; e != nil && *e < 50 {
		analysis.Issues = append(analysis.Issues, fmt.Sprintf("Low utilization efficiency (%.1f%%)", *e))
	}
	if a := h.Metrics.PriorityAlignment; a != nil && *a < 100 {
		analysis.Issues = append(analysis.Issues, fmt.Sprintf("Coverage below %s priority target (%.1f%% aligned)", opp.Priority, *a))
	}
	if !opp.Priority.Valid() {
		analysis.Issues = append(analysis.Issues, "Priority not set")
	}
	return analysis
}

func weightedScore(m RawMetrics, w HealthWeights) float64 {
	var sum, weight float64
	add := func(v *float64, wt float64) {
		if v == nil || wt <= 0 {
			return
		}
		sum += *v * wt
		weight += wt
	}
	add(m.CapacityPercentage, w.Capacity)
	add(m.UtilizationEfficiency, w.Efficiency)
	add(m.PriorityAlignment, w.Alignment)
	if weight == 0 {
		return 0
	}
	return sum / weight
}

func formatPercent(v *float64) string {
	if v == nil {
		return notMeasured
	}
	return fmt.Sprintf("%.1f%%", *v)
}

func ptr(v float64) *float64 { return &v }

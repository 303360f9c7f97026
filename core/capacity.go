package core

import (
	"fmt"

	"github.com/signalsfoundry/allocation-engine/model"
)

// Status is the three-level classification shared by capacity results,
// health levels and opportunity status.
type Status string

const (
	StatusOptimal  Status = "optimal"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// rank orders statuses from best to worst.
func (s Status) rank() int {
	switch s {
	case StatusOptimal:
		return 0
	case StatusWarning:
		return 1
	case StatusCritical:
		return 2
	default:
		return 0
	}
}

// Worse returns whichever of s and other is more severe.
func (s Status) Worse(other Status) Status {
	if other.rank() > s.rank() {
		return other
	}
	return s
}

// CapacityResult summarises available site capacity against a satellite's
// unmet demand. Warnings is nil when there is nothing to report.
type CapacityResult struct {
	Available  float64  `json:"available"`
	Allocated  float64  `json:"allocated"`
	Percentage float64  `json:"percentage"`
	Status     Status   `json:"status"`
	Warnings   []string `json:"warnings,omitempty"`
}

// ValidateCapacity computes how much of the satellite's unmet demand the given
// sites can absorb and classifies the result against th.
//
// Per-site availability is clamped at zero so one over-allocated site cannot
// mask capacity at another. When the satellite has no unmet demand the
// percentage is 100.
func ValidateCapacity(sites []model.Site, sat model.Satellite, th Thresholds) CapacityResult {
	var available, allocated float64
	overAllocated := 0
	for _, s := range sites {
		available += float64(s.Remaining())
		if s.Allocated > 0 {
			allocated += float64(s.Allocated)
		}
		if s.OverAllocated() {
			overAllocated++
		}
	}

	percentage := 100.0
	if need := sat.Need(); need > 0 {
		percentage = available / float64(need) * 100
	}

	res := CapacityResult{
		Available:  available,
		Allocated:  allocated,
		Percentage: percentage,
		Status:     StatusOptimal,
	}

	switch {
	case percentage < th.Critical:
		res.Status = StatusCritical
		res.Warnings = append(res.Warnings, fmt.Sprintf("Critical: only %.1f%% of required capacity available", percentage))
	case percentage < th.Warning:
		res.Status = StatusWarning
		res.Warnings = append(res.Warnings, fmt.Sprintf("Warning: %.1f%% of required capacity available", percentage))
	case percentage < th.Optimal:
		res.Warnings = append(res.Warnings, fmt.Sprintf("Capacity adequate at %.1f%% but below optimal %.0f%%", percentage, th.Optimal))
	}

	if overAllocated > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d site(s) over-allocated", overAllocated))
	}

	return res
}

package core

import (
	"errors"
	"fmt"
)

// ErrInvalidThresholds is returned when a threshold triple is not an
// ascending sequence of non-negative percentages.
var ErrInvalidThresholds = errors.New("invalid capacity thresholds")

// Thresholds are ascending severity boundaries on CapacityResult.Percentage.
type Thresholds struct {
	Critical float64 `json:"critical" yaml:"critical" mapstructure:"critical"`
	Warning  float64 `json:"warning" yaml:"warning" mapstructure:"warning"`
	Optimal  float64 `json:"optimal" yaml:"optimal" mapstructure:"optimal"`
}

// DefaultThresholds returns the thresholds used by the dashboard when the
// operator has not configured any.
func DefaultThresholds() Thresholds {
	return Thresholds{Critical: 10, Warning: 30, Optimal: 70}
}

// Validate checks that Critical < Warning < Optimal and none are negative.
// ValidateCapacity does not call it; classification with a misordered triple
// is undefined, so long-lived components validate once at construction.
func (t Thresholds) Validate() error {
	if t.Critical < 0 || t.Warning < 0 || t.Optimal < 0 {
		return fmt.Errorf("%w: thresholds must be non-negative (critical=%v warning=%v optimal=%v)",
			ErrInvalidThresholds, t.Critical, t.Warning, t.Optimal)
	}
	if t.Critical >= t.Warning || t.Warning >= t.Optimal {
		return fmt.Errorf("%w: want critical < warning < optimal, got %v/%v/%v",
			ErrInvalidThresholds, t.Critical, t.Warning, t.Optimal)
	}
	return nil
}

// ErrInvalidWeights is returned when health weights cannot produce a score.
var ErrInvalidWeights = errors.New("invalid health weights")

// Validate checks that no weight is negative and at least one is positive.
func (w HealthWeights) Validate() error {
	if w.Capacity < 0 || w.Efficiency < 0 || w.Alignment < 0 {
		return fmt.Errorf("%w: weights must be non-negative (capacity=%v efficiency=%v alignment=%v)",
			ErrInvalidWeights, w.Capacity, w.Efficiency, w.Alignment)
	}
	if w.Capacity+w.Efficiency+w.Alignment == 0 {
		return fmt.Errorf("%w: at least one weight must be positive", ErrInvalidWeights)
	}
	return nil
}

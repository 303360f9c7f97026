package core

import (
	"fmt"

	"github.com/signalsfoundry/allocation-engine/model"
)

// Severity grades a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Fields named by validation findings.
const (
	FieldSites     = "sites"
	FieldCapacity  = "capacity"
	FieldPriority  = "priority"
	FieldConflicts = "conflicts"
)

// ValidationError is a single finding against an opportunity. Findings are
// data; none of them stop validation.
type ValidationError struct {
	OpportunityID string   `json:"opportunityId"`
	Field         string   `json:"field"`
	Message       string   `json:"message"`
	Severity      Severity `json:"severity"`
}

// SeverityForConflict maps conflict severity onto validation severity.
func SeverityForConflict(s ConflictSeverity) Severity {
	switch s {
	case ConflictHigh:
		return SeverityError
	case ConflictMedium:
		return SeverityWarning
	default:
		return SeverityWarning
	}
}

// ValidateOpportunity checks a single opportunity. Each rule appends
// independently; a clean opportunity yields nil.
func ValidateOpportunity(opp model.CollectionOpportunity, th Thresholds) []ValidationError {
	var errs []ValidationError
	add := func(field, msg string, sev Severity) {
		errs = append(errs, ValidationError{
			OpportunityID: opp.ID,
			Field:         field,
			Message:       msg,
			Severity:      sev,
		})
	}

	if len(opp.Sites) == 0 {
		add(FieldSites, "At least one site must be allocated", SeverityError)
	} else {
		capacity := ValidateCapacity(opp.Sites, opp.Satellite, th)
		if capacity.Status == StatusCritical {
			add(FieldCapacity, fmt.Sprintf("Insufficient capacity: %.1f%% of required capacity available", capacity.Percentage), SeverityError)
		}
	}

	switch {
	case opp.Priority == "":
		add(FieldPriority, "Priority is required", SeverityError)
	case !opp.Priority.Valid():
		add(FieldPriority, fmt.Sprintf("Unknown priority %q", opp.Priority), SeverityError)
	}

	if n := len(opp.Conflicts); n > 0 {
		add(FieldConflicts, fmt.Sprintf("Opportunity has %d conflict(s)", n), SeverityWarning)
	}

	return errs
}

// BatchValidate validates every opportunity, then merges conflicts detected
// across the whole batch. Opportunities without findings are omitted; an
// opportunity whose only findings are conflicts still gets an entry.
func BatchValidate(opps []model.CollectionOpportunity, th Thresholds) map[string][]ValidationError {
	out := make(map[string][]ValidationError)
	for _, opp := range opps {
		if errs := ValidateOpportunity(opp, th); len(errs) > 0 {
			out[opp.ID] = append(out[opp.ID], errs...)
		}
	}

	for _, c := range DetectConflicts(opps) {
		out[c.OpportunityID] = append(out[c.OpportunityID], ValidationError{
			OpportunityID: c.OpportunityID,
			Field:         FieldConflicts,
			Message:       fmt.Sprintf("%s (conflicts with %s)", c.Reason, c.ConflictsWith),
			Severity:      SeverityForConflict(c.Severity),
		})
	}
	return out
}

// DetermineOpportunityStatus classifies an opportunity from its capacity and
// the conflicts that involve it on either side.
func DetermineOpportunityStatus(opp model.CollectionOpportunity, capacity CapacityResult, conflicts []Conflict) Status {
	status := StatusOptimal
	switch capacity.Status {
	case StatusCritical:
		status = StatusCritical
	case StatusWarning:
		status = StatusWarning
	case StatusOptimal:
	}

	for _, c := range conflicts {
		if !c.Involves(opp.ID) {
			continue
		}
		switch c.Severity {
		case ConflictHigh:
			status = status.Worse(StatusCritical)
		case ConflictMedium:
			status = status.Worse(StatusWarning)
		}
	}
	return status
}

// HasErrors reports whether any finding is error severity.
func HasErrors(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

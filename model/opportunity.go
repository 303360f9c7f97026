package model

// Priority ranks how important an opportunity is to the operator.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// MatchStatus records how well the planner matched sites to an opportunity.
type MatchStatus string

const (
	MatchBaseline   MatchStatus = "baseline"
	MatchSuboptimal MatchStatus = "suboptimal"
	MatchUnmatched  MatchStatus = "unmatched"
)

// Valid reports whether m is one of the known match states.
func (m MatchStatus) Valid() bool {
	switch m {
	case MatchBaseline, MatchSuboptimal, MatchUnmatched:
		return true
	default:
		return false
	}
}

// CollectionOpportunity is a satellite tasking window awaiting site
// allocation. The owning satellite and assigned sites are embedded by value.
type CollectionOpportunity struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Satellite   Satellite   `json:"satellite" yaml:"satellite"`
	Sites       []Site      `json:"sites" yaml:"sites"`
	Priority    Priority    `json:"priority" yaml:"priority"`
	MatchStatus MatchStatus `json:"matchStatus" yaml:"matchStatus"`
	Conflicts   []string    `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`

	TotalPasses        int     `json:"totalPasses" yaml:"totalPasses"`
	Capacity           int     `json:"capacity" yaml:"capacity"`
	CapacityPercentage float64 `json:"capacityPercentage" yaml:"capacityPercentage"`
}

// RefreshCapacity re-derives Capacity and CapacityPercentage from the
// assigned sites. Callers that change Sites must invoke it.
func (o *CollectionOpportunity) RefreshCapacity() {
	var capacity, allocated int
	for _, s := range o.Sites {
		capacity += s.Capacity
		allocated += s.Allocated
	}
	o.Capacity = capacity
	if capacity <= 0 {
		o.CapacityPercentage = 0
		return
	}
	o.CapacityPercentage = float64(allocated) / float64(capacity) * 100
}

// HasSite reports whether a site with the given ID is assigned.
func (o CollectionOpportunity) HasSite(id string) bool {
	for _, s := range o.Sites {
		if s.ID == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy that shares no slices with o.
func (o CollectionOpportunity) Clone() CollectionOpportunity {
	out := o
	if o.Sites != nil {
		out.Sites = append([]Site(nil), o.Sites...)
	}
	if o.Conflicts != nil {
		out.Conflicts = append([]string(nil), o.Conflicts...)
	}
	return out
}

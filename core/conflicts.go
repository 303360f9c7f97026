package core

import (
	"fmt"

	"github.com/signalsfoundry/allocation-engine/model"
)

// SatelliteCapacityTarget is the ConflictsWith value used for aggregate
// satellite capacity conflicts.
const SatelliteCapacityTarget = "satellite-capacity"

// highOverlapSites is the shared-site count above which an overlap is high severity.
const highOverlapSites = 2

// ConflictSeverity grades a detected conflict.
type ConflictSeverity string

const (
	ConflictHigh   ConflictSeverity = "high"
	ConflictMedium ConflictSeverity = "medium"
)

// Conflict records contention between an opportunity and another opportunity
// or the shared satellite.
type Conflict struct {
	OpportunityID string           `json:"opportunityId"`
	ConflictsWith string           `json:"conflictsWith"`
	Reason        string           `json:"reason"`
	Severity      ConflictSeverity `json:"severity"`
}

// Involves reports whether the conflict names id on either side.
func (c Conflict) Involves(id string) bool {
	return c.OpportunityID == id || c.ConflictsWith == id
}

// satelliteGroup holds the indices of opportunities sharing a satellite.
type satelliteGroup struct {
	satelliteID string
	members     []int
}

// groupBySatellite groups opportunity indices by satellite ID, keeping groups
// in order of first appearance.
func groupBySatellite(opps []model.CollectionOpportunity) []satelliteGroup {
	idx := make(map[string]int)
	groups := []satelliteGroup{}
	for i, o := range opps {
		g, ok := idx[o.Satellite.ID]
		if !ok {
			g = len(groups)
			idx[o.Satellite.ID] = g
			groups = append(groups, satelliteGroup{satelliteID: o.Satellite.ID})
		}
		groups[g].members = append(groups[g].members, i)
	}
	return groups
}

// DetectConflicts finds site overlaps and satellite capacity oversubscription
// among opportunities sharing a satellite.
//
// An overlap is recorded once per unordered pair, on the lower-indexed
// opportunity. Capacity conflicts are recorded once per opportunity in the
// oversubscribed group. The input is never modified.
func DetectConflicts(opps []model.CollectionOpportunity) []Conflict {
	conflicts := []Conflict{}
	for _, g := range groupBySatellite(opps) {
		if len(g.members) <= 1 {
			continue
		}

		siteSets := make([]map[string]struct{}, len(g.members))
		for k, i := range g.members {
			set := make(map[string]struct{}, len(opps[i].Sites))
			for _, s := range opps[i].Sites {
				set[s.ID] = struct{}{}
			}
			siteSets[k] = set
		}

		for a := 0; a < len(g.members); a++ {
			for b := a + 1; b < len(g.members); b++ {
				shared := intersectionSize(siteSets[a], siteSets[b])
				if shared == 0 {
					continue
				}
				severity := ConflictMedium
				if shared > highOverlapSites {
					severity = ConflictHigh
				}
				conflicts = append(conflicts, Conflict{
					OpportunityID: opps[g.members[a]].ID,
					ConflictsWith: opps[g.members[b]].ID,
					Reason:        fmt.Sprintf("Site overlap: %d shared sites", shared),
					Severity:      severity,
				})
			}
		}

		// Demand is read from each member's own satellite snapshot, so a
		// satellite shared by n opportunities contributes its need n times.
		demand := 0
		for _, i := range g.members {
			demand += opps[i].Satellite.Need()
		}
		capacity := opps[g.members[0]].Satellite.Capacity
		if demand > capacity {
			for _, i := range g.members {
				conflicts = append(conflicts, Conflict{
					OpportunityID: opps[i].ID,
					ConflictsWith: SatelliteCapacityTarget,
					Reason:        fmt.Sprintf("Satellite capacity exceeded: demand %d > capacity %d", demand, capacity),
					Severity:      ConflictHigh,
				})
			}
		}
	}
	return conflicts
}

// ReciprocalConflicts returns the mirror image of every opportunity-to-
// opportunity record so each side of an overlap can see it. Satellite
// capacity records are already per opportunity and are not mirrored.
func ReciprocalConflicts(conflicts []Conflict) []Conflict {
	out := make([]Conflict, 0, len(conflicts))
	for _, c := range conflicts {
		if c.ConflictsWith == SatelliteCapacityTarget {
			continue
		}
		out = append(out, Conflict{
			OpportunityID: c.ConflictsWith,
			ConflictsWith: c.OpportunityID,
			Reason:        c.Reason,
			Severity:      c.Severity,
		})
	}
	return out
}

// ConflictsFor filters conflicts to those involving id on either side.
func ConflictsFor(id string, conflicts []Conflict) []Conflict {
	var out []Conflict
	for _, c := range conflicts {
		if c.Involves(id) {
			out = append(out, c)
		}
	}
	return out
}

func intersectionSize(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for id := range a {
		if _, ok := b[id]; ok {
			n++
		}
	}
	return n
}

package core

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/allocation-engine/model"
)

const (
	underutilizedPct     = 50.0
	latencyGainRatio     = 0.8
	imbalanceStdDevPct   = 20.0
	maxSuggestedSites    = 3
	underutilizedGainPct = 15.0
	latencyGainPct       = 20.0
	rebalanceGainPct     = 10.0
)

// Optimization is an advisory, never auto-applied suggestion. The expected
// improvement is a fixed heuristic estimate, not a measurement.
type Optimization struct {
	OpportunityID       string       `json:"opportunityId"`
	Suggestion          string       `json:"suggestion"`
	ExpectedImprovement float64      `json:"expectedImprovement"`
	Sites               []model.Site `json:"sites"`
}

// Advisor proposes alternative site sets for an opportunity.
type Advisor struct {
	Latency LatencyModel
	// SkipContended drops candidate sites already assigned to another
	// opportunity on the same satellite.
	SkipContended bool
}

// SuggestOptimizations runs the advisor with the planar latency proxy.
func SuggestOptimizations(opp model.CollectionOpportunity, allSites []model.Site, existing []model.CollectionOpportunity) []Optimization {
	return Advisor{Latency: DefaultPlanarLatency()}.Suggest(opp, allSites, existing)
}

// Suggest applies three independent heuristics, each contributing at most one
// suggestion: underutilized sites, lower-latency sites and load rebalancing.
// Candidates are every site not already assigned to opp.
func (a Advisor) Suggest(opp model.CollectionOpportunity, allSites []model.Site, existing []model.CollectionOpportunity) []Optimization {
	latency := a.Latency
	if latency == nil {
		latency = DefaultPlanarLatency()
	}

	contended := make(map[string]struct{})
	if a.SkipContended {
		for _, other := range existing {
			if other.ID == opp.ID || other.Satellite.ID != opp.Satellite.ID {
				continue
			}
			for _, s := range other.Sites {
				contended[s.ID] = struct{}{}
			}
		}
	}

	candidates := make([]model.Site, 0, len(allSites))
	for _, s := range allSites {
		if opp.HasSite(s.ID) {
			continue
		}
		if _, taken := contended[s.ID]; taken {
			continue
		}
		candidates = append(candidates, s)
	}

	out := []Optimization{}

	var underutilized []model.Site
	for _, s := range candidates {
		if s.Utilization() < underutilizedPct {
			underutilized = append(underutilized, s)
		}
	}
	if len(underutilized) > 0 {
		picked := firstN(underutilized, maxSuggestedSites)
		out = append(out, Optimization{
			OpportunityID:       opp.ID,
			Suggestion:          fmt.Sprintf("Add underutilized sites: %s", joinSiteNames(picked)),
			ExpectedImprovement: underutilizedGainPct,
			Sites:               picked,
		})
	}

	if len(opp.Sites) > 0 {
		current := make([]float64, 0, len(opp.Sites))
		for _, s := range opp.Sites {
			current = append(current, latency.SiteLatency(opp.Satellite, s))
		}
		avg := stat.Mean(current, nil)

		// Nothing beats a zero average.
		var faster []model.Site
		if avg > 0 {
			for _, s := range candidates {
				if latency.SiteLatency(opp.Satellite, s) <= avg*latencyGainRatio {
					faster = append(faster, s)
				}
			}
		}
		if len(faster) > 0 {
			picked := firstN(faster, maxSuggestedSites)
			out = append(out, Optimization{
				OpportunityID:       opp.ID,
				Suggestion:          fmt.Sprintf("Switch to lower-latency sites: %s", joinSiteNames(picked)),
				ExpectedImprovement: latencyGainPct,
				Sites:               picked,
			})
		}

		utilization := make([]float64, 0, len(opp.Sites))
		for _, s := range opp.Sites {
			utilization = append(utilization, s.Utilization())
		}
		if spread := stat.PopStdDev(utilization, nil); spread > imbalanceStdDevPct {
			out = append(out, Optimization{
				OpportunityID:       opp.ID,
				Suggestion:          fmt.Sprintf("Rebalance load across assigned sites (utilization spread %.1f%%)", spread),
				ExpectedImprovement: rebalanceGainPct,
				Sites:               append([]model.Site(nil), opp.Sites...),
			})
		}
	}

	return out
}

func firstN(sites []model.Site, n int) []model.Site {
	if len(sites) > n {
		sites = sites[:n]
	}
	return append([]model.Site(nil), sites...)
}

func joinSiteNames(sites []model.Site) string {
	names := make([]string, 0, len(sites))
	for _, s := range sites {
		name := s.Name
		if name == "" {
			name = s.ID
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

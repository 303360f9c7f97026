package nbi

import (
	"github.com/signalsfoundry/allocation-engine/core"
	"github.com/signalsfoundry/allocation-engine/model"
)

// Request payloads carried inside google.protobuf.Struct messages. Optional
// thresholds and weights fall back to the server's configuration.

type ValidateCapacityRequest struct {
	Sites      []model.Site     `json:"sites"`
	Satellite  model.Satellite  `json:"satellite"`
	Thresholds *core.Thresholds `json:"thresholds,omitempty"`
}

type DetectConflictsRequest struct {
	Opportunities []model.CollectionOpportunity `json:"opportunities"`
}

type SuggestOptimizationsRequest struct {
	Opportunity           model.CollectionOpportunity   `json:"opportunity"`
	AllSites              []model.Site                  `json:"allSites"`
	ExistingOpportunities []model.CollectionOpportunity `json:"existingOpportunities"`
}

type ValidateOpportunityRequest struct {
	Opportunity model.CollectionOpportunity `json:"opportunity"`
	Thresholds  *core.Thresholds            `json:"thresholds,omitempty"`
}

// BatchValidateRequest validates the given opportunities, or the server's
// inventory when UseInventory is set.
type BatchValidateRequest struct {
	Opportunities []model.CollectionOpportunity `json:"opportunities"`
	Thresholds    *core.Thresholds              `json:"thresholds,omitempty"`
	UseInventory  bool                          `json:"useInventory,omitempty"`
}

type AnalyzeHealthRequest struct {
	Opportunity model.CollectionOpportunity `json:"opportunity"`
	Thresholds  *core.Thresholds            `json:"thresholds,omitempty"`
	Weights     *core.HealthWeights         `json:"weights,omitempty"`
}

type GetOpportunityReportRequest struct {
	OpportunityID string `json:"opportunityId"`
}

// DetermineStatusRequest classifies an opportunity from a capacity result and
// the conflicts known for it.
type DetermineStatusRequest struct {
	Opportunity model.CollectionOpportunity `json:"opportunity"`
	Capacity    core.CapacityResult         `json:"capacity"`
	Conflicts   []core.Conflict             `json:"conflicts"`
}

// StatusResponse is the result of DetermineStatus.
type StatusResponse struct {
	Status core.Status `json:"status"`
}

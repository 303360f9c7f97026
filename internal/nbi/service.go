package nbi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/allocation-engine/core"
	"github.com/signalsfoundry/allocation-engine/internal/engine"
	"github.com/signalsfoundry/allocation-engine/internal/logging"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "allocation.v1.AllocationService"

// Method names exposed by AllocationService.
const (
	MethodValidateCapacity     = "ValidateCapacity"
	MethodDetectConflicts      = "DetectConflicts"
	MethodSuggestOptimizations = "SuggestOptimizations"
	MethodValidateOpportunity  = "ValidateOpportunity"
	MethodBatchValidate        = "BatchValidate"
	MethodAnalyzeHealth        = "AnalyzeHealth"
	MethodDetermineStatus      = "DetermineStatus"
	MethodGetOpportunityReport = "GetOpportunityReport"
)

// AllocationServiceServer is the server API. Every message is a
// google.protobuf.Struct holding the JSON form of the domain types.
type AllocationServiceServer interface {
	ValidateCapacity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DetectConflicts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SuggestOptimizations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ValidateOpportunity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BatchValidate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AnalyzeHealth(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DetermineStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOpportunityReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(AllocationServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AllocationServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AllocationServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes AllocationService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AllocationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodValidateCapacity, Handler: unaryHandler(MethodValidateCapacity, AllocationServiceServer.ValidateCapacity)},
		{MethodName: MethodDetectConflicts, Handler: unaryHandler(MethodDetectConflicts, AllocationServiceServer.DetectConflicts)},
		{MethodName: MethodSuggestOptimizations, Handler: unaryHandler(MethodSuggestOptimizations, AllocationServiceServer.SuggestOptimizations)},
		{MethodName: MethodValidateOpportunity, Handler: unaryHandler(MethodValidateOpportunity, AllocationServiceServer.ValidateOpportunity)},
		{MethodName: MethodBatchValidate, Handler: unaryHandler(MethodBatchValidate, AllocationServiceServer.BatchValidate)},
		{MethodName: MethodAnalyzeHealth, Handler: unaryHandler(MethodAnalyzeHealth, AllocationServiceServer.AnalyzeHealth)},
		{MethodName: MethodDetermineStatus, Handler: unaryHandler(MethodDetermineStatus, AllocationServiceServer.DetermineStatus)},
		{MethodName: MethodGetOpportunityReport, Handler: unaryHandler(MethodGetOpportunityReport, AllocationServiceServer.GetOpportunityReport)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "allocation/v1/allocation_service.proto",
}

// RegisterAllocationServiceServer registers srv on s.
func RegisterAllocationServiceServer(s grpc.ServiceRegistrar, srv AllocationServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// AllocationService implements AllocationServiceServer. Stateless methods
// evaluate the snapshot carried in the request; inventory-backed methods use
// the engine and fail with FailedPrecondition when none is configured.
type AllocationService struct {
	engine     *engine.Service
	thresholds core.Thresholds
	weights    core.HealthWeights
	advisor    core.Advisor
	log        logging.Logger
}

// NewAllocationService wires the service. eng may be nil, in which case the
// server runs stateless with default thresholds, weights and latency model.
func NewAllocationService(eng *engine.Service, log logging.Logger) *AllocationService {
	if log == nil {
		log = logging.Noop()
	}
	s := &AllocationService{
		engine:     eng,
		thresholds: core.DefaultThresholds(),
		weights:    core.DefaultHealthWeights(),
		advisor:    core.Advisor{Latency: core.DefaultPlanarLatency()},
		log:        log,
	}
	if eng != nil {
		s.thresholds = eng.Thresholds()
		s.weights = eng.Weights()
		s.advisor = eng.Advisor()
	}
	return s
}

func (s *AllocationService) ValidateCapacity(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ValidateCapacityRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, ToStatusError(err)
	}
	th, err := s.resolveThresholds(req.Thresholds)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return respond(core.ValidateCapacity(req.Sites, req.Satellite, th))
}

func (s *AllocationService) DetectConflicts(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req DetectConflictsRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, ToStatusError(err)
	}
	conflicts := core.DetectConflicts(req.Opportunities)
	s.requestLogger(ctx).Debug(ctx, "conflicts detected",
		logging.Int("opportunities", len(req.Opportunities)),
		logging.Int("conflicts", len(conflicts)),
	)
	return respond(conflicts)
}

func (s *AllocationService) SuggestOptimizations(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SuggestOptimizationsRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, ToStatusError(err)
	}
	if req.Opportunity.ID == "" {
		return nil, ToStatusError(fmt.Errorf("%w: opportunity.id is required", ErrInvalidRequest))
	}
	return respond(s.advisor.Suggest(req.Opportunity, req.AllSites, req.ExistingOpportunities))
}

func (s *AllocationService) ValidateOpportunity(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ValidateOpportunityRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, ToStatusError(err)
	}
	th, err := s.resolveThresholds(req.Thresholds)
	if err != nil {
		return nil, ToStatusError(err)
	}
	findings := core.ValidateOpportunity(req.Opportunity, th)
	if findings == nil {
		findings = []core.ValidationError{}
	}
	return respond(findings)
}

func (s *AllocationService) BatchValidate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req BatchValidateRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, ToStatusError(err)
	}
	if req.UseInventory {
		if s.engine == nil {
			return nil, ToStatusError(ErrInventoryUnavailable)
		}
		if req.Thresholds != nil || len(req.Opportunities) > 0 {
			return nil, ToStatusError(fmt.Errorf("%w: useInventory excludes opportunities and thresholds", ErrInvalidRequest))
		}
		result, err := s.engine.BatchValidate(ctx)
		if err != nil {
			return nil, ToStatusError(err)
		}
		return respond(result)
	}

	th, err := s.resolveThresholds(req.Thresholds)
	if err != nil {
		return nil, ToStatusError(err)
	}
	result := core.BatchValidate(req.Opportunities, th)
	s.requestLogger(ctx).Debug(ctx, "batch validated",
		logging.Int("opportunities", len(req.Opportunities)),
		logging.Int("flagged", len(result)),
	)
	return respond(result)
}

func (s *AllocationService) AnalyzeHealth(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req AnalyzeHealthRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, ToStatusError(err)
	}
	th, err := s.resolveThresholds(req.Thresholds)
	if err != nil {
		return nil, ToStatusError(err)
	}
	w := s.weights
	if req.Weights != nil {
		if err := req.Weights.Validate(); err != nil {
			return nil, ToStatusError(err)
		}
		w = *req.Weights
	}
	return respond(core.AnalyzeHealth(req.Opportunity, th, w))
}

func (s *AllocationService) DetermineStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req DetermineStatusRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, ToStatusError(err)
	}
	status := core.DetermineOpportunityStatus(req.Opportunity, req.Capacity, req.Conflicts)
	return respond(StatusResponse{Status: status})
}

func (s *AllocationService) GetOpportunityReport(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.engine == nil {
		return nil, ToStatusError(ErrInventoryUnavailable)
	}
	var req GetOpportunityReportRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, ToStatusError(err)
	}
	if req.OpportunityID == "" {
		return nil, ToStatusError(fmt.Errorf("%w: opportunityId is required", ErrInvalidRequest))
	}
	report, err := s.engine.Report(ctx, req.OpportunityID)
	if err != nil {
		s.requestLogger(ctx).Warn(ctx, "report failed", logging.OpportunityID(req.OpportunityID), logging.Err(err))
		return nil, ToStatusError(err)
	}
	return respond(report)
}

func (s *AllocationService) resolveThresholds(th *core.Thresholds) (core.Thresholds, error) {
	if th == nil {
		return s.thresholds, nil
	}
	if err := th.Validate(); err != nil {
		return core.Thresholds{}, err
	}
	return *th, nil
}

func (s *AllocationService) requestLogger(ctx context.Context) logging.Logger {
	return logging.LoggerFromContext(ctx, s.log)
}

func respond(v any) (*structpb.Struct, error) {
	out, err := encodeStruct(v, true)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

package nbi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/allocation-engine/core"
	"github.com/signalsfoundry/allocation-engine/internal/engine"
)

// Client is a typed AllocationService client.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method with req encoded as a Struct and decodes the result
// into resp. resp may be nil.
func (c *Client) Call(ctx context.Context, method string, req, resp any, opts ...grpc.CallOption) error {
	in, err := encodeStruct(req, false)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return err
	}
	return decodeResult(out, resp)
}

func (c *Client) ValidateCapacity(ctx context.Context, req ValidateCapacityRequest, opts ...grpc.CallOption) (core.CapacityResult, error) {
	var out core.CapacityResult
	err := c.Call(ctx, MethodValidateCapacity, req, &out, opts...)
	return out, err
}

func (c *Client) DetectConflicts(ctx context.Context, req DetectConflictsRequest, opts ...grpc.CallOption) ([]core.Conflict, error) {
	var out []core.Conflict
	err := c.Call(ctx, MethodDetectConflicts, req, &out, opts...)
	return out, err
}

func (c *Client) SuggestOptimizations(ctx context.Context, req SuggestOptimizationsRequest, opts ...grpc.CallOption) ([]core.Optimization, error) {
	var out []core.Optimization
	err := c.Call(ctx, MethodSuggestOptimizations, req, &out, opts...)
	return out, err
}

func (c *Client) ValidateOpportunity(ctx context.Context, req ValidateOpportunityRequest, opts ...grpc.CallOption) ([]core.ValidationError, error) {
	var out []core.ValidationError
	err := c.Call(ctx, MethodValidateOpportunity, req, &out, opts...)
	return out, err
}

func (c *Client) BatchValidate(ctx context.Context, req BatchValidateRequest, opts ...grpc.CallOption) (map[string][]core.ValidationError, error) {
	var out map[string][]core.ValidationError
	err := c.Call(ctx, MethodBatchValidate, req, &out, opts...)
	return out, err
}

func (c *Client) AnalyzeHealth(ctx context.Context, req AnalyzeHealthRequest, opts ...grpc.CallOption) (core.HealthAnalysis, error) {
	var out core.HealthAnalysis
	err := c.Call(ctx, MethodAnalyzeHealth, req, &out, opts...)
	return out, err
}

func (c *Client) DetermineStatus(ctx context.Context, req DetermineStatusRequest, opts ...grpc.CallOption) (core.Status, error) {
	var out StatusResponse
	err := c.Call(ctx, MethodDetermineStatus, req, &out, opts...)
	return out.Status, err
}

func (c *Client) GetOpportunityReport(ctx context.Context, id string, opts ...grpc.CallOption) (engine.Report, error) {
	var out engine.Report
	err := c.Call(ctx, MethodGetOpportunityReport, GetOpportunityReportRequest{OpportunityID: id}, &out, opts...)
	return out, err
}

package nbi

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/allocation-engine/core"
	"github.com/signalsfoundry/allocation-engine/kb"
)

var (
	// ErrInvalidRequest is used for payloads that cannot be decoded or are
	// missing required fields.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInventoryUnavailable is returned by inventory-backed RPCs when the
	// server was started without an inventory.
	ErrInventoryUnavailable = errors.New("inventory not loaded")
)

// ToStatusError maps engine and inventory errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, kb.ErrOpportunityNotFound),
		errors.Is(err, kb.ErrSiteNotFound),
		errors.Is(err, kb.ErrSatelliteNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, core.ErrInvalidThresholds),
		errors.Is(err, core.ErrInvalidWeights),
		errors.Is(err, kb.ErrInvalidInventory):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, kb.ErrDuplicateID):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, ErrInventoryUnavailable):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}

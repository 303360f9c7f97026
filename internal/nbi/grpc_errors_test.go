package nbi

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/allocation-engine/core"
	"github.com/signalsfoundry/allocation-engine/kb"
)

func TestToStatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		code    codes.Code
		wantNil bool
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "status passthrough", err: status.Error(codes.PermissionDenied, "denied"), code: codes.PermissionDenied},
		{name: "invalid request", err: fmt.Errorf("%w: bad payload", ErrInvalidRequest), code: codes.InvalidArgument},
		{name: "misordered thresholds", err: fmt.Errorf("%w: 50/30/70", core.ErrInvalidThresholds), code: codes.InvalidArgument},
		{name: "bad weights", err: core.ErrInvalidWeights, code: codes.InvalidArgument},
		{name: "bad inventory", err: kb.ErrInvalidInventory, code: codes.InvalidArgument},
		{name: "opportunity not found", err: fmt.Errorf("%w: %q", kb.ErrOpportunityNotFound, "x"), code: codes.NotFound},
		{name: "site not found", err: kb.ErrSiteNotFound, code: codes.NotFound},
		{name: "satellite not found", err: kb.ErrSatelliteNotFound, code: codes.NotFound},
		{name: "duplicate", err: kb.ErrDuplicateID, code: codes.AlreadyExists},
		{name: "no inventory", err: ErrInventoryUnavailable, code: codes.FailedPrecondition},
		{name: "cancelled", err: context.Canceled, code: codes.Canceled},
		{name: "deadline", err: context.DeadlineExceeded, code: codes.DeadlineExceeded},
		{name: "fallback", err: errors.New("boom"), code: codes.Internal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ToStatusError(tc.err)
			if tc.wantNil {
				if got != nil {
					t.Fatalf("ToStatusError(nil) = %v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("ToStatusError(%v) = nil, want error", tc.err)
			}
			if code := status.Code(got); code != tc.code {
				t.Fatalf("ToStatusError(%v) code = %v, want %v", tc.err, code, tc.code)
			}
		})
	}
}

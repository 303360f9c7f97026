package nbi

import (
	"errors"
	"testing"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/allocation-engine/core"
	"github.com/signalsfoundry/allocation-engine/model"
)

func TestEncodeDecodeRequest(t *testing.T) {
	req := ValidateCapacityRequest{
		Sites:      []model.Site{{ID: "s1", Capacity: 100, Allocated: 90}},
		Satellite:  model.Satellite{ID: "sat", Capacity: 50, CurrentLoad: 0},
		Thresholds: &core.Thresholds{Critical: 5, Warning: 15, Optimal: 60},
	}
	in, err := encodeStruct(req, false)
	if err != nil {
		t.Fatalf("encodeStruct: %v", err)
	}
	if _, ok := in.GetFields()["satellite"]; !ok {
		t.Fatalf("encoded struct missing satellite: %v", in)
	}

	var got ValidateCapacityRequest
	if err := decodeStruct(in, &got); err != nil {
		t.Fatalf("decodeStruct: %v", err)
	}
	if got.Sites[0].Allocated != 90 || got.Satellite.Capacity != 50 || got.Thresholds.Optimal != 60 {
		t.Fatalf("decoded = %+v", got)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	in, err := structpb.NewStruct(map[string]any{"opportunities": []any{}, "colour": "red"})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	var req DetectConflictsRequest
	if err := decodeStruct(in, &req); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("decodeStruct error = %v, want ErrInvalidRequest", err)
	}
	if err := decodeStruct(nil, &req); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("decodeStruct(nil) error = %v, want ErrInvalidRequest", err)
	}
}

func TestDecodeRejectsWrongTypes(t *testing.T) {
	in, err := structpb.NewStruct(map[string]any{"opportunityId": 42.0})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	var req GetOpportunityReportRequest
	if err := decodeStruct(in, &req); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("decodeStruct error = %v, want ErrInvalidRequest", err)
	}
}

func TestResultEnvelope(t *testing.T) {
	conflicts := []core.Conflict{{OpportunityID: "a", ConflictsWith: "b", Reason: "Site overlap: 1 shared sites", Severity: core.ConflictMedium}}
	out, err := encodeStruct(conflicts, true)
	if err != nil {
		t.Fatalf("encodeStruct: %v", err)
	}
	if out.GetFields()[resultKey].GetListValue() == nil {
		t.Fatalf("result is not a list: %v", out)
	}

	var got []core.Conflict
	if err := decodeResult(out, &got); err != nil {
		t.Fatalf("decodeResult: %v", err)
	}
	if len(got) != 1 || got[0] != conflicts[0] {
		t.Fatalf("decoded = %+v", got)
	}
}

package nbi

import (
	"bytes"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// resultKey wraps every response payload so non-object results (lists,
// maps keyed by ID) still travel as a google.protobuf.Struct.
const resultKey = "result"

// decodeStruct converts a Struct payload into a domain request. Unknown
// fields are rejected.
func decodeStruct(in *structpb.Struct, out any) error {
	if in == nil {
		return fmt.Errorf("%w: empty payload", ErrInvalidRequest)
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// encodeStruct converts v into a Struct, either as-is (wrap false, v must
// marshal to a JSON object) or under the "result" key.
func encodeStruct(v any, wrap bool) (*structpb.Struct, error) {
	if wrap {
		v = map[string]any{resultKey: v}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return out, nil
}

// decodeResult extracts the "result" member of a response into out.
func decodeResult(in *structpb.Struct, out any) error {
	if in == nil {
		return fmt.Errorf("decode response: empty payload")
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

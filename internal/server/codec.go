package server

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/labreports/internal/common"
)

// ToStruct converts any JSON-serializable value into a Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return out, nil
}

// FromStruct decodes a Struct into v through its JSON form.
func FromStruct(s *structpb.Struct, v any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

func str(in *structpb.Struct, key string) string {
	v, ok := in.GetFields()[key]
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.GetStringValue())
}

// intField reads a whole number, falling back to def when absent.
func intField(in *structpb.Struct, key string, def int) (int, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		return def, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		if k.NumberValue != math.Trunc(k.NumberValue) {
			return 0, common.InvalidArgumentErrorf("%s must be an integer", key)
		}
		return int(k.NumberValue), nil
	case *structpb.Value_NullValue:
		return def, nil
	}
	return 0, common.InvalidArgumentErrorf("%s must be a number", key)
}

func uuidField(in *structpb.Struct, key string) (uuid.UUID, error) {
	raw := str(in, key)
	if raw == "" {
		return uuid.Nil, common.InvalidArgumentErrorf("%s is required", key)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, common.InvalidArgumentErrorf("%s must be a UUID", key)
	}
	if id == uuid.Nil {
		return uuid.Nil, common.InvalidArgumentErrorf("%s is required", key)
	}
	return id, nil
}

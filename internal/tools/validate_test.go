package tools

import "testing"

func TestValidateArgsRequired(t *testing.T) {
	schema := Schema{"room_name": {Type: ParamString, Required: true}}
	if err := validateArgs(schema, map[string]any{}); err == nil {
		t.Fatalf("expected error for missing required argument")
	}
	if err := validateArgs(schema, map[string]any{"room_name": "Kitchen"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateArgsEnum(t *testing.T) {
	schema := Schema{"action": {Type: ParamString, Required: true, Enum: []string{"stop", "pause"}}}
	if err := validateArgs(schema, map[string]any{"action": "explode"}); err == nil {
		t.Fatalf("expected error for value outside enum")
	}
	if err := validateArgs(schema, map[string]any{"action": "stop"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateArgsPattern(t *testing.T) {
	schema := Schema{"username": {Type: ParamString, Required: true, Pattern: `^[a-z]+$`}}
	if err := validateArgs(schema, map[string]any{"username": "Bad Name!"}); err == nil {
		t.Fatalf("expected error for pattern mismatch")
	}
	if err := validateArgs(schema, map[string]any{"username": "goodname"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateArgsType(t *testing.T) {
	schema := Schema{"force": {Type: ParamBool, Required: false}}
	if err := validateArgs(schema, map[string]any{"force": "yes"}); err == nil {
		t.Fatalf("expected error for wrong type")
	}
	if err := validateArgs(schema, map[string]any{"force": true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateArgsRejectsUnknown(t *testing.T) {
	schema := Schema{"room_name": {Type: ParamString, Required: true}}
	err := validateArgs(schema, map[string]any{"room_name": "Kitchen", "extra": "nope"})
	if err == nil {
		t.Fatalf("expected error for unknown argument")
	}
}

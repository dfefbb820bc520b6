package mathtool_test

import (
	"context"
	"testing"

	"turnengine/tool"
	"turnengine/tool/mathtool"
)

func TestAdd(t *testing.T) {
	parts, err := mathtool.Add{}.Invoke(context.Background(), map[string]any{"a": 3.0, "b": 4.0}, tool.SessionContext{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(parts) != 1 || parts[0].Text != "7" {
		t.Fatalf("parts = %+v, want [{text 7}]", parts)
	}
}

func TestAddRejectsNonNumbers(t *testing.T) {
	if _, err := (mathtool.Add{}).Invoke(context.Background(), map[string]any{"a": "x", "b": 4.0}, tool.SessionContext{}); err == nil {
		t.Fatal("expected error for non-numeric a")
	}
}

func TestDivide(t *testing.T) {
	parts, err := mathtool.Divide{}.Invoke(context.Background(), map[string]any{"numerator": 9.0, "denominator": 3.0}, tool.SessionContext{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(parts) != 1 || parts[0].Text != "3" {
		t.Fatalf("parts = %+v, want [{text 3}]", parts)
	}
}

func TestDivideByZero(t *testing.T) {
	if _, err := (mathtool.Divide{}).Invoke(context.Background(), map[string]any{"numerator": 1.0, "denominator": 0.0}, tool.SessionContext{}); err == nil {
		t.Fatal("expected error for division by zero")
	}
}

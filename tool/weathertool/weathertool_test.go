package weathertool_test

import (
	"context"
	"testing"

	"turnengine/tool"
	"turnengine/tool/weathertool"
)

func TestWeatherKnownCity(t *testing.T) {
	w := weathertool.Weather{Data: map[string]string{"london": "overcast, 16C"}}
	parts, err := w.Invoke(context.Background(), map[string]any{"city": "london"}, tool.SessionContext{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(parts) != 1 || parts[0].Text != "london: overcast, 16C" {
		t.Fatalf("parts = %+v", parts)
	}
}

func TestWeatherUnknownCity(t *testing.T) {
	w := weathertool.Weather{Data: map[string]string{"london": "overcast, 16C"}}
	if _, err := w.Invoke(context.Background(), map[string]any{"city": "atlantis"}, tool.SessionContext{}); err == nil {
		t.Fatal("expected error for unknown city")
	}
}

package timetool_test

import (
	"context"
	"testing"

	"turnengine/tool"
	"turnengine/tool/timetool"
)

type fixedClock struct{ at string }

func (c fixedClock) NowRFC3339() string { return c.at }

func TestNowReturnsClockValue(t *testing.T) {
	now := timetool.Now{Clock: fixedClock{at: "2026-07-31T00:00:00Z"}}
	parts, err := now.Invoke(context.Background(), nil, tool.SessionContext{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(parts) != 1 || parts[0].Text != "2026-07-31T00:00:00Z" {
		t.Fatalf("parts = %+v, want [{text 2026-07-31T00:00:00Z}]", parts)
	}
}

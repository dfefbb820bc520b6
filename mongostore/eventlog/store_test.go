package eventlog_test

import (
	"context"
	"testing"

	mongostore "turnengine/mongostore/eventlog"
	"turnengine/mongostore/mongotest"

	"turnengine/eventlog"
)

func TestAppendAndRange(t *testing.T) {
	db := mongotest.Database(t)
	ctx := context.Background()

	store, err := mongostore.New(ctx, mongostore.Options{Client: db.Client(), Database: db.Name()}, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := store.Append(ctx, "sess-1", eventlog.TypeMessageUser, map[string]any{"i": i}, eventlog.Context{TurnID: "turn-1"}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	events, err := store.Range(ctx, "sess-1", 0)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	for i, e := range events {
		if e.Sequence != int64(i+1) {
			t.Fatalf("events[%d].Sequence = %d, want %d", i, e.Sequence, i+1)
		}
	}

	forTurn, err := store.ForTurn(ctx, "sess-1", "turn-1")
	if err != nil {
		t.Fatalf("for turn: %v", err)
	}
	if len(forTurn) != 3 {
		t.Fatalf("len(forTurn) = %d, want 3", len(forTurn))
	}
}

func TestRangeIsPerSession(t *testing.T) {
	db := mongotest.Database(t)
	ctx := context.Background()

	store, err := mongostore.New(ctx, mongostore.Options{Client: db.Client(), Database: db.Name()}, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if _, err := store.Append(ctx, "sess-a", eventlog.TypeMessageUser, nil, eventlog.Context{}); err != nil {
		t.Fatalf("append a: %v", err)
	}
	if _, err := store.Append(ctx, "sess-b", eventlog.TypeMessageUser, nil, eventlog.Context{}); err != nil {
		t.Fatalf("append b: %v", err)
	}

	eventsA, err := store.Range(ctx, "sess-a", 0)
	if err != nil {
		t.Fatalf("range a: %v", err)
	}
	if len(eventsA) != 1 || eventsA[0].Sequence != 1 {
		t.Fatalf("sess-a sequence should start at 1 independently, got %+v", eventsA)
	}

	eventsB, err := store.Range(ctx, "sess-b", 0)
	if err != nil {
		t.Fatalf("range b: %v", err)
	}
	if len(eventsB) != 1 || eventsB[0].Sequence != 1 {
		t.Fatalf("sess-b sequence should start at 1 independently, got %+v", eventsB)
	}
}

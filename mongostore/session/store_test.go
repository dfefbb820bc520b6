package session_test

import (
	"context"
	"testing"

	mongoeventlog "turnengine/mongostore/eventlog"
	"turnengine/mongostore/mongotest"
	mongosession "turnengine/mongostore/session"

	"turnengine/eventlog"
	"turnengine/session"
)

func TestBeginTurnRejectsWhileActive(t *testing.T) {
	db := mongotest.Database(t)
	ctx := context.Background()

	bcast := eventlog.NewBroadcaster(16)
	events, err := mongoeventlog.New(ctx, mongoeventlog.Options{Client: db.Client(), Database: db.Name()}, bcast)
	if err != nil {
		t.Fatalf("new eventlog: %v", err)
	}
	store, err := mongosession.New(ctx, mongosession.Options{Client: db.Client(), Database: db.Name()}, events, bcast)
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}

	agent, err := store.CreateAgent(ctx, session.Agent{Name: "calc", DefaultModel: "default"})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	sess, err := store.CreateSession(ctx, session.Session{AgentID: agent.ID})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	_, turn, err := store.BeginTurn(ctx, sess.ID, []session.ContentPart{{Kind: session.PartText, Text: "hi"}})
	if err != nil {
		t.Fatalf("begin turn: %v", err)
	}
	if turn.Status != session.TurnRunning {
		t.Fatalf("turn.Status = %v, want running", turn.Status)
	}

	if _, _, err := store.BeginTurn(ctx, sess.ID, []session.ContentPart{{Kind: session.PartText, Text: "again"}}); err != session.ErrSessionBusy {
		t.Fatalf("second begin turn err = %v, want ErrSessionBusy", err)
	}

	if _, err := store.AppendAgentMessage(ctx, turn.ID, []session.ContentPart{{Kind: session.PartText, Text: "answer"}}); err != nil {
		t.Fatalf("append agent message: %v", err)
	}

	if err := store.FinishTurn(ctx, turn.ID, session.TurnCompleted, ""); err != nil {
		t.Fatalf("finish turn: %v", err)
	}

	got, err := store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Status != session.SessionStatusIdle {
		t.Fatalf("got.Status = %v, want idle", got.Status)
	}

	messages, err := store.ListMessages(ctx, sess.ID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(messages))
	}

	// A new turn can begin now that the session is idle again.
	if _, _, err := store.BeginTurn(ctx, sess.ID, []session.ContentPart{{Kind: session.PartText, Text: "once more"}}); err != nil {
		t.Fatalf("begin turn after idle: %v", err)
	}
}

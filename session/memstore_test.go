package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnengine/eventlog"
)

func newTestStore() Store {
	bcast := eventlog.NewBroadcaster(16)
	events := eventlog.NewMemStore(bcast)
	return NewMemStore(events, bcast)
}

func TestBeginTurnPersistsMessageAndStartsTurn(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, Session{AgentID: "agent-1"})
	require.NoError(t, err)

	msg, turn, err := s.BeginTurn(ctx, sess.ID, []ContentPart{{Kind: PartText, Text: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, RoleUser, msg.Role)
	assert.Equal(t, TurnRunning, turn.Status)

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionStatusActive, got.Status)

	evs, err := s.Events().Range(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, evs, 3)
	assert.Equal(t, eventlog.TypeMessageUser, evs[0].Type)
	assert.Equal(t, eventlog.TypeSessionActivated, evs[1].Type)
	assert.Equal(t, eventlog.TypeTurnStarted, evs[2].Type)
}

func TestBeginTurnRejectsWhenActive(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, Session{AgentID: "agent-1"})
	require.NoError(t, err)
	_, _, err = s.BeginTurn(ctx, sess.ID, []ContentPart{{Kind: PartText, Text: "first"}})
	require.NoError(t, err)

	_, _, err = s.BeginTurn(ctx, sess.ID, []ContentPart{{Kind: PartText, Text: "second"}})
	assert.ErrorIs(t, err, ErrSessionBusy)

	msgs, err := s.ListMessages(ctx, sess.ID, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "rejected message must not be persisted")
}

func TestFinishTurnCompletedReturnsSessionToIdle(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, Session{AgentID: "agent-1"})
	require.NoError(t, err)
	_, turn, err := s.BeginTurn(ctx, sess.ID, []ContentPart{{Kind: PartText, Text: "hi"}})
	require.NoError(t, err)

	require.NoError(t, s.FinishTurn(ctx, turn.ID, TurnCompleted, ""))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionStatusIdle, got.Status)

	updatedTurn, err := s.GetTurn(ctx, turn.ID)
	require.NoError(t, err)
	assert.Equal(t, TurnCompleted, updatedTurn.Status)

	_, _, err = s.BeginTurn(ctx, sess.ID, []ContentPart{{Kind: PartText, Text: "next"}})
	assert.NoError(t, err)
}

func TestSubscribeReceivesLiveEvents(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, Session{AgentID: "agent-1"})
	require.NoError(t, err)

	ch, unsub := s.Subscribe(sess.ID)
	defer unsub()

	_, _, err = s.BeginTurn(ctx, sess.ID, []ContentPart{{Kind: PartText, Text: "hi"}})
	require.NoError(t, err)

	evt := <-ch
	assert.Equal(t, eventlog.TypeMessageUser, evt.Type)
}

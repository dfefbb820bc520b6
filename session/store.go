package session

import (
	"context"
	"errors"
	"time"

	"turnengine/eventlog"
)

var (
	ErrAgentNotFound   = errors.New("session: agent not found")
	ErrSessionNotFound = errors.New("session: session not found")
	ErrTurnNotFound    = errors.New("session: turn not found")
	// ErrSessionBusy is returned by BeginTurn when the session already has an
	// active turn. Per spec.md §4.8/§6 the chosen policy is reject, not
	// queue: the caller's user message is NOT persisted — BeginTurn checks
	// session status before any event-log append happens.
	ErrSessionBusy = errors.New("session: busy")
)

// TurnStatus mirrors workflow.State's values for the session-facing read
// model. Kept as a separate type (rather than importing package workflow)
// since a Turn row here is a materialized view the engine updates, not the
// authoritative record — that is workflow.Machine.Fold's replayed event log.
type TurnStatus string

const (
	TurnPending   TurnStatus = "pending"
	TurnRunning   TurnStatus = "running"
	TurnCompleted TurnStatus = "completed"
	TurnFailed    TurnStatus = "failed"
	TurnCancelled TurnStatus = "cancelled"
)

// Turn is one reason/act loop triggered by a user message (spec.md §3).
type Turn struct {
	ID             string
	SessionID      string
	InputMessageID string
	Iteration      int
	Status         TurnStatus
	StartedAt      time.Time
	FinishedAt     time.Time
	ErrorCode      string
}

// Store is the Session Store contract (C8): Sessions, Agents, Messages, and
// the sequence/broadcaster plumbing backing them (spec.md §4.8).
type Store interface {
	CreateAgent(ctx context.Context, agent Agent) (Agent, error)
	GetAgent(ctx context.Context, agentID string) (Agent, error)

	CreateSession(ctx context.Context, sess Session) (Session, error)
	GetSession(ctx context.Context, sessionID string) (Session, error)
	SetSessionStatus(ctx context.Context, sessionID string, status SessionStatus) error

	// BeginTurn validates the session is not already active, then atomically
	// (from the caller's perspective) persists the user message, starts a
	// Turn, marks the session active, and appends message.user,
	// session.activated and turn.started to the event log. Returns ErrSessionBusy without any side effect if a
	// turn is already active (spec.md §4.8's reject policy).
	BeginTurn(ctx context.Context, sessionID string, content []ContentPart) (Message, Turn, error)

	AppendAgentMessage(ctx context.Context, turnID string, content []ContentPart) (Message, error)

	GetTurn(ctx context.Context, turnID string) (Turn, error)
	// FinishTurn transitions a Turn to a terminal status and, on completion,
	// returns the session to idle (spec.md §4.6's engine-driven transitions).
	FinishTurn(ctx context.Context, turnID string, status TurnStatus, errorCode string) error
	SetTurnIteration(ctx context.Context, turnID string, iteration int) error

	ListMessages(ctx context.Context, sessionID string, sinceSequence int64) ([]Message, error)

	// Events exposes the underlying eventlog.Store so callers (turn.Controller,
	// the engine) can range/replay without a second store reference.
	Events() eventlog.Store
	// Subscribe exposes the session's live SSE channel (spec.md §4.8's
	// bounded, slow-consumer-drop broadcaster).
	Subscribe(sessionID string) (<-chan eventlog.Event, func())
}

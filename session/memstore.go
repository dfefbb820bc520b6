package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"turnengine/eventlog"
)

// memStore is an in-process Store. Grounded on the teacher's
// runtime/agent/session.Store in-memory fixture shape: one mutex-guarded map
// per entity kind, with the eventlog.Store/Broadcaster pair injected rather
// than owned, so engine, mongostore/session, and this package can all point
// at the same underlying log.
type memStore struct {
	mu       sync.Mutex
	agents   map[string]*Agent
	sessions map[string]*Session
	turns    map[string]*Turn
	messages map[string][]*Message // sessionID -> ordered messages

	events eventlog.Store
	bcast  *eventlog.Broadcaster
}

// NewMemStore returns an in-process session.Store backed by the given
// event log and broadcaster.
func NewMemStore(events eventlog.Store, bcast *eventlog.Broadcaster) Store {
	return &memStore{
		agents:   make(map[string]*Agent),
		sessions: make(map[string]*Session),
		turns:    make(map[string]*Turn),
		messages: make(map[string][]*Message),
		events:   events,
		bcast:    bcast,
	}
}

func (s *memStore) CreateAgent(_ context.Context, agent Agent) (Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	agent.CreatedAt, agent.UpdatedAt = now, now
	if agent.Status == "" {
		agent.Status = AgentStatusActive
	}
	s.agents[agent.ID] = &agent
	return agent, nil
}

func (s *memStore) GetAgent(_ context.Context, agentID string) (Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return Agent{}, ErrAgentNotFound
	}
	return *a, nil
}

func (s *memStore) CreateSession(_ context.Context, sess Session) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	sess.CreatedAt = time.Now().UTC()
	sess.Status = SessionStatusStarted
	s.sessions[sess.ID] = &sess
	return sess, nil
}

func (s *memStore) GetSession(_ context.Context, sessionID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return *sess, nil
}

func (s *memStore) SetSessionStatus(_ context.Context, sessionID string, status SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Status = status
	return nil
}

func (s *memStore) BeginTurn(ctx context.Context, sessionID string, content []ContentPart) (Message, Turn, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return Message{}, Turn{}, ErrSessionNotFound
	}
	if sess.Status == SessionStatusActive {
		s.mu.Unlock()
		return Message{}, Turn{}, ErrSessionBusy
	}
	sess.Status = SessionStatusActive
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}
	s.mu.Unlock()

	msgEvt, err := s.events.Append(ctx, sessionID, eventlog.TypeMessageUser, contentPayload(content), eventlog.Context{})
	if err != nil {
		return Message{}, Turn{}, err
	}
	msg := Message{
		ID:        msgEvt.ID,
		SessionID: sessionID,
		Sequence:  msgEvt.Sequence,
		Role:      RoleUser,
		Content:   content,
		Timestamp: msgEvt.Timestamp,
	}

	turn := Turn{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		InputMessageID: msg.ID,
		Iteration:      0,
		Status:         TurnRunning,
		StartedAt:      time.Now().UTC(),
	}

	s.mu.Lock()
	s.messages[sessionID] = append(s.messages[sessionID], &msg)
	s.turns[turn.ID] = &turn
	s.mu.Unlock()

	s.events.Append(ctx, sessionID, eventlog.TypeSessionActivated, nil, eventlog.Context{TurnID: turn.ID})
	s.events.Append(ctx, sessionID, eventlog.TypeTurnStarted, map[string]any{"turn_id": turn.ID}, eventlog.Context{TurnID: turn.ID})

	return msg, turn, nil
}

func (s *memStore) AppendAgentMessage(ctx context.Context, turnID string, content []ContentPart) (Message, error) {
	s.mu.Lock()
	turn, ok := s.turns[turnID]
	if !ok {
		s.mu.Unlock()
		return Message{}, ErrTurnNotFound
	}
	sessionID := turn.SessionID
	s.mu.Unlock()

	evt, err := s.events.Append(ctx, sessionID, eventlog.TypeMessageAgent, contentPayload(content), eventlog.Context{TurnID: turnID})
	if err != nil {
		return Message{}, err
	}
	msg := Message{
		ID:        evt.ID,
		SessionID: sessionID,
		Sequence:  evt.Sequence,
		Role:      RoleAgent,
		Content:   content,
		Timestamp: evt.Timestamp,
	}
	s.mu.Lock()
	s.messages[sessionID] = append(s.messages[sessionID], &msg)
	s.mu.Unlock()
	return msg, nil
}

func (s *memStore) GetTurn(_ context.Context, turnID string) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.turns[turnID]
	if !ok {
		return Turn{}, ErrTurnNotFound
	}
	return *t, nil
}

func (s *memStore) FinishTurn(ctx context.Context, turnID string, status TurnStatus, errorCode string) error {
	s.mu.Lock()
	t, ok := s.turns[turnID]
	if !ok {
		s.mu.Unlock()
		return ErrTurnNotFound
	}
	t.Status = status
	t.ErrorCode = errorCode
	t.FinishedAt = time.Now().UTC()
	sessionID, startedAt := t.SessionID, t.StartedAt
	s.mu.Unlock()

	if status == TurnCompleted {
		iterations, err := countIterations(ctx, s.events, sessionID, turnID)
		if err != nil {
			return err
		}
		if err := s.SetTurnIteration(ctx, turnID, iterations); err != nil {
			return err
		}
		durationMS := t.FinishedAt.Sub(startedAt).Milliseconds()
		if _, err := s.events.Append(ctx, sessionID, eventlog.TypeTurnCompleted,
			map[string]any{"turn_id": turnID, "iterations": iterations, "duration_ms": durationMS}, eventlog.Context{TurnID: turnID}); err != nil {
			return err
		}
		s.SetSessionStatus(ctx, sessionID, SessionStatusIdle)
		if _, err := s.events.Append(ctx, sessionID, eventlog.TypeSessionIdled,
			map[string]any{"turn_id": turnID, "iterations": iterations}, eventlog.Context{TurnID: turnID}); err != nil {
			return err
		}
		return nil
	}
	s.SetSessionStatus(ctx, sessionID, SessionStatusIdle)
	return nil
}

// countIterations derives a finished turn's iteration count from its own
// event log (one reason.started event per reason/act cycle), mirroring the
// count workflow.Machine.Fold tracks during live replay.
func countIterations(ctx context.Context, events eventlog.Store, sessionID, turnID string) (int, error) {
	evs, err := events.ForTurn(ctx, sessionID, turnID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range evs {
		if e.Type == eventlog.TypeReasonStarted {
			n++
		}
	}
	return n, nil
}

func (s *memStore) SetTurnIteration(_ context.Context, turnID string, iteration int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.turns[turnID]
	if !ok {
		return ErrTurnNotFound
	}
	t.Iteration = iteration
	return nil
}

func (s *memStore) ListMessages(_ context.Context, sessionID string, sinceSequence int64) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.messages[sessionID]
	out := make([]Message, 0, len(all))
	for _, m := range all {
		if m.Sequence > sinceSequence {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *memStore) Events() eventlog.Store { return s.events }

func (s *memStore) Subscribe(sessionID string) (<-chan eventlog.Event, func()) {
	return s.bcast.Subscribe(sessionID)
}

func contentPayload(content []ContentPart) map[string]any {
	parts := make([]any, 0, len(content))
	for _, p := range content {
		part := map[string]any{"kind": string(p.Kind)}
		switch p.Kind {
		case PartText:
			part["text"] = p.Text
		case PartToolCall:
			part["id"] = p.ToolCallID
			part["name"] = p.ToolName
			part["args"] = p.ToolArgs
		case PartToolResult:
			part["tool_call_id"] = p.ToolResultForCallID
			if p.ToolResultError != "" {
				part["error"] = p.ToolResultError
			} else {
				part["result"] = p.ToolResult
			}
		case PartImage:
			part["url"] = p.ImageURL
			part["mime"] = p.ImageMIME
		}
		parts = append(parts, part)
	}
	return map[string]any{"content": parts}
}

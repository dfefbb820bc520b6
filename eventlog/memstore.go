package eventlog

import (
	"context"
	"sync"
	"time"
)

// memStore is an in-process Store implementation. It is the backend used by
// the in-process engine (engine/inmem) and by tests: deterministic, no
// network I/O, one mutex per session so appends to different sessions never
// serialize on each other (spec.md §5).
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionLog
	bcast    *Broadcaster
}

type sessionLog struct {
	mu     sync.Mutex
	events []Event
}

// NewMemStore returns an in-memory Store. When bcast is non-nil, every
// successful append is published to it after the in-memory commit, mirroring
// the "persist then publish" ordering required by spec.md §4.1.
func NewMemStore(bcast *Broadcaster) Store {
	return &memStore{sessions: make(map[string]*sessionLog), bcast: bcast}
}

func (s *memStore) logFor(sessionID string) *sessionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.sessions[sessionID]
	if !ok {
		l = &sessionLog{}
		s.sessions[sessionID] = l
	}
	return l
}

func (s *memStore) Append(_ context.Context, sessionID string, typ Type, payload map[string]any, evtCtx Context) (Event, error) {
	l := s.logFor(sessionID)
	l.mu.Lock()
	seq := int64(len(l.events)) + 1
	evt := Event{
		ID:        NewEventID(),
		SessionID: sessionID,
		Sequence:  seq,
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Ctx:       evtCtx,
	}
	l.events = append(l.events, evt)
	l.mu.Unlock()

	if s.bcast != nil {
		s.bcast.Publish(sessionID, evt)
	}
	return evt, nil
}

func (s *memStore) Range(_ context.Context, sessionID string, sinceSequence int64) ([]Event, error) {
	l := s.logFor(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, 0, len(l.events))
	for _, e := range l.events {
		if e.Sequence > sinceSequence {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) ForTurn(_ context.Context, sessionID, turnID string) ([]Event, error) {
	l := s.logFor(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, 0)
	for _, e := range l.events {
		if e.Ctx.TurnID == turnID {
			out = append(out, e)
		}
	}
	return out, nil
}

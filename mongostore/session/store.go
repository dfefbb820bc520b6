// Package session provides a MongoDB-backed session.Store (C8), durable
// across process restarts. Grounded on the teacher's
// features/session/mongo.Store + clients/mongo.Client pair: Agents/Sessions/
// Turns/Messages each get their own collection, the event log itself is
// injected rather than owned (same split memStore uses) so this Store and
// mongostore/eventlog.Store can share one underlying log.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/google/uuid"

	"turnengine/eventlog"
	"turnengine/session"
)

const (
	defaultAgentsCollection   = "agents"
	defaultSessionsCollection = "sessions"
	defaultTurnsCollection    = "turns"
	defaultMessagesCollection = "messages"
	defaultOpTimeout          = 5 * time.Second
)

// Options configures the Mongo-backed session.Store.
type Options struct {
	Client             *mongo.Client
	Database           string
	AgentsCollection   string
	SessionsCollection string
	TurnsCollection    string
	MessagesCollection string
	Timeout            time.Duration
}

// Store implements session.Store against MongoDB collections, delegating
// event persistence to an injected eventlog.Store.
type Store struct {
	agents   *mongo.Collection
	sessions *mongo.Collection
	turns    *mongo.Collection
	messages *mongo.Collection

	events  eventlog.Store
	bcast   *eventlog.Broadcaster
	timeout time.Duration
}

type capabilityDoc struct {
	Name           string   `bson:"name"`
	PromptAddition string   `bson:"prompt_addition,omitempty"`
	ToolNames      []string `bson:"tool_names,omitempty"`
}

type agentDoc struct {
	ID           string          `bson:"_id"`
	Name         string          `bson:"name"`
	SystemPrompt string          `bson:"system_prompt"`
	DefaultModel string          `bson:"default_model"`
	Capabilities []capabilityDoc `bson:"capabilities,omitempty"`
	Status       string          `bson:"status"`
	CreatedAt    time.Time       `bson:"created_at"`
	UpdatedAt    time.Time       `bson:"updated_at"`
}

type sessionDoc struct {
	ID            string    `bson:"_id"`
	AgentID       string    `bson:"agent_id"`
	Title         string    `bson:"title,omitempty"`
	ModelOverride string    `bson:"model_override,omitempty"`
	Status        string    `bson:"status"`
	CreatedAt     time.Time `bson:"created_at"`
	StartedAt     time.Time `bson:"started_at,omitempty"`
	FinishedAt    time.Time `bson:"finished_at,omitempty"`
}

type turnDoc struct {
	ID             string    `bson:"_id"`
	SessionID      string    `bson:"session_id"`
	InputMessageID string    `bson:"input_message_id"`
	Iteration      int       `bson:"iteration"`
	Status         string    `bson:"status"`
	StartedAt      time.Time `bson:"started_at"`
	FinishedAt     time.Time `bson:"finished_at,omitempty"`
	ErrorCode      string    `bson:"error_code,omitempty"`
}

type contentPartDoc struct {
	Kind                string         `bson:"kind"`
	Text                string         `bson:"text,omitempty"`
	ToolCallID          string         `bson:"tool_call_id,omitempty"`
	ToolName            string         `bson:"tool_name,omitempty"`
	ToolArgs            bson.M         `bson:"tool_args,omitempty"`
	ToolResultForCallID string         `bson:"tool_result_for_call_id,omitempty"`
	ToolResult          bson.M         `bson:"tool_result,omitempty"`
	ToolResultError     string         `bson:"tool_result_error,omitempty"`
	ImageURL            string         `bson:"image_url,omitempty"`
	ImageData           []byte         `bson:"image_data,omitempty"`
	ImageMIME           string         `bson:"image_mime,omitempty"`
}

type messageDoc struct {
	ID         string           `bson:"_id"`
	SessionID  string           `bson:"session_id"`
	Sequence   int64            `bson:"sequence"`
	Role       string           `bson:"role"`
	Content    []contentPartDoc `bson:"content"`
	ToolCallID string           `bson:"tool_call_id,omitempty"`
	Timestamp  time.Time        `bson:"timestamp"`
}

// New constructs a Store, ensuring the messages-by-session-and-sequence
// index exists. events persists the event log this Store appends to;
// bcast, if non-nil, backs Subscribe — both are injected so this Store and
// a mongostore/eventlog.Store share the same underlying log rather than
// each owning a redundant copy.
func New(ctx context.Context, opts Options, events eventlog.Store, bcast *eventlog.Broadcaster) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongostore/session: Client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongostore/session: Database is required")
	}
	if events == nil {
		return nil, errors.New("mongostore/session: events is required")
	}
	agentsColl := opts.AgentsCollection
	if agentsColl == "" {
		agentsColl = defaultAgentsCollection
	}
	sessionsColl := opts.SessionsCollection
	if sessionsColl == "" {
		sessionsColl = defaultSessionsCollection
	}
	turnsColl := opts.TurnsCollection
	if turnsColl == "" {
		turnsColl = defaultTurnsCollection
	}
	messagesColl := opts.MessagesCollection
	if messagesColl == "" {
		messagesColl = defaultMessagesCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	db := opts.Client.Database(opts.Database)
	s := &Store{
		agents:   db.Collection(agentsColl),
		sessions: db.Collection(sessionsColl),
		turns:    db.Collection(turnsColl),
		messages: db.Collection(messagesColl),
		events:   events,
		bcast:    bcast,
		timeout:  timeout,
	}

	idxCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := s.messages.Indexes().CreateOne(idxCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "sequence", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("mongostore/session: ensure indexes: %w", err)
	}
	return s, nil
}

func (s *Store) CreateAgent(ctx context.Context, agent session.Agent) (session.Agent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	agent.CreatedAt, agent.UpdatedAt = now, now
	if agent.Status == "" {
		agent.Status = session.AgentStatusActive
	}
	doc := agentDoc{
		ID:           agent.ID,
		Name:         agent.Name,
		SystemPrompt: agent.SystemPrompt,
		DefaultModel: agent.DefaultModel,
		Capabilities: toCapabilityDocs(agent.Capabilities),
		Status:       string(agent.Status),
		CreatedAt:    agent.CreatedAt,
		UpdatedAt:    agent.UpdatedAt,
	}
	if _, err := s.agents.InsertOne(ctx, doc); err != nil {
		return session.Agent{}, fmt.Errorf("mongostore/session: insert agent: %w", err)
	}
	return agent, nil
}

func (s *Store) GetAgent(ctx context.Context, agentID string) (session.Agent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc agentDoc
	if err := s.agents.FindOne(ctx, bson.M{"_id": agentID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return session.Agent{}, session.ErrAgentNotFound
		}
		return session.Agent{}, fmt.Errorf("mongostore/session: get agent: %w", err)
	}
	return fromAgentDoc(doc), nil
}

func (s *Store) CreateSession(ctx context.Context, sess session.Session) (session.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	sess.CreatedAt = time.Now().UTC()
	sess.Status = session.SessionStatusStarted
	doc := sessionDoc{
		ID:            sess.ID,
		AgentID:       sess.AgentID,
		Title:         sess.Title,
		ModelOverride: sess.ModelOverride,
		Status:        string(sess.Status),
		CreatedAt:     sess.CreatedAt,
	}
	if _, err := s.sessions.InsertOne(ctx, doc); err != nil {
		return session.Session{}, fmt.Errorf("mongostore/session: insert session: %w", err)
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (session.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc sessionDoc
	if err := s.sessions.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return session.Session{}, session.ErrSessionNotFound
		}
		return session.Session{}, fmt.Errorf("mongostore/session: get session: %w", err)
	}
	return fromSessionDoc(doc), nil
}

func (s *Store) SetSessionStatus(ctx context.Context, sessionID string, status session.SessionStatus) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.sessions.UpdateOne(ctx, bson.M{"_id": sessionID}, bson.M{"$set": bson.M{"status": string(status)}})
	if err != nil {
		return fmt.Errorf("mongostore/session: set session status: %w", err)
	}
	if res.MatchedCount == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

// BeginTurn atomically claims the session (status != active -> active) via
// a single FindOneAndUpdate before any event-log append happens, so a
// racing caller sees ErrSessionBusy without a partially-applied turn
// (spec.md §4.8's reject policy, mirrored from memStore.BeginTurn).
func (s *Store) BeginTurn(ctx context.Context, sessionID string, content []session.ContentPart) (session.Message, session.Turn, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var before sessionDoc
	err := s.sessions.FindOneAndUpdate(
		opCtx,
		bson.M{"_id": sessionID, "status": bson.M{"$ne": string(session.SessionStatusActive)}},
		bson.M{"$set": bson.M{"status": string(session.SessionStatusActive)}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if _, getErr := s.GetSession(ctx, sessionID); getErr != nil {
				return session.Message{}, session.Turn{}, session.ErrSessionNotFound
			}
			return session.Message{}, session.Turn{}, session.ErrSessionBusy
		}
		return session.Message{}, session.Turn{}, fmt.Errorf("mongostore/session: claim session: %w", err)
	}

	if before.StartedAt.IsZero() {
		now := time.Now().UTC()
		if _, err := s.sessions.UpdateOne(opCtx, bson.M{"_id": sessionID}, bson.M{"$set": bson.M{"started_at": now}}); err != nil {
			return session.Message{}, session.Turn{}, fmt.Errorf("mongostore/session: set started_at: %w", err)
		}
	}

	msgEvt, err := s.events.Append(ctx, sessionID, eventlog.TypeMessageUser, contentPayload(content), eventlog.Context{})
	if err != nil {
		return session.Message{}, session.Turn{}, err
	}
	msg := session.Message{
		ID:        msgEvt.ID,
		SessionID: sessionID,
		Sequence:  msgEvt.Sequence,
		Role:      session.RoleUser,
		Content:   content,
		Timestamp: msgEvt.Timestamp,
	}
	if err := s.insertMessage(ctx, msg); err != nil {
		return session.Message{}, session.Turn{}, err
	}

	turn := session.Turn{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		InputMessageID: msg.ID,
		Iteration:      0,
		Status:         session.TurnRunning,
		StartedAt:      time.Now().UTC(),
	}
	turnDocVal := turnDoc{
		ID:             turn.ID,
		SessionID:      turn.SessionID,
		InputMessageID: turn.InputMessageID,
		Iteration:      turn.Iteration,
		Status:         string(turn.Status),
		StartedAt:      turn.StartedAt,
	}
	if _, err := s.turns.InsertOne(ctx, turnDocVal); err != nil {
		return session.Message{}, session.Turn{}, fmt.Errorf("mongostore/session: insert turn: %w", err)
	}

	_, _ = s.events.Append(ctx, sessionID, eventlog.TypeSessionActivated, nil, eventlog.Context{TurnID: turn.ID})
	_, _ = s.events.Append(ctx, sessionID, eventlog.TypeTurnStarted, map[string]any{"turn_id": turn.ID}, eventlog.Context{TurnID: turn.ID})

	return msg, turn, nil
}

func (s *Store) AppendAgentMessage(ctx context.Context, turnID string, content []session.ContentPart) (session.Message, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var t turnDoc
	if err := s.turns.FindOne(opCtx, bson.M{"_id": turnID}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return session.Message{}, session.ErrTurnNotFound
		}
		return session.Message{}, fmt.Errorf("mongostore/session: find turn: %w", err)
	}

	evt, err := s.events.Append(ctx, t.SessionID, eventlog.TypeMessageAgent, contentPayload(content), eventlog.Context{TurnID: turnID})
	if err != nil {
		return session.Message{}, err
	}
	msg := session.Message{
		ID:        evt.ID,
		SessionID: t.SessionID,
		Sequence:  evt.Sequence,
		Role:      session.RoleAgent,
		Content:   content,
		Timestamp: evt.Timestamp,
	}
	if err := s.insertMessage(ctx, msg); err != nil {
		return session.Message{}, err
	}
	return msg, nil
}

func (s *Store) GetTurn(ctx context.Context, turnID string) (session.Turn, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var t turnDoc
	if err := s.turns.FindOne(ctx, bson.M{"_id": turnID}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return session.Turn{}, session.ErrTurnNotFound
		}
		return session.Turn{}, fmt.Errorf("mongostore/session: get turn: %w", err)
	}
	return fromTurnDoc(t), nil
}

func (s *Store) FinishTurn(ctx context.Context, turnID string, status session.TurnStatus, errorCode string) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now().UTC()
	res := s.turns.FindOneAndUpdate(opCtx,
		bson.M{"_id": turnID},
		bson.M{"$set": bson.M{"status": string(status), "error_code": errorCode, "finished_at": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var t turnDoc
	if err := res.Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return session.ErrTurnNotFound
		}
		return fmt.Errorf("mongostore/session: finish turn: %w", err)
	}

	if status == session.TurnCompleted {
		iterations, err := countIterations(ctx, s.events, t.SessionID, turnID)
		if err != nil {
			return err
		}
		if err := s.SetTurnIteration(ctx, turnID, iterations); err != nil {
			return err
		}
		durationMS := now.Sub(t.StartedAt).Milliseconds()
		if _, err := s.events.Append(ctx, t.SessionID, eventlog.TypeTurnCompleted,
			map[string]any{"turn_id": turnID, "iterations": iterations, "duration_ms": durationMS}, eventlog.Context{TurnID: turnID}); err != nil {
			return err
		}
		if err := s.SetSessionStatus(ctx, t.SessionID, session.SessionStatusIdle); err != nil {
			return err
		}
		if _, err := s.events.Append(ctx, t.SessionID, eventlog.TypeSessionIdled,
			map[string]any{"turn_id": turnID, "iterations": iterations}, eventlog.Context{TurnID: turnID}); err != nil {
			return err
		}
		return nil
	}
	if err := s.SetSessionStatus(ctx, t.SessionID, session.SessionStatusIdle); err != nil {
		return err
	}
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

func (s *Store) SetTurnIteration(ctx context.Context, turnID string, iteration int) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.turns.UpdateOne(ctx, bson.M{"_id": turnID}, bson.M{"$set": bson.M{"iteration": iteration}})
	if err != nil {
		return fmt.Errorf("mongostore/session: set turn iteration: %w", err)
	}
	if res.MatchedCount == 0 {
		return session.ErrTurnNotFound
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string, sinceSequence int64) ([]session.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cur, err := s.messages.Find(ctx,
		bson.M{"session_id": sessionID, "sequence": bson.M{"$gt": sinceSequence}},
		options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongostore/session: list messages: %w", err)
	}
	defer cur.Close(ctx)

	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore/session: decode messages: %w", err)
	}
	out := make([]session.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromMessageDoc(d))
	}
	return out, nil
}

func (s *Store) Events() eventlog.Store { return s.events }

func (s *Store) Subscribe(sessionID string) (<-chan eventlog.Event, func()) {
	return s.bcast.Subscribe(sessionID)
}

func (s *Store) insertMessage(ctx context.Context, msg session.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	doc := messageDoc{
		ID:         msg.ID,
		SessionID:  msg.SessionID,
		Sequence:   msg.Sequence,
		Role:       string(msg.Role),
		Content:    toContentPartDocs(msg.Content),
		ToolCallID: msg.ToolCallID,
		Timestamp:  msg.Timestamp,
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongostore/session: insert message: %w", err)
	}
	return nil
}

// contentPayload mirrors memstore.contentPayload exactly, since
// workflow.Machine.Fold and turn.Controller replay event payloads built by
// whichever session.Store implementation is active.
func contentPayload(content []session.ContentPart) map[string]any {
	parts := make([]any, 0, len(content))
	for _, p := range content {
		part := map[string]any{"kind": string(p.Kind)}
		switch p.Kind {
		case session.PartText:
			part["text"] = p.Text
		case session.PartToolCall:
			part["id"] = p.ToolCallID
			part["name"] = p.ToolName
			part["args"] = p.ToolArgs
		case session.PartToolResult:
			part["tool_call_id"] = p.ToolResultForCallID
			if p.ToolResultError != "" {
				part["error"] = p.ToolResultError
			} else {
				part["result"] = p.ToolResult
			}
		case session.PartImage:
			part["url"] = p.ImageURL
			part["mime"] = p.ImageMIME
		}
		parts = append(parts, part)
	}
	return map[string]any{"content": parts}
}

func toCapabilityDocs(caps []session.Capability) []capabilityDoc {
	if len(caps) == 0 {
		return nil
	}
	out := make([]capabilityDoc, 0, len(caps))
	for _, c := range caps {
		out = append(out, capabilityDoc{Name: c.Name, PromptAddition: c.PromptAddition, ToolNames: c.ToolNames})
	}
	return out
}

func fromCapabilityDocs(docs []capabilityDoc) []session.Capability {
	if len(docs) == 0 {
		return nil
	}
	out := make([]session.Capability, 0, len(docs))
	for _, d := range docs {
		out = append(out, session.Capability{Name: d.Name, PromptAddition: d.PromptAddition, ToolNames: d.ToolNames})
	}
	return out
}

func fromAgentDoc(d agentDoc) session.Agent {
	return session.Agent{
		ID:           d.ID,
		Name:         d.Name,
		SystemPrompt: d.SystemPrompt,
		DefaultModel: d.DefaultModel,
		Capabilities: fromCapabilityDocs(d.Capabilities),
		Status:       session.AgentStatus(d.Status),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func fromSessionDoc(d sessionDoc) session.Session {
	return session.Session{
		ID:            d.ID,
		AgentID:       d.AgentID,
		Title:         d.Title,
		ModelOverride: d.ModelOverride,
		Status:        session.SessionStatus(d.Status),
		CreatedAt:     d.CreatedAt,
		StartedAt:     d.StartedAt,
		FinishedAt:    d.FinishedAt,
	}
}

func fromTurnDoc(d turnDoc) session.Turn {
	return session.Turn{
		ID:             d.ID,
		SessionID:      d.SessionID,
		InputMessageID: d.InputMessageID,
		Iteration:      d.Iteration,
		Status:         session.TurnStatus(d.Status),
		StartedAt:      d.StartedAt,
		FinishedAt:     d.FinishedAt,
		ErrorCode:      d.ErrorCode,
	}
}

func toContentPartDocs(parts []session.ContentPart) []contentPartDoc {
	out := make([]contentPartDoc, 0, len(parts))
	for _, p := range parts {
		out = append(out, contentPartDoc{
			Kind:                string(p.Kind),
			Text:                p.Text,
			ToolCallID:          p.ToolCallID,
			ToolName:            p.ToolName,
			ToolArgs:            bson.M(p.ToolArgs),
			ToolResultForCallID: p.ToolResultForCallID,
			ToolResult:          bson.M(p.ToolResult),
			ToolResultError:     p.ToolResultError,
			ImageURL:            p.ImageURL,
			ImageData:           p.ImageData,
			ImageMIME:           p.ImageMIME,
		})
	}
	return out
}

func fromContentPartDocs(docs []contentPartDoc) []session.ContentPart {
	out := make([]session.ContentPart, 0, len(docs))
	for _, d := range docs {
		out = append(out, session.ContentPart{
			Kind:                session.PartKind(d.Kind),
			Text:                d.Text,
			ToolCallID:          d.ToolCallID,
			ToolName:            d.ToolName,
			ToolArgs:            map[string]any(d.ToolArgs),
			ToolResultForCallID: d.ToolResultForCallID,
			ToolResult:          map[string]any(d.ToolResult),
			ToolResultError:     d.ToolResultError,
			ImageURL:            d.ImageURL,
			ImageData:           d.ImageData,
			ImageMIME:           d.ImageMIME,
		})
	}
	return out
}

func fromMessageDoc(d messageDoc) session.Message {
	return session.Message{
		ID:         d.ID,
		SessionID:  d.SessionID,
		Sequence:   d.Sequence,
		Role:       session.Role(d.Role),
		Content:    fromContentPartDocs(d.Content),
		ToolCallID: d.ToolCallID,
		Timestamp:  d.Timestamp,
	}
}

// Package eventlog provides a MongoDB-backed eventlog.Store (C1), durable
// across process restarts. Grounded on the teacher's
// features/session/mongo/clients/mongo.Client shape: a thin struct wrapping
// *mongo.Client, one collection per concern, indexes ensured in New, a
// dedicated counter document for dense per-session sequence allocation via
// an atomic findOneAndUpdate increment (spec.md §4.1's density requirement).
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"turnengine/eventlog"
)

const (
	defaultEventsCollection   = "events"
	defaultCountersCollection = "event_counters"
	defaultOpTimeout          = 5 * time.Second
)

// Options configures the Mongo-backed eventlog.Store.
type Options struct {
	Client             *mongo.Client
	Database           string
	EventsCollection   string
	CountersCollection string
	Timeout            time.Duration
}

// Store implements eventlog.Store against MongoDB collections.
type Store struct {
	events   *mongo.Collection
	counters *mongo.Collection
	timeout  time.Duration
	bcast    *eventlog.Broadcaster
}

// eventDoc is the BSON-tagged document shape for one event row (spec.md §3
// "expansion": bson tag set mirroring the teacher's document structs).
type eventDoc struct {
	ID        string            `bson:"_id"`
	SessionID string            `bson:"session_id"`
	Sequence  int64             `bson:"sequence"`
	Type      string            `bson:"type"`
	Payload   bson.M            `bson:"payload"`
	Timestamp time.Time         `bson:"timestamp"`
	TurnID    string            `bson:"turn_id,omitempty"`
	Tags      map[string]string `bson:"tags,omitempty"`
}

type counterDoc struct {
	SessionID string `bson:"_id"`
	Seq       int64  `bson:"seq"`
}

// New constructs a Store, ensuring the unique (session_id, sequence) index
// and the turn-lookup index exist. bcast, if non-nil, is published to after
// every successful append (same "persist then publish" ordering as the
// in-memory store).
func New(ctx context.Context, opts Options, bcast *eventlog.Broadcaster) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongostore/eventlog: Client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongostore/eventlog: Database is required")
	}
	eventsCollName := opts.EventsCollection
	if eventsCollName == "" {
		eventsCollName = defaultEventsCollection
	}
	countersCollName := opts.CountersCollection
	if countersCollName == "" {
		countersCollName = defaultCountersCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	events := opts.Client.Database(opts.Database).Collection(eventsCollName)
	counters := opts.Client.Database(opts.Database).Collection(countersCollName)

	idxCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ensureIndexes(idxCtx, events); err != nil {
		return nil, fmt.Errorf("mongostore/eventlog: ensure indexes: %w", err)
	}

	return &Store{events: events, counters: counters, timeout: timeout, bcast: bcast}, nil
}

func ensureIndexes(ctx context.Context, events *mongo.Collection) error {
	_, err := events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "sequence", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "turn_id", Value: 1}},
		},
	})
	return err
}

// Append allocates the next sequence for sessionID via an atomic $inc on the
// counter document, then inserts the event row. The increment and the
// insert are two operations, not one transaction, but the unique
// (session_id, sequence) index makes a duplicate insert fail loudly instead
// of silently corrupting order — acceptable for a single-replica-set
// deployment without a configured transaction session (spec.md §4.1 asks
// for an atomic allocation, not necessarily a multi-document transaction).
func (s *Store) Append(ctx context.Context, sessionID string, typ eventlog.Type, payload map[string]any, evtCtx eventlog.Context) (eventlog.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var counter counterDoc
	err := s.counters.FindOneAndUpdate(
		ctx,
		bson.M{"_id": sessionID},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return eventlog.Event{}, fmt.Errorf("mongostore/eventlog: allocate sequence: %w", err)
	}

	evt := eventlog.Event{
		ID:        eventlog.NewEventID(),
		SessionID: sessionID,
		Sequence:  counter.Seq,
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Ctx:       evtCtx,
	}
	doc := eventDoc{
		ID:        evt.ID,
		SessionID: evt.SessionID,
		Sequence:  evt.Sequence,
		Type:      string(evt.Type),
		Payload:   bson.M(payload),
		Timestamp: evt.Timestamp,
		TurnID:    evtCtx.TurnID,
		Tags:      evtCtx.Tags,
	}
	if _, err := s.events.InsertOne(ctx, doc); err != nil {
		return eventlog.Event{}, fmt.Errorf("mongostore/eventlog: insert event: %w", err)
	}

	if s.bcast != nil {
		s.bcast.Publish(sessionID, evt)
	}
	return evt, nil
}

// Range returns events for sessionID with Sequence > sinceSequence.
func (s *Store) Range(ctx context.Context, sessionID string, sinceSequence int64) ([]eventlog.Event, error) {
	return s.query(ctx, bson.M{"session_id": sessionID, "sequence": bson.M{"$gt": sinceSequence}})
}

// ForTurn returns all events tagged with turnID for sessionID.
func (s *Store) ForTurn(ctx context.Context, sessionID, turnID string) ([]eventlog.Event, error) {
	return s.query(ctx, bson.M{"session_id": sessionID, "turn_id": turnID})
}

func (s *Store) query(ctx context.Context, filter bson.M) ([]eventlog.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cur, err := s.events.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongostore/eventlog: find: %w", err)
	}
	defer cur.Close(ctx)

	var docs []eventDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore/eventlog: decode: %w", err)
	}
	out := make([]eventlog.Event, 0, len(docs))
	for _, d := range docs {
		out = append(out, eventlog.Event{
			ID:        d.ID,
			SessionID: d.SessionID,
			Sequence:  d.Sequence,
			Type:      eventlog.Type(d.Type),
			Payload:   map[string]any(d.Payload),
			Timestamp: d.Timestamp,
			Ctx:       eventlog.Context{TurnID: d.TurnID, Tags: d.Tags},
		})
	}
	return out, nil
}

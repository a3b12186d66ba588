// Package events publishes person, relationship and run lifecycle events.
// Emission never blocks a run: events are buffered and published by a
// background loop, and a full buffer drops the event with a warning.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	appctx "github.com/Ramsey-B/oak/pkg/context"
	"github.com/Ramsey-B/oak/pkg/metrics"
	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/tracing"
)

const DefaultBufferSize = 1024

// Publisher writes one keyed event. kafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, key, eventType string, value any) error
}

type envelope struct {
	ctx       context.Context
	key       string
	eventType EventType
	body      any
}

// Emitter handles event emission for oak
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
	now       func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan envelope
	done   chan struct{}
}

// NewEmitter starts the publish loop. Close must be called to flush it.
func NewEmitter(publisher Publisher, bufferSize int, logger ectologger.Logger) *Emitter {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	e := &Emitter{
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		queue:     make(chan envelope, bufferSize),
		done:      make(chan struct{}),
	}
	go e.loop()
	return e
}

// PersonWritten emits person.created or person.updated.
func (e *Emitter) PersonWritten(ctx context.Context, person *models.Person, created bool) {
	if person == nil {
		return
	}
	eventType := EventTypePersonUpdated
	if created {
		eventType = EventTypePersonCreated
	}
	e.enqueue(ctx, person.FamilyTreeID, eventType, &PersonEvent{
		BaseEvent: e.base(ctx, eventType, person.FamilyTreeID),
		Person:    *person,
	})
}

// RelationshipCreated emits relationship.created.
func (e *Emitter) RelationshipCreated(ctx context.Context, edge models.RelationshipEdge) {
	e.enqueue(ctx, edge.FamilyTreeID, EventTypeRelationshipCreated, &RelationshipEvent{
		BaseEvent:        e.base(ctx, EventTypeRelationshipCreated, edge.FamilyTreeID),
		RelationshipID:   edge.ID,
		RelationshipType: edge.Type,
		PersonID:         edge.PersonID,
		RelatedPersonID:  edge.RelatedPersonID,
		Status:           edge.Status,
		Confidence:       edge.Confidence,
	})
}

// RunCompleted emits import.completed for both run kinds.
func (e *Emitter) RunCompleted(ctx context.Context, run *models.ImportRun) {
	if run == nil {
		return
	}
	base := e.base(ctx, EventTypeImportCompleted, run.FamilyTreeID)
	base.RunID = run.ID
	if run.ActorID != "" {
		base.ActorID = run.ActorID
	}
	e.enqueue(ctx, run.FamilyTreeID, EventTypeImportCompleted, &ImportCompletedEvent{
		BaseEvent:      base,
		Kind:           run.Kind,
		Status:         run.Status,
		SeedIdentifier: run.SeedIdentifier,
		PersonID:       run.PersonID,
		Counters:       run.Counters,
		Errors:         run.Errors,
		FailureMessage: run.FailureMessage,
	})
}

// Close stops accepting events and waits until the buffer is published or
// ctx expires.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Emitter) base(ctx context.Context, eventType EventType, treeID string) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		FamilyTreeID:  treeID,
		Timestamp:     e.now(),
		RunID:         appctx.GetRunID(ctx),
		ActorID:       appctx.GetActorID(ctx),
		CorrelationID: appctx.GetRequestID(ctx),
	}
}

func (e *Emitter) enqueue(ctx context.Context, key string, eventType EventType, body any) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.drop(ctx, eventType, "emitter closed")
		return
	}

	// The run may finish and cancel ctx before the event is published.
	env := envelope{ctx: context.WithoutCancel(ctx), key: key, eventType: eventType, body: body}
	select {
	case e.queue <- env:
	default:
		e.drop(ctx, eventType, "buffer full")
	}
}

func (e *Emitter) drop(ctx context.Context, eventType EventType, reason string) {
	metrics.RecordEventDropped(string(eventType))
	e.logger.WithContext(ctx).WithField("event_type", eventType).Warnf("Dropped event: %s", reason)
}

func (e *Emitter) loop() {
	defer close(e.done)
	for env := range e.queue {
		e.publish(env)
	}
}

func (e *Emitter) publish(env envelope) {
	ctx, span := tracing.StartSpan(env.ctx, "events.Emitter.publish")
	defer span.End()

	if err := e.publisher.Publish(ctx, env.key, string(env.eventType), env.body); err != nil {
		tracing.RecordError(ctx, err)
		e.logger.WithContext(ctx).WithError(err).Warnf("Failed to emit %s event", env.eventType)
	}
}

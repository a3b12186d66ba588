package events

import (
	"time"

	"github.com/Ramsey-B/oak/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// EventType defines the type of event
type EventType string

const (
	EventTypePersonCreated       EventType = "person.created"
	EventTypePersonUpdated       EventType = "person.updated"
	EventTypeRelationshipCreated EventType = "relationship.created"
	EventTypeImportCompleted     EventType = "import.completed"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	FamilyTreeID  string    `json:"family_tree_id"`
	Timestamp     time.Time `json:"timestamp"`
	RunID         string    `json:"run_id,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// PersonEvent is emitted when a person is created or its fields change
type PersonEvent struct {
	BaseEvent
	Person models.Person `json:"person"`
}

// RelationshipEvent is emitted once per stored direction of a relationship
type RelationshipEvent struct {
	BaseEvent
	RelationshipID   string                    `json:"relationship_id"`
	RelationshipType models.RelationshipType   `json:"relationship_type"`
	PersonID         string                    `json:"person_id"`
	RelatedPersonID  string                    `json:"related_person_id"`
	Status           models.RelationshipStatus `json:"status"`
	Confidence       int                       `json:"confidence"`
}

// ImportCompletedEvent is emitted when a discovery or full-tree run reaches a
// terminal status
type ImportCompletedEvent struct {
	BaseEvent
	Kind           models.RunKind    `json:"kind"`
	Status         models.RunStatus  `json:"status"`
	SeedIdentifier string            `json:"seed_identifier"`
	PersonID       string            `json:"person_id,omitempty"`
	Counters       models.Counters   `json:"counters"`
	Errors         []models.RunError `json:"errors,omitempty"`
	FailureMessage string            `json:"failure_message,omitempty"`
}

package importer

import (
	"context"
	"time"

	"github.com/Ramsey-B/oak/pkg/models"
)

// PersonStore persists persons and their details. Lookups that find nothing
// return an error for which errors.IsNotFound reports true.
type PersonStore interface {
	FindByIdentifier(ctx context.Context, familyTreeID, identifier string) (*models.Person, error)
	// Search returns persons of the tree whose name may match nameQuery.
	Search(ctx context.Context, familyTreeID, nameQuery string) ([]models.Person, error)
	// FindOrCreate returns the existing person with the same identifier, or the
	// same name for identifier-less stubs, or creates it. created reports which.
	FindOrCreate(ctx context.Context, person *models.Person) (*models.Person, bool, error)
	Save(ctx context.Context, person *models.Person) (*models.Person, error)
	SaveDetail(ctx context.Context, detail *models.PersonDetail) error
}

type RelationshipStore interface {
	// CreateBidirectional writes edge and its inverse atomically and returns both.
	CreateBidirectional(ctx context.Context, edge models.RelationshipEdge) ([]models.RelationshipEdge, error)
	// FindBetween returns the edges from personID to relatedPersonID.
	FindBetween(ctx context.Context, familyTreeID, personID, relatedPersonID string) ([]models.RelationshipEdge, error)
}

type RunStore interface {
	CreateRun(ctx context.Context, run *models.ImportRun) (*models.ImportRun, error)
	MarkProcessing(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, counters models.Counters, errs []models.RunError) error
	MarkCompleted(ctx context.Context, id string, summary models.RunSummary) error
	MarkFailed(ctx context.Context, id, message string, summary models.RunSummary) error
	// FindRecentSimilar returns the latest successful run with key completed
	// within the window, or nil.
	FindRecentSimilar(ctx context.Context, key string, within time.Duration) (*models.ImportRun, error)
}

// EventSink receives domain events. Implementations must not block the run.
type EventSink interface {
	PersonWritten(ctx context.Context, person *models.Person, created bool)
	RelationshipCreated(ctx context.Context, edge models.RelationshipEdge)
	RunCompleted(ctx context.Context, run *models.ImportRun)
}

// GraphProjector mirrors persons and edges into the graph database.
type GraphProjector interface {
	ProjectPerson(ctx context.Context, person *models.Person) error
	ProjectRelationship(ctx context.Context, edge models.RelationshipEdge) error
}

// WarmupQueue receives identifiers left unvisited by an exhausted budget.
type WarmupQueue interface {
	EnqueuePriority(ctx context.Context, id string, priority float64) error
}

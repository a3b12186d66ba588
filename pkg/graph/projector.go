package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/oak/pkg/metrics"
	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/tracing"
)

// Writer runs a write statement. Client implements it.
type Writer interface {
	Write(ctx context.Context, cypher string, params map[string]any) error
}

// Projector mirrors persons and relationship edges into the graph. Nodes and
// edges are MERGEd on their Postgres ids, so repeating a projection is safe.
type Projector struct {
	writer Writer
	logger ectologger.Logger
}

func NewProjector(writer Writer, logger ectologger.Logger) *Projector {
	return &Projector{
		writer: writer,
		logger: logger,
	}
}

const personCypher = `
		MERGE (p:Person {id: $id, family_tree_id: $family_tree_id})
		SET p += $props
	`

// ProjectPerson creates or updates the person's node.
func (p *Projector) ProjectPerson(ctx context.Context, person *models.Person) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.ProjectPerson")
	defer span.End()

	err := p.writer.Write(ctx, personCypher, map[string]any{
		"id":             person.ID,
		"family_tree_id": person.FamilyTreeID,
		"props":          personProps(person),
	})
	if err != nil {
		metrics.RecordGraphWrite("person", "error")
		p.logger.WithContext(ctx).WithError(err).WithField("person_id", person.ID).Error("Failed to project person into graph")
		return fmt.Errorf("failed to project person %s: %w", person.ID, err)
	}

	metrics.RecordGraphWrite("person", "success")
	return nil
}

// ProjectRelationship merges one stored direction of an edge. Both endpoints
// are merged too, so edge projection does not depend on node ordering.
func (p *Projector) ProjectRelationship(ctx context.Context, edge models.RelationshipEdge) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.ProjectRelationship")
	defer span.End()

	err := p.writer.Write(ctx, relationshipCypher(edge.Type), map[string]any{
		"from_id":        edge.PersonID,
		"to_id":          edge.RelatedPersonID,
		"family_tree_id": edge.FamilyTreeID,
		"rel_id":         edge.ID,
		"props": map[string]any{
			"type":       string(edge.Type),
			"status":     string(edge.Status),
			"confidence": int64(edge.Confidence),
			"created_at": formatTime(edge.CreatedAt),
		},
	})
	if err != nil {
		metrics.RecordGraphWrite("relationship", "error")
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"person_id":         edge.PersonID,
			"related_person_id": edge.RelatedPersonID,
			"type":              edge.Type,
		}).Error("Failed to project relationship into graph")
		return fmt.Errorf("failed to project relationship %s: %w", edge.ID, err)
	}

	metrics.RecordGraphWrite("relationship", "success")
	return nil
}

func relationshipCypher(t models.RelationshipType) string {
	return fmt.Sprintf(`
		MERGE (from:Person {id: $from_id, family_tree_id: $family_tree_id})
		MERGE (to:Person {id: $to_id, family_tree_id: $family_tree_id})
		MERGE (from)-[r:%s {id: $rel_id}]->(to)
		SET r += $props
	`, sanitizeLabel(strings.ToUpper(string(t))))
}

func personProps(person *models.Person) map[string]any {
	props := map[string]any{
		"identifier":  person.Identifier,
		"full_name":   person.FullName,
		"gender":      string(person.Gender),
		"mother_name": person.MotherName,
		"father_name": person.FatherName,
		"stub":        person.Stub,
		"updated_at":  formatTime(person.UpdatedAt),
	}
	if person.BirthDate != nil {
		props["birth_date"] = person.BirthDate.Format(time.DateOnly)
	}
	if person.DeathDate != nil {
		props["death_date"] = person.DeathDate.Format(time.DateOnly)
	}
	return props
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// sanitizeLabel keeps letters, digits and underscores so a label can be
// interpolated into Cypher.
func sanitizeLabel(label string) string {
	var b strings.Builder
	for _, c := range label {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return "RELATED"
	}
	return b.String()
}

package person

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/oak/pkg/database"
	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/normalizers"
	"github.com/Ramsey-B/oak/pkg/tracing"
)

const (
	personsTable = "persons"
	detailsTable = "person_details"

	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

var personColumns = []string{
	"id",
	"family_tree_id",
	"identifier",
	"full_name",
	"birth_date",
	"death_date",
	"gender",
	"mother_name",
	"father_name",
	"stub",
	"created_at",
	"updated_at",
}

// Repository manages persons and person_details persistence.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

func (r *Repository) selectPersons(familyTreeID string) *sqlbuilder.SelectBuilder {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(personColumns...)
	sb.From(personsTable)
	sb.Where(sb.Equal("family_tree_id", familyTreeID))
	return sb
}

func (r *Repository) FindByIdentifier(ctx context.Context, familyTreeID, identifier string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.FindByIdentifier")
	defer span.End()

	if identifier == "" {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "person not found")
	}

	sb := r.selectPersons(familyTreeID)
	sb.Where(sb.Equal("identifier", identifier))

	query, args := sb.Build()
	var out models.Person
	err := r.db.Executor(ctx).GetContext(ctx, &out, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "person %s does not exist", identifier)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("identifier", identifier).Error("Failed to find person by identifier")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find person")
	}
	return &out, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.FindByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(personColumns...)
	sb.From(personsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var out models.Person
	err := r.db.Executor(ctx).GetContext(ctx, &out, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "person %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("person_id", id).Error("Failed to get person")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get person")
	}
	return &out, nil
}

// Search returns persons of the tree whose normalized name starts with the
// first token of nameQuery, oldest first.
func (r *Repository) Search(ctx context.Context, familyTreeID, nameQuery string) ([]models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Search")
	defer span.End()

	tokens := strings.Fields(normalizers.NormalizeName(nameQuery))
	if len(tokens) == 0 {
		return []models.Person{}, nil
	}

	sb := r.selectPersons(familyTreeID)
	sb.Where(sb.Like("name_key", tokens[0]+"%"))
	sb.OrderBy("created_at").Asc()
	sb.Limit(100)

	query, args := sb.Build()
	out := []models.Person{}
	if err := r.db.Executor(ctx).SelectContext(ctx, &out, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("query", nameQuery).Error("Failed to search persons")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to search persons")
	}
	return out, nil
}

// FindOrCreate returns the person with the same identifier, or for
// identifier-less stubs the stub with the same normalized name, creating it
// when there is none.
func (r *Repository) FindOrCreate(ctx context.Context, person *models.Person) (*models.Person, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.FindOrCreate")
	defer span.End()

	var (
		out     *models.Person
		created bool
	)
	err := database.WithTx(ctx, r.db, func(ctx context.Context) error {
		existing, err := r.findExisting(ctx, person)
		if err != nil {
			return err
		}
		if existing != nil {
			out = existing
			return nil
		}

		out, created, err = r.insert(ctx, person)
		return err
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, false, err
	}
	return out, created, nil
}

func (r *Repository) findExisting(ctx context.Context, person *models.Person) (*models.Person, error) {
	if person.Identifier != "" {
		existing, err := r.FindByIdentifier(ctx, person.FamilyTreeID, person.Identifier)
		if err != nil {
			if httperror.GetStatusCode(err) == http.StatusNotFound {
				return nil, nil
			}
			return nil, err
		}
		return existing, nil
	}

	sb := r.selectPersons(person.FamilyTreeID)
	sb.Where(
		sb.Equal("identifier", ""),
		sb.Equal("stub", true),
		sb.Equal("name_key", normalizers.NormalizeName(person.FullName)),
	)
	sb.OrderBy("created_at").Asc()
	sb.Limit(1)

	query, args := sb.Build()
	var out models.Person
	err := r.db.Executor(ctx).GetContext(ctx, &out, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("full_name", person.FullName).Error("Failed to find stub person")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find person")
	}
	return &out, nil
}

// insert creates the person. A concurrent insert of the same identifier is
// resolved by returning the row that won.
func (r *Repository) insert(ctx context.Context, person *models.Person) (*models.Person, bool, error) {
	now := time.Now().UTC()
	id := uuid.New().String()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(personsTable)
	ib.Cols(
		"id",
		"family_tree_id",
		"identifier",
		"full_name",
		"name_key",
		"birth_date",
		"death_date",
		"gender",
		"mother_name",
		"father_name",
		"stub",
		"created_at",
		"updated_at",
	)
	ib.Values(
		id,
		person.FamilyTreeID,
		person.Identifier,
		person.FullName,
		normalizers.NormalizeName(person.FullName),
		person.BirthDate,
		person.DeathDate,
		person.Gender,
		person.MotherName,
		person.FatherName,
		person.Stub,
		now,
		now,
	)

	query, args := ib.Build()
	query += ` ON CONFLICT (family_tree_id, identifier) WHERE identifier <> '' DO NOTHING
	RETURNING ` + strings.Join(personColumns, ", ")

	var out models.Person
	err := r.db.Executor(ctx).GetContext(ctx, &out, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		existing, findErr := r.FindByIdentifier(ctx, person.FamilyTreeID, person.Identifier)
		return existing, false, findErr
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("identifier", person.Identifier).Error("Failed to create person")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create person")
	}

	r.logger.WithContext(ctx).WithField("person_id", out.ID).Debugf("Created %s", personsTable)
	return &out, true, nil
}

// Save overwrites the canonical fields of an existing person.
func (r *Repository) Save(ctx context.Context, person *models.Person) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Save")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(personsTable)
	ub.Set(
		ub.Assign("identifier", person.Identifier),
		ub.Assign("full_name", person.FullName),
		ub.Assign("name_key", normalizers.NormalizeName(person.FullName)),
		ub.Assign("birth_date", person.BirthDate),
		ub.Assign("death_date", person.DeathDate),
		ub.Assign("gender", person.Gender),
		ub.Assign("mother_name", person.MotherName),
		ub.Assign("father_name", person.FatherName),
		ub.Assign("stub", person.Stub),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", person.ID))

	query, args := ub.Build()
	query += " RETURNING " + strings.Join(personColumns, ", ")

	var out models.Person
	err := r.db.Executor(ctx).GetContext(ctx, &out, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "person %s does not exist", person.ID)
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, httperror.NewHTTPError(http.StatusConflict, "identifier already used in family tree")
		}
		r.logger.WithContext(ctx).WithError(err).WithField("person_id", person.ID).Error("Failed to save person")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to save person")
	}
	return &out, nil
}

// SaveDetail upserts the detail row of a person.
func (r *Repository) SaveDetail(ctx context.Context, detail *models.PersonDetail) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.SaveDetail")
	defer span.End()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(detailsTable)
	ib.Cols("person_id", "fields", "updated_at")
	ib.Values(detail.PersonID, database.NewJSONB(detail.Fields), time.Now().UTC())

	query, args := ib.Build()
	query += ` ON CONFLICT (person_id) DO UPDATE SET
		fields = EXCLUDED.fields,
		updated_at = EXCLUDED.updated_at`

	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return httperror.NewHTTPErrorf(http.StatusNotFound, "person %s does not exist", detail.PersonID)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("person_id", detail.PersonID).Error("Failed to save person detail")
		return httperror.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to save detail of person %s", detail.PersonID))
	}
	return nil
}

// Detail returns the stored detail of a person.
func (r *Repository) Detail(ctx context.Context, personID string) (*models.PersonDetail, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Detail")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("person_id", "fields", "updated_at")
	sb.From(detailsTable)
	sb.Where(sb.Equal("person_id", personID))

	query, args := sb.Build()
	var row struct {
		PersonID  string                              `db:"person_id"`
		Fields    database.JSONB[models.DetailFields] `db:"fields"`
		UpdatedAt time.Time                           `db:"updated_at"`
	}
	err := r.db.Executor(ctx).GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "detail of person %s does not exist", personID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("person_id", personID).Error("Failed to get person detail")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get person detail")
	}
	return &models.PersonDetail{PersonID: row.PersonID, Fields: row.Fields.GetValue(), UpdatedAt: row.UpdatedAt}, nil
}

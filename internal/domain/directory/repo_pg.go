package directory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/booking/internal/platform/db"
)

type repoPG struct{ db db.DBTX }

func NewRepoPG(conn db.DBTX) Repository { return &repoPG{db: conn} }

const practitionerCols = `id, display_name, specialisations, institutions,
	rating_sum, rating_count, rating_version, created_at, updated_at`

func scanPractitioner(row pgx.Row) (*Practitioner, error) {
	var p Practitioner
	err := row.Scan(&p.ID, &p.DisplayName, &p.Specialisations, &p.Institutions,
		&p.Ratings.Sum, &p.Ratings.Count, &p.Ratings.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrPractitionerNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) CreatePractitioner(ctx context.Context, p *Practitioner) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO practitioner (id, display_name, specialisations, institutions)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		p.ID, p.DisplayName, nonNilStrings(p.Specialisations), nonNilIDs(p.Institutions),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) GetPractitioner(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	return scanPractitioner(r.db.QueryRow(ctx, `SELECT `+practitionerCols+` FROM practitioner WHERE id = $1`, id))
}

const institutionCols = `id, name, address, is_public, service_types, staff,
	rating_sum, rating_count, rating_version, created_at, updated_at`

func scanInstitution(row pgx.Row) (*Institution, error) {
	var i Institution
	err := row.Scan(&i.ID, &i.Name, &i.Address, &i.Public, &i.ServiceTypes, &i.Staff,
		&i.Ratings.Sum, &i.Ratings.Count, &i.Ratings.Version, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrInstitutionNotFound
		}
		return nil, err
	}
	return &i, nil
}

func (r *repoPG) CreateInstitution(ctx context.Context, i *Institution) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO institution (id, name, address, is_public, service_types, staff)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		i.ID, i.Name, i.Address, i.Public, nonNilStrings(i.ServiceTypes), nonNilIDs(i.Staff),
	).Scan(&i.CreatedAt, &i.UpdatedAt)
}

func (r *repoPG) GetInstitution(ctx context.Context, id uuid.UUID) (*Institution, error) {
	return scanInstitution(r.db.QueryRow(ctx, `SELECT `+institutionCols+` FROM institution WHERE id = $1`, id))
}

func (r *repoPG) CreatePatient(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO patient (id, name, surname, external_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		p.ID, p.Name, p.Surname, p.ExternalID,
	).Scan(&p.CreatedAt)
}

func (r *repoPG) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.db.QueryRow(ctx, `SELECT id, name, surname, external_id, created_at FROM patient WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Surname, &p.ExternalID, &p.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

type ratingTarget struct {
	table    string
	notFound error
}

// ratingTargets maps subjects to tables. Table names never come from input.
var ratingTargets = map[SubjectKind]ratingTarget{
	SubjectPractitioner: {table: "practitioner", notFound: ErrPractitionerNotFound},
	SubjectInstitution:  {table: "institution", notFound: ErrInstitutionNotFound},
}

func (r *repoPG) GetRating(ctx context.Context, subject Subject) (RatingAggregate, error) {
	target, ok := ratingTargets[subject.Kind]
	if !ok {
		return RatingAggregate{}, ErrUnknownSubject
	}
	var agg RatingAggregate
	err := r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT rating_sum, rating_count, rating_version FROM %s WHERE id = $1`, target.table),
		subject.ID,
	).Scan(&agg.Sum, &agg.Count, &agg.Version)
	if err != nil {
		if db.IsNoRows(err) {
			return RatingAggregate{}, target.notFound
		}
		return RatingAggregate{}, err
	}
	return agg, nil
}

func (r *repoPG) CompareAndSetRating(ctx context.Context, subject Subject, expectedVersion int64, next RatingAggregate) error {
	target, ok := ratingTargets[subject.Kind]
	if !ok {
		return ErrUnknownSubject
	}
	tag, err := r.db.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET rating_sum = $3, rating_count = $4,
			rating_version = rating_version + 1, updated_at = NOW()
		WHERE id = $1 AND rating_version = $2`, target.table),
		subject.ID, expectedVersion, next.Sum, next.Count)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, target.table), subject.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return target.notFound
	}
	return ErrRatingConflict
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

package reviews

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/booking/internal/platform/db"
)

type repoPG struct{ db db.DBTX }

func NewRepoPG(conn db.DBTX) Repository { return &repoPG{db: conn} }

const reviewCols = `id, visit_id, practitioner_id, institution_id, author_id, author_name,
	doctor_rating, institution_rating, content, version, created_at, updated_at`

func scanReview(row pgx.Row) (*Review, error) {
	var r Review
	err := row.Scan(&r.ID, &r.VisitID, &r.PractitionerID, &r.InstitutionID, &r.AuthorID, &r.AuthorName,
		&r.DoctorRating, &r.InstitutionRating, &r.Content, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrReviewNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (p *repoPG) Create(ctx context.Context, r *Review) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	err := p.db.QueryRow(ctx, `
		INSERT INTO review (id, visit_id, practitioner_id, institution_id, author_id, author_name,
			doctor_rating, institution_rating, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING version, created_at, updated_at`,
		r.ID, r.VisitID, r.PractitionerID, r.InstitutionID, r.AuthorID, r.AuthorName,
		r.DoctorRating, r.InstitutionRating, r.Content,
	).Scan(&r.Version, &r.CreatedAt, &r.UpdatedAt)
	if db.IsUniqueViolation(err, "uq_review_visit") {
		return ErrReviewAlreadyExists
	}
	return err
}

func (p *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Review, error) {
	return scanReview(p.db.QueryRow(ctx, `SELECT `+reviewCols+` FROM review WHERE id = $1`, id))
}

// missOrConflict disambiguates a compare-and-set that matched no row.
func (p *repoPG) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := p.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM review WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrReviewNotFound
	}
	return ErrReviewConflict
}

func (p *repoPG) Update(ctx context.Context, r *Review, expectedVersion int64) error {
	err := p.db.QueryRow(ctx, `
		UPDATE review SET doctor_rating = $3, institution_rating = $4, content = $5,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`,
		r.ID, expectedVersion, r.DoctorRating, r.InstitutionRating, r.Content,
	).Scan(&r.Version, &r.UpdatedAt)
	if db.IsNoRows(err) {
		return p.missOrConflict(ctx, r.ID)
	}
	return err
}

func (p *repoPG) Delete(ctx context.Context, id uuid.UUID, expectedVersion int64) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM review WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return p.missOrConflict(ctx, id)
	}
	return nil
}

func (p *repoPG) ListByPractitioner(ctx context.Context, practitionerID uuid.UUID, limit, offset int) ([]*Review, int, error) {
	var total int
	if err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM review WHERE practitioner_id = $1`, practitionerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := p.db.Query(ctx, `SELECT `+reviewCols+` FROM review WHERE practitioner_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, practitionerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

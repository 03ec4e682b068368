package history

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/booking/internal/platform/db"
)

type repoPG struct{ db db.DBTX }

func NewRepoPG(conn db.DBTX) Repository { return &repoPG{db: conn} }

const entryCols = `id, patient_id, visit_id, title, entry_date, note,
	author_id, author_name, author_specialisations, created_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var authorID *uuid.UUID
	var authorName *string
	var authorSpecs []string
	err := row.Scan(&e.ID, &e.PatientID, &e.VisitID, &e.Title, &e.Date, &e.Note,
		&authorID, &authorName, &authorSpecs, &e.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	if authorID != nil {
		e.Author = &Author{ID: *authorID, Specialisations: authorSpecs}
		if authorName != nil {
			e.Author.DisplayName = *authorName
		}
	}
	return &e, nil
}

func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	var authorID *uuid.UUID
	var authorName *string
	var authorSpecs []string
	if e.Author != nil {
		authorID, authorName, authorSpecs = &e.Author.ID, &e.Author.DisplayName, e.Author.Specialisations
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO medical_history_entry (id, patient_id, visit_id, title, entry_date, note,
			author_id, author_name, author_specialisations)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		e.ID, e.PatientID, e.VisitID, e.Title, e.Date, e.Note, authorID, authorName, authorSpecs,
	).Scan(&e.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return ErrEntryExists
		}
		return err
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return scanEntry(r.db.QueryRow(ctx, `SELECT `+entryCols+` FROM medical_history_entry WHERE id = $1`, id))
}

func (r *repoPG) GetByVisit(ctx context.Context, visitID uuid.UUID) (*Entry, error) {
	return scanEntry(r.db.QueryRow(ctx, `SELECT `+entryCols+` FROM medical_history_entry WHERE visit_id = $1`, visitID))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM medical_history_entry WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+entryCols+` FROM medical_history_entry
		WHERE patient_id = $1 ORDER BY entry_date DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/booking/internal/platform/db"
)

// -- Slot --

type slotRepoPG struct{ db db.DBTX }

func NewSlotRepoPG(conn db.DBTX) SlotRepository { return &slotRepoPG{db: conn} }

const slotCols = `id, practitioner_id, institution_id, start_time, end_time, booked, version, created_at`

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.PractitionerID, &s.InstitutionID, &s.StartTime, &s.EndTime,
		&s.Booked, &s.Version, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *slotRepoPG) Create(ctx context.Context, slots ...*Slot) error {
	for _, s := range slots {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		err := r.db.QueryRow(ctx, `
			INSERT INTO slot (id, practitioner_id, institution_id, start_time, end_time)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at`,
			s.ID, s.PractitionerID, s.InstitutionID, s.StartTime, s.EndTime,
		).Scan(&s.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert slot %s: %w", s.ID, err)
		}
	}
	return nil
}

func (r *slotRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	s, err := scanSlot(r.db.QueryRow(ctx, `SELECT `+slotCols+` FROM slot WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *slotRepoPG) ListFree(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]*Slot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+slotCols+` FROM slot
		WHERE practitioner_id = $1 AND NOT booked AND start_time >= $2 AND start_time < $3
		ORDER BY start_time`, practitionerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *slotRepoPG) SetBooked(ctx context.Context, id uuid.UUID, expected, next bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE slot SET booked = $3, version = version + 1
		WHERE id = $1 AND booked = $2`, id, expected, next)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM slot WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrSlotNotFound
	}
	return ErrSlotConflict
}

// -- Visit --

type visitRepoPG struct{ db db.DBTX }

func NewVisitRepoPG(conn db.DBTX) VisitRepository { return &visitRepoPG{db: conn} }

const visitCols = `id, slot_id, patient_id, patient_name, patient_surname, patient_external_id,
	practitioner_id, practitioner_name, practitioner_specialisations,
	institution_id, institution_name, institution_address,
	start_time, end_time, status, note, codes, remarks, cancelled_by, version,
	created_at, updated_at, completed_at, cancelled_at`

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	var codes []byte
	err := row.Scan(&v.ID, &v.SlotID,
		&v.Patient.ID, &v.Patient.Name, &v.Patient.Surname, &v.Patient.ExternalID,
		&v.Practitioner.ID, &v.Practitioner.DisplayName, &v.Practitioner.Specialisations,
		&v.Institution.ID, &v.Institution.Name, &v.Institution.Address,
		&v.StartTime, &v.EndTime, &v.Status, &v.Note, &codes, &v.Remarks, &v.CancelledBy, &v.Version,
		&v.CreatedAt, &v.UpdatedAt, &v.CompletedAt, &v.CancelledAt)
	if err != nil {
		return nil, err
	}
	if len(codes) > 0 {
		if err := json.Unmarshal(codes, &v.Codes); err != nil {
			return nil, fmt.Errorf("decode codes for visit %s: %w", v.ID, err)
		}
	}
	return &v, nil
}

func encodeCodes(codes []IssuedCode) ([]byte, error) {
	if codes == nil {
		codes = []IssuedCode{}
	}
	return json.Marshal(codes)
}

func (r *visitRepoPG) Create(ctx context.Context, v *Visit) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	codes, err := encodeCodes(v.Codes)
	if err != nil {
		return err
	}
	specs := v.Practitioner.Specialisations
	if specs == nil {
		specs = []string{}
	}
	err = r.db.QueryRow(ctx, `
		INSERT INTO visit (id, slot_id, patient_id, patient_name, patient_surname, patient_external_id,
			practitioner_id, practitioner_name, practitioner_specialisations,
			institution_id, institution_name, institution_address,
			start_time, end_time, status, note, codes, remarks)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING version, created_at, updated_at`,
		v.ID, v.SlotID, v.Patient.ID, v.Patient.Name, v.Patient.Surname, v.Patient.ExternalID,
		v.Practitioner.ID, v.Practitioner.DisplayName, specs,
		v.Institution.ID, v.Institution.Name, v.Institution.Address,
		v.StartTime, v.EndTime, v.Status, v.Note, codes, v.Remarks,
	).Scan(&v.Version, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_visit_active_slot") {
			return ErrSlotAlreadyInUse
		}
		return err
	}
	return nil
}

func (r *visitRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	v, err := scanVisit(r.db.QueryRow(ctx, `SELECT `+visitCols+` FROM visit WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrVisitNotFound
		}
		return nil, err
	}
	return v, nil
}

func (r *visitRepoPG) Update(ctx context.Context, v *Visit) error {
	codes, err := encodeCodes(v.Codes)
	if err != nil {
		return err
	}
	err = r.db.QueryRow(ctx, `
		UPDATE visit SET status = $3, note = $4, codes = $5, cancelled_by = $6,
			completed_at = $7, cancelled_at = $8, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`,
		v.ID, v.Version, v.Status, v.Note, codes, v.CancelledBy, v.CompletedAt, v.CancelledAt,
	).Scan(&v.Version, &v.UpdatedAt)
	if err == nil {
		return nil
	}
	if !db.IsNoRows(err) {
		return err
	}
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM visit WHERE id = $1)`, v.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrVisitNotFound
	}
	return ErrVisitConflict
}

func (r *visitRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM visit WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+visitCols+` FROM visit WHERE patient_id = $1
		ORDER BY start_time DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

func (r *visitRepoPG) ListUpcomingEndedBefore(ctx context.Context, t time.Time) ([]*Visit, error) {
	rows, err := r.db.Query(ctx, `SELECT `+visitCols+` FROM visit
		WHERE status = 'upcoming' AND end_time < $1 ORDER BY end_time`, t)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

package reminders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/booking/internal/platform/db"
)

type repoPG struct{ db db.DBTX }

func NewRepoPG(conn db.DBTX) Repository { return &repoPG{db: conn} }

const reminderCols = `id, patient_id, visit_id, title, content, start_date, end_date,
	reminder_minute, is_read, is_system, created_at`

func scanReminder(row pgx.Row) (*Reminder, error) {
	var r Reminder
	var start time.Time
	var end *time.Time
	var minute int
	err := row.Scan(&r.ID, &r.PatientID, &r.VisitID, &r.Title, &r.Content, &start, &end,
		&minute, &r.Read, &r.IsSystem, &r.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrReminderNotFound
		}
		return nil, err
	}
	r.StartDate = DateOf(start)
	if end != nil {
		d := DateOf(*end)
		r.EndDate = &d
	}
	r.ReminderTime = TimeOfDay(minute)
	return &r, nil
}

func collect(rows pgx.Rows) ([]*Reminder, error) {
	defer rows.Close()
	var out []*Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *repoPG) Create(ctx context.Context, r *Reminder) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	var end *time.Time
	if r.EndDate != nil {
		t := r.EndDate.Time()
		end = &t
	}
	return p.db.QueryRow(ctx, `
		INSERT INTO reminder (id, patient_id, visit_id, title, content, start_date, end_date,
			reminder_minute, is_read, is_system)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`,
		r.ID, r.PatientID, r.VisitID, r.Title, r.Content, r.StartDate.Time(), end,
		int(r.ReminderTime), r.Read, r.IsSystem,
	).Scan(&r.CreatedAt)
}

func (p *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	return scanReminder(p.db.QueryRow(ctx, `SELECT `+reminderCols+` FROM reminder WHERE id = $1`, id))
}

func (p *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM reminder WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReminderNotFound
	}
	return nil
}

func (p *repoPG) DeleteByVisit(ctx context.Context, visitID uuid.UUID) (int, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM reminder WHERE visit_id = $1`, visitID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (p *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Reminder, int, error) {
	var total int
	if err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM reminder WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := p.db.Query(ctx, `SELECT `+reminderCols+` FROM reminder WHERE patient_id = $1
		ORDER BY start_date, reminder_minute LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows)
	return out, total, err
}

func (p *repoPG) ListActiveOn(ctx context.Context, day Date) ([]*Reminder, error) {
	rows, err := p.db.Query(ctx, `SELECT `+reminderCols+` FROM reminder
		WHERE start_date <= $1 AND COALESCE(end_date, start_date) >= $1`, day.Time())
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (p *repoPG) MarkRead(ctx context.Context, id uuid.UUID) error {
	tag, err := p.db.Exec(ctx, `UPDATE reminder SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReminderNotFound
	}
	return nil
}

func (p *repoPG) MarkAllRead(ctx context.Context, patientID uuid.UUID) (int, error) {
	tag, err := p.db.Exec(ctx, `UPDATE reminder SET is_read = TRUE WHERE patient_id = $1 AND NOT is_read`, patientID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

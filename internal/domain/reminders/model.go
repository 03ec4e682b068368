package reminders

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/booking/internal/platform/apperr"
)

var (
	ErrReminderNotFound = apperr.New(apperr.KindNotFound, "reminder_not_found", "reminder not found")
	ErrInvalidReminder  = apperr.New(apperr.KindInvalid, "invalid_reminder", "patient_id, title, start_date and reminder_time are required; end_date may not precede start_date")
	ErrInvalidTime      = apperr.New(apperr.KindInvalid, "invalid_time", "time must be HH:MM")
	ErrInvalidDate      = apperr.New(apperr.KindInvalid, "invalid_date", "date must be YYYY-MM-DD")
)

// Date is a calendar day without a zone. Comparable with ==.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d Date) IsZero() bool { return d == Date{} }

// At returns the instant of time-of-day tod on this day in loc.
func (d Date) At(tod TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, tod.Hour(), tod.Minute(), 0, 0, loc)
}

// Time returns midnight UTC of the day, the form stored in DATE columns.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) Before(o Date) bool { return d.Time().Before(o.Time()) }
func (d Date) After(o Date) bool  { return d.Time().After(o.Time()) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return ErrInvalidDate
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeOfDay is a wall-clock time as minutes after midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, ErrInvalidTime
	}
	return TimeOfDay(hour*60 + minute), nil
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, ErrInvalidTime
	}
	return NewTimeOfDay(t.Hour(), t.Minute())
}

// TimeOfDayOf returns the wall-clock time of t, truncated to the minute.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }
func (t TimeOfDay) Valid() bool { return t >= 0 && t < 24*60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return ErrInvalidTime
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Reminder fires once per day in [StartDate, EndDate] at ReminderTime. With
// no EndDate it fires once, on StartDate.
type Reminder struct {
	ID           uuid.UUID  `json:"id"`
	PatientID    uuid.UUID  `json:"patient_id"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	StartDate    Date       `json:"start_date"`
	EndDate      *Date      `json:"end_date,omitempty"`
	ReminderTime TimeOfDay  `json:"reminder_time"`
	Read         bool       `json:"read"`
	IsSystem     bool       `json:"is_system"`
	VisitID      *uuid.UUID `json:"visit_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (r *Reminder) Validate() error {
	if r.PatientID == uuid.Nil || strings.TrimSpace(r.Title) == "" || r.StartDate.IsZero() || !r.ReminderTime.Valid() {
		return ErrInvalidReminder
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		return ErrInvalidReminder
	}
	return nil
}

// LastDay is the final day of the recurrence window.
func (r *Reminder) LastDay() Date {
	if r.EndDate != nil {
		return *r.EndDate
	}
	return r.StartDate
}

// Covers reports whether day falls inside the recurrence window.
func (r *Reminder) Covers(day Date) bool {
	return !day.Before(r.StartDate) && !day.After(r.LastDay())
}

// Occurrence is one firing of a reminder.
type Occurrence struct {
	Reminder *Reminder `json:"reminder"`
	Day      Date      `json:"day"`
	FireAt   time.Time `json:"fire_at"`
	// DedupKey identifies the firing across polls: "<reminder id>:<day>".
	DedupKey string `json:"dedup_key"`
}

// OccurrenceOn returns the firing of r on day, if the window covers it.
func (r *Reminder) OccurrenceOn(day Date, loc *time.Location) (Occurrence, bool) {
	if !r.Covers(day) {
		return Occurrence{}, false
	}
	return Occurrence{
		Reminder: r,
		Day:      day,
		FireAt:   day.At(r.ReminderTime, loc),
		DedupKey: r.ID.String() + ":" + day.String(),
	}, true
}

// DueAt reports the occurrence of r that is due at asOf: the one on asOf's
// calendar day in loc, once its instant has been reached.
func (r *Reminder) DueAt(asOf time.Time, loc *time.Location) (Occurrence, bool) {
	occ, ok := r.OccurrenceOn(DateOf(asOf.In(loc)), loc)
	if !ok || asOf.Before(occ.FireAt) {
		return Occurrence{}, false
	}
	return occ, true
}

package reminders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/booking/internal/domain/scheduling"
)

func newTestService() (*Service, *MemoryRepository) {
	repo := NewMemoryRepository()
	return NewService(repo, time.UTC, time.Hour, zerolog.Nop()), repo
}

func TestService_Create_ForcesUserFields(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	visitID := uuid.New()
	r := &Reminder{
		PatientID:    uuid.New(),
		Title:        "  Stretch  ",
		StartDate:    Date{2025, 1, 1},
		ReminderTime: 600,
		IsSystem:     true,
		VisitID:      &visitID,
		Read:         true,
	}
	require.NoError(t, svc.Create(ctx, r))

	got, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Stretch", got.Title)
	assert.False(t, got.IsSystem)
	assert.Nil(t, got.VisitID)
	assert.False(t, got.Read)
}

func TestService_DueReminders(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	patient := uuid.New()
	end := Date{2025, 1, 3}

	daily := &Reminder{PatientID: patient, Title: "Pills", StartDate: Date{2025, 1, 1}, EndDate: &end, ReminderTime: 9 * 60}
	early := &Reminder{PatientID: patient, Title: "Walk", StartDate: Date{2025, 1, 2}, ReminderTime: 7 * 60}
	later := &Reminder{PatientID: patient, Title: "Lunch", StartDate: Date{2025, 1, 2}, ReminderTime: 13 * 60}
	for _, r := range []*Reminder{daily, early, later} {
		require.NoError(t, svc.Create(ctx, r))
	}

	due, err := svc.DueReminders(ctx, time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, early.ID, due[0].Reminder.ID)
	assert.Equal(t, daily.ID, due[1].Reminder.ID)

	due, err = svc.DueReminders(ctx, time.Date(2025, 1, 4, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestService_ReadRemindersStillDue(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	patient := uuid.New()
	r := &Reminder{PatientID: patient, Title: "Pills", StartDate: Date{2025, 1, 1}, ReminderTime: 0}
	require.NoError(t, svc.Create(ctx, r))
	require.NoError(t, svc.MarkRead(ctx, r.ID))

	due, err := svc.DueReminders(ctx, time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.True(t, due[0].Reminder.Read)
}

func TestService_MarkAllRead(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	patient, other := uuid.New(), uuid.New()
	for _, p := range []uuid.UUID{patient, patient, other} {
		require.NoError(t, svc.Create(ctx, &Reminder{PatientID: p, Title: "x", StartDate: Date{2025, 1, 1}}))
	}

	n, err := svc.MarkAllRead(ctx, patient)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.MarkAllRead(ctx, patient)
	require.NoError(t, err)
	assert.Zero(t, n)

	list, total, err := svc.ListForPatient(ctx, other, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.False(t, list[0].Read)

	assert.ErrorIs(t, svc.MarkRead(ctx, uuid.New()), ErrReminderNotFound)
}

func testVisit(start time.Time) *scheduling.Visit {
	return &scheduling.Visit{
		ID:           uuid.New(),
		Patient:      scheduling.PatientSnapshot{ID: uuid.New(), Name: "Ada"},
		Practitioner: scheduling.PractitionerSnapshot{ID: uuid.New(), DisplayName: "Dr. Grey"},
		Institution:  scheduling.InstitutionSnapshot{ID: uuid.New(), Name: "Mercy Clinic"},
		StartTime:    start,
		EndTime:      start.Add(30 * time.Minute),
		Status:       scheduling.StatusUpcoming,
	}
}

func TestService_ScheduleForVisit(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	v := testVisit(time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC))

	require.NoError(t, svc.ScheduleForVisit(ctx, v))
	list, _, err := repo.ListByPatient(ctx, v.Patient.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	r := list[0]
	assert.True(t, r.IsSystem)
	assert.Equal(t, v.ID, *r.VisitID)
	assert.Equal(t, Date{2025, 3, 10}, r.StartDate)
	assert.Nil(t, r.EndDate)
	assert.Equal(t, "13:30", r.ReminderTime.String())
	assert.Contains(t, r.Content, "Dr. Grey")

	require.NoError(t, svc.DeleteForVisit(ctx, v.ID))
	_, total, err := repo.ListByPatient(ctx, v.Patient.ID, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestService_ScheduleForVisit_ClampsToVisitDay(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	v := testVisit(time.Date(2025, 3, 10, 0, 30, 0, 0, time.UTC))

	require.NoError(t, svc.ScheduleForVisit(ctx, v))
	list, _, err := repo.ListByPatient(ctx, v.Patient.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, Date{2025, 3, 10}, list[0].StartDate)
	assert.Equal(t, "00:00", list[0].ReminderTime.String())
}

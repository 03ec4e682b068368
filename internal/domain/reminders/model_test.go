package reminders

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestTimeOfDay_Parse(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9, tod.Hour())
	assert.Equal(t, 30, tod.Minute())
	assert.Equal(t, "09:30", tod.String())

	for _, bad := range []string{"", "24:00", "9", "12:60", "noon"} {
		_, err := ParseTimeOfDay(bad)
		assert.ErrorIs(t, err, ErrInvalidTime, bad)
	}
}

func TestDate_JSON(t *testing.T) {
	var r struct {
		Day  Date      `json:"day"`
		Time TimeOfDay `json:"time"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"day":"2025-01-02","time":"07:05"}`), &r))
	assert.Equal(t, Date{Year: 2025, Month: time.January, Day: 2}, r.Day)
	assert.Equal(t, TimeOfDay(7*60+5), r.Time)

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"day":"2025-01-02","time":"07:05"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"day":"02/01/2025"}`), &r))
}

func TestReminder_Validate(t *testing.T) {
	end := Date{Year: 2024, Month: time.December, Day: 31}
	cases := []struct {
		name string
		r    Reminder
		ok   bool
	}{
		{"valid", Reminder{PatientID: uuid.New(), Title: "Pills", StartDate: Date{2025, 1, 1}, ReminderTime: 540}, true},
		{"no patient", Reminder{Title: "Pills", StartDate: Date{2025, 1, 1}}, false},
		{"blank title", Reminder{PatientID: uuid.New(), Title: "  ", StartDate: Date{2025, 1, 1}}, false},
		{"no start", Reminder{PatientID: uuid.New(), Title: "Pills"}, false},
		{"end before start", Reminder{PatientID: uuid.New(), Title: "Pills", StartDate: Date{2025, 1, 1}, EndDate: &end}, false},
		{"time out of range", Reminder{PatientID: uuid.New(), Title: "Pills", StartDate: Date{2025, 1, 1}, ReminderTime: 1440}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.r.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidReminder)
			}
		})
	}
}

func TestReminder_DueAt_Recurrence(t *testing.T) {
	end := mustDate(t, "2025-01-03")
	r := &Reminder{
		ID:           uuid.New(),
		PatientID:    uuid.New(),
		Title:        "Blood pressure",
		StartDate:    mustDate(t, "2025-01-01"),
		EndDate:      &end,
		ReminderTime: 9 * 60,
	}

	for _, day := range []string{"2025-01-01", "2025-01-02", "2025-01-03"} {
		at, _ := time.Parse(time.RFC3339, day+"T09:00:00Z")
		occ, ok := r.DueAt(at, time.UTC)
		require.True(t, ok, day)
		assert.Equal(t, at, occ.FireAt)
		assert.Equal(t, r.ID.String()+":"+day, occ.DedupKey)

		_, ok = r.DueAt(at.Add(-time.Minute), time.UTC)
		assert.False(t, ok, "before 09:00 on %s", day)
	}
	for _, day := range []string{"2024-12-31", "2025-01-04"} {
		at, _ := time.Parse(time.RFC3339, day+"T12:00:00Z")
		_, ok := r.DueAt(at, time.UTC)
		assert.False(t, ok, day)
	}
}

func TestReminder_DueAt_SingleDay(t *testing.T) {
	r := &Reminder{ID: uuid.New(), StartDate: mustDate(t, "2025-05-20"), ReminderTime: 8 * 60}
	_, ok := r.DueAt(time.Date(2025, 5, 20, 8, 0, 0, 0, time.UTC), time.UTC)
	assert.True(t, ok)
	_, ok = r.DueAt(time.Date(2025, 5, 21, 8, 0, 0, 0, time.UTC), time.UTC)
	assert.False(t, ok)
}

func TestReminder_DueAt_Location(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	r := &Reminder{ID: uuid.New(), StartDate: mustDate(t, "2025-01-01"), ReminderTime: 9 * 60}

	// 07:00Z is 09:00 local.
	occ, ok := r.DueAt(time.Date(2025, 1, 1, 7, 0, 0, 0, time.UTC), loc)
	require.True(t, ok)
	assert.True(t, occ.FireAt.Equal(time.Date(2025, 1, 1, 7, 0, 0, 0, time.UTC)))

	// 23:00Z on Dec 31 is already Jan 1 local, but before 09:00.
	_, ok = r.DueAt(time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC), loc)
	assert.False(t, ok)
}

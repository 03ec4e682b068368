package reminders

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/booking/internal/platform/notification"
	"github.com/ehr/booking/internal/platform/telemetry"
)

func seedDaily(t *testing.T, svc *Service) *Reminder {
	t.Helper()
	end := Date{2025, 1, 3}
	r := &Reminder{
		PatientID:    uuid.New(),
		Title:        "Pills",
		Content:      "Take two",
		StartDate:    Date{2025, 1, 1},
		EndDate:      &end,
		ReminderTime: 9 * 60,
	}
	require.NoError(t, svc.Create(context.Background(), r))
	return r
}

func TestDispatcher_PublishesOncePerDay(t *testing.T) {
	svc, _ := newTestService()
	r := seedDaily(t, svc)
	rec := &notification.Recorder{}
	d := NewDispatcher(svc, NewMemoryClaimer(), rec, nil, nil, zerolog.Nop())
	ctx := context.Background()

	n, err := d.DispatchDue(ctx, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = d.DispatchDue(ctx, time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = d.DispatchDue(ctx, time.Date(2025, 1, 2, 9, 5, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	events := rec.OfType(notification.EventReminderDue)
	require.Len(t, events, 2)
	assert.Equal(t, r.ID.String()+":2025-01-01", events[0].DedupKey)
	assert.Equal(t, r.ID.String()+":2025-01-02", events[1].DedupKey)
	assert.Equal(t, "Pills", events[0].Subject)
	assert.Equal(t, "Take two", events[0].Body)
	assert.Equal(t, r.PatientID, events[0].PatientID)
}

func TestDispatcher_RedisClaimSharedAcrossReplicas(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	svc, _ := newTestService()
	r := seedDaily(t, svc)
	rec := &notification.Recorder{}
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	a := NewDispatcher(svc, NewRedisClaimer(client), rec, nil, metrics, zerolog.Nop())
	b := NewDispatcher(svc, NewRedisClaimer(client), rec, nil, metrics, zerolog.Nop())

	at := time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC)
	na, err := a.DispatchDue(context.Background(), at)
	require.NoError(t, err)
	nb, err := b.DispatchDue(context.Background(), at)
	require.NoError(t, err)

	assert.Equal(t, 1, na+nb)
	assert.Len(t, rec.Events(), 1)
	assert.True(t, mr.Exists(claimPrefix+r.ID.String()+":2025-01-03"))
	assert.Greater(t, mr.TTL(claimPrefix+r.ID.String()+":2025-01-03"), time.Duration(0))
	// one "published" and one "duplicate" series
	assert.Equal(t, 2, testutil.CollectAndCount(reg, "booking_reminders_dispatched_total"))
}

func TestDispatcher_ReleasesClaimOnPublishFailure(t *testing.T) {
	svc, _ := newTestService()
	seedDaily(t, svc)
	rec := &notification.Recorder{ShouldFail: true}
	d := NewDispatcher(svc, NewMemoryClaimer(), rec, nil, nil, zerolog.Nop())
	at := time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)

	n, err := d.DispatchDue(context.Background(), at)
	assert.Error(t, err)
	assert.Zero(t, n)

	rec.ShouldFail = false
	n, err = d.DispatchDue(context.Background(), at)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDispatcher_RunStopsOnCancel(t *testing.T) {
	svc, _ := newTestService()
	d := NewDispatcher(svc, nil, &notification.Recorder{}, nil, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, 10*time.Millisecond) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

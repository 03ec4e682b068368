package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ehr/booking/internal/platform/notification"
	"github.com/ehr/booking/internal/platform/telemetry"
)

// Claimer grants one dispatcher the right to publish an occurrence.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

const claimPrefix = "reminder:claim:"

// RedisClaimer claims occurrences with SET NX so that several replicas
// polling the same store publish each occurrence once.
type RedisClaimer struct {
	client redis.Cmdable
}

func NewRedisClaimer(client redis.Cmdable) *RedisClaimer {
	return &RedisClaimer{client: client}
}

func (c *RedisClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, claimPrefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

func (c *RedisClaimer) Release(ctx context.Context, key string) error {
	return c.client.Del(ctx, claimPrefix+key).Err()
}

// MemoryClaimer is a process-local Claimer.
type MemoryClaimer struct {
	mu     sync.Mutex
	claims map[string]time.Time
	now    func() time.Time
}

func NewMemoryClaimer() *MemoryClaimer {
	return &MemoryClaimer{claims: make(map[string]time.Time), now: time.Now}
}

func (c *MemoryClaimer) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if exp, ok := c.claims[key]; ok && now.Before(exp) {
		return false, nil
	}
	c.claims[key] = now.Add(ttl)
	return true, nil
}

func (c *MemoryClaimer) Release(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.claims, key)
	c.mu.Unlock()
	return nil
}

// DefaultClaimTTL outlives the day an occurrence belongs to.
const DefaultClaimTTL = 48 * time.Hour

// Dispatcher publishes due reminder occurrences.
type Dispatcher struct {
	svc       *Service
	claimer   Claimer
	publisher notification.Publisher
	templates *notification.TemplateEngine
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
	ttl       time.Duration
	now       func() time.Time
}

func NewDispatcher(svc *Service, claimer Claimer, publisher notification.Publisher, templates *notification.TemplateEngine, metrics *telemetry.Metrics, logger zerolog.Logger) *Dispatcher {
	if claimer == nil {
		claimer = NewMemoryClaimer()
	}
	if templates == nil {
		templates = notification.NewTemplateEngine()
	}
	return &Dispatcher{
		svc:       svc,
		claimer:   claimer,
		publisher: publisher,
		templates: templates,
		metrics:   metrics,
		logger:    logger.With().Str("component", "reminder_dispatcher").Logger(),
		ttl:       DefaultClaimTTL,
		now:       time.Now,
	}
}

// SetClaimTTL overrides how long a claimed occurrence stays claimed. It must
// outlive the reminder day, or a restarted dispatcher fires it again.
func (d *Dispatcher) SetClaimTTL(ttl time.Duration) {
	if ttl > 0 {
		d.ttl = ttl
	}
}

// DispatchDue publishes every occurrence due at now that no dispatcher has
// claimed yet. Per-occurrence failures are logged and joined; the returned
// count is the number published.
func (d *Dispatcher) DispatchDue(ctx context.Context, now time.Time) (int, error) {
	due, err := d.svc.DueReminders(ctx, now)
	if err != nil {
		return 0, err
	}
	var errs []error
	published := 0
	for _, occ := range due {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		ok, err := d.dispatch(ctx, occ)
		if err != nil {
			d.metrics.ObserveReminder("error")
			d.logger.Warn().Err(err).Str("dedup_key", occ.DedupKey).Msg("reminder dispatch failed")
			errs = append(errs, err)
			continue
		}
		if !ok {
			d.metrics.ObserveReminder("duplicate")
			continue
		}
		d.metrics.ObserveReminder("published")
		published++
	}
	return published, errors.Join(errs...)
}

func (d *Dispatcher) dispatch(ctx context.Context, occ Occurrence) (bool, error) {
	claimed, err := d.claimer.Claim(ctx, occ.DedupKey, d.ttl)
	if err != nil || !claimed {
		return false, err
	}
	r := occ.Reminder
	evt, err := notification.NewEvent(d.templates, notification.EventReminderDue, r.PatientID, map[string]string{
		"title":       r.Title,
		"content":     r.Content,
		"reminder_id": r.ID.String(),
		"day":         occ.Day.String(),
	})
	if err == nil {
		evt.DedupKey = occ.DedupKey
		evt.OccurredAt = occ.FireAt.UTC()
		err = d.publisher.Publish(ctx, evt)
	}
	if err != nil {
		if rerr := d.claimer.Release(context.WithoutCancel(ctx), occ.DedupKey); rerr != nil {
			d.logger.Error().Err(rerr).Str("dedup_key", occ.DedupKey).Msg("release reminder claim")
		}
		return false, fmt.Errorf("publish %s: %w", occ.DedupKey, err)
	}
	return true, nil
}

// Run polls every interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	d.logger.Info().Dur("interval", interval).Msg("reminder dispatcher started")
	for {
		n, err := d.DispatchDue(ctx, d.now())
		if err != nil && ctx.Err() == nil {
			d.logger.Error().Err(err).Int("published", n).Msg("reminder dispatch pass")
		} else if n > 0 {
			d.logger.Info().Int("published", n).Msg("reminders published")
		}
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("reminder dispatcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

package notification

import (
	"context"

	"github.com/rs/zerolog"
)

// LogPublisher writes events to the service log. It is the development sink.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "notification").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.logger.Info().
		Str("event_id", ev.ID).
		Str("type", string(ev.Type)).
		Str("patient_id", ev.PatientID.String()).
		Str("dedup_key", ev.DedupKey).
		Str("subject", ev.Subject).
		Msg("notification published")
	return nil
}

// Package notification renders and publishes outbound patient notification
// events. Delivery to devices happens downstream of the configured sink.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names an outbound notification.
type EventType string

const (
	EventReminderDue    EventType = "reminder.due"
	EventVisitBooked    EventType = "visit.booked"
	EventVisitCancelled EventType = "visit.cancelled"
	EventVisitCompleted EventType = "visit.completed"
)

// Event is a single notification handed to a sink. DedupKey is stable for a
// given logical occurrence so consumers can drop redeliveries.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	PatientID  uuid.UUID         `json:"patient_id"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	DedupKey   string            `json:"dedup_key,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       map[string]string `json:"data,omitempty"`
}

// Publisher delivers events to a sink.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NewEvent renders the template registered for typ and stamps the event.
func NewEvent(tpl *TemplateEngine, typ EventType, patientID uuid.UUID, data map[string]string) (Event, error) {
	subject, body, err := tpl.Render(string(typ), data)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		PatientID:  patientID,
		Subject:    subject,
		Body:       body,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}, nil
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template defines a reusable notification template.
type Template struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      string(EventReminderDue),
			Subject: "{{title}}",
			Body:    "{{content}}",
		},
		{
			ID:      string(EventVisitBooked),
			Subject: "Visit booked with {{practitioner}}",
			Body:    "Your visit at {{institution}} with {{practitioner}} is booked for {{date}} at {{time}}.",
		},
		{
			ID:      string(EventVisitCancelled),
			Subject: "Visit cancelled",
			Body:    "Your visit with {{practitioner}} on {{date}} at {{time}} has been cancelled.",
		},
		{
			ID:      string(EventVisitCompleted),
			Subject: "Visit completed",
			Body:    "Your visit with {{practitioner}} on {{date}} is complete. You can now leave a review.",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Recorder (test double)
// ---------------------------------------------------------------------------

// Recorder keeps published events in memory.
type Recorder struct {
	mu         sync.Mutex
	events     []Event
	ShouldFail bool
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ShouldFail {
		return fmt.Errorf("recorder: publish %s failed", ev.Type)
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of one type.
func (r *Recorder) OfType(typ EventType) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

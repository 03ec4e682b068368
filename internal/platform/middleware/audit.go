package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/booking/internal/platform/auth"
)

// AuditEntry records who changed which patient-facing resource.
type AuditEntry struct {
	ActorID    string
	ActorRoles []string
	Action     string
	Resource   string
	ResourceID string
	PatientID  string
	Route      string
	Method     string
	StatusCode int
	RequestID  string
	RemoteIP   string
	Timestamp  time.Time
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every state-changing request under /api/v1/, and hands the
// entry to recorder when one is given.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method == http.MethodGet || req.Method == http.MethodHead ||
				!strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			resource, resourceID := resourceOf(req.URL.Path)
			entry := AuditEntry{
				ActorID:    auth.ActorIDFromContext(req.Context()),
				ActorRoles: auth.RolesFromContext(req.Context()),
				Action:     actionOf(req.Method, req.URL.Path),
				Resource:   resource,
				ResourceID: resourceID,
				Route:      c.Path(),
				Method:     req.Method,
				StatusCode: status,
				RemoteIP:   c.RealIP(),
				Timestamp:  time.Now().UTC(),
			}
			if resource == "patients" {
				entry.PatientID = resourceID
			}
			entry.RequestID, _ = c.Get("request_id").(string)

			if recorder != nil {
				if recErr := recorder.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("actor_id", entry.ActorID).
				Strs("actor_roles", entry.ActorRoles).
				Str("action", entry.Action).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("patient_id", entry.PatientID).
				Str("route", entry.Route).
				Int("status", entry.StatusCode).
				Msg("state change")

			return err
		}
	}
}

// actionVerbs are trailing route segments that name an operation.
var actionVerbs = map[string]bool{"cancel": true, "complete": true, "read": true, "review": true, "note": true}

// actionOf names the operation: the verb of action routes such as
// /visits/:id/cancel, otherwise the method's CRUD name.
func actionOf(method, path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if last := segments[len(segments)-1]; actionVerbs[last] {
		return last
	}
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

// resourceOf splits /api/v1/<resource>/<id>/... into resource and id.
func resourceOf(path string) (string, string) {
	segments := strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")
	resource := segments[0]
	if resource == "" {
		resource = "unknown"
	}
	if len(segments) > 1 {
		if _, err := uuid.Parse(segments[1]); err == nil {
			return resource, segments[1]
		}
	}
	return resource, ""
}

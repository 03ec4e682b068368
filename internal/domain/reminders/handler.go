package reminders

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/booking/internal/platform/apperr"
	"github.com/ehr/booking/internal/platform/auth"
	"github.com/ehr/booking/pkg/pagination"
)

type Handler struct {
	svc *Service
	now func() time.Time
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RolePatient))
	g.GET("/patients/:id/reminders", h.ListForPatient)
	g.POST("/patients/:id/reminders", h.Create)
	g.POST("/patients/:id/reminders/read", h.MarkAllRead)
	g.DELETE("/reminders/:id", h.Delete)
	g.POST("/reminders/:id/read", h.MarkRead)

	ops := api.Group("", auth.RequireRole(auth.RoleScheduler))
	ops.GET("/reminders/due", h.Due)
}

type createRequest struct {
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	StartDate    Date      `json:"start_date"`
	EndDate      *Date     `json:"end_date"`
	ReminderTime *TimeOfDay `json:"reminder_time"`
}

func (h *Handler) Create(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "start_date must be YYYY-MM-DD and reminder_time HH:MM")
	}
	// Midnight is a valid time, so a missing field must be caught here.
	if req.ReminderTime == nil {
		return apperr.ToHTTP(ErrInvalidReminder)
	}
	r := &Reminder{
		PatientID:    patientID,
		Title:        req.Title,
		Content:      req.Content,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		ReminderTime: *req.ReminderTime,
	}
	if err := h.svc.Create(c.Request().Context(), r); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) ListForPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path))
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) MarkRead(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.MarkRead(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	n, err := h.svc.MarkAllRead(c.Request().Context(), patientID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"updated": n})
}

// Due lists occurrences due at ?as_of (RFC3339), defaulting to now.
func (h *Handler) Due(c echo.Context) error {
	asOf := h.now()
	if raw := c.QueryParam("as_of"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "as_of must be RFC3339")
		}
		asOf = t
	}
	due, err := h.svc.DueReminders(c.Request().Context(), asOf)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"as_of": asOf.UTC(),
		"data":  due,
		"total": len(due),
	})
}

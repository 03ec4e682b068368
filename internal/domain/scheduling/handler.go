package scheduling

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
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Slot reads are public to any caller with an actor identity.
	api.GET("/practitioners/:id/slots", h.ListFreeSlots)
	api.GET("/slots/:id", h.GetSlot)

	// Slot generation job
	api.POST("/slots", h.CreateSlots, auth.RequireRole(auth.RoleScheduler))

	patient := api.Group("", auth.RequireRole(auth.RolePatient))
	patient.POST("/visits", h.Book)

	participants := api.Group("", auth.RequireRole(auth.RolePatient, auth.RolePractitioner))
	participants.GET("/visits/:id", h.GetVisit)
	participants.GET("/patients/:id/visits", h.ListVisitsForPatient)
	participants.POST("/visits/:id/cancel", h.Cancel)

	doctor := api.Group("", auth.RequireRole(auth.RolePractitioner))
	doctor.PUT("/visits/:id/note", h.AttachNote)
	doctor.POST("/visits/:id/complete", h.Complete)
	doctor.POST("/visits/:id/codes", h.IssueCode)
	doctor.PUT("/visits/:id/codes/:code", h.SetCodeActive)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// parseDay accepts a calendar date or a full RFC 3339 timestamp. A bare date
// stands for the start of that day in UTC, or its end when endOfDay is set.
func parseDay(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		if endOfDay {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// -- Slot Handlers --

// ListFreeSlots lists free slots starting between from and to. A bare date in
// to includes that whole day; a timestamp is exclusive.
func (h *Handler) ListFreeSlots(c echo.Context) error {
	practitionerID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	from, err := parseDay(c.QueryParam("from"), false)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "from must be YYYY-MM-DD or RFC 3339")
	}
	to, err := parseDay(c.QueryParam("to"), true)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "to must be YYYY-MM-DD or RFC 3339")
	}
	slots, err := h.svc.ListFreeSlots(c.Request().Context(), practitionerID, from, to)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if slots == nil {
		slots = []*Slot{}
	}
	return c.JSON(http.StatusOK, slots)
}

func (h *Handler) GetSlot(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	slot, err := h.svc.GetSlot(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, slot)
}

func (h *Handler) CreateSlots(c echo.Context) error {
	var slots []*Slot
	if err := c.Bind(&slots); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateSlots(c.Request().Context(), slots); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, slots)
}

// -- Visit Handlers --

// Book books for patient_id, or for the calling actor when the body omits it.
func (h *Handler) Book(c echo.Context) error {
	var req BookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PatientID == uuid.Nil {
		if actor, err := uuid.Parse(auth.ActorIDFromContext(c.Request().Context())); err == nil {
			req.PatientID = actor
		}
	}
	v, err := h.svc.Book(c.Request().Context(), req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) GetVisit(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	v, err := h.svc.GetVisit(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListVisitsForPatient(c echo.Context) error {
	patientID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListVisitsForPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	actor := auth.ActorIDFromContext(c.Request().Context())
	if err := h.svc.Cancel(c.Request().Context(), id, actor); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type noteRequest struct {
	Note string `json:"note"`
}

func (h *Handler) AttachNote(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req noteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.AttachNote(c.Request().Context(), id, req.Note)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}

type completeRequest struct {
	Note *string `json:"note"`
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req completeRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	v, err := h.svc.Complete(c.Request().Context(), id, req.Note)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}

type issueCodeRequest struct {
	Kind CodeKind `json:"kind"`
	Code string   `json:"code"`
}

func (h *Handler) IssueCode(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req issueCodeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.IssueCode(c.Request().Context(), id, req.Kind, req.Code)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, v)
}

type codeStateRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) SetCodeActive(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req codeStateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.SetCodeActive(c.Request().Context(), id, c.Param("code"), req.Active)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}

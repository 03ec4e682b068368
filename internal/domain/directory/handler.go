package directory

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/booking/internal/platform/apperr"
	"github.com/ehr/booking/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/practitioners/:id", h.GetPractitioner)
	api.GET("/practitioners/:id/rating", h.GetPractitionerRating)
	api.GET("/institutions/:id", h.GetInstitution)
	api.GET("/institutions/:id/rating", h.GetInstitutionRating)

	// Registry sync from the profile service.
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/practitioners", h.CreatePractitioner)
	admin.POST("/institutions", h.CreateInstitution)
	admin.POST("/patients", h.CreatePatient)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) CreatePractitioner(c echo.Context) error {
	var p Practitioner
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePractitioner(c.Request().Context(), &p); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPractitioner(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPractitioner(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreateInstitution(c echo.Context) error {
	var i Institution
	if err := c.Bind(&i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateInstitution(c.Request().Context(), &i); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, i)
}

func (h *Handler) GetInstitution(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	i, err := h.svc.GetInstitution(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, i)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPractitionerRating(c echo.Context) error {
	return h.rating(c, SubjectPractitioner)
}

func (h *Handler) GetInstitutionRating(c echo.Context) error {
	return h.rating(c, SubjectInstitution)
}

func (h *Handler) rating(c echo.Context, kind SubjectKind) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	agg, err := h.svc.RatingView(c.Request().Context(), Subject{Kind: kind, ID: id})
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, agg)
}

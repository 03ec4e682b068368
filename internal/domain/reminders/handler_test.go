package reminders

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/booking/internal/platform/auth"
)

func newTestRouter(svc *Service) *echo.Echo {
	e := echo.New()
	e.Use(auth.ActorMiddleware(false))
	NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))
	return e
}

func do(e *echo.Echo, method, path, body, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(auth.HeaderActorID, uuid.NewString())
	req.Header.Set(auth.HeaderActorRole, role)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_CreateListAndRead(t *testing.T) {
	svc, _ := newTestService()
	e := newTestRouter(svc)
	patient := uuid.NewString()

	rec := do(e, http.MethodPost, "/api/v1/patients/"+patient+"/reminders",
		`{"title":"Pills","start_date":"2025-01-01","end_date":"2025-01-03","reminder_time":"09:00"}`, auth.RolePatient)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Reminder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "09:00", created.ReminderTime.String())

	rec = do(e, http.MethodGet, "/api/v1/patients/"+patient+"/reminders", "", auth.RolePatient)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	rec = do(e, http.MethodPost, "/api/v1/reminders/"+created.ID.String()+"/read", "", auth.RolePatient)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(e, http.MethodPost, "/api/v1/patients/"+patient+"/reminders/read", "", auth.RolePatient)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":0}`, rec.Body.String())

	rec = do(e, http.MethodDelete, "/api/v1/reminders/"+created.ID.String(), "", auth.RolePatient)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(e, http.MethodDelete, "/api/v1/reminders/"+created.ID.String(), "", auth.RolePatient)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_CreateInvalid(t *testing.T) {
	svc, _ := newTestService()
	e := newTestRouter(svc)
	path := "/api/v1/patients/" + uuid.NewString() + "/reminders"

	rec := do(e, http.MethodPost, path, `{"title":"Pills","start_date":"2025-01-01","reminder_time":"25:00"}`, auth.RolePatient)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, path, `{"title":"Pills","start_date":"2025-01-05","end_date":"2025-01-01","reminder_time":"09:00"}`, auth.RolePatient)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_reminder")

	rec = do(e, http.MethodPost, path, `{"title":"Pills","start_date":"2025-01-01"}`, auth.RolePatient)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_reminder")
	assert.NotContains(t, rec.Body.String(), "00:00")

	rec = do(e, http.MethodPost, path, `{"title":"Pills","start_date":"2025-01-01","reminder_time":"00:00"}`, auth.RolePatient)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"reminder_time":"00:00"`)
}

func TestHandler_Due(t *testing.T) {
	svc, _ := newTestService()
	e := newTestRouter(svc)
	seedDaily(t, svc)

	rec := do(e, http.MethodGet, "/api/v1/reminders/due?as_of=2025-01-02T09:00:00Z", "", auth.RoleScheduler)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Total int          `json:"total"`
		Data  []Occurrence `json:"data"`
		AsOf  time.Time    `json:"as_of"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, Date{2025, 1, 2}, body.Data[0].Day)

	rec = do(e, http.MethodGet, "/api/v1/reminders/due?as_of=yesterday", "", auth.RoleScheduler)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/reminders/due", "", auth.RolePatient)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

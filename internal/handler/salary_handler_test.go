package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/center-ops-api/internal/models"
	"github.com/noah-isme/center-ops-api/internal/service"
	"github.com/noah-isme/center-ops-api/internal/store"
)

func newSalaryHandler(t *testing.T) (*store.Memory, *SalaryHandler) {
	t.Helper()
	mem := store.NewMemory(500, 10)
	exec := store.NewExecutor(mem, nil)
	svc := service.NewSalaryService(mem, exec, nil, service.SalaryConfig{
		TeachingRate:     200000,
		WorkDaysPerMonth: 22,
	}, nil, nil)
	return mem, NewSalaryHandler(svc)
}

func testContext(t *testing.T, method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, target, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func seedTeacherWithSessions(t *testing.T, mem *store.Memory) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, models.CollectionStaff, "st1",
		models.Staff{ID: "st1", FullName: "Lan", Position: models.PositionTeacher, Status: models.StaffStatusActive, BaseSalary: 8000000}))
	require.NoError(t, mem.Set(ctx, models.CollectionWorkSessions, "ws1",
		models.WorkSession{ID: "ws1", StaffID: "st1", Date: "2024-03-04", Status: models.WorkSessionStatusConfirmed}))
}

func TestSalaryHandlerRecompute(t *testing.T) {
	mem, h := newSalaryHandler(t)
	seedTeacherWithSessions(t, mem)

	body, _ := json.Marshal(service.RecomputeRequest{StaffID: "st1", Month: 3, Year: 2024})
	c, w := testContext(t, http.MethodPost, "/salaries/recompute", body)

	h.Recompute(c)
	require.Equal(t, http.StatusOK, w.Code)

	_, err := mem.Get(context.Background(), models.CollectionSalarySummaries, "st1:2024-03")
	assert.NoError(t, err)
}

func TestSalaryHandlerRecomputeInvalidBody(t *testing.T) {
	_, h := newSalaryHandler(t)
	c, w := testContext(t, http.MethodPost, "/salaries/recompute", []byte(`not json`))

	h.Recompute(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSalaryHandlerRecomputeUnknownStaff(t *testing.T) {
	_, h := newSalaryHandler(t)
	body, _ := json.Marshal(service.RecomputeRequest{StaffID: "ghost", Month: 3, Year: 2024})
	c, w := testContext(t, http.MethodPost, "/salaries/recompute", body)

	h.Recompute(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSalaryHandlerRecomputeAll(t *testing.T) {
	mem, h := newSalaryHandler(t)
	seedTeacherWithSessions(t, mem)

	body, _ := json.Marshal(service.PeriodRequest{Month: 3, Year: 2024})
	c, w := testContext(t, http.MethodPost, "/salaries/recompute-all", body)

	h.RecomputeAll(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data struct {
			Generated int `json:"generated"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, 1, envelope.Data.Generated)
}

func TestSalaryHandlerList(t *testing.T) {
	mem, h := newSalaryHandler(t)
	require.NoError(t, mem.Set(context.Background(), models.CollectionSalarySummaries, "st1:2024-03",
		models.SalarySummary{ID: "st1:2024-03", StaffID: "st1", StaffName: "Lan", Month: 3, Year: 2024}))

	c, w := testContext(t, http.MethodGet, "/salaries?month=3&year=2024", nil)

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data []models.SalarySummary `json:"data"`
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "Lan", envelope.Data[0].StaffName)
	assert.Equal(t, float64(1), envelope.Meta["count"])
}

func TestSalaryHandlerListRejectsBadPeriod(t *testing.T) {
	_, h := newSalaryHandler(t)
	c, w := testContext(t, http.MethodGet, "/salaries?month=13", nil)

	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSalaryHandlerExportCSV(t *testing.T) {
	mem, h := newSalaryHandler(t)
	require.NoError(t, mem.Set(context.Background(), models.CollectionSalarySummaries, "st1:2024-03",
		models.SalarySummary{ID: "st1:2024-03", StaffID: "st1", StaffName: "Lan", Month: 3, Year: 2024, TotalNet: 600000}))

	c, w := testContext(t, http.MethodGet, "/salaries/export?month=3&year=2024", nil)

	h.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "salaries_2024-03.csv")
	assert.Contains(t, w.Body.String(), "Lan")
}

func TestSalaryHandlerExportUnsupportedFormat(t *testing.T) {
	_, h := newSalaryHandler(t)
	c, w := testContext(t, http.MethodGet, "/salaries/export?month=3&year=2024&format=xlsx", nil)

	h.Export(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

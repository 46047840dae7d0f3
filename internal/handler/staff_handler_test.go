package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/center-ops-api/internal/models"
	"github.com/noah-isme/center-ops-api/internal/service"
	"github.com/noah-isme/center-ops-api/internal/store"
)

func TestStaffHandlerMigrate(t *testing.T) {
	mem := store.NewMemory(500, 10)
	h := NewStaffHandler(service.NewStaffService(mem, nil, nil))
	require.NoError(t, mem.Set(context.Background(), models.CollectionStaff, "old-1",
		models.Staff{ID: "old-1", FullName: "Lan"}))

	body, _ := json.Marshal(service.MigrateRequest{NewID: "new-1"})
	c, w := testContext(t, http.MethodPost, "/staff/old-1/migrate", body)
	c.Params = gin.Params{{Key: "id", Value: "old-1"}}

	h.Migrate(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data service.MigrationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "old-1", envelope.Data.OldID)
	assert.Equal(t, "new-1", envelope.Data.NewID)

	_, err := mem.Get(context.Background(), models.CollectionStaff, "new-1")
	assert.NoError(t, err)
}

func TestStaffHandlerMigrateInvalidBody(t *testing.T) {
	mem := store.NewMemory(500, 10)
	h := NewStaffHandler(service.NewStaffService(mem, nil, nil))

	c, w := testContext(t, http.MethodPost, "/staff/old-1/migrate", []byte(`{`))
	c.Params = gin.Params{{Key: "id", Value: "old-1"}}

	h.Migrate(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStaffHandlerMigrateConflict(t *testing.T) {
	mem := store.NewMemory(500, 10)
	h := NewStaffHandler(service.NewStaffService(mem, nil, nil))
	require.NoError(t, mem.Set(context.Background(), models.CollectionStaff, "old-1", models.Staff{ID: "old-1"}))
	require.NoError(t, mem.Set(context.Background(), models.CollectionStaff, "new-1", models.Staff{ID: "new-1"}))

	body, _ := json.Marshal(service.MigrateRequest{NewID: "new-1"})
	c, w := testContext(t, http.MethodPost, "/staff/old-1/migrate", body)
	c.Params = gin.Params{{Key: "id", Value: "old-1"}}

	h.Migrate(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

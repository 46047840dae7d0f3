package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/center-ops-api/internal/service"
	appErrors "github.com/noah-isme/center-ops-api/pkg/errors"
	"github.com/noah-isme/center-ops-api/pkg/response"
)

// StaffHandler exposes staff identity endpoints.
type StaffHandler struct {
	staff *service.StaffService
}

// NewStaffHandler constructs a staff handler.
func NewStaffHandler(staff *service.StaffService) *StaffHandler {
	return &StaffHandler{staff: staff}
}

// Migrate moves a staff member and all referencing documents to a new ID.
func (h *StaffHandler) Migrate(c *gin.Context) {
	var req service.MigrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code,
			appErrors.CategoryInvalidArgument, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.staff.Migrate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

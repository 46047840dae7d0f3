package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/center-ops-api/internal/service"
	appErrors "github.com/noah-isme/center-ops-api/pkg/errors"
	"github.com/noah-isme/center-ops-api/pkg/export"
	"github.com/noah-isme/center-ops-api/pkg/response"
)

// SalaryHandler exposes the salary recompute and reporting endpoints.
type SalaryHandler struct {
	salaries *service.SalaryService
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
}

// NewSalaryHandler constructs a salary handler.
func NewSalaryHandler(salaries *service.SalaryService) *SalaryHandler {
	return &SalaryHandler{
		salaries: salaries,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
	}
}

// Recompute rebuilds one staff member's summary for a period.
func (h *SalaryHandler) Recompute(c *gin.Context) {
	var req service.RecomputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code,
			appErrors.CategoryInvalidArgument, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.salaries.RecomputeOne(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"staffId": req.StaffID, "period": fmt.Sprintf("%04d-%02d", req.Year, req.Month)})
}

// RecomputeAll rebuilds every active staff member's summary for a period.
func (h *SalaryHandler) RecomputeAll(c *gin.Context) {
	var req service.PeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code,
			appErrors.CategoryInvalidArgument, http.StatusBadRequest, "invalid payload"))
		return
	}
	generated, err := h.salaries.RecomputePeriod(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"generated": generated})
}

// List returns the summaries of a period, defaulting to the current month.
func (h *SalaryHandler) List(c *gin.Context) {
	month, year, err := periodParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	summaries, err := h.salaries.List(c.Request.Context(), month, year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summaries, map[string]interface{}{
		"month": month,
		"year":  year,
		"count": len(summaries),
	})
}

// Export downloads the period listing as CSV or PDF.
func (h *SalaryHandler) Export(c *gin.Context) {
	month, year, err := periodParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	dataset, title, err := h.salaries.ExportDataset(c.Request.Context(), month, year)
	if err != nil {
		response.Error(c, err)
		return
	}

	format := c.DefaultQuery("format", "csv")
	filename := fmt.Sprintf("salaries_%04d-%02d.%s", year, month, format)
	switch format {
	case "csv":
		body, err := h.csv.Render(dataset)
		if err != nil {
			response.Error(c, appErrors.Internal(err, "render csv"))
			return
		}
		response.Blob(c, "text/csv", filename, body)
	case "pdf":
		body, err := h.pdf.Render(dataset, title)
		if err != nil {
			response.Error(c, appErrors.Internal(err, "render pdf"))
			return
		}
		response.Blob(c, "application/pdf", filename, body)
	default:
		response.Error(c, appErrors.New("UNSUPPORTED_FORMAT", appErrors.CategoryInvalidArgument,
			http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format)))
	}
}

func periodParams(c *gin.Context) (month, year int, err error) {
	now := time.Now().UTC()
	month, year = int(now.Month()), now.Year()
	if raw := c.Query("month"); raw != "" {
		parsed, convErr := strconv.Atoi(raw)
		if convErr != nil || parsed < 1 || parsed > 12 {
			return 0, 0, appErrors.Clone(appErrors.ErrValidation, "month must be 1..12")
		}
		month = parsed
	}
	if raw := c.Query("year"); raw != "" {
		parsed, convErr := strconv.Atoi(raw)
		if convErr != nil || parsed < 2000 || parsed > 2100 {
			return 0, 0, appErrors.Clone(appErrors.ErrValidation, "year must be 2000..2100")
		}
		year = parsed
	}
	return month, year, nil
}

package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academia-api/internal/dto"
	"github.com/noah-isme/academia-api/internal/middleware"
	"github.com/noah-isme/academia-api/internal/service"
	"github.com/noah-isme/academia-api/pkg/response"
)

type reportService interface {
	StudentReport(ctx context.Context, studentID string) (*dto.StudentReport, bool, bool, error)
}

type exportService interface {
	StudentReport(ctx context.Context, studentID string, format service.ExportFormat) (*service.ExportFile, error)
}

// ReportHandler serves student reports.
type ReportHandler struct {
	reports reportService
	exports exportService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports reportService, exports exportService) *ReportHandler {
	return &ReportHandler{reports: reports, exports: exports}
}

// StudentReport godoc
// @Summary Student report
// @Description Course titles in enrollment order and the average of recorded grades. Students without enrollments answer 404 with detail "no enrollments".
// @Tags Reports
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope{data=dto.StudentReport}
// @Failure 404 {object} response.Envelope{data=dto.StudentReport}
// @Router /students/{id}/report [get]
func (h *ReportHandler) StudentReport(c *gin.Context) {
	id, ok := pathID(c, studentNotFound)
	if !ok {
		return
	}
	report, enrolled, cacheHit, err := h.reports.StudentReport(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	status := http.StatusOK
	if !enrolled {
		status = http.StatusNotFound
	}
	response.JSON(c, status, report, nil, middleware.ExtractMeta(c))
}

// ExportStudentReport godoc
// @Summary Download student report
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Student ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/report/export [get]
func (h *ReportHandler) ExportStudentReport(c *gin.Context) {
	id, ok := pathID(c, studentNotFound)
	if !ok {
		return
	}
	format := service.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(service.ExportFormatCSV))))
	file, err := h.exports.StudentReport(c.Request.Context(), id, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

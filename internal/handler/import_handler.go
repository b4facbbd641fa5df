package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-eval-api/internal/service"
	appErrors "github.com/noah-isme/course-eval-api/pkg/errors"
	"github.com/noah-isme/course-eval-api/pkg/response"
)

const maxImportBody = 32 << 20

type jsonImporter interface {
	ImportJSON(ctx context.Context, semesterID string, raw []byte) (*service.ImportReport, error)
}

// ImportHandler accepts campus management exports.
type ImportHandler struct {
	importer jsonImporter
}

// NewImportHandler constructs the handler.
func NewImportHandler(importer jsonImporter) *ImportHandler {
	return &ImportHandler{importer: importer}
}

// Import godoc
// @Summary Import a campus management JSON export into a semester
// @Tags Import
// @Accept json
// @Produce json
// @Param semesterId path string true "Semester ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /semesters/{semesterId}/imports [post]
func (h *ImportHandler) Import(c *gin.Context) {
	semesterID := strings.TrimSpace(c.Param("semesterId"))
	if semesterID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "semesterId is required"))
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBody)
	raw, err := c.GetRawData()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unable to read import payload"))
		return
	}

	report, err := h.importer.ImportJSON(c.Request.Context(), semesterID, raw)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, report.Response())
}

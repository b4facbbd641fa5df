package handler

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/course-eval-api/pkg/errors"
	"github.com/noah-isme/course-eval-api/pkg/response"
)

var reportContentTypes = map[string]string{
	".txt": "text/plain; charset=utf-8",
	".csv": "text/csv; charset=utf-8",
	".pdf": "application/pdf",
}

type reportOpener interface {
	Open(filename string) (*os.File, error)
}

// ArchiveHandler serves archived import reports.
type ArchiveHandler struct {
	storage reportOpener
}

// NewArchiveHandler constructs the handler. storage may be nil when archiving is disabled.
func NewArchiveHandler(storage reportOpener) *ArchiveHandler {
	return &ArchiveHandler{storage: storage}
}

// Download godoc
// @Summary Download an archived import report
// @Tags Import
// @Produce octet-stream
// @Param semesterId path string true "Semester ID"
// @Param file path string true "Report file, e.g. 20240301T123000Z.pdf"
// @Success 200
// @Router /semesters/{semesterId}/imports/reports/{file} [get]
func (h *ArchiveHandler) Download(c *gin.Context) {
	if h.storage == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "report archive is not configured"))
		return
	}
	semesterID := c.Param("semesterId")
	name := c.Param("file")
	contentType, ok := reportContentTypes[path.Ext(name)]
	if !ok || strings.ContainsAny(name, `/\`) || strings.ContainsAny(semesterID, `/\`) || strings.HasPrefix(semesterID, ".") {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid report file"))
		return
	}

	file, err := h.storage.Open(path.Join(semesterID, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "report not found"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open report"))
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat report"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", name))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}

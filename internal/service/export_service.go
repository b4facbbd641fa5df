package service

import (
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/noah-isme/course-eval-api/pkg/export"
)

type reportStorage interface {
	Save(filename string, data []byte) (string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

// ExportService renders import reports as text, CSV and PDF and stores them per semester.
type ExportService struct {
	storage reportStorage
	csv     csvRenderer
	pdf     pdfRenderer
	logger  *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(storage reportStorage, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{storage: storage, csv: csv, pdf: pdf, logger: logger}
}

// Archive writes <semester>/<timestamp>.{txt,csv,pdf} and returns the stored paths.
func (s *ExportService) Archive(ctx context.Context, report *ImportReport) ([]string, error) {
	if report == nil {
		return nil, fmt.Errorf("report is nil")
	}
	if s.storage == nil {
		return nil, nil
	}

	doc := report.Document()
	csvPayload, err := s.csv.Render(export.DatasetFromDocument(doc))
	if err != nil {
		return nil, fmt.Errorf("render report csv: %w", err)
	}
	pdfPayload, err := s.pdf.Render(doc)
	if err != nil {
		return nil, fmt.Errorf("render report pdf: %w", err)
	}

	base := path.Join(report.SemesterID, report.FinishedAt.UTC().Format("20060102T150405Z"))
	files := []struct {
		ext  string
		data []byte
	}{
		{ext: ".txt", data: []byte(report.Log())},
		{ext: ".csv", data: csvPayload},
		{ext: ".pdf", data: pdfPayload},
	}

	stored := make([]string, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		rel, err := s.storage.Save(base+f.ext, f.data)
		if err != nil {
			return stored, fmt.Errorf("store report %s: %w", f.ext, err)
		}
		stored = append(stored, rel)
	}
	s.logger.Debug("import report archived", zap.Strings("files", stored))
	return stored, nil
}

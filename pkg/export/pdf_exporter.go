package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Section is a headed block of report lines.
type Section struct {
	Heading string
	Total   int
	Items   []string
}

// Document is a titled report made of sections.
type Document struct {
	Title    string
	Subtitle string
	Sections []Section
}

// PDFExporter renders sectioned reports into a simple PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// core fonts are cp1252; arrows and dashes outside of it are spelled out first
var pdfReplacer = strings.NewReplacer("→", "->", "–", "-")

// Render creates a PDF document with a title, an optional subtitle and one block per section.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	if len(doc.Sections) == 0 {
		return nil, fmt.Errorf("pdf requires at least one section")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	text := func(s string) string { return tr(pdfReplacer.Replace(s)) }

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, text(strings.ToUpper(doc.Title)), "", 1, "C", false, 0, "")
	}
	if doc.Subtitle != "" {
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 6, text(doc.Subtitle), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	for _, section := range doc.Sections {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 8, text(fmt.Sprintf("%s (%d in total)", section.Heading, section.Total)), "B", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for _, item := range section.Items {
			pdf.MultiCell(0, 5, text("- "+item), "", "", false)
		}
		pdf.Ln(3)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

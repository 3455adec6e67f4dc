package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// landscapeColumns is the column count above which pages turn landscape.
const landscapeColumns = 8

// PDFExporter renders a Dataset as a single-table PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render lays the dataset out on A4 pages, repeating the header row on
// every page.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate(); err != nil {
		return nil, err
	}
	orientation, usable := "P", 190.0
	if len(data.Headers) > landscapeColumns {
		orientation, usable = "L", 277.0
	}
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	colWidth := usable / float64(len(data.Headers))
	fontSize := 9.0
	if colWidth < 18 {
		fontSize = 7
	}
	header := func() {
		pdf.SetFont("Arial", "B", fontSize)
		pdf.SetFillColor(230, 230, 230)
		for _, h := range data.Headers {
			pdf.CellFormat(colWidth, 7, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", fontSize)
	}
	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() > 1 {
			header()
		}
	})

	pdf.AddPage()
	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 9, tr(data.Title), "", 1, "C", false, 0, "")
	}
	if len(data.Notes) > 0 {
		pdf.SetFont("Arial", "", 9)
		for _, note := range data.Notes {
			pdf.CellFormat(0, 5, tr(note), "", 1, "C", false, 0, "")
		}
	}
	pdf.Ln(3)
	header()

	for _, row := range data.Rows {
		for _, value := range data.record(row) {
			pdf.CellFormat(colWidth, 6, tr(value), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

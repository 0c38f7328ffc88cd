package export

import (
	"bytes"

	"github.com/go-pdf/fpdf"
)

// CasesPDF renders a project's test cases as a PDF document.
func CasesPDF(projectName, cases string) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle("Casos de Prueba - "+projectName, true)
	doc.SetAutoPageBreak(true, 15)
	doc.AddPage()
	tr := doc.UnicodeTranslatorFromDescriptor("")

	doc.SetFont("Arial", "B", 16)
	doc.MultiCell(0, 8, tr("Casos de Prueba: "+projectName), "", "L", false)
	doc.Ln(4)

	for _, b := range blocksFromMarkdown(cases) {
		if b.heading {
			doc.SetFont("Arial", "B", 12)
		} else {
			doc.SetFont("Arial", "", 11)
		}
		doc.MultiCell(0, 6, tr(b.text), "", "L", false)
		doc.Ln(2)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

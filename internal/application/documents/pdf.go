package documents

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"cdv-engine/internal/domain"

	"github.com/jung-kurt/gofpdf"
)

// CertificateDocument is everything printed on a certificate.
type CertificateDocument struct {
	Certificate   domain.Certificate
	ProjectTitle  string
	QuotaCodes    []string
	ValidationURL string
}

// RenderCertificate draws the certificate as a single landscape A4 page.
func RenderCertificate(doc CertificateDocument) ([]byte, error) {
	c := doc.Certificate
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 18, 20)
	pdf.SetTitle(c.Number, true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetDrawColor(46, 125, 50)
	pdf.SetLineWidth(1.2)
	pdf.Rect(10, 10, 277, 190, "D")

	pdf.SetFont("Helvetica", "B", 22)
	pdf.SetTextColor(46, 125, 50)
	pdf.CellFormat(0, 14, tr("Certificado Digital Verde"), "", 1, "C", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 7, tr(fmt.Sprintf("Nº %s", c.Number)), "", 1, "C", false, 0, "")
	if c.Consolidated {
		pdf.CellFormat(0, 6, tr("Certificado consolidado"), "", 1, "C", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 12)
	holder := safeValue(c.InvestorName)
	if c.InvestorTaxID != "" {
		holder = fmt.Sprintf("%s (%s)", holder, c.InvestorTaxID)
	}
	pdf.MultiCell(0, 7, tr(fmt.Sprintf(
		"Certificamos que %s detém %d cota(s) do projeto %s, com impacto ambiental comprovado no período de %s a %s.",
		holder, len(doc.QuotaCodes), safeValue(doc.ProjectTitle), formatDate(c.PeriodStart), formatDate(c.PeriodEnd),
	)), "", "C", false)
	pdf.Ln(6)

	headers := []string{"Resíduos (kg)", "Educação ambiental (min)", "Produtos", "CO2 evitado (kg)"}
	values := []string{
		formatInt(c.TotalWasteKg),
		formatInt(c.TotalEducationMin),
		formatInt(c.TotalProducts),
		formatInt(c.TotalCO2Kg),
	}
	widths := []float64{59, 59, 59, 59}
	left := (297 - 236) / 2.0
	pdf.SetX(left)
	drawRow(pdf, tr, headers, widths, true)
	pdf.SetX(left)
	drawRow(pdf, tr, values, widths, false)
	pdf.Ln(6)

	if len(doc.QuotaCodes) > 0 {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, 6, tr("Cotas"), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 5, strings.Join(doc.QuotaCodes, ", "), "", "L", false)
		pdf.Ln(3)
	}

	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, tr(fmt.Sprintf("Emitido em %s", formatDate(c.IssuedAt))), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, tr(fmt.Sprintf("Código de validação: %s", c.ValidationHash)), "", 1, "L", false, 0, "")
	if doc.ValidationURL != "" {
		pdf.CellFormat(0, 5, tr(fmt.Sprintf("Verifique em: %s", doc.ValidationURL)), "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawRow(pdf *gofpdf.Fpdf, tr func(string) string, cols []string, widths []float64, header bool) {
	style := ""
	if header {
		style = "B"
	}
	pdf.SetFont("Helvetica", style, 10)
	for i, col := range cols {
		pdf.CellFormat(widths[i], 8, tr(col), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
}

func safeValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02.01.2006")
}

// formatInt groups thousands with dots, pt-BR style.
func formatInt(v int64) string {
	s := fmt.Sprintf("%d", v)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

package notify

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/phpdave11/gofpdf"
	"tradiehub-backend/internal/models"
)

// RenderQuotePDF lays out a quote as a single A4 document.
func RenderQuotePDF(quote *models.Quote, tradie, client *models.User) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Quote "+quote.QuoteNumber, true)
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, "QUOTE", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Quote number: "+quote.QuoteNumber, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Valid until: "+quote.ValidUntil.Format("2 Jan 2006"), "", 1, "L", false, 0, "")
	if tradie != nil {
		pdf.CellFormat(0, 6, "From: "+tradie.Name, "", 1, "L", false, 0, "")
	}
	if client != nil {
		pdf.CellFormat(0, 6, "To: "+client.Name, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.MultiCell(0, 6, quote.Title, "", "L", false)
	if quote.Description != "" {
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, quote.Description, "", "L", false)
	}
	pdf.Ln(4)

	widths := []float64{80, 25, 20, 27, 28}
	headers := []string{"Description", "Type", "Qty", "Unit price", "Total"}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(235, 235, 235)
	for i, h := range headers {
		align := "R"
		if i < 2 {
			align = "L"
		}
		pdf.CellFormat(widths[i], 7, h, "1", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range quote.Items {
		qty := item.Quantity.String()
		if item.Unit != "" {
			qty += " " + item.Unit
		}
		pdf.CellFormat(widths[0], 7, truncate(item.Description, 45), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, string(item.ItemType), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 7, qty, "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 7, money(item.UnitPrice.StringFixed(2)), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 7, money(item.LineTotal.StringFixed(2)), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	labelWidth := widths[0] + widths[1] + widths[2] + widths[3]
	totals := [][2]string{
		{"Subtotal", money(quote.Subtotal.StringFixed(2))},
		{"GST", money(quote.GSTAmount.StringFixed(2))},
		{"Total", money(quote.TotalAmount.StringFixed(2))},
	}
	for i, row := range totals {
		style := ""
		if i == len(totals)-1 {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 10)
		pdf.CellFormat(labelWidth, 7, row[0], "", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 7, row[1], "1", 1, "R", false, 0, "")
	}

	if quote.TermsConditions != "" {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, 6, "Terms and conditions", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 5, quote.TermsConditions, "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render quote pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func money(amount string) string {
	return "$" + amount
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

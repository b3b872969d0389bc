// Package export renders the loan book as downloadable reports.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"github.com/mcclellann/tradex/pkg/models"
	"github.com/xuri/excelize/v2"
)

// Format is a report file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ReportName is the base file name of every report.
const ReportName = "tradex_report"

var contentTypes = map[Format]string{
	FormatCSV:  "text/csv",
	FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	FormatPDF:  "application/pdf",
}

// ContentType returns the MIME type of a format and whether the format is supported.
func (f Format) ContentType() (string, bool) {
	ct, ok := contentTypes[f]
	return ct, ok
}

// FileName returns the attachment name for a report in this format.
func (f Format) FileName() string {
	return ReportName + "." + string(f)
}

// Report is the data a report is rendered from. Loans must already be derived.
type Report struct {
	Loans    []*models.Loan
	Payments []*models.Payment
	Metrics  models.Metrics
}

var (
	loanHeader    = []string{"id", "customer", "principal", "interest", "total_due", "paid_total", "balance", "status", "due_date"}
	paymentHeader = []string{"id", "loan_id", "customer", "amount", "payment_date", "registered_by", "notes"}
)

func loanRow(l *models.Loan) []string {
	return []string{
		l.ID.String(), l.Customer, l.Principal.StringFixed(2), l.Interest.StringFixed(2), l.TotalDue.StringFixed(2),
		l.PaidTotal.StringFixed(2), l.Balance.StringFixed(2), string(l.Status), l.DueDate.String(),
	}
}

func paymentRow(p *models.Payment) []string {
	return []string{
		p.ID.String(), p.LoanID.String(), p.Customer, p.Amount.StringFixed(2), p.PaymentDate.String(), p.RegisteredBy, p.Notes,
	}
}

// Render produces the report in the requested format.
func Render(f Format, r *Report) ([]byte, error) {
	switch f {
	case FormatCSV:
		return CSV(r)
	case FormatXLSX:
		return XLSX(r)
	case FormatPDF:
		return PDF(r)
	default:
		return nil, fmt.Errorf("unsupported export format %q", f)
	}
}

// CSV writes the loans section, a blank line, a "payments" marker and the payments section.
func CSV(r *Report) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)

	_ = w.Write(loanHeader)
	for _, l := range r.Loans {
		_ = w.Write(loanRow(l))
	}
	w.Flush()

	buf.WriteString("\npayments\n")

	_ = w.Write(paymentHeader)
	for _, p := range r.Payments {
		_ = w.Write(paymentRow(p))
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// XLSX writes one sheet per section plus a summary of the metrics.
func XLSX(r *Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "Loans"); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet("Payments"); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet("Summary"); err != nil {
		return nil, err
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})

	loanRows := make([][]string, 0, len(r.Loans))
	for _, l := range r.Loans {
		loanRows = append(loanRows, loanRow(l))
	}
	if err := writeSheet(f, "Loans", loanHeader, loanRows, headerStyle); err != nil {
		return nil, err
	}

	paymentRows := make([][]string, 0, len(r.Payments))
	for _, p := range r.Payments {
		paymentRows = append(paymentRows, paymentRow(p))
	}
	if err := writeSheet(f, "Payments", paymentHeader, paymentRows, headerStyle); err != nil {
		return nil, err
	}

	if err := writeSheet(f, "Summary", []string{"metric", "value"}, summaryRows(r.Metrics), headerStyle); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]string, headerStyle int) error {
	for i, row := range append([][]string{header}, rows...) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, headerStyle)
}

func summaryRows(m models.Metrics) [][]string {
	rows := [][]string{
		{"as_of", m.AsOf.String()},
		{"total_lent", m.TotalLent.StringFixed(2)},
		{"total_collected", m.TotalCollected.StringFixed(2)},
		{"collected_today", m.CollectedToday.StringFixed(2)},
		{"projected_profit", m.ProjectedProfit.StringFixed(2)},
		{"available_capital", m.AvailableCapital.StringFixed(2)},
	}
	for _, s := range models.Statuses {
		rows = append(rows, []string{"loans_" + string(s), strconv.Itoa(m.StatusCount[s])})
	}
	return rows
}

// PDF renders the metrics summary followed by a table of loans.
func PDF(r *Report) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Tradex - Reporte de cartera")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 10)
	for _, row := range summaryRows(r.Metrics) {
		pdf.Cell(60, 6, row[0])
		pdf.Cell(40, 6, row[1])
		pdf.Ln(6)
	}
	pdf.Ln(6)

	widths := []float64{22, 50, 25, 25, 25, 25, 25, 22, 25}
	pdf.SetFont("Arial", "B", 9)
	for i, h := range loanHeader {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, l := range r.Loans {
		row := loanRow(l)
		row[0] = row[0][:8]
		for i, v := range row {
			pdf.CellFormat(widths[i], 6, tr(v), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := new(bytes.Buffer)
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

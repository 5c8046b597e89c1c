package http

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	commands "control-cloud/internal/commands/domain"
)

var exportHeaders = []string{
	"Request ID", "Requested At", "User", "Device", "Point", "Requested", "Verified",
	"Delivery", "Execution", "Verification", "Final", "Duration (ms)", "Alarm", "Error",
}

// BuildCommandLogXLSX renders command records as a single-sheet workbook.
func BuildCommandLogXLSX(rows []commands.CommandRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "commands"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for i, header := range exportHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(sheet, cell, header)
	}
	for i, rec := range rows {
		row := i + 2
		for col, value := range exportRow(rec) {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildCommandLogPDF renders a landscape table of command records.
func BuildCommandLogPDF(rows []commands.CommandRecord, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Control Command Log")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Records: %d", len(rows)))
	pdf.Ln(8)

	widths := []float64{52, 34, 22, 22, 22, 18, 18, 22, 28, 24, 16}
	headers := []string{"Request ID", "Requested At", "User", "Device", "Point", "Req", "Read", "Delivery", "Execution", "Verify", "Final"}
	pdf.SetFont("Arial", "B", 8)
	for i, header := range headers {
		pdf.CellFormat(widths[i], 6, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 7)
	for _, rec := range rows {
		values := []string{
			rec.RequestID,
			rec.RequestedAt.Format("2006-01-02 15:04:05"),
			displayUser(rec),
			rec.DeviceID,
			rec.PointID,
			rec.RequestedValue,
			rec.VerifiedValue,
			string(rec.DeliveryStatus),
			string(rec.ExecutionResult),
			string(rec.VerificationResult),
			string(rec.FinalStatus),
		}
		for i, value := range values {
			pdf.CellFormat(widths[i], 5, value, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func exportRow(rec commands.CommandRecord) []any {
	return []any{
		rec.RequestID,
		rec.RequestedAt.Format(time.RFC3339),
		displayUser(rec),
		rec.DeviceID,
		rec.PointID,
		rec.RequestedValue,
		rec.VerifiedValue,
		string(rec.DeliveryStatus),
		string(rec.ExecutionResult),
		string(rec.VerificationResult),
		string(rec.FinalStatus),
		rec.DurationMS,
		rec.LinkedAlarmID,
		rec.ExecutionError,
	}
}

func displayUser(rec commands.CommandRecord) string {
	if rec.Username != "" {
		return rec.Username
	}
	return rec.UserID
}

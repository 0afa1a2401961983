// Package report renders a (doctor, date) queue ledger for reception:
// Excel download and tabular values for external mirrors.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Row is one ledger line in token order.
type Row struct {
	TokenNumber           int
	PatientName           string
	VisitID               string
	Status                string
	CheckInTime           *time.Time
	ConsultationStartTime *time.Time
	ConsultationEndTime   *time.Time
}

// Ledger is the full day view for one doctor.
type Ledger struct {
	DoctorName string
	QueueDate  string
	QueueOpen  bool
	Rows       []Row
}

// Source loads a day ledger from storage.
type Source interface {
	DayLedger(ctx context.Context, doctorID, queueDate string) (*Ledger, error)
}

// Exporter writes ledgers out.
type Exporter struct {
	source Source
	logger *zerolog.Logger
}

// NewExporter creates an exporter over the given source.
func NewExporter(source Source, logger *zerolog.Logger) *Exporter {
	return &Exporter{source: source, logger: logger}
}

var headers = []string{"Token", "Patient", "Visit", "Status", "Checked In", "Started", "Ended"}

// WriteExcel writes the ledger as an .xlsx workbook to w.
func (e *Exporter) WriteExcel(ctx context.Context, w io.Writer, doctorID, queueDate string) error {
	ledger, err := e.source.DayLedger(ctx, doctorID, queueDate)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := sheetName(ledger.QueueDate)
	f.SetSheetName("Sheet1", sheet)

	for i, col := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		start, _ := excelize.CoordinatesToCellName(1, 1)
		end, _ := excelize.CoordinatesToCellName(len(headers), 1)
		_ = f.SetCellStyle(sheet, start, end, style)
	}

	for i, row := range ledger.Rows {
		values := rowValues(&row)
		for j, v := range values {
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	e.logger.Info().
		Str("doctor", ledger.DoctorName).
		Str("date", ledger.QueueDate).
		Int("rows", len(ledger.Rows)).
		Msg("ledger exported")
	return nil
}

// Values returns header + rows as sheet values for external mirrors.
func (e *Exporter) Values(ctx context.Context, doctorID, queueDate string) ([][]interface{}, error) {
	ledger, err := e.source.DayLedger(ctx, doctorID, queueDate)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	values := make([][]interface{}, 0, len(ledger.Rows)+1)
	head := make([]interface{}, len(headers))
	for i, h := range headers {
		head[i] = h
	}
	values = append(values, head)
	for i := range ledger.Rows {
		values = append(values, rowValues(&ledger.Rows[i]))
	}
	return values, nil
}

func rowValues(r *Row) []interface{} {
	return []interface{}{
		r.TokenNumber,
		r.PatientName,
		r.VisitID,
		r.Status,
		formatTime(r.CheckInTime),
		formatTime(r.ConsultationStartTime),
		formatTime(r.ConsultationEndTime),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Local().Format("15:04:05")
}

func sheetName(date string) string {
	name := "Queue " + date
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clinicq/internal/models"
	"clinicq/internal/report"
)

// DayLedger loads the full queue ledger for a (doctor, date) pair with
// patient names resolved, in token order.
func (db *DB) DayLedger(ctx context.Context, doctorID, queueDate string) (*report.Ledger, error) {
	var (
		ledger  report.Ledger
		queueID string
	)
	err := db.QueryRowContext(ctx, `
		SELECT q.id, q.queue_open, d.name
		FROM doctor_queues q JOIN doctors d ON d.id = q.doctor_id
		WHERE q.doctor_id = ? AND q.queue_date = ?`,
		doctorID, queueDate,
	).Scan(&queueID, &ledger.QueueOpen, &ledger.DoctorName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no queue for doctor %s on %s", doctorID, queueDate)
	}
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	ledger.QueueDate = queueDate

	rows, err := db.QueryContext(ctx, `
		SELECT e.token_number, p.name, e.visit_id, e.status,
		       e.check_in_time, e.consultation_start_time, e.consultation_end_time
		FROM queue_entries e
		JOIN visits v ON v.id = e.visit_id
		JOIN patients p ON p.id = v.patient_id
		WHERE e.queue_id = ?
		ORDER BY e.token_number`,
		queueID,
	)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r                      report.Row
			checkIn, start, finish sql.NullTime
		)
		if err := rows.Scan(&r.TokenNumber, &r.PatientName, &r.VisitID, &r.Status,
			&checkIn, &start, &finish); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		if checkIn.Valid {
			r.CheckInTime = &checkIn.Time
		}
		if start.Valid {
			r.ConsultationStartTime = &start.Time
		}
		if finish.Valid {
			r.ConsultationEndTime = &finish.Time
		}
		ledger.Rows = append(ledger.Rows, r)
	}
	return &ledger, rows.Err()
}

// QueuesForDate returns every doctor queue created for a date.
func (db *DB) QueuesForDate(ctx context.Context, queueDate string) ([]models.DoctorQueue, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+queueColumns+` FROM doctor_queues WHERE queue_date = ? ORDER BY doctor_id`,
		queueDate,
	)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	defer rows.Close()

	var queues []models.DoctorQueue
	for rows.Next() {
		var q models.DoctorQueue
		if err := rows.Scan(
			&q.ID, &q.DoctorID, &q.QueueDate, &q.ShiftStart, &q.ShiftEnd, &q.QueueOpen,
			&q.MaxQueueSize, &q.AvgConsultTimeMinutes, &q.CurrentToken, &q.CurrentVisitID,
			&q.LastEventType, &q.LastEventReason, &q.LastUpdatedBy, &q.CreatedAt, &q.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan queue: %w", err)
		}
		queues = append(queues, q)
	}
	return queues, rows.Err()
}

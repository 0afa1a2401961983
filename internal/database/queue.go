package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clinicq/internal/models"
)

// queueTx implements scheduler.Tx over one SQLite transaction.
type queueTx struct {
	tx *sql.Tx
}

const queueColumns = `id, doctor_id, queue_date, shift_start, shift_end, queue_open,
	max_queue_size, avg_consult_time_minutes, current_token, current_visit_id,
	last_event_type, last_event_reason, last_updated_by, created_at, updated_at`

func scanQueue(row *sql.Row) (*models.DoctorQueue, error) {
	var q models.DoctorQueue
	err := row.Scan(
		&q.ID, &q.DoctorID, &q.QueueDate, &q.ShiftStart, &q.ShiftEnd, &q.QueueOpen,
		&q.MaxQueueSize, &q.AvgConsultTimeMinutes, &q.CurrentToken, &q.CurrentVisitID,
		&q.LastEventType, &q.LastEventReason, &q.LastUpdatedBy, &q.CreatedAt, &q.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan queue: %w", err)
	}
	return &q, nil
}

func (t *queueTx) QueueByDoctorDate(ctx context.Context, doctorID, queueDate string) (*models.DoctorQueue, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM doctor_queues WHERE doctor_id = ? AND queue_date = ?`,
		doctorID, queueDate,
	)
	return scanQueue(row)
}

func (t *queueTx) CreateQueue(ctx context.Context, q *models.DoctorQueue) (*models.DoctorQueue, error) {
	now := time.Now().UTC()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO doctor_queues (
			id, doctor_id, queue_date, shift_start, shift_end, queue_open,
			max_queue_size, avg_consult_time_minutes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (doctor_id, queue_date) DO NOTHING`,
		q.ID, q.DoctorID, q.QueueDate, q.ShiftStart, q.ShiftEnd, q.QueueOpen,
		q.MaxQueueSize, q.AvgConsultTimeMinutes, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert queue: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Lost the creation race; return the row the winner committed.
		return t.QueueByDoctorDate(ctx, q.DoctorID, q.QueueDate)
	}
	q.CreatedAt = now
	q.UpdatedAt = now
	return q, nil
}

func (t *queueTx) UpdateQueue(ctx context.Context, q *models.DoctorQueue) error {
	q.UpdatedAt = time.Now().UTC()
	_, err := t.tx.ExecContext(ctx, `
		UPDATE doctor_queues SET
			queue_open = ?, max_queue_size = ?, avg_consult_time_minutes = ?,
			current_token = ?, current_visit_id = ?,
			last_event_type = ?, last_event_reason = ?, last_updated_by = ?,
			updated_at = ?
		WHERE id = ?`,
		q.QueueOpen, q.MaxQueueSize, q.AvgConsultTimeMinutes,
		q.CurrentToken, q.CurrentVisitID,
		q.LastEventType, q.LastEventReason, q.LastUpdatedBy,
		q.UpdatedAt, q.ID,
	)
	if err != nil {
		return fmt.Errorf("update queue: %w", err)
	}
	return nil
}

func (t *queueTx) CountActiveEntries(ctx context.Context, queueID string) (int, error) {
	var count int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM queue_entries
		WHERE queue_id = ? AND status IN (?, ?, ?)`,
		queueID, models.StatusWaiting, models.StatusPresent, models.StatusInConsultation,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active entries: %w", err)
	}
	return count, nil
}

func (t *queueTx) MaxToken(ctx context.Context, queueID string) (int, error) {
	var max int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(token_number), 0) FROM queue_entries WHERE queue_id = ?`,
		queueID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max token: %w", err)
	}
	return max, nil
}

const entryColumns = `id, queue_id, visit_id, token_number, position, status,
	check_in_time, consultation_start_time, consultation_end_time, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*models.QueueEntry, error) {
	var (
		e                      models.QueueEntry
		checkIn, start, finish sql.NullTime
	)
	err := row.Scan(
		&e.ID, &e.QueueID, &e.VisitID, &e.TokenNumber, &e.Position, &e.Status,
		&checkIn, &start, &finish, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if checkIn.Valid {
		e.CheckInTime = &checkIn.Time
	}
	if start.Valid {
		e.ConsultationStartTime = &start.Time
	}
	if finish.Valid {
		e.ConsultationEndTime = &finish.Time
	}
	return &e, nil
}

func (t *queueTx) InsertEntry(ctx context.Context, e *models.QueueEntry) error {
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO queue_entries (
			id, queue_id, visit_id, token_number, position, status,
			check_in_time, consultation_start_time, consultation_end_time,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.QueueID, e.VisitID, e.TokenNumber, e.Position, e.Status,
		nullTime(e.CheckInTime), nullTime(e.ConsultationStartTime), nullTime(e.ConsultationEndTime),
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

func (t *queueTx) UpdateEntry(ctx context.Context, e *models.QueueEntry) error {
	e.UpdatedAt = time.Now().UTC()
	_, err := t.tx.ExecContext(ctx, `
		UPDATE queue_entries SET
			status = ?, check_in_time = ?, consultation_start_time = ?,
			consultation_end_time = ?, updated_at = ?
		WHERE id = ?`,
		e.Status, nullTime(e.CheckInTime), nullTime(e.ConsultationStartTime),
		nullTime(e.ConsultationEndTime), e.UpdatedAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	return nil
}

func (t *queueTx) EntryByVisit(ctx context.Context, queueID, visitID string) (*models.QueueEntry, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM queue_entries
		WHERE queue_id = ? AND visit_id = ?
		ORDER BY token_number DESC LIMIT 1`,
		queueID, visitID,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("entry by visit: %w", err)
	}
	return e, nil
}

func (t *queueTx) NextCallable(ctx context.Context, queueID string) (*models.QueueEntry, error) {
	// Present entries always win over waiting ones, regardless of token
	// order; tokens break ties within each class.
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM queue_entries
		WHERE queue_id = ? AND status IN (?, ?)
		ORDER BY CASE WHEN status = ? THEN 0 ELSE 1 END, token_number
		LIMIT 1`,
		queueID, models.StatusPresent, models.StatusWaiting, models.StatusPresent,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next callable: %w", err)
	}
	return e, nil
}

func (t *queueTx) EntriesByQueue(ctx context.Context, queueID string) ([]models.QueueEntry, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM queue_entries
		WHERE queue_id = ? ORDER BY token_number`,
		queueID,
	)
	if err != nil {
		return nil, fmt.Errorf("entries by queue: %w", err)
	}
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

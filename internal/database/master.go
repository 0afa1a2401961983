package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clinicq/internal/models"
)

// Master-data lookups used inside queue transactions. The scheduler only
// reads these records; it never manages them.

func (t *queueTx) Visit(ctx context.Context, id string) (*models.Visit, error) {
	var v models.Visit
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, patient_id, doctor_id, symptoms_summary, token_number, status, created_at, updated_at
		FROM visits WHERE id = ?`, id,
	).Scan(&v.ID, &v.PatientID, &v.DoctorID, &v.SymptomsSummary, &v.TokenNumber, &v.Status, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get visit: %w", err)
	}
	return &v, nil
}

func (t *queueTx) UpdateVisit(ctx context.Context, v *models.Visit) error {
	v.UpdatedAt = time.Now().UTC()
	_, err := t.tx.ExecContext(ctx, `
		UPDATE visits SET token_number = ?, status = ?, updated_at = ? WHERE id = ?`,
		v.TokenNumber, v.Status, v.UpdatedAt, v.ID,
	)
	if err != nil {
		return fmt.Errorf("update visit: %w", err)
	}
	return nil
}

func (t *queueTx) Patient(ctx context.Context, id string) (*models.Patient, error) {
	var p models.Patient
	var phone sql.NullString
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, name, phone FROM patients WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	p.Phone = phone.String
	return &p, nil
}

func (t *queueTx) Doctor(ctx context.Context, id string) (*models.Doctor, error) {
	var d models.Doctor
	var dept sql.NullString
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, name, department_id FROM doctors WHERE id = ?`, id,
	).Scan(&d.ID, &d.Name, &dept)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	d.DepartmentID = dept.String
	return &d, nil
}

func (t *queueTx) Department(ctx context.Context, id string) (*models.Department, error) {
	var d models.Department
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, name FROM departments WHERE id = ?`, id,
	).Scan(&d.ID, &d.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get department: %w", err)
	}
	return &d, nil
}

// Non-transactional inserts used by bootstrap and tests.

func (db *DB) CreateDepartment(ctx context.Context, d *models.Department) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO departments (id, name) VALUES (?, ?)`, d.ID, d.Name,
	)
	if err != nil {
		return fmt.Errorf("create department: %w", err)
	}
	return nil
}

func (db *DB) CreateDoctor(ctx context.Context, d *models.Doctor) error {
	var dept interface{}
	if d.DepartmentID != "" {
		dept = d.DepartmentID
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO doctors (id, name, department_id) VALUES (?, ?, ?)`, d.ID, d.Name, dept,
	)
	if err != nil {
		return fmt.Errorf("create doctor: %w", err)
	}
	return nil
}

func (db *DB) CreatePatient(ctx context.Context, p *models.Patient) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO patients (id, name, phone) VALUES (?, ?, ?)`, p.ID, p.Name, p.Phone,
	)
	if err != nil {
		return fmt.Errorf("create patient: %w", err)
	}
	return nil
}

func (db *DB) CreateVisit(ctx context.Context, v *models.Visit) error {
	now := time.Now().UTC()
	if v.Status == "" {
		v.Status = models.VisitStatusOpen
	}
	v.CreatedAt = now
	v.UpdatedAt = now
	_, err := db.ExecContext(ctx, `
		INSERT INTO visits (id, patient_id, doctor_id, symptoms_summary, token_number, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.PatientID, v.DoctorID, v.SymptomsSummary, v.TokenNumber, v.Status, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create visit: %w", err)
	}
	return nil
}

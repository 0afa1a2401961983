package scheduler

import (
	"context"
	"fmt"
	"sort"

	"clinicq/internal/models"
)

// Role selects the status projection.
type Role string

const (
	RoleDoctor       Role = "doctor"
	RolePatient      Role = "patient"
	RoleReceptionist Role = "receptionist"
)

// StatusRequest parameterizes the read-only status projection. VisitID is
// required for the patient role only.
type StatusRequest struct {
	Role      Role
	DoctorID  string
	QueueDate string
	VisitID   string
}

// StatusCounts aggregates entries per status.
type StatusCounts struct {
	Total      int `json:"total"`
	Waiting    int `json:"waiting"`
	Present    int `json:"present"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Skipped    int `json:"skipped"`
}

// WaitingEntry is one upcoming entry in call order.
type WaitingEntry struct {
	TokenNumber int    `json:"token_number"`
	VisitID     string `json:"visit_id"`
	Status      string `json:"status"`
}

// DoctorView is the doctor-facing queue projection.
type DoctorView struct {
	QueueOpen      bool           `json:"queue_open"`
	CurrentToken   int            `json:"current_token,omitempty"`
	CurrentVisitID string         `json:"current_visit_id,omitempty"`
	CurrentStatus  string         `json:"current_status,omitempty"`
	NextWaiting    []WaitingEntry `json:"next_waiting"`
	Counts         StatusCounts   `json:"counts"`
}

// PatientView is the patient-facing projection for one visit.
type PatientView struct {
	TokenNumber          int    `json:"token_number"`
	Status               string `json:"status"`
	CurrentToken         int    `json:"current_token,omitempty"`
	PatientsAhead        int    `json:"patients_ahead"`
	EstimatedWaitMinutes int    `json:"estimated_wait_minutes"`
	Message              string `json:"message,omitempty"`
}

// ReceptionView is the receptionist-facing aggregate projection.
type ReceptionView struct {
	Counts StatusCounts `json:"counts"`
}

// StatusView is the role-parameterized projection; exactly one of the
// role fields is populated.
type StatusView struct {
	Role      Role           `json:"role"`
	DoctorID  string         `json:"doctor_id"`
	QueueDate string         `json:"queue_date"`
	Doctor    *DoctorView    `json:"doctor,omitempty"`
	Patient   *PatientView   `json:"patient,omitempty"`
	Reception *ReceptionView `json:"reception,omitempty"`
}

// Status builds the role view from one consistent snapshot of the queue
// and its ledger. It performs no writes.
func (s *Scheduler) Status(ctx context.Context, req StatusRequest) (*StatusView, error) {
	switch req.Role {
	case RoleDoctor, RolePatient, RoleReceptionist:
	default:
		return nil, fmt.Errorf("unknown status role %q", req.Role)
	}
	if req.Role == RolePatient && req.VisitID == "" {
		return nil, fmt.Errorf("visit_id is required for the patient view")
	}

	var (
		queue   *models.DoctorQueue
		entries []models.QueueEntry
	)
	err := s.store.ExecTx(ctx, func(tx Tx) error {
		q, err := tx.QueueByDoctorDate(ctx, req.DoctorID, req.QueueDate)
		if err != nil {
			return err
		}
		if q == nil {
			return ErrQueueNotFound
		}
		queue = q
		entries, err = tx.EntriesByQueue(ctx, q.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	view := &StatusView{Role: req.Role, DoctorID: req.DoctorID, QueueDate: req.QueueDate}
	switch req.Role {
	case RoleDoctor:
		view.Doctor = doctorView(queue, entries)
	case RolePatient:
		pv, err := patientView(queue, entries, req.VisitID)
		if err != nil {
			return nil, err
		}
		view.Patient = pv
	case RoleReceptionist:
		view.Reception = &ReceptionView{Counts: countEntries(entries)}
	}
	return view, nil
}

func countEntries(entries []models.QueueEntry) StatusCounts {
	var c StatusCounts
	c.Total = len(entries)
	for _, e := range entries {
		switch e.Status {
		case models.StatusWaiting:
			c.Waiting++
		case models.StatusPresent:
			c.Present++
		case models.StatusInConsultation:
			c.InProgress++
		case models.StatusCompleted:
			c.Completed++
		case models.StatusSkipped:
			c.Skipped++
		}
	}
	return c
}

func doctorView(q *models.DoctorQueue, entries []models.QueueEntry) *DoctorView {
	v := &DoctorView{
		QueueOpen:      q.QueueOpen,
		CurrentToken:   q.CurrentToken,
		CurrentVisitID: q.CurrentVisitID,
		NextWaiting:    []WaitingEntry{},
		Counts:         countEntries(entries),
	}

	var callable []models.QueueEntry
	for _, e := range entries {
		if e.VisitID == q.CurrentVisitID && q.CurrentVisitID != "" {
			v.CurrentStatus = e.Status
		}
		if e.Status == models.StatusPresent || e.Status == models.StatusWaiting {
			callable = append(callable, e)
		}
	}
	// Same ordering as call-next: present entries win, then token order.
	sort.SliceStable(callable, func(i, j int) bool {
		pi := callable[i].Status == models.StatusPresent
		pj := callable[j].Status == models.StatusPresent
		if pi != pj {
			return pi
		}
		return callable[i].TokenNumber < callable[j].TokenNumber
	})
	for _, e := range callable {
		v.NextWaiting = append(v.NextWaiting, WaitingEntry{
			TokenNumber: e.TokenNumber,
			VisitID:     e.VisitID,
			Status:      e.Status,
		})
	}
	return v
}

func patientView(q *models.DoctorQueue, entries []models.QueueEntry, visitID string) (*PatientView, error) {
	var own *models.QueueEntry
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].VisitID == visitID {
			own = &entries[i]
			break
		}
	}
	if own == nil {
		return nil, ErrEntryNotFound
	}

	ahead := 0
	for _, e := range entries {
		if e.IsActive() && e.TokenNumber < own.TokenNumber {
			ahead++
		}
	}

	v := &PatientView{
		TokenNumber:          own.TokenNumber,
		Status:               own.Status,
		CurrentToken:         q.CurrentToken,
		PatientsAhead:        ahead,
		EstimatedWaitMinutes: ahead * q.AvgConsultTimeMinutes,
	}
	switch {
	case own.Status == models.StatusInConsultation:
		v.Message = "Consultation in progress"
	case own.Status == models.StatusCompleted:
		v.Message = "Consultation completed"
	case own.Status == models.StatusSkipped:
		v.Message = "You were skipped, please contact reception"
	case ahead == 0:
		v.Message = "You're next"
	}
	return v, nil
}

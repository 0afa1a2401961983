// Package models defines the persistent records managed by the queue scheduler.
package models

import "time"

// Entry statuses. An entry only ever moves forward:
// waiting -> present -> in_consultation -> completed, or
// waiting/present -> skipped. Completed and skipped are terminal.
const (
	StatusWaiting        = "waiting"
	StatusPresent        = "present"
	StatusInConsultation = "in_consultation"
	StatusCompleted      = "completed"
	StatusSkipped        = "skipped"
)

// Visit statuses written back by the scheduler.
const (
	VisitStatusOpen      = "open"
	VisitStatusCompleted = "completed"
)

// DateFormat is the canonical queue date layout.
const DateFormat = "2006-01-02"

// TimeOfDayFormat is the layout for shift boundaries ("09:00").
const TimeOfDayFormat = "15:04"

// DoctorQueue is the per-(doctor, date) queue record. CurrentToken and
// CurrentVisitID are set together while exactly one entry is in
// consultation and cleared together when it ends.
type DoctorQueue struct {
	ID        string `json:"id"`
	DoctorID  string `json:"doctor_id"`
	QueueDate string `json:"queue_date"` // YYYY-MM-DD

	ShiftStart string `json:"shift_start"` // HH:MM, local time of day
	ShiftEnd   string `json:"shift_end"`   // HH:MM

	QueueOpen             bool `json:"queue_open"`
	MaxQueueSize          int  `json:"max_queue_size,omitempty"` // 0 = uncapped
	AvgConsultTimeMinutes int  `json:"avg_consult_time_minutes"`

	CurrentToken   int    `json:"current_token,omitempty"` // 0 = none
	CurrentVisitID string `json:"current_visit_id,omitempty"`

	// Last-write-wins audit scalars, overwritten on every mutation.
	LastEventType   string `json:"last_event_type,omitempty"`
	LastEventReason string `json:"last_event_reason,omitempty"`
	LastUpdatedBy   string `json:"last_updated_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QueueEntry is one admitted visit in a queue. TokenNumber is assigned at
// admission, unique within the queue and never reused or renumbered.
// Position equals the token at admission; it is a seniority marker, not a
// live rank.
type QueueEntry struct {
	ID          string `json:"id"`
	QueueID     string `json:"queue_id"`
	VisitID     string `json:"visit_id"`
	TokenNumber int    `json:"token_number"`
	Position    int    `json:"position"`
	Status      string `json:"status"`

	CheckInTime           *time.Time `json:"check_in_time,omitempty"`
	ConsultationStartTime *time.Time `json:"consultation_start_time,omitempty"`
	ConsultationEndTime   *time.Time `json:"consultation_end_time,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Visit is the clinical visit the scheduler admits and completes.
type Visit struct {
	ID              string    `json:"id"`
	PatientID       string    `json:"patient_id"`
	DoctorID        string    `json:"doctor_id"`
	SymptomsSummary string    `json:"symptoms_summary,omitempty"`
	TokenNumber     int       `json:"token_number,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Patient master record, read-only for the scheduler.
type Patient struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// Doctor master record, read-only for the scheduler.
type Doctor struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DepartmentID string `json:"department_id,omitempty"`
}

// Department master record, read-only for the scheduler.
type Department struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IsActive reports whether the entry still occupies a live slot in the queue.
func (e *QueueEntry) IsActive() bool {
	switch e.Status {
	case StatusWaiting, StatusPresent, StatusInConsultation:
		return true
	}
	return false
}

// IsTerminal reports whether the entry reached a final state.
func (e *QueueEntry) IsTerminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusSkipped
}

var allowedTransitions = map[string][]string{
	StatusPresent:        {StatusWaiting},
	StatusInConsultation: {StatusWaiting, StatusPresent},
	StatusCompleted:      {StatusInConsultation},
	StatusSkipped:        {StatusWaiting, StatusPresent},
}

// ValidTransition reports whether an entry may move from one status to
// another. Terminal states have no outgoing transitions.
func ValidTransition(from, to string) bool {
	for _, s := range allowedTransitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

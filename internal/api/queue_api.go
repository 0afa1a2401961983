package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"clinicq/internal/metrics"
	"clinicq/internal/models"
	"clinicq/internal/scheduler"
)

// IntakeRequest is the request body for POST /api/queue/intake.
type IntakeRequest struct {
	VisitID   string `json:"visit_id"`
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	QueueDate string `json:"queue_date"` // Format: YYYY-MM-DD
}

// handleIntake admits a visit into the doctor's daily queue.
// POST /api/queue/intake
func (s *HTTPServer) handleIntake(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("intake")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req IntakeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validateID("visit_id", req.VisitID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateID("patient_id", req.PatientID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateID("doctor_id", req.DoctorID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateDate(req.QueueDate); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.queue.Intake(r.Context(), scheduler.IntakeRequest{
		VisitID:   req.VisitID,
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		QueueDate: req.QueueDate,
	})
	if err != nil {
		s.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CheckInRequest is the request body for POST /api/queue/check-in.
type CheckInRequest struct {
	VisitID   string `json:"visit_id"`
	QueueDate string `json:"queue_date"`
}

// handleCheckIn marks the patient present on arrival.
// POST /api/queue/check-in
func (s *HTTPServer) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("check_in")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req CheckInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validateID("visit_id", req.VisitID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateDate(req.QueueDate); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.queue.CheckIn(r.Context(), req.VisitID, req.QueueDate); err != nil {
		s.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// CallNextRequest is the request body for POST /api/queue/call-next.
type CallNextRequest struct {
	DoctorID  string `json:"doctor_id"`
	QueueDate string `json:"queue_date"`
}

// handleCallNext calls the next patient in for consultation.
// POST /api/queue/call-next
func (s *HTTPServer) handleCallNext(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("call_next")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req CallNextRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validateID("doctor_id", req.DoctorID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateDate(req.QueueDate); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.queue.CallNext(r.Context(), req.DoctorID, req.QueueDate)
	if err != nil {
		s.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SkipRequest is the request body for POST /api/queue/skip.
type SkipRequest struct {
	DoctorID  string `json:"doctor_id"`
	VisitID   string `json:"visit_id"`
	QueueDate string `json:"queue_date"`
	Reason    string `json:"reason"`
}

// handleSkip marks a waiting or present entry skipped.
// POST /api/queue/skip
func (s *HTTPServer) handleSkip(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("skip")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req SkipRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validateID("doctor_id", req.DoctorID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateID("visit_id", req.VisitID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateDate(req.QueueDate); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required")
		return
	}

	if err := s.queue.Skip(r.Context(), req.DoctorID, req.VisitID, req.QueueDate, req.Reason); err != nil {
		s.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ConsultationRequest is the request body for the start and end routes.
type ConsultationRequest struct {
	DoctorID  string `json:"doctor_id"`
	VisitID   string `json:"visit_id"`
	QueueDate string `json:"queue_date"`
}

func (s *HTTPServer) decodeConsultation(w http.ResponseWriter, r *http.Request) (*ConsultationRequest, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return nil, false
	}
	var req ConsultationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if err := validateID("doctor_id", req.DoctorID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if err := validateID("visit_id", req.VisitID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if err := validateDate(req.QueueDate); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return &req, true
}

// handleStart confirms the consultation already opened by call-next.
// POST /api/queue/start
func (s *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("start_consultation")
	req, ok := s.decodeConsultation(w, r)
	if !ok {
		return
	}
	if err := s.queue.StartConsultation(r.Context(), req.DoctorID, req.VisitID, req.QueueDate); err != nil {
		s.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  models.StatusInConsultation,
	})
}

// handleEnd completes the active consultation.
// POST /api/queue/end
func (s *HTTPServer) handleEnd(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("end_consultation")
	req, ok := s.decodeConsultation(w, r)
	if !ok {
		return
	}
	result, err := s.queue.EndConsultation(r.Context(), req.DoctorID, req.VisitID, req.QueueDate)
	if err != nil {
		s.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleStatus returns the role view of a queue.
// GET /api/queue/status?role=doctor|patient|receptionist&doctor_id=&queue_date=&visit_id=
func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("status")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	req := scheduler.StatusRequest{
		Role:      scheduler.Role(q.Get("role")),
		DoctorID:  q.Get("doctor_id"),
		QueueDate: q.Get("queue_date"),
		VisitID:   q.Get("visit_id"),
	}
	switch req.Role {
	case scheduler.RoleDoctor, scheduler.RolePatient, scheduler.RoleReceptionist:
	default:
		writeError(w, http.StatusBadRequest, "role must be doctor, patient or receptionist")
		return
	}
	if err := validateID("doctor_id", req.DoctorID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateDate(req.QueueDate); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Role == scheduler.RolePatient {
		if err := validateID("visit_id", req.VisitID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	view, err := s.queue.Status(r.Context(), req)
	if err != nil {
		s.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func validateID(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if _, err := uuid.Parse(value); err != nil {
		return fmt.Errorf("%s must be a UUID", field)
	}
	return nil
}

func validateDate(value string) error {
	if value == "" {
		return fmt.Errorf("queue_date is required")
	}
	if _, err := time.Parse(models.DateFormat, value); err != nil {
		return fmt.Errorf("invalid queue_date; expected YYYY-MM-DD")
	}
	return nil
}

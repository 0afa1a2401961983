// Package scheduler owns a doctor's daily visit queue: admission, token
// assignment, call ordering and the entry lifecycle. Every operation runs
// as one atomic transaction against the store; mutations on the same
// (doctor, date) queue are additionally serialized in-process.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clinicq/internal/events"
	"clinicq/internal/metrics"
	"clinicq/internal/models"
)

// Config holds the defaults applied when a queue is lazily created on first
// admission.
type Config struct {
	ShiftStart            string
	ShiftEnd              string
	AvgConsultTimeMinutes int
	MaxQueueSize          int // 0 = uncapped
}

// DefaultConfig returns the stock shift window.
func DefaultConfig() Config {
	return Config{
		ShiftStart:            "09:00",
		ShiftEnd:              "17:00",
		AvgConsultTimeMinutes: 10,
	}
}

const notifyTimeout = 10 * time.Second

// Scheduler drives a doctor's daily queue through its lifecycle.
type Scheduler struct {
	store    Store
	notifier Notifier    // optional, post-commit call-next handoff
	bus      *events.Bus // optional, domain event emission
	config   Config
	logger   *zerolog.Logger
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a scheduler. Notifier and bus may be nil.
func New(store Store, notifier Notifier, bus *events.Bus, cfg Config, logger *zerolog.Logger) *Scheduler {
	if cfg.ShiftStart == "" || cfg.ShiftEnd == "" {
		def := DefaultConfig()
		if cfg.ShiftStart == "" {
			cfg.ShiftStart = def.ShiftStart
		}
		if cfg.ShiftEnd == "" {
			cfg.ShiftEnd = def.ShiftEnd
		}
	}
	if cfg.AvgConsultTimeMinutes <= 0 {
		cfg.AvgConsultTimeMinutes = DefaultConfig().AvgConsultTimeMinutes
	}
	return &Scheduler{
		store:    store,
		notifier: notifier,
		bus:      bus,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockQueue serializes mutating operations on one (doctor, date) queue.
// Queues for different pairs are independent and never contend.
func (s *Scheduler) lockQueue(doctorID, queueDate string) func() {
	key := doctorID + "|" + queueDate
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// IntakeRequest admits a visit into the doctor's queue for a date.
type IntakeRequest struct {
	VisitID   string `json:"visit_id"`
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	QueueDate string `json:"queue_date"`
}

// IntakeResult reports the admission outcome. Rejection is a normal,
// reportable result, not an error.
type IntakeResult struct {
	Accepted             bool   `json:"accepted"`
	TokenNumber          int    `json:"token_number,omitempty"`
	Position             int    `json:"position,omitempty"`
	EstimatedWaitMinutes int    `json:"estimated_wait_minutes,omitempty"`
	Reason               string `json:"reason,omitempty"`
}

// Intake resolves (or lazily creates) the queue, applies the admission
// policy and assigns the next token. When projected completion would run
// past shift end the queue is closed and the request rejected in the same
// transaction.
func (s *Scheduler) Intake(ctx context.Context, req IntakeRequest) (*IntakeResult, error) {
	unlock := s.lockQueue(req.DoctorID, req.QueueDate)
	defer unlock()

	var (
		result  *IntakeResult
		queueID string
		closed  bool
	)
	err := s.store.ExecTx(ctx, func(tx Tx) error {
		q, err := tx.QueueByDoctorDate(ctx, req.DoctorID, req.QueueDate)
		if err != nil {
			return err
		}
		if q == nil {
			q, err = tx.CreateQueue(ctx, &models.DoctorQueue{
				ID:                    uuid.NewString(),
				DoctorID:              req.DoctorID,
				QueueDate:             req.QueueDate,
				ShiftStart:            s.config.ShiftStart,
				ShiftEnd:              s.config.ShiftEnd,
				AvgConsultTimeMinutes: s.config.AvgConsultTimeMinutes,
				MaxQueueSize:          s.config.MaxQueueSize,
				QueueOpen:             true,
			})
			if err != nil {
				return err
			}
		}
		queueID = q.ID

		if !q.QueueOpen {
			result = &IntakeResult{Accepted: false, Reason: "Doctor queue is closed for today"}
			return nil
		}

		active, err := tx.CountActiveEntries(ctx, q.ID)
		if err != nil {
			return err
		}

		if q.MaxQueueSize > 0 && active >= q.MaxQueueSize {
			result = &IntakeResult{Accepted: false, Reason: "Queue is at maximum capacity"}
			return nil
		}

		finish, shiftEnd, err := s.projectedFinish(q, active+1)
		if err != nil {
			return err
		}
		if finish.After(shiftEnd) {
			// The close and the rejection commit together.
			q.QueueOpen = false
			applyAudit(q, events.TypeQueueClosed, "Shift capacity reached", "queue_agent")
			if err := tx.UpdateQueue(ctx, q); err != nil {
				return err
			}
			closed = true
			result = &IntakeResult{Accepted: false, Reason: "Doctor shift will end before consultation"}
			return nil
		}

		// Tokens advance past every number ever assigned, terminal
		// entries included; active count drives only capacity and the
		// wait estimate.
		highest, err := tx.MaxToken(ctx, q.ID)
		if err != nil {
			return err
		}
		token := highest + 1
		entry := &models.QueueEntry{
			ID:          uuid.NewString(),
			QueueID:     q.ID,
			VisitID:     req.VisitID,
			TokenNumber: token,
			Position:    token,
			Status:      models.StatusWaiting,
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return err
		}

		visit, err := tx.Visit(ctx, req.VisitID)
		if err != nil {
			return err
		}
		if visit == nil {
			return ErrVisitNotFound
		}
		visit.TokenNumber = token
		if err := tx.UpdateVisit(ctx, visit); err != nil {
			return err
		}

		applyAudit(q, events.TypeVisitAdded, "Within shift capacity", "queue_agent")
		if err := tx.UpdateQueue(ctx, q); err != nil {
			return err
		}

		result = &IntakeResult{
			Accepted:             true,
			TokenNumber:          token,
			Position:             token,
			EstimatedWaitMinutes: active * q.AvgConsultTimeMinutes,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Accepted {
		metrics.IncIntake("accepted")
		s.publish(events.TypeVisitAdded, queueID, map[string]interface{}{
			"visit_id": req.VisitID, "token_number": result.TokenNumber,
		})
	} else {
		metrics.IncIntake("rejected")
	}
	if closed {
		metrics.IncQueueClosed()
		s.publish(events.TypeQueueClosed, queueID, map[string]interface{}{
			"doctor_id": req.DoctorID, "queue_date": req.QueueDate,
		})
	}
	return result, nil
}

// CheckIn marks the visit's entry present on arrival. Repeat check-ins are
// a conflict, not a silent success.
func (s *Scheduler) CheckIn(ctx context.Context, visitID, queueDate string) error {
	doctorID, err := s.visitDoctor(ctx, visitID)
	if err != nil {
		return err
	}
	unlock := s.lockQueue(doctorID, queueDate)
	defer unlock()

	var queueID string
	err = s.store.ExecTx(ctx, func(tx Tx) error {
		q, err := tx.QueueByDoctorDate(ctx, doctorID, queueDate)
		if err != nil {
			return err
		}
		if q == nil {
			return ErrQueueNotFound
		}
		queueID = q.ID

		entry, err := tx.EntryByVisit(ctx, q.ID, visitID)
		if err != nil {
			return err
		}
		if entry == nil {
			return ErrEntryNotFound
		}
		if entry.Status == models.StatusPresent {
			return ErrAlreadyCheckedIn
		}
		if !models.ValidTransition(entry.Status, models.StatusPresent) {
			return &TransitionError{From: entry.Status, To: models.StatusPresent}
		}

		now := s.now()
		entry.Status = models.StatusPresent
		entry.CheckInTime = &now
		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return err
		}

		applyAudit(q, events.TypePatientCheckedIn, "Patient arrived", "reception")
		return tx.UpdateQueue(ctx, q)
	})
	if err != nil {
		return err
	}

	metrics.IncCheckIn()
	s.publish(events.TypePatientCheckedIn, queueID, map[string]interface{}{"visit_id": visitID})
	return nil
}

// CallNextResult describes the entry selected by CallNext.
type CallNextResult struct {
	VisitID     string `json:"visit_id"`
	PatientID   string `json:"patient_id"`
	DoctorID    string `json:"doctor_id"`
	TokenNumber int    `json:"token_number"`
	Status      string `json:"status"`
}

// CallNext selects the next entry (present before waiting, then ascending
// token), marks it in consultation and sets the queue's live pointer. The
// clinical context for the downstream handoff is resolved before commit so
// a missing reference aborts the whole transaction. The notifier itself is
// invoked only after commit and is fire-and-forget.
func (s *Scheduler) CallNext(ctx context.Context, doctorID, queueDate string) (*CallNextResult, error) {
	unlock := s.lockQueue(doctorID, queueDate)
	defer unlock()

	var (
		result   *CallNextResult
		snapshot CalledPatient
		queueID  string
	)
	err := s.store.ExecTx(ctx, func(tx Tx) error {
		doctor, err := tx.Doctor(ctx, doctorID)
		if err != nil {
			return err
		}
		if doctor == nil {
			return ErrDoctorNotFound
		}

		q, err := tx.QueueByDoctorDate(ctx, doctorID, queueDate)
		if err != nil {
			return err
		}
		if q == nil {
			return ErrQueueNotFound
		}
		queueID = q.ID

		if q.CurrentVisitID != "" {
			return ErrConsultationInProgress
		}

		entry, err := tx.NextCallable(ctx, q.ID)
		if err != nil {
			return err
		}
		if entry == nil {
			return ErrNoPatientsWaiting
		}

		now := s.now()
		entry.Status = models.StatusInConsultation
		entry.ConsultationStartTime = &now
		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return err
		}

		q.CurrentToken = entry.TokenNumber
		q.CurrentVisitID = entry.VisitID
		applyAudit(q, events.TypeCallNext, "Doctor called next patient", "doctor")
		if err := tx.UpdateQueue(ctx, q); err != nil {
			return err
		}

		// Resolve the handoff context inside the transaction so missing
		// references abort atomically.
		visit, err := tx.Visit(ctx, entry.VisitID)
		if err != nil {
			return err
		}
		if visit == nil {
			return ErrVisitNotFound
		}
		patient, err := tx.Patient(ctx, visit.PatientID)
		if err != nil {
			return err
		}
		if patient == nil {
			return fmt.Errorf("patient %s not found for visit %s", visit.PatientID, visit.ID)
		}
		visitDoctor, err := tx.Doctor(ctx, visit.DoctorID)
		if err != nil {
			return err
		}
		if visitDoctor == nil {
			return ErrDoctorNotFound
		}
		var deptName string
		if visitDoctor.DepartmentID != "" {
			dept, err := tx.Department(ctx, visitDoctor.DepartmentID)
			if err != nil {
				return err
			}
			if dept == nil {
				return ErrDepartmentNotFound
			}
			deptName = dept.Name
		}

		snapshot = CalledPatient{
			VisitID:         visit.ID,
			PatientID:       patient.ID,
			DoctorID:        visit.DoctorID,
			Department:      deptName,
			TokenNumber:     entry.TokenNumber,
			SymptomsSummary: visit.SymptomsSummary,
		}
		result = &CallNextResult{
			VisitID:     visit.ID,
			PatientID:   patient.ID,
			DoctorID:    visit.DoctorID,
			TokenNumber: entry.TokenNumber,
			Status:      models.StatusInConsultation,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncCallNext()
	s.publish(events.TypeCallNext, queueID, snapshot)

	if s.notifier != nil {
		go func(p CalledPatient) {
			nctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			if err := s.notifier.PatientCalled(nctx, p); err != nil {
				s.logger.Error().Err(err).
					Str("visit_id", p.VisitID).
					Int("token", p.TokenNumber).
					Msg("downstream notification failed")
			}
		}(snapshot)
	}
	return result, nil
}

// Skip moves a waiting or present entry to skipped with a required reason.
// Tokens and positions of later entries are never renumbered.
func (s *Scheduler) Skip(ctx context.Context, doctorID, visitID, queueDate, reason string) error {
	if reason == "" {
		return ErrReasonRequired
	}
	unlock := s.lockQueue(doctorID, queueDate)
	defer unlock()

	var queueID string
	err := s.store.ExecTx(ctx, func(tx Tx) error {
		q, err := tx.QueueByDoctorDate(ctx, doctorID, queueDate)
		if err != nil {
			return err
		}
		if q == nil {
			return ErrQueueNotFound
		}
		queueID = q.ID

		entry, err := tx.EntryByVisit(ctx, q.ID, visitID)
		if err != nil {
			return err
		}
		if entry == nil {
			return ErrEntryNotFound
		}
		if !models.ValidTransition(entry.Status, models.StatusSkipped) {
			return &TransitionError{From: entry.Status, To: models.StatusSkipped}
		}

		entry.Status = models.StatusSkipped
		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return err
		}

		applyAudit(q, events.TypePatientSkipped, reason, "reception")
		return tx.UpdateQueue(ctx, q)
	})
	if err != nil {
		return err
	}

	metrics.IncSkip()
	s.publish(events.TypePatientSkipped, queueID, map[string]interface{}{
		"visit_id": visitID, "reason": reason,
	})
	return nil
}

// StartConsultation is the doctor-side confirmation over state already set
// by CallNext. It succeeds iff the visit is the queue's current one and its
// entry is in consultation; it mutates nothing.
func (s *Scheduler) StartConsultation(ctx context.Context, doctorID, visitID, queueDate string) error {
	var queueID string
	err := s.store.ExecTx(ctx, func(tx Tx) error {
		q, err := tx.QueueByDoctorDate(ctx, doctorID, queueDate)
		if err != nil {
			return err
		}
		if q == nil {
			return ErrQueueNotFound
		}
		queueID = q.ID

		if q.CurrentVisitID != visitID {
			return ErrVisitMismatch
		}
		entry, err := tx.EntryByVisit(ctx, q.ID, visitID)
		if err != nil {
			return err
		}
		if entry == nil {
			return ErrEntryNotFound
		}
		if entry.Status != models.StatusInConsultation {
			return &TransitionError{From: entry.Status, To: models.StatusInConsultation}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(events.TypeConsultationStarted, queueID, map[string]interface{}{"visit_id": visitID})
	return nil
}

// EndResult reports the outcome of EndConsultation.
type EndResult struct {
	Success bool   `json:"success"`
	VisitID string `json:"visit_id"`
	Message string `json:"message"`
}

// EndConsultation completes the active consultation: the entry becomes
// terminal, the visit is marked completed and the queue's live pointer is
// cleared, all in one transaction.
func (s *Scheduler) EndConsultation(ctx context.Context, doctorID, visitID, queueDate string) (*EndResult, error) {
	unlock := s.lockQueue(doctorID, queueDate)
	defer unlock()

	var queueID string
	err := s.store.ExecTx(ctx, func(tx Tx) error {
		q, err := tx.QueueByDoctorDate(ctx, doctorID, queueDate)
		if err != nil {
			return err
		}
		if q == nil || q.CurrentVisitID == "" {
			return ErrNoActiveConsultation
		}
		queueID = q.ID

		if q.CurrentVisitID != visitID {
			return ErrVisitMismatch
		}

		entry, err := tx.EntryByVisit(ctx, q.ID, visitID)
		if err != nil {
			return err
		}
		// Checked independently of the pointer: it is a different record.
		if entry == nil || entry.Status != models.StatusInConsultation {
			return ErrEntryNotFound
		}

		now := s.now()
		entry.Status = models.StatusCompleted
		entry.ConsultationEndTime = &now
		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return err
		}

		visit, err := tx.Visit(ctx, visitID)
		if err != nil {
			return err
		}
		if visit == nil {
			return ErrVisitNotFound
		}
		visit.Status = models.VisitStatusCompleted
		if err := tx.UpdateVisit(ctx, visit); err != nil {
			return err
		}

		q.CurrentVisitID = ""
		q.CurrentToken = 0
		applyAudit(q, events.TypeConsultationEnded, "Doctor ended consultation", "doctor")
		return tx.UpdateQueue(ctx, q)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncConsultationEnded()
	s.publish(events.TypeConsultationEnded, queueID, map[string]interface{}{"visit_id": visitID})
	return &EndResult{Success: true, VisitID: visitID, Message: "Consultation ended successfully"}, nil
}

// visitDoctor resolves the doctor owning a visit with a read-only lookup.
func (s *Scheduler) visitDoctor(ctx context.Context, visitID string) (string, error) {
	var doctorID string
	err := s.store.ExecTx(ctx, func(tx Tx) error {
		visit, err := tx.Visit(ctx, visitID)
		if err != nil {
			return err
		}
		if visit == nil {
			return ErrVisitNotFound
		}
		doctorID = visit.DoctorID
		return nil
	})
	return doctorID, err
}

// projectedFinish returns when the (count)th consultation would end, and
// the shift end instant, both on the queue's date.
func (s *Scheduler) projectedFinish(q *models.DoctorQueue, count int) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(models.DateFormat, q.QueueDate, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid queue date %q: %w", q.QueueDate, err)
	}
	start, err := minutesOfDay(q.ShiftStart)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := minutesOfDay(q.ShiftEnd)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	finish := day.Add(time.Duration(start+count*q.AvgConsultTimeMinutes) * time.Minute)
	shiftEnd := day.Add(time.Duration(end) * time.Minute)
	return finish, shiftEnd, nil
}

func minutesOfDay(hhmm string) (int, error) {
	t, err := time.Parse(models.TimeOfDayFormat, hhmm)
	if err != nil {
		return 0, fmt.Errorf("invalid shift time %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func applyAudit(q *models.DoctorQueue, eventType, reason, actor string) {
	q.LastEventType = eventType
	q.LastEventReason = reason
	q.LastUpdatedBy = actor
}

func (s *Scheduler) publish(eventType, queueID string, payload interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(eventType, queueID, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("publish event failed")
	}
}

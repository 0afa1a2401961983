package scheduler

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicq/internal/events"
	"clinicq/internal/models"
)

const (
	testDoctorID   = "doc-1"
	testPatientID  = "pat-1"
	testQueueDate  = "2026-03-02"
	testDepartment = "Cardiology"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func newTestScheduler(cfg Config) (*Scheduler, *memStore) {
	store := newMemStore()
	store.departments["dept-1"] = models.Department{ID: "dept-1", Name: testDepartment}
	store.doctors[testDoctorID] = models.Doctor{ID: testDoctorID, Name: "Dr. Ivanova", DepartmentID: "dept-1"}
	store.patients[testPatientID] = models.Patient{ID: testPatientID, Name: "Anna Petrova", Phone: "+79990001122"}
	return New(store, nil, events.NewBus(), cfg, testLogger()), store
}

func seedVisit(store *memStore, id string) {
	store.visits[id] = models.Visit{
		ID:              id,
		PatientID:       testPatientID,
		DoctorID:        testDoctorID,
		SymptomsSummary: "persistent headache",
		Status:          models.VisitStatusOpen,
	}
}

func admit(t *testing.T, s *Scheduler, visitID string) *IntakeResult {
	t.Helper()
	res, err := s.Intake(context.Background(), IntakeRequest{
		VisitID:   visitID,
		PatientID: testPatientID,
		DoctorID:  testDoctorID,
		QueueDate: testQueueDate,
	})
	require.NoError(t, err)
	require.True(t, res.Accepted)
	return res
}

func storedQueue(t *testing.T, store *memStore) models.DoctorQueue {
	t.Helper()
	for _, q := range store.queues {
		if q.DoctorID == testDoctorID && q.QueueDate == testQueueDate {
			return q
		}
	}
	t.Fatal("queue not found in store")
	return models.DoctorQueue{}
}

func storedEntry(t *testing.T, store *memStore, visitID string) models.QueueEntry {
	t.Helper()
	for _, e := range store.entries {
		if e.VisitID == visitID {
			return e
		}
	}
	t.Fatalf("entry for visit %s not found in store", visitID)
	return models.QueueEntry{}
}

func TestIntakeAssignsSequentialTokens(t *testing.T) {
	s, store := newTestScheduler(Config{})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		visitID := fmt.Sprintf("visit-%d", i)
		seedVisit(store, visitID)

		res, err := s.Intake(ctx, IntakeRequest{
			VisitID:   visitID,
			PatientID: testPatientID,
			DoctorID:  testDoctorID,
			QueueDate: testQueueDate,
		})
		require.NoError(t, err)
		assert.True(t, res.Accepted)
		assert.Equal(t, i, res.TokenNumber)
		assert.Equal(t, i, res.Position)
		assert.Equal(t, (i-1)*10, res.EstimatedWaitMinutes)

		assert.Equal(t, i, store.visits[visitID].TokenNumber)
	}

	q := storedQueue(t, store)
	assert.True(t, q.QueueOpen)
	assert.Equal(t, events.TypeVisitAdded, q.LastEventType)
	assert.Equal(t, "Within shift capacity", q.LastEventReason)
	assert.Equal(t, "queue_agent", q.LastUpdatedBy)
}

func TestIntakeClosesQueueAtShiftCapacity(t *testing.T) {
	// 09:00-17:00 at 10 minutes per consultation fits exactly 48 visits.
	s, store := newTestScheduler(Config{})
	ctx := context.Background()

	for i := 1; i <= 48; i++ {
		visitID := fmt.Sprintf("visit-%02d", i)
		seedVisit(store, visitID)
		res := admit(t, s, visitID)
		assert.Equal(t, i, res.TokenNumber)
	}

	seedVisit(store, "visit-49")
	res, err := s.Intake(ctx, IntakeRequest{
		VisitID:   "visit-49",
		PatientID: testPatientID,
		DoctorID:  testDoctorID,
		QueueDate: testQueueDate,
	})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, "Doctor shift will end before consultation", res.Reason)

	q := storedQueue(t, store)
	assert.False(t, q.QueueOpen)
	assert.Equal(t, events.TypeQueueClosed, q.LastEventType)
	assert.Equal(t, "Shift capacity reached", q.LastEventReason)

	// Once closed, further requests are rejected up front.
	seedVisit(store, "visit-50")
	res, err = s.Intake(ctx, IntakeRequest{
		VisitID:   "visit-50",
		PatientID: testPatientID,
		DoctorID:  testDoctorID,
		QueueDate: testQueueDate,
	})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, "Doctor queue is closed for today", res.Reason)

	// No entry was created for either rejected visit.
	assert.Len(t, store.entries, 48)
	assert.Zero(t, store.visits["visit-49"].TokenNumber)
}

func TestIntakeTokensNeverReusedAfterTerminalEntries(t *testing.T) {
	s, store := newTestScheduler(Config{})
	ctx := context.Background()

	seedVisit(store, "visit-1")
	seedVisit(store, "visit-2")
	admit(t, s, "visit-1")
	admit(t, s, "visit-2")

	// Token 1 drops out of the active set.
	require.NoError(t, s.Skip(ctx, testDoctorID, "visit-1", testQueueDate, "no-show"))

	seedVisit(store, "visit-3")
	res := admit(t, s, "visit-3")
	assert.Equal(t, 3, res.TokenNumber, "tokens advance past terminal entries")
	// One waiting entry ahead; the estimate follows the active count.
	assert.Equal(t, 10, res.EstimatedWaitMinutes)

	// Same after a completed consultation.
	require.NoError(t, s.CheckIn(ctx, "visit-2", testQueueDate))
	_, err := s.CallNext(ctx, testDoctorID, testQueueDate)
	require.NoError(t, err)
	_, err = s.EndConsultation(ctx, testDoctorID, "visit-2", testQueueDate)
	require.NoError(t, err)

	seedVisit(store, "visit-4")
	res = admit(t, s, "visit-4")
	assert.Equal(t, 4, res.TokenNumber)

	tokens := map[int]bool{}
	for _, e := range store.entries {
		assert.False(t, tokens[e.TokenNumber], "token %d assigned twice", e.TokenNumber)
		tokens[e.TokenNumber] = true
	}
}

func TestIntakeRejectsWhenQueueFull(t *testing.T) {
	s, store := newTestScheduler(Config{MaxQueueSize: 2})
	ctx := context.Background()

	seedVisit(store, "visit-1")
	seedVisit(store, "visit-2")
	seedVisit(store, "visit-3")
	admit(t, s, "visit-1")
	admit(t, s, "visit-2")

	res, err := s.Intake(ctx, IntakeRequest{
		VisitID:   "visit-3",
		PatientID: testPatientID,
		DoctorID:  testDoctorID,
		QueueDate: testQueueDate,
	})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, "Queue is at maximum capacity", res.Reason)

	// A full queue is not a closed queue.
	assert.True(t, storedQueue(t, store).QueueOpen)
}

func TestIntakeUnknownVisitRollsBack(t *testing.T) {
	s, store := newTestScheduler(Config{})

	_, err := s.Intake(context.Background(), IntakeRequest{
		VisitID:   "missing",
		PatientID: testPatientID,
		DoctorID:  testDoctorID,
		QueueDate: testQueueDate,
	})
	assert.ErrorIs(t, err, ErrVisitNotFound)
	assert.Empty(t, store.entries)
	assert.Empty(t, store.queues)
}

func TestCheckIn(t *testing.T) {
	s, store := newTestScheduler(Config{})
	ctx := context.Background()

	seedVisit(store, "visit-1")
	admit(t, s, "visit-1")

	require.NoError(t, s.CheckIn(ctx, "visit-1", testQueueDate))

	entry := storedEntry(t, store, "visit-1")
	assert.Equal(t, models.StatusPresent, entry.Status)
	require.NotNil(t, entry.CheckInTime)
	assert.WithinDuration(t, time.Now(), *entry.CheckInTime, time.Minute)

	t.Run("repeat check-in conflicts", func(t *testing.T) {
		err := s.CheckIn(ctx, "visit-1", testQueueDate)
		assert.ErrorIs(t, err, ErrAlreadyCheckedIn)
	})

	t.Run("unknown visit", func(t *testing.T) {
		err := s.CheckIn(ctx, "missing", testQueueDate)
		assert.ErrorIs(t, err, ErrVisitNotFound)
	})

	t.Run("skipped entry cannot check in", func(t *testing.T) {
		seedVisit(store, "visit-2")
		admit(t, s, "visit-2")
		require.NoError(t, s.Skip(ctx, testDoctorID, "visit-2", testQueueDate, "left the clinic"))

		err := s.CheckIn(ctx, "visit-2", testQueueDate)
		var terr *TransitionError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, models.StatusSkipped, terr.From)
		assert.Equal(t, models.StatusPresent, terr.To)
	})
}

func TestCallNextPrefersPresentOverWaiting(t *testing.T) {
	s, store := newTestScheduler(Config{})
	notifier := &captureNotifier{ch: make(chan CalledPatient, 1)}
	s.notifier = notifier
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		visitID := fmt.Sprintf("visit-%d", i)
		seedVisit(store, visitID)
		admit(t, s, visitID)
	}
	// Only the holder of token 3 has arrived.
	require.NoError(t, s.CheckIn(ctx, "visit-3", testQueueDate))

	res, err := s.CallNext(ctx, testDoctorID, testQueueDate)
	require.NoError(t, err)
	assert.Equal(t, "visit-3", res.VisitID)
	assert.Equal(t, testPatientID, res.PatientID)
	assert.Equal(t, testDoctorID, res.DoctorID)
	assert.Equal(t, 3, res.TokenNumber)
	assert.Equal(t, models.StatusInConsultation, res.Status)

	entry := storedEntry(t, store, "visit-3")
	assert.Equal(t, models.StatusInConsultation, entry.Status)
	assert.NotNil(t, entry.ConsultationStartTime)

	q := storedQueue(t, store)
	assert.Equal(t, 3, q.CurrentToken)
	assert.Equal(t, "visit-3", q.CurrentVisitID)
	assert.Equal(t, events.TypeCallNext, q.LastEventType)
	assert.Equal(t, "Doctor called next patient", q.LastEventReason)
	assert.Equal(t, "doctor", q.LastUpdatedBy)

	select {
	case called := <-notifier.ch:
		assert.Equal(t, "visit-3", called.VisitID)
		assert.Equal(t, testPatientID, called.PatientID)
		assert.Equal(t, testDepartment, called.Department)
		assert.Equal(t, 3, called.TokenNumber)
		assert.Equal(t, "persistent headache", called.SymptomsSummary)
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was not invoked")
	}

	t.Run("second call while busy", func(t *testing.T) {
		_, err := s.CallNext(ctx, testDoctorID, testQueueDate)
		assert.ErrorIs(t, err, ErrConsultationInProgress)
		assert.Equal(t, "visit-3", storedQueue(t, store).CurrentVisitID)
	})

	t.Run("waiting entries follow in token order", func(t *testing.T) {
		_, err := s.EndConsultation(ctx, testDoctorID, "visit-3", testQueueDate)
		require.NoError(t, err)

		res, err := s.CallNext(ctx, testDoctorID, testQueueDate)
		require.NoError(t, err)
		assert.Equal(t, 1, res.TokenNumber)
		assert.Equal(t, "visit-1", res.VisitID)
	})
}

func TestCallNextErrors(t *testing.T) {
	s, store := newTestScheduler(Config{})
	ctx := context.Background()

	t.Run("unknown doctor", func(t *testing.T) {
		_, err := s.CallNext(ctx, "nobody", testQueueDate)
		assert.ErrorIs(t, err, ErrDoctorNotFound)
	})

	t.Run("no queue for date", func(t *testing.T) {
		_, err := s.CallNext(ctx, testDoctorID, testQueueDate)
		assert.ErrorIs(t, err, ErrQueueNotFound)
	})

	t.Run("nobody callable", func(t *testing.T) {
		seedVisit(store, "visit-1")
		admit(t, s, "visit-1")
		require.NoError(t, s.Skip(ctx, testDoctorID, "visit-1", testQueueDate, "no-show"))

		_, err := s.CallNext(ctx, testDoctorID, testQueueDate)
		assert.ErrorIs(t, err, ErrNoPatientsWaiting)
	})
}

func TestSkip(t *testing.T) {
	s, store := newTestScheduler(Config{})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		visitID := fmt.Sprintf("visit-%d", i)
		seedVisit(store, visitID)
		admit(t, s, visitID)
	}

	t.Run("reason is mandatory", func(t *testing.T) {
		err := s.Skip(ctx, testDoctorID, "visit-1", testQueueDate, "")
		assert.ErrorIs(t, err, ErrReasonRequired)
	})

	require.NoError(t, s.Skip(ctx, testDoctorID, "visit-1", testQueueDate, "stepped out"))
	assert.Equal(t, models.StatusSkipped, storedEntry(t, store, "visit-1").Status)

	q := storedQueue(t, store)
	assert.Equal(t, events.TypePatientSkipped, q.LastEventType)
	assert.Equal(t, "stepped out", q.LastEventReason)
	assert.Equal(t, "reception", q.LastUpdatedBy)

	t.Run("tokens keep their numbers", func(t *testing.T) {
		assert.Equal(t, 1, storedEntry(t, store, "visit-1").TokenNumber)
		assert.Equal(t, 2, storedEntry(t, store, "visit-2").TokenNumber)
		assert.Equal(t, 3, storedEntry(t, store, "visit-3").TokenNumber)
	})

	t.Run("skip is not repeatable", func(t *testing.T) {
		err := s.Skip(ctx, testDoctorID, "visit-1", testQueueDate, "again")
		var terr *TransitionError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, models.StatusSkipped, terr.From)
	})

	t.Run("consultation cannot be skipped", func(t *testing.T) {
		_, err := s.CallNext(ctx, testDoctorID, testQueueDate)
		require.NoError(t, err)

		err = s.Skip(ctx, testDoctorID, "visit-2", testQueueDate, "too late")
		var terr *TransitionError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, models.StatusInConsultation, terr.From)
	})
}

func TestStartConsultation(t *testing.T) {
	s, store := newTestScheduler(Config{})
	ctx := context.Background()

	seedVisit(store, "visit-1")
	seedVisit(store, "visit-2")
	admit(t, s, "visit-1")
	admit(t, s, "visit-2")

	t.Run("nothing called yet", func(t *testing.T) {
		err := s.StartConsultation(ctx, testDoctorID, "visit-1", testQueueDate)
		assert.ErrorIs(t, err, ErrVisitMismatch)
	})

	_, err := s.CallNext(ctx, testDoctorID, testQueueDate)
	require.NoError(t, err)

	require.NoError(t, s.StartConsultation(ctx, testDoctorID, "visit-1", testQueueDate))
	// Confirming twice is harmless.
	require.NoError(t, s.StartConsultation(ctx, testDoctorID, "visit-1", testQueueDate))

	t.Run("wrong visit", func(t *testing.T) {
		err := s.StartConsultation(ctx, testDoctorID, "visit-2", testQueueDate)
		assert.ErrorIs(t, err, ErrVisitMismatch)
	})
}

func TestEndConsultation(t *testing.T) {
	s, store := newTestScheduler(Config{})
	ctx := context.Background()

	seedVisit(store, "visit-1")
	seedVisit(store, "visit-2")
	admit(t, s, "visit-1")
	admit(t, s, "visit-2")

	t.Run("nothing to end", func(t *testing.T) {
		_, err := s.EndConsultation(ctx, testDoctorID, "visit-1", testQueueDate)
		assert.ErrorIs(t, err, ErrNoActiveConsultation)
	})

	_, err := s.CallNext(ctx, testDoctorID, testQueueDate)
	require.NoError(t, err)

	t.Run("wrong visit leaves consultation running", func(t *testing.T) {
		_, err := s.EndConsultation(ctx, testDoctorID, "visit-2", testQueueDate)
		assert.ErrorIs(t, err, ErrVisitMismatch)
		assert.Equal(t, "visit-1", storedQueue(t, store).CurrentVisitID)
	})

	res, err := s.EndConsultation(ctx, testDoctorID, "visit-1", testQueueDate)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "visit-1", res.VisitID)
	assert.Equal(t, "Consultation ended successfully", res.Message)

	entry := storedEntry(t, store, "visit-1")
	assert.Equal(t, models.StatusCompleted, entry.Status)
	assert.NotNil(t, entry.ConsultationEndTime)
	assert.Equal(t, models.VisitStatusCompleted, store.visits["visit-1"].Status)

	q := storedQueue(t, store)
	assert.Empty(t, q.CurrentVisitID)
	assert.Zero(t, q.CurrentToken)
	assert.Equal(t, events.TypeConsultationEnded, q.LastEventType)
	assert.Equal(t, "Doctor ended consultation", q.LastEventReason)
	assert.Equal(t, "doctor", q.LastUpdatedBy)

	t.Run("ending twice", func(t *testing.T) {
		_, err := s.EndConsultation(ctx, testDoctorID, "visit-1", testQueueDate)
		assert.ErrorIs(t, err, ErrNoActiveConsultation)
	})
}

func TestFullVisitLifecycle(t *testing.T) {
	s, store := newTestScheduler(Config{})
	ctx := context.Background()

	seedVisit(store, "visit-1")
	res := admit(t, s, "visit-1")
	assert.Equal(t, 1, res.TokenNumber)

	require.NoError(t, s.CheckIn(ctx, "visit-1", testQueueDate))

	called, err := s.CallNext(ctx, testDoctorID, testQueueDate)
	require.NoError(t, err)
	assert.Equal(t, "visit-1", called.VisitID)

	require.NoError(t, s.StartConsultation(ctx, testDoctorID, "visit-1", testQueueDate))

	ended, err := s.EndConsultation(ctx, testDoctorID, "visit-1", testQueueDate)
	require.NoError(t, err)
	assert.True(t, ended.Success)

	entry := storedEntry(t, store, "visit-1")
	assert.True(t, entry.IsTerminal())
	assert.NotNil(t, entry.CheckInTime)
	assert.NotNil(t, entry.ConsultationStartTime)
	assert.NotNil(t, entry.ConsultationEndTime)
	assert.Empty(t, storedQueue(t, store).CurrentVisitID)
}

type captureNotifier struct {
	ch  chan CalledPatient
	err error
}

func (n *captureNotifier) PatientCalled(_ context.Context, p CalledPatient) error {
	n.ch <- p
	return n.err
}

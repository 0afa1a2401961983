package scheduler

import (
	"context"

	"clinicq/internal/models"
)

// Store provides atomic read-modify-write access to queue state.
type Store interface {
	// ExecTx runs fn inside a single transaction. Either every write fn
	// performs commits, or none do. Lookups inside fn see a consistent
	// snapshot.
	ExecTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside one transaction.
// Lookup methods return (nil, nil) when the record does not exist.
type Tx interface {
	QueueByDoctorDate(ctx context.Context, doctorID, queueDate string) (*models.DoctorQueue, error)

	// CreateQueue inserts the queue, or returns the existing row when a
	// concurrent creation for the same (doctor, date) won the race.
	CreateQueue(ctx context.Context, q *models.DoctorQueue) (*models.DoctorQueue, error)
	UpdateQueue(ctx context.Context, q *models.DoctorQueue) error

	CountActiveEntries(ctx context.Context, queueID string) (int, error)

	// MaxToken returns the highest token number ever assigned in the
	// queue, zero when the queue has no entries. Terminal entries count:
	// tokens are never reused.
	MaxToken(ctx context.Context, queueID string) (int, error)

	InsertEntry(ctx context.Context, e *models.QueueEntry) error
	UpdateEntry(ctx context.Context, e *models.QueueEntry) error

	// EntryByVisit returns the latest entry for the visit in the queue.
	EntryByVisit(ctx context.Context, queueID, visitID string) (*models.QueueEntry, error)

	// NextCallable returns the entry that call-next should pick: present
	// entries before waiting ones, then ascending token number.
	NextCallable(ctx context.Context, queueID string) (*models.QueueEntry, error)

	// EntriesByQueue returns all entries of the queue in token order.
	EntriesByQueue(ctx context.Context, queueID string) ([]models.QueueEntry, error)

	Visit(ctx context.Context, id string) (*models.Visit, error)
	UpdateVisit(ctx context.Context, v *models.Visit) error
	Patient(ctx context.Context, id string) (*models.Patient, error)
	Doctor(ctx context.Context, id string) (*models.Doctor, error)
	Department(ctx context.Context, id string) (*models.Department, error)
}

// CalledPatient is the snapshot handed to the downstream notifier after a
// call-next transaction commits.
type CalledPatient struct {
	VisitID         string `json:"visit_id"`
	PatientID       string `json:"patient_id"`
	DoctorID        string `json:"doctor_id"`
	Department      string `json:"department,omitempty"`
	TokenNumber     int    `json:"token_number"`
	SymptomsSummary string `json:"symptoms_summary,omitempty"`
}

// Notifier receives the called-patient snapshot. It runs outside the
// transaction; failures must not feed back into queue state.
type Notifier interface {
	PatientCalled(ctx context.Context, p CalledPatient) error
}

package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"clinicq/internal/models"
)

// memStore is an in-memory Store with transactional rollback, used to
// exercise the scheduler without a database.
type memStore struct {
	mu          sync.Mutex
	queues      map[string]models.DoctorQueue
	entries     map[string]models.QueueEntry
	visits      map[string]models.Visit
	patients    map[string]models.Patient
	doctors     map[string]models.Doctor
	departments map[string]models.Department
}

func newMemStore() *memStore {
	return &memStore{
		queues:      make(map[string]models.DoctorQueue),
		entries:     make(map[string]models.QueueEntry),
		visits:      make(map[string]models.Visit),
		patients:    make(map[string]models.Patient),
		doctors:     make(map[string]models.Doctor),
		departments: make(map[string]models.Department),
	}
}

func (s *memStore) ExecTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	queues := copyMap(s.queues)
	entries := copyMap(s.entries)
	visits := copyMap(s.visits)

	if err := fn(&memTx{store: s}); err != nil {
		// Roll back by restoring the pre-transaction maps.
		s.queues = queues
		s.entries = entries
		s.visits = visits
		return err
	}
	return nil
}

func copyMap[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

type memTx struct {
	store *memStore
}

func (t *memTx) QueueByDoctorDate(_ context.Context, doctorID, queueDate string) (*models.DoctorQueue, error) {
	for _, q := range t.store.queues {
		if q.DoctorID == doctorID && q.QueueDate == queueDate {
			q := q
			return &q, nil
		}
	}
	return nil, nil
}

func (t *memTx) CreateQueue(ctx context.Context, q *models.DoctorQueue) (*models.DoctorQueue, error) {
	if existing, _ := t.QueueByDoctorDate(ctx, q.DoctorID, q.QueueDate); existing != nil {
		return existing, nil
	}
	now := time.Now()
	q.CreatedAt = now
	q.UpdatedAt = now
	t.store.queues[q.ID] = *q
	stored := *q
	return &stored, nil
}

func (t *memTx) UpdateQueue(_ context.Context, q *models.DoctorQueue) error {
	if _, ok := t.store.queues[q.ID]; !ok {
		return fmt.Errorf("queue %s not found", q.ID)
	}
	q.UpdatedAt = time.Now()
	t.store.queues[q.ID] = *q
	return nil
}

func (t *memTx) CountActiveEntries(_ context.Context, queueID string) (int, error) {
	count := 0
	for _, e := range t.store.entries {
		if e.QueueID == queueID && e.IsActive() {
			count++
		}
	}
	return count, nil
}

func (t *memTx) MaxToken(_ context.Context, queueID string) (int, error) {
	max := 0
	for _, e := range t.store.entries {
		if e.QueueID == queueID && e.TokenNumber > max {
			max = e.TokenNumber
		}
	}
	return max, nil
}

func (t *memTx) InsertEntry(_ context.Context, e *models.QueueEntry) error {
	for _, other := range t.store.entries {
		if other.QueueID == e.QueueID && other.TokenNumber == e.TokenNumber {
			return fmt.Errorf("duplicate token %d in queue %s", e.TokenNumber, e.QueueID)
		}
	}
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	t.store.entries[e.ID] = *e
	return nil
}

func (t *memTx) UpdateEntry(_ context.Context, e *models.QueueEntry) error {
	if _, ok := t.store.entries[e.ID]; !ok {
		return fmt.Errorf("entry %s not found", e.ID)
	}
	e.UpdatedAt = time.Now()
	t.store.entries[e.ID] = *e
	return nil
}

func (t *memTx) EntryByVisit(_ context.Context, queueID, visitID string) (*models.QueueEntry, error) {
	var found *models.QueueEntry
	for _, e := range t.store.entries {
		if e.QueueID == queueID && e.VisitID == visitID {
			e := e
			if found == nil || e.TokenNumber > found.TokenNumber {
				found = &e
			}
		}
	}
	return found, nil
}

func (t *memTx) NextCallable(_ context.Context, queueID string) (*models.QueueEntry, error) {
	var candidates []models.QueueEntry
	for _, e := range t.store.entries {
		if e.QueueID == queueID && (e.Status == models.StatusPresent || e.Status == models.StatusWaiting) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		pi := candidates[i].Status == models.StatusPresent
		pj := candidates[j].Status == models.StatusPresent
		if pi != pj {
			return pi
		}
		return candidates[i].TokenNumber < candidates[j].TokenNumber
	})
	return &candidates[0], nil
}

func (t *memTx) EntriesByQueue(_ context.Context, queueID string) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	for _, e := range t.store.entries {
		if e.QueueID == queueID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].TokenNumber < entries[j].TokenNumber
	})
	return entries, nil
}

func (t *memTx) Visit(_ context.Context, id string) (*models.Visit, error) {
	if v, ok := t.store.visits[id]; ok {
		return &v, nil
	}
	return nil, nil
}

func (t *memTx) UpdateVisit(_ context.Context, v *models.Visit) error {
	if _, ok := t.store.visits[v.ID]; !ok {
		return fmt.Errorf("visit %s not found", v.ID)
	}
	t.store.visits[v.ID] = *v
	return nil
}

func (t *memTx) Patient(_ context.Context, id string) (*models.Patient, error) {
	if p, ok := t.store.patients[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (t *memTx) Doctor(_ context.Context, id string) (*models.Doctor, error) {
	if d, ok := t.store.doctors[id]; ok {
		return &d, nil
	}
	return nil, nil
}

func (t *memTx) Department(_ context.Context, id string) (*models.Department, error) {
	if d, ok := t.store.departments[id]; ok {
		return &d, nil
	}
	return nil, nil
}

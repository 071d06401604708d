package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/enrollment-service/internal/domain"
)

// MemoryStore is a Store backed by in-memory maps. Transactions hold the
// enrollment lock for their whole duration and work on a copy that replaces the
// committed state only when the callback succeeds.
type MemoryStore struct {
	mu          sync.RWMutex
	enrollments map[string]domain.Enrollment

	refMu     sync.RWMutex
	offerings map[string]domain.CourseOffering
	semesters map[string]domain.Semester
	students  map[string]string
	documents map[string]map[domain.DocumentType]struct{}

	auditMu sync.RWMutex
	audit   []domain.AuditEvent
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		enrollments: map[string]domain.Enrollment{},
		offerings:   map[string]domain.CourseOffering{},
		semesters:   map[string]domain.Semester{},
		students:    map[string]string{},
		documents:   map[string]map[domain.DocumentType]struct{}{},
	}
}

// PutOffering seeds an offering.
func (s *MemoryStore) PutOffering(offering domain.CourseOffering) {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	s.offerings[offering.ID] = offering
}

// PutSemester seeds a semester.
func (s *MemoryStore) PutSemester(semester domain.Semester) {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	s.semesters[semester.ID] = semester
}

// PutStudent seeds a student and their batch.
func (s *MemoryStore) PutStudent(studentID, batchID string) {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	s.students[studentID] = batchID
}

// PutDocument records that userID uploaded a document of docType.
func (s *MemoryStore) PutDocument(userID string, docType domain.DocumentType) {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	if s.documents[userID] == nil {
		s.documents[userID] = map[domain.DocumentType]struct{}{}
	}
	s.documents[userID][docType] = struct{}{}
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx EnrollmentTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := make(map[string]domain.Enrollment, len(s.enrollments))
	for id, e := range s.enrollments {
		working[id] = e
	}
	if err := fn(ctx, &memoryTx{records: working}); err != nil {
		return err
	}
	s.enrollments = working
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*domain.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.enrollments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (s *MemoryStore) CountByOfferingAndStatuses(_ context.Context, offeringID string, statuses []domain.EnrollmentStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countMatching(s.enrollments, offeringID, statuses), nil
}

func (s *MemoryStore) List(_ context.Context, filter EnrollmentFilter) ([]domain.Enrollment, error) {
	var batches map[string]struct{}
	if len(filter.BatchIDs) > 0 {
		batches = toSet(filter.BatchIDs)
	}
	s.refMu.RLock()
	studentBatch := make(map[string]string, len(s.students))
	for id, batch := range s.students {
		studentBatch[id] = batch
	}
	s.refMu.RUnlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	offerings := toSet(filter.OfferingIDs)
	statuses := make(map[domain.EnrollmentStatus]struct{}, len(filter.Statuses))
	for _, status := range filter.Statuses {
		statuses[status] = struct{}{}
	}

	matched := []domain.Enrollment{}
	for _, e := range s.enrollments {
		if filter.StudentID != nil && e.StudentID != *filter.StudentID {
			continue
		}
		if len(offerings) > 0 {
			if _, ok := offerings[e.OfferingID]; !ok {
				continue
			}
		}
		if batches != nil {
			if _, ok := batches[studentBatch[e.StudentID]]; !ok {
				continue
			}
		}
		if len(statuses) > 0 {
			if _, ok := statuses[e.Status]; !ok {
				continue
			}
		}
		if filter.After != nil && !afterCursor(e, *filter.After) {
			continue
		}
		matched = append(matched, e)
	}

	sort.Slice(matched, func(i, j int) bool {
		return afterCursor(matched[j], Cursor{CreatedAt: matched[i].CreatedAt, ID: matched[i].ID})
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) GetOffering(_ context.Context, id string) (*domain.CourseOffering, error) {
	s.refMu.RLock()
	defer s.refMu.RUnlock()
	offering, ok := s.offerings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &offering, nil
}

func (s *MemoryStore) GetSemester(_ context.Context, id string) (*domain.Semester, error) {
	s.refMu.RLock()
	defer s.refMu.RUnlock()
	semester, ok := s.semesters[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &semester, nil
}

func (s *MemoryStore) GetBatchID(_ context.Context, studentID string) (string, error) {
	s.refMu.RLock()
	defer s.refMu.RUnlock()
	batch, ok := s.students[studentID]
	if !ok {
		return "", ErrNotFound
	}
	return batch, nil
}

func (s *MemoryStore) HasDocument(_ context.Context, userID string, docType domain.DocumentType) (bool, error) {
	s.refMu.RLock()
	defer s.refMu.RUnlock()
	_, ok := s.documents[userID][docType]
	return ok, nil
}

func (s *MemoryStore) Append(_ context.Context, event *domain.AuditEvent) error {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	s.audit = append(s.audit, *event)
	return nil
}

func (s *MemoryStore) ListByEntity(_ context.Context, entityType, entityID string) ([]domain.AuditEvent, error) {
	s.auditMu.RLock()
	defer s.auditMu.RUnlock()
	result := []domain.AuditEvent{}
	for _, event := range s.audit {
		if event.EntityType == entityType && event.EntityID == entityID {
			result = append(result, event)
		}
	}
	return result, nil
}

type memoryTx struct {
	records map[string]domain.Enrollment
}

func (t *memoryTx) LockOffering(context.Context, string) error {
	return nil
}

func (t *memoryTx) Insert(_ context.Context, enrollment *domain.Enrollment) error {
	if enrollment.Status.IsActive() {
		for _, e := range t.records {
			if e.StudentID == enrollment.StudentID && e.OfferingID == enrollment.OfferingID && e.Status.IsActive() {
				return ErrDuplicateActive
			}
		}
	}
	enrollment.UpdatedAt = enrollment.CreatedAt
	t.records[enrollment.ID] = *enrollment
	return nil
}

func (t *memoryTx) GetByID(_ context.Context, id string) (*domain.Enrollment, error) {
	e, ok := t.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (t *memoryTx) FindActive(_ context.Context, studentID, offeringID string) (*domain.Enrollment, error) {
	for _, e := range t.records {
		if e.StudentID == studentID && e.OfferingID == offeringID && e.Status.IsActive() {
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memoryTx) ConditionalUpdate(_ context.Context, id string, expected domain.EnrollmentStatus, patch domain.EnrollmentPatch) (*domain.Enrollment, error) {
	e, ok := t.records[id]
	if !ok || e.Status != expected {
		return nil, ErrStatusMismatch
	}
	updated := patch.Apply(e)
	t.records[id] = updated
	return &updated, nil
}

func (t *memoryTx) CountByOfferingAndStatuses(_ context.Context, offeringID string, statuses []domain.EnrollmentStatus) (int, error) {
	return countMatching(t.records, offeringID, statuses), nil
}

func countMatching(records map[string]domain.Enrollment, offeringID string, statuses []domain.EnrollmentStatus) int {
	count := 0
	for _, e := range records {
		if e.OfferingID != offeringID {
			continue
		}
		for _, status := range statuses {
			if e.Status == status {
				count++
				break
			}
		}
	}
	return count
}

// afterCursor reports whether e sorts after the cursor position in (created_at DESC, id DESC).
func afterCursor(e domain.Enrollment, c Cursor) bool {
	if e.CreatedAt.Before(c.CreatedAt) {
		return true
	}
	return e.CreatedAt.Equal(c.CreatedAt) && e.ID < c.ID
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

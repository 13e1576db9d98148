package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/MindMate/internal/models"
	"github.com/BTreeMap/MindMate/internal/util"
)

// InMemoryStore is a Store held in process memory. It is used in tests and
// when no database is configured. It has no job queue.
type InMemoryStore struct {
	mu            sync.RWMutex
	records       []models.InteractionRecord
	assessments   []models.RiskAssessment
	interventions []models.Intervention
	profiles      map[string]models.UserProfile
	idempotency   map[string]string
	now           func() time.Time
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates a new empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		profiles:    make(map[string]models.UserProfile),
		idempotency: make(map[string]string),
		now:         time.Now,
	}
}

func (s *InMemoryStore) AppendRecord(_ context.Context, rec models.InteractionRecord) (models.InteractionRecord, error) {
	if err := rec.Validate(); err != nil {
		return rec, err
	}
	rec.Timestamp = rec.Timestamp.UTC()
	if rec.ID == "" {
		rec.ID = util.NewRecordID(util.PrefixInteraction, rec.Timestamp)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return rec, nil
}

func (s *InMemoryStore) QueryRecords(_ context.Context, userID string, kind models.RecordKind, tr models.TimeRange) ([]models.InteractionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.InteractionRecord
	for _, r := range s.records {
		if r.UserID == userID && r.Kind == kind && tr.Contains(r.Timestamp) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *InMemoryStore) ActiveUsers(_ context.Context, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, r := range s.records {
		if !r.Timestamp.Before(since) {
			seen[r.UserID] = struct{}{}
		}
	}
	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

func (s *InMemoryStore) AppendAssessment(_ context.Context, a models.RiskAssessment) error {
	if err := models.ValidateUserID(a.UserID); err != nil {
		return err
	}
	if !a.Level.Valid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidRiskLevel, a.Level)
	}
	if a.ID == "" {
		a.ID = util.NewRecordID(util.PrefixAssessment, a.Timestamp)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments = append(s.assessments, a)
	return nil
}

func (s *InMemoryStore) LatestAssessment(_ context.Context, userID string) (*models.RiskAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	var latest *models.RiskAssessment
	for i := range s.assessments {
		a := &s.assessments[i]
		if a.UserID != userID || !a.ExpiresAt.After(now) {
			continue
		}
		if latest == nil || !a.Timestamp.Before(latest.Timestamp) {
			latest = a
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *InMemoryStore) AppendIntervention(_ context.Context, iv models.Intervention) error {
	if err := models.ValidateUserID(iv.UserID); err != nil {
		return err
	}
	if iv.ID == "" {
		return models.ErrEmptyInterventionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interventions = append(s.interventions, iv)
	return nil
}

func (s *InMemoryStore) LatestIntervention(_ context.Context, userID string) (*models.Intervention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	var latest *models.Intervention
	for i := range s.interventions {
		iv := &s.interventions[i]
		if iv.UserID != userID || !iv.ExpiresAt.After(now) {
			continue
		}
		if latest == nil || !iv.Timestamp.Before(latest.Timestamp) {
			latest = iv
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *InMemoryStore) MarkResponded(_ context.Context, interventionID string) error {
	if interventionID == "" {
		return models.ErrEmptyInterventionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for i := range s.interventions {
		if s.interventions[i].ID == interventionID && s.interventions[i].ExpiresAt.After(now) {
			s.interventions[i].UserResponded = true
			return nil
		}
	}
	return fmt.Errorf("intervention %s: %w", interventionID, models.ErrNotFound)
}

func (s *InMemoryStore) SetInterventionChannels(_ context.Context, interventionID string, channels []string) error {
	if interventionID == "" {
		return models.ErrEmptyInterventionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.interventions {
		if s.interventions[i].ID == interventionID {
			s.interventions[i].Channels = append([]string(nil), channels...)
			return nil
		}
	}
	return fmt.Errorf("intervention %s: %w", interventionID, models.ErrNotFound)
}

func (s *InMemoryStore) GetProfile(_ context.Context, userID string) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *InMemoryStore) SaveProfile(_ context.Context, p models.UserProfile) error {
	if err := models.ValidateUserID(p.UserID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
	return nil
}

func (s *InMemoryStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	keptA := s.assessments[:0]
	for _, a := range s.assessments {
		if a.ExpiresAt.After(now) {
			keptA = append(keptA, a)
		} else {
			removed++
		}
	}
	s.assessments = keptA
	keptI := s.interventions[:0]
	for _, iv := range s.interventions {
		if iv.ExpiresAt.After(now) {
			keptI = append(keptI, iv)
		} else {
			removed++
		}
	}
	s.interventions = keptI
	return removed, nil
}

func (s *InMemoryStore) LookupIdempotencyKey(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idempotency[key], nil
}

func (s *InMemoryStore) SaveIdempotencyKey(key, _ string, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.idempotency[key]; !ok {
		s.idempotency[key] = recordID
	}
	return nil
}

// Interventions returns every logged intervention for userID, oldest first,
// including expired ones.
func (s *InMemoryStore) Interventions(userID string) []models.Intervention {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Intervention
	for _, iv := range s.interventions {
		if iv.UserID == userID {
			out = append(out, iv)
		}
	}
	return out
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

package memory

import (
	"context"
	"sort"
	"sync"

	"classroom-quiz-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository.
// The finalized-attempt check and the insert share one lock, which gives the
// same guarantee as the unique index used by the Postgres store.
type AttemptStore struct {
	mu        sync.RWMutex
	attempts  map[string]domain.QuizAttempt
	submitted map[pairKey]string
}

type pairKey struct {
	quizID    string
	studentID string
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts:  make(map[string]domain.QuizAttempt),
		submitted: make(map[pairKey]string),
	}
}

func (s *AttemptStore) HasSubmittedAttempt(_ context.Context, quizID, studentID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.submitted[pairKey{quizID, studentID}]
	return ok, nil
}

func (s *AttemptStore) CreateAttemptWithResponses(_ context.Context, attempt domain.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{attempt.QuizID, attempt.StudentID}
	if attempt.Submitted() {
		if _, exists := s.submitted[key]; exists {
			return domain.ErrAlreadySubmitted
		}
		s.submitted[key] = attempt.ID
	}
	s.attempts[attempt.ID] = cloneAttempt(attempt)
	return nil
}

func (s *AttemptStore) ListStudentAttempts(_ context.Context, studentID string, quizIDs []string) ([]domain.QuizAttempt, error) {
	wanted := make(map[string]struct{}, len(quizIDs))
	for _, id := range quizIDs {
		wanted[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.QuizAttempt, 0)
	for _, a := range s.attempts {
		if a.StudentID != studentID {
			continue
		}
		if _, ok := wanted[a.QuizID]; !ok {
			continue
		}
		summary := cloneAttempt(a)
		summary.Responses = nil
		out = append(out, summary)
	}
	// Same order as the Postgres store.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func cloneAttempt(a domain.QuizAttempt) domain.QuizAttempt {
	out := a
	if a.SubmittedAt != nil {
		t := *a.SubmittedAt
		out.SubmittedAt = &t
	}
	if a.Score != nil {
		score := *a.Score
		out.Score = &score
	}
	if a.Responses != nil {
		out.Responses = append([]domain.QuestionResponse(nil), a.Responses...)
	}
	return out
}

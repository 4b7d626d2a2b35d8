package memory

import (
	"context"
	"sync"

	"classroom-quiz-service/internal/domain"
)

// QuizStore keeps quizzes in a map. It backs local runs and tests.
type QuizStore struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
}

func NewQuizStore(quizzes map[string]domain.Quiz) *QuizStore {
	s := &QuizStore{quizzes: make(map[string]domain.Quiz, len(quizzes))}
	for id, q := range quizzes {
		s.quizzes[id] = q
	}
	return s
}

func (s *QuizStore) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if quiz, ok := s.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (s *QuizStore) CreateQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = quiz
	return nil
}

// ListQuizzes returns the quizzes of a subject in no particular order.
func (s *QuizStore) ListQuizzes(_ context.Context, subjectID string) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Quiz, 0)
	for _, q := range s.quizzes {
		if q.SubjectID == subjectID {
			out = append(out, q)
		}
	}
	return out, nil
}

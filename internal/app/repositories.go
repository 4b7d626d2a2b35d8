package app

import (
	"context"

	"classroom-quiz-service/internal/domain"
)

// QuizRepository loads quiz content, including answer keys (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizCatalog is the authoring and listing side of quiz storage.
type QuizCatalog interface {
	CreateQuiz(ctx context.Context, quiz domain.Quiz) error
	ListQuizzes(ctx context.Context, subjectID string) ([]domain.Quiz, error)
}

// AttemptRepository persists graded attempts.
type AttemptRepository interface {
	// HasSubmittedAttempt reports whether the student already has a finalized
	// attempt for the quiz.
	HasSubmittedAttempt(ctx context.Context, quizID, studentID string) (bool, error)
	// CreateAttemptWithResponses stores the attempt and its responses atomically.
	// It returns domain.ErrAlreadySubmitted if a finalized attempt already exists.
	CreateAttemptWithResponses(ctx context.Context, attempt domain.QuizAttempt) error
	// ListStudentAttempts returns the student's attempts for the given quizzes, without responses.
	ListStudentAttempts(ctx context.Context, studentID string, quizIDs []string) ([]domain.QuizAttempt, error)
}

// EventPublisher receives attempt events after commit.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.AttemptEvent) error
}

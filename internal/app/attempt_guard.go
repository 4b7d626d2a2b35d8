package app

import (
	"context"
	"fmt"
	"time"

	"classroom-quiz-service/internal/domain"
)

// AttemptGuard decides whether a student may submit a quiz at a given instant.
type AttemptGuard struct {
	quizzes  QuizRepository
	attempts AttemptRepository
}

func NewAttemptGuard(quizzes QuizRepository, attempts AttemptRepository) *AttemptGuard {
	return &AttemptGuard{quizzes: quizzes, attempts: attempts}
}

// CheckEligible returns the quiz with its questions when the submission is allowed.
// The window is evaluated against now, the server time of the request.
func (g *AttemptGuard) CheckEligible(ctx context.Context, quizID, studentID string, now time.Time) (domain.Quiz, error) {
	quiz, err := g.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if !quiz.ActiveAt(now) {
		return domain.Quiz{}, domain.ErrOutOfWindow
	}

	submitted, err := g.attempts.HasSubmittedAttempt(ctx, quizID, studentID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("check attempt: %w", err)
	}
	if submitted {
		return domain.Quiz{}, domain.ErrAlreadySubmitted
	}
	return quiz, nil
}

package app

import (
	"context"
	"time"

	"classroom-quiz-service/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AttemptRecorder grades a submission and persists it as a finalized attempt.
type AttemptRecorder struct {
	attempts AttemptRepository
	events   EventPublisher
	grader   Grader
	newID    func() string
	logger   *zap.Logger
}

func NewAttemptRecorder(attempts AttemptRepository, events EventPublisher, logger *zap.Logger) *AttemptRecorder {
	return &AttemptRecorder{
		attempts: attempts,
		events:   events,
		grader:   NewGrader(),
		newID:    uuid.NewString,
		logger:   logger,
	}
}

// RecordAttempt must run right after a successful AttemptGuard.CheckEligible
// for the same quiz, student and instant. The store's uniqueness constraint is
// what finally rejects a concurrent duplicate.
//
// Responses for question ids that are not part of the quiz are dropped.
func (r *AttemptRecorder) RecordAttempt(ctx context.Context, quiz domain.Quiz, studentID string, now time.Time, responses []domain.ResponseInput) (domain.QuizAttempt, error) {
	bank := NewQuestionBank(quiz)
	attemptID := r.newID()

	graded := make([]domain.QuestionResponse, 0, len(responses))
	total := 0
	for _, resp := range responses {
		question, ok := bank.Lookup(resp.QuestionID)
		if !ok {
			continue
		}
		verdict := r.grader.Grade(question, resp.Answer)
		total += verdict.Points
		graded = append(graded, domain.QuestionResponse{
			ID:         r.newID(),
			AttemptID:  attemptID,
			QuestionID: resp.QuestionID,
			Answer:     resp.Answer,
			IsCorrect:  verdict.IsCorrect,
			Points:     verdict.Points,
		})
	}

	submittedAt := now
	attempt := domain.QuizAttempt{
		ID:          attemptID,
		QuizID:      quiz.ID,
		StudentID:   studentID,
		StartedAt:   now,
		SubmittedAt: &submittedAt,
		Score:       &total,
		Responses:   graded,
	}
	if err := r.attempts.CreateAttemptWithResponses(ctx, attempt); err != nil {
		return domain.QuizAttempt{}, err
	}

	r.publish(ctx, domain.AttemptEvent{
		Type:        domain.EventAttemptSubmitted,
		QuizID:      quiz.ID,
		AttemptID:   attemptID,
		StudentID:   studentID,
		Score:       total,
		MaxScore:    bank.MaxScore(),
		SubmittedAt: submittedAt,
	})
	return attempt, nil
}

func (r *AttemptRecorder) publish(ctx context.Context, event domain.AttemptEvent) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(ctx, event); err != nil {
		r.logger.Warn("publish attempt event",
			zap.String("quiz_id", event.QuizID),
			zap.String("attempt_id", event.AttemptID),
			zap.Error(err))
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"classroom-quiz-service/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubmitAttemptInput is the body of an attempt submission.
type SubmitAttemptInput struct {
	Responses []domain.ResponseInput `json:"responses" validate:"required,unique=QuestionID,dive"`
}

// CreateQuizInput is the body of a quiz creation request.
type CreateQuizInput struct {
	SubjectID   string          `json:"subjectId" validate:"required"`
	Title       string          `json:"title" validate:"required"`
	Description string          `json:"description"`
	StartTime   time.Time       `json:"startTime" validate:"required"`
	EndTime     time.Time       `json:"endTime" validate:"required,gtfield=StartTime"`
	Duration    int             `json:"duration" validate:"gte=0"`
	Questions   []QuestionInput `json:"questions" validate:"required,min=1,dive"`
}

// QuestionInput describes one question of CreateQuizInput.
type QuestionInput struct {
	Content string              `json:"content" validate:"required"`
	Type    domain.QuestionType `json:"type" validate:"required,oneof=MULTIPLE_CHOICE SHORT_ANSWER LONG_ANSWER"`
	Options []domain.Option     `json:"options" validate:"required_if=Type MULTIPLE_CHOICE"`
	Answer  *string             `json:"answer" validate:"required_unless=Type MULTIPLE_CHOICE"`
	Points  int                 `json:"points" validate:"gt=0"`
}

// Option configures a QuizService.
type Option func(*QuizService)

// WithClock replaces the wall clock, mainly for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *QuizService) { s.now = now }
}

// QuizService contains the quiz use cases.
type QuizService struct {
	quizzes  QuizRepository
	catalog  QuizCatalog
	attempts AttemptRepository
	guard    *AttemptGuard
	recorder *AttemptRecorder
	feed     *Broadcaster
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
	logger   *zap.Logger
}

// NewQuizService wires the use cases. events receives post-commit attempt
// events; feed serves SubscribeAttempts and may be the same value as events.
func NewQuizService(quizzes QuizRepository, catalog QuizCatalog, attempts AttemptRepository, events EventPublisher, feed *Broadcaster, logger *zap.Logger, opts ...Option) *QuizService {
	s := &QuizService{
		quizzes:  quizzes,
		catalog:  catalog,
		attempts: attempts,
		guard:    NewAttemptGuard(quizzes, attempts),
		recorder: NewAttemptRecorder(attempts, events, logger),
		feed:     feed,
		validate: newValidator(),
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitAttempt checks eligibility, grades the responses and records the attempt.
func (s *QuizService) SubmitAttempt(ctx context.Context, principal domain.Principal, quizID string, input SubmitAttemptInput) (domain.QuizAttempt, error) {
	if principal.ID == "" {
		return domain.QuizAttempt{}, domain.ErrUnauthenticated
	}
	if err := s.validateInput(input); err != nil {
		return domain.QuizAttempt{}, err
	}

	now := s.now()
	quiz, err := s.guard.CheckEligible(ctx, quizID, principal.ID, now)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	attempt, err := s.recorder.RecordAttempt(ctx, quiz, principal.ID, now, input.Responses)
	if err != nil {
		return domain.QuizAttempt{}, err
	}

	s.logger.Info("attempt recorded",
		zap.String("quiz_id", quizID),
		zap.String("student_id", principal.ID),
		zap.Int("score", *attempt.Score),
		zap.Int("responses", len(attempt.Responses)))
	return attempt, nil
}

// CreateQuiz stores a new quiz. Only principals with the instructor capability may author quizzes.
func (s *QuizService) CreateQuiz(ctx context.Context, principal domain.Principal, input CreateQuizInput) (domain.Quiz, error) {
	if principal.ID == "" {
		return domain.Quiz{}, domain.ErrUnauthenticated
	}
	if !principal.CanAuthorQuizzes() {
		return domain.Quiz{}, domain.ErrForbidden
	}
	if err := s.validateInput(input); err != nil {
		return domain.Quiz{}, err
	}

	quiz := domain.Quiz{
		ID:              s.newID(),
		SubjectID:       input.SubjectID,
		Title:           input.Title,
		Description:     input.Description,
		StartTime:       input.StartTime,
		EndTime:         input.EndTime,
		DurationMinutes: input.Duration,
		CreatedBy:       principal.ID,
		CreatedAt:       s.now(),
		Questions:       make([]domain.Question, 0, len(input.Questions)),
	}
	for i, in := range input.Questions {
		key, err := domain.NewAnswerKey(in.Type, in.Options, in.Answer)
		if err != nil {
			return domain.Quiz{}, domain.NewValidationError(err.Error())
		}
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID:       s.newID(),
			QuizID:   quiz.ID,
			Position: i,
			Content:  in.Content,
			Type:     in.Type,
			Key:      key,
			Points:   in.Points,
		})
	}

	if err := s.catalog.CreateQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("create quiz: %w", err)
	}
	s.logger.Info("quiz created",
		zap.String("quiz_id", quiz.ID),
		zap.String("subject_id", quiz.SubjectID),
		zap.Int("questions", len(quiz.Questions)))
	return quiz, nil
}

// ListQuizzes returns the quizzes of a subject ordered by start time, without
// answer keys, together with the caller's own attempts.
func (s *QuizService) ListQuizzes(ctx context.Context, principal domain.Principal, subjectID string) ([]domain.QuizSummary, error) {
	if principal.ID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if subjectID == "" {
		return nil, domain.NewValidationError("Subject ID is required")
	}

	quizzes, err := s.catalog.ListQuizzes(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	sort.SliceStable(quizzes, func(i, j int) bool {
		return quizzes[i].StartTime.Before(quizzes[j].StartTime)
	})

	ids := make([]string, 0, len(quizzes))
	for _, q := range quizzes {
		ids = append(ids, q.ID)
	}
	byQuiz := make(map[string][]domain.QuizAttempt)
	if len(ids) > 0 {
		attempts, err := s.attempts.ListStudentAttempts(ctx, principal.ID, ids)
		if err != nil {
			return nil, fmt.Errorf("list attempts: %w", err)
		}
		for _, a := range attempts {
			byQuiz[a.QuizID] = append(byQuiz[a.QuizID], a)
		}
	}

	out := make([]domain.QuizSummary, 0, len(quizzes))
	for _, q := range quizzes {
		summary := domain.QuizSummary{
			ID:              q.ID,
			SubjectID:       q.SubjectID,
			Title:           q.Title,
			Description:     q.Description,
			StartTime:       q.StartTime,
			EndTime:         q.EndTime,
			DurationMinutes: q.DurationMinutes,
			Questions:       make([]domain.QuestionSummary, 0, len(q.Questions)),
			Attempts:        byQuiz[q.ID],
		}
		if summary.Attempts == nil {
			summary.Attempts = []domain.QuizAttempt{}
		}
		for _, question := range q.Questions {
			summary.Questions = append(summary.Questions, domain.QuestionSummary{
				ID:      question.ID,
				Content: question.Content,
				Type:    question.Type,
				Points:  question.Points,
			})
		}
		out = append(out, summary)
	}
	return out, nil
}

// SubscribeAttempts returns a channel of submitted-attempt events for a quiz.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) SubscribeAttempts(ctx context.Context, principal domain.Principal, quizID string) (<-chan domain.AttemptEvent, func(), error) {
	if principal.ID == "" {
		return nil, nil, domain.ErrUnauthenticated
	}
	if !principal.CanAuthorQuizzes() {
		return nil, nil, domain.ErrForbidden
	}
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.feed.Subscribe(quizID)
	return ch, cancel, nil
}

func (s *QuizService) validateInput(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.NewValidationError(err.Error())
	}
	return domain.NewValidationError(describeFieldError(verrs[0]))
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required", "required_if", "required_unless":
		return field + " is required"
	case "unique":
		return field + " must not repeat a questionId"
	case "gtfield":
		return field + " must be after startTime"
	case "oneof":
		return field + " must be one of " + fe.Param()
	case "min":
		return field + " must contain at least " + fe.Param() + " item"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

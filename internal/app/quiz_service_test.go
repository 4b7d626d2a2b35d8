package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
	"classroom-quiz-service/internal/infra/memory"
	"go.uber.org/zap/zaptest"
)

var (
	quizStart = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	quizEnd   = quizStart.Add(time.Hour)
	student   = domain.Principal{ID: "u1", Name: "Alice", Email: "alice@example.com", Role: domain.RoleStudent}
	rep       = domain.Principal{ID: "cr1", Name: "Carol", Email: "carol@example.com", Role: domain.RoleCR}
)

type fixture struct {
	service  *app.QuizService
	attempts *memory.AttemptStore
	feed     *app.Broadcaster
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		attempts: memory.NewAttemptStore(),
		feed:     app.NewBroadcaster(),
		now:      quizStart.Add(30 * time.Minute),
	}
	store := memory.NewQuizStore(map[string]domain.Quiz{"quiz-1": geographyQuiz()})
	quizzes := memory.NewQuizRepository(store, 5*time.Minute)
	f.service = app.NewQuizService(quizzes, store, f.attempts, f.feed, f.feed, zaptest.NewLogger(t),
		app.WithClock(func() time.Time { return f.now }))
	return f
}

func TestSubmitAttemptGradesScenario(t *testing.T) {
	f := newFixture(t)

	attempt, err := f.service.SubmitAttempt(context.Background(), student, "quiz-1", app.SubmitAttemptInput{
		Responses: []domain.ResponseInput{
			{QuestionID: "q1", Answer: "B"},
			{QuestionID: "q2", Answer: "paris"},
		},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if attempt.Score == nil || *attempt.Score != 3 {
		t.Fatalf("expected score 3, got %v", attempt.Score)
	}
	if attempt.SubmittedAt == nil || !attempt.SubmittedAt.Equal(f.now) {
		t.Fatalf("expected submittedAt %v, got %v", f.now, attempt.SubmittedAt)
	}
	if len(attempt.Responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(attempt.Responses))
	}
	if r := attempt.Responses[0]; !r.IsCorrect || r.Points != 3 || r.AttemptID != attempt.ID {
		t.Fatalf("unexpected q1 response %+v", r)
	}
	if r := attempt.Responses[1]; r.IsCorrect || r.Points != 0 || r.Answer != "paris" {
		t.Fatalf("unexpected q2 response %+v", r)
	}

	sum := 0
	for _, r := range attempt.Responses {
		sum += r.Points
	}
	if sum != *attempt.Score {
		t.Fatalf("score %d does not equal response sum %d", *attempt.Score, sum)
	}

	stored := storedAttempts(t, f.attempts)
	if len(stored) != 1 || stored[0].ID != attempt.ID || *stored[0].Score != 3 {
		t.Fatalf("stored attempt mismatch: %+v", stored)
	}
}

func TestSubmitAttemptOutsideWindow(t *testing.T) {
	for _, at := range []time.Time{quizStart.Add(-time.Second), quizEnd.Add(time.Second)} {
		f := newFixture(t)
		f.now = at

		_, err := f.service.SubmitAttempt(context.Background(), student, "quiz-1", app.SubmitAttemptInput{
			Responses: []domain.ResponseInput{{QuestionID: "q1", Answer: "B"}},
		})
		if !errors.Is(err, domain.ErrOutOfWindow) {
			t.Fatalf("at %v: expected out of window, got %v", at, err)
		}
		if n := len(storedAttempts(t, f.attempts)); n != 0 {
			t.Fatalf("at %v: expected no attempt stored, got %d", at, n)
		}
	}
}

func TestSubmitAttemptAcceptsWindowBoundaries(t *testing.T) {
	for _, at := range []time.Time{quizStart, quizEnd} {
		f := newFixture(t)
		f.now = at
		if _, err := f.service.SubmitAttempt(context.Background(), student, "quiz-1", app.SubmitAttemptInput{
			Responses: []domain.ResponseInput{},
		}); err != nil {
			t.Fatalf("at %v: expected boundary to be accepted, got %v", at, err)
		}
	}
}

func TestSubmitAttemptRejectsSecondSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.SubmitAttempt(ctx, student, "quiz-1", app.SubmitAttemptInput{
		Responses: []domain.ResponseInput{{QuestionID: "q1", Answer: "B"}},
	})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err = f.service.SubmitAttempt(ctx, student, "quiz-1", app.SubmitAttemptInput{
		Responses: []domain.ResponseInput{{QuestionID: "q1", Answer: "B"}, {QuestionID: "q2", Answer: "Paris"}},
	})
	if !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected already submitted, got %v", err)
	}

	stored := storedAttempts(t, f.attempts)
	if len(stored) != 1 || stored[0].ID != first.ID || *stored[0].Score != 3 {
		t.Fatalf("original attempt changed: %+v", stored)
	}
}

func TestSubmitAttemptConcurrentSubmissionsKeepOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.SubmitAttempt(ctx, student, "quiz-1", app.SubmitAttemptInput{
				Responses: []domain.ResponseInput{{QuestionID: "q1", Answer: "B"}},
			})
			if err != nil && !errors.Is(err, domain.ErrAlreadySubmitted) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful submission, got %d", successes)
	}
	if n := len(storedAttempts(t, f.attempts)); n != 1 {
		t.Fatalf("expected one stored attempt, got %d", n)
	}
}

func TestSubmitAttemptUnknownQuiz(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.SubmitAttempt(context.Background(), student, "quiz-404", app.SubmitAttemptInput{
		Responses: []domain.ResponseInput{},
	})
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func TestSubmitAttemptDropsUnknownQuestions(t *testing.T) {
	f := newFixture(t)
	attempt, err := f.service.SubmitAttempt(context.Background(), student, "quiz-1", app.SubmitAttemptInput{
		Responses: []domain.ResponseInput{
			{QuestionID: "q-missing", Answer: "B"},
			{QuestionID: "q2", Answer: "Paris"},
		},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if *attempt.Score != 2 || len(attempt.Responses) != 1 || attempt.Responses[0].QuestionID != "q2" {
		t.Fatalf("expected only q2 recorded with score 2, got score %d responses %+v", *attempt.Score, attempt.Responses)
	}
}

func TestSubmitAttemptValidation(t *testing.T) {
	cases := []struct {
		name  string
		input app.SubmitAttemptInput
	}{
		{"missing responses", app.SubmitAttemptInput{}},
		{"repeated question", app.SubmitAttemptInput{Responses: []domain.ResponseInput{
			{QuestionID: "q1", Answer: "B"},
			{QuestionID: "q1", Answer: "B"},
		}}},
	}
	for _, tc := range cases {
		f := newFixture(t)
		_, err := f.service.SubmitAttempt(context.Background(), student, "quiz-1", tc.input)
		if !domain.IsValidation(err) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
		if n := len(storedAttempts(t, f.attempts)); n != 0 {
			t.Fatalf("%s: expected nothing stored, got %d", tc.name, n)
		}
	}
}

func TestSubmitAttemptDropsResponsesWithoutQuestionID(t *testing.T) {
	f := newFixture(t)

	attempt, err := f.service.SubmitAttempt(context.Background(), student, "quiz-1", app.SubmitAttemptInput{
		Responses: []domain.ResponseInput{
			{Answer: "B"},
			{QuestionID: "q2", Answer: "Paris"},
		},
	})
	if err != nil {
		t.Fatalf("expected empty question id to be dropped, got %v", err)
	}
	if *attempt.Score != 2 || len(attempt.Responses) != 1 || attempt.Responses[0].QuestionID != "q2" {
		t.Fatalf("unexpected attempt %+v", attempt)
	}
}

func TestSubmitAttemptRequiresPrincipal(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.SubmitAttempt(context.Background(), domain.Principal{}, "quiz-1", app.SubmitAttemptInput{
		Responses: []domain.ResponseInput{},
	})
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestSubmitAttemptPublishesEventAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	events, cancel, err := f.service.SubscribeAttempts(ctx, rep, "quiz-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	attempt, err := f.service.SubmitAttempt(ctx, student, "quiz-1", app.SubmitAttemptInput{
		Responses: []domain.ResponseInput{{QuestionID: "q1", Answer: "B"}, {QuestionID: "q2", Answer: "Paris"}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != domain.EventAttemptSubmitted || ev.AttemptID != attempt.ID || ev.Score != 5 || ev.MaxScore != 5 {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected attempt event")
	}
}

func TestSubscribeAttemptsRequiresInstructor(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.service.SubscribeAttempts(context.Background(), student, "quiz-1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, _, err := f.service.SubscribeAttempts(context.Background(), rep, "quiz-404"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSubmitAttemptSurvivesPublishFailure(t *testing.T) {
	attempts := memory.NewAttemptStore()
	store := memory.NewQuizStore(map[string]domain.Quiz{"quiz-1": geographyQuiz()})
	service := app.NewQuizService(memory.NewQuizRepository(store, time.Minute), store, attempts,
		failingPublisher{}, app.NewBroadcaster(), zaptest.NewLogger(t),
		app.WithClock(func() time.Time { return quizStart.Add(time.Minute) }))

	if _, err := service.SubmitAttempt(context.Background(), student, "quiz-1", app.SubmitAttemptInput{
		Responses: []domain.ResponseInput{{QuestionID: "q1", Answer: "B"}},
	}); err != nil {
		t.Fatalf("expected submit to succeed despite publish failure, got %v", err)
	}
	if len(storedAttempts(t, attempts)) != 1 {
		t.Fatalf("expected attempt stored")
	}
}

func TestSubmitAttemptStorageFailureIsNotPublished(t *testing.T) {
	store := memory.NewQuizStore(map[string]domain.Quiz{"quiz-1": geographyQuiz()})
	feed := app.NewBroadcaster()
	service := app.NewQuizService(memory.NewQuizRepository(store, time.Minute), store, brokenAttempts{},
		feed, feed, zaptest.NewLogger(t),
		app.WithClock(func() time.Time { return quizStart.Add(time.Minute) }))

	events, cancel := feed.Subscribe("quiz-1")
	defer cancel()

	_, err := service.SubmitAttempt(context.Background(), student, "quiz-1", app.SubmitAttemptInput{
		Responses: []domain.ResponseInput{{QuestionID: "q1", Answer: "B"}},
	})
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("expected storage failure, got %v", err)
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestCreateQuizRequiresInstructor(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.CreateQuiz(context.Background(), student, validQuizInput())
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCreateQuizValidation(t *testing.T) {
	f := newFixture(t)

	noTitle := validQuizInput()
	noTitle.Title = ""

	reversed := validQuizInput()
	reversed.EndTime = reversed.StartTime.Add(-time.Minute)

	zeroPoints := validQuizInput()
	zeroPoints.Questions[0].Points = 0

	badType := validQuizInput()
	badType.Questions[0].Type = "ESSAY"

	noAnswer := validQuizInput()
	noAnswer.Questions[1].Answer = nil

	noOptions := validQuizInput()
	noOptions.Questions[0].Options = nil

	for name, input := range map[string]app.CreateQuizInput{
		"no title":    noTitle,
		"reversed":    reversed,
		"zero points": zeroPoints,
		"bad type":    badType,
		"no answer":   noAnswer,
		"no options":  noOptions,
	} {
		if _, err := f.service.CreateQuiz(context.Background(), rep, input); !domain.IsValidation(err) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestCreateQuizThenSubmitAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	quiz, err := f.service.CreateQuiz(ctx, rep, validQuizInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if quiz.ID == "" || quiz.CreatedBy != "cr1" || len(quiz.Questions) != 2 {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
	for i, q := range quiz.Questions {
		if q.ID == "" || q.QuizID != quiz.ID || q.Position != i {
			t.Fatalf("unexpected question %+v", q)
		}
	}

	f.now = quiz.StartTime.Add(time.Minute)
	if _, err := f.service.SubmitAttempt(ctx, student, quiz.ID, app.SubmitAttemptInput{
		Responses: []domain.ResponseInput{
			{QuestionID: quiz.Questions[0].ID, Answer: "4"},
			{QuestionID: quiz.Questions[1].ID, Answer: "Blue"},
		},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	list, err := f.service.ListQuizzes(ctx, student, "subject-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 quizzes, got %d", len(list))
	}
	if list[0].ID != "quiz-1" || list[1].ID != quiz.ID {
		t.Fatalf("expected start time ordering, got %s then %s", list[0].ID, list[1].ID)
	}
	if len(list[0].Attempts) != 0 {
		t.Fatalf("expected no attempts on quiz-1, got %+v", list[0].Attempts)
	}
	if len(list[1].Attempts) != 1 || *list[1].Attempts[0].Score != 5 {
		t.Fatalf("expected own attempt with score 5, got %+v", list[1].Attempts)
	}
	if len(list[1].Questions) != 2 || list[1].Questions[0].Points != 3 {
		t.Fatalf("unexpected question summaries %+v", list[1].Questions)
	}
}

func TestListQuizzesRequiresSubject(t *testing.T) {
	f := newFixture(t)
	if _, err := f.service.ListQuizzes(context.Background(), student, ""); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

var errDiskFull = errors.New("disk full")

type brokenAttempts struct{}

func (brokenAttempts) HasSubmittedAttempt(context.Context, string, string) (bool, error) {
	return false, nil
}

func (brokenAttempts) CreateAttemptWithResponses(context.Context, domain.QuizAttempt) error {
	return errDiskFull
}

func (brokenAttempts) ListStudentAttempts(context.Context, string, []string) ([]domain.QuizAttempt, error) {
	return nil, nil
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, domain.AttemptEvent) error {
	return errors.New("broker down")
}

func validQuizInput() app.CreateQuizInput {
	blue := "Blue"
	return app.CreateQuizInput{
		SubjectID: "subject-1",
		Title:     "Warm-up",
		StartTime: quizStart.Add(24 * time.Hour),
		EndTime:   quizStart.Add(25 * time.Hour),
		Duration:  30,
		Questions: []app.QuestionInput{
			{
				Content: "2 + 2?",
				Type:    domain.MultipleChoice,
				Options: []domain.Option{{Text: "3"}, {Text: "4", IsCorrect: true}},
				Points:  3,
			},
			{
				Content: "Colour of the sky?",
				Type:    domain.ShortAnswer,
				Answer:  &blue,
				Points:  2,
			},
		},
	}
}

func geographyQuiz() domain.Quiz {
	return domain.Quiz{
		ID:        "quiz-1",
		SubjectID: "subject-1",
		Title:     "Geography",
		StartTime: quizStart,
		EndTime:   quizEnd,
		Questions: []domain.Question{
			{
				ID:      "q1",
				QuizID:  "quiz-1",
				Content: "Pick B",
				Type:    domain.MultipleChoice,
				Key: domain.MultipleChoiceOptions{Options: []domain.Option{
					{Text: "A"},
					{Text: "B", IsCorrect: true},
					{Text: "C"},
				}},
				Points: 3,
			},
			{
				ID:       "q2",
				QuizID:   "quiz-1",
				Position: 1,
				Content:  "Capital of France?",
				Type:     domain.ShortAnswer,
				Key:      domain.FreeformAnswer{Text: "Paris"},
				Points:   2,
			},
		},
	}
}

func storedAttempts(t *testing.T, attempts *memory.AttemptStore) []domain.QuizAttempt {
	t.Helper()
	list, err := attempts.ListStudentAttempts(context.Background(), student.ID, []string{"quiz-1"})
	if err != nil {
		t.Fatalf("list stored attempts: %v", err)
	}
	return list
}

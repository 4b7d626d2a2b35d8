package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// QuestionType selects how a question's answer key is interpreted.
type QuestionType string

const (
	MultipleChoice QuestionType = "MULTIPLE_CHOICE"
	ShortAnswer    QuestionType = "SHORT_ANSWER"
	LongAnswer     QuestionType = "LONG_ANSWER"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, ShortAnswer, LongAnswer:
		return true
	}
	return false
}

// Role is the capability level of an authenticated principal.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleCR      Role = "CR"
	RoleAdmin   Role = "ADMIN"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// CanAuthorQuizzes reports whether the principal has the instructor capability.
func (p Principal) CanAuthorQuizzes() bool {
	return p.Role == RoleCR || p.Role == RoleAdmin
}

// Option is one choice of a multiple choice question.
type Option struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// AnswerKey is the correct-answer definition of a question. It is either
// MultipleChoiceOptions or FreeformAnswer.
type AnswerKey interface {
	answerKey()
}

// MultipleChoiceOptions is the answer key of a MULTIPLE_CHOICE question.
type MultipleChoiceOptions struct {
	Options []Option
}

// FreeformAnswer is the answer key of SHORT_ANSWER and LONG_ANSWER questions.
type FreeformAnswer struct {
	Text string
}

func (MultipleChoiceOptions) answerKey() {}
func (FreeformAnswer) answerKey()        {}

// Question belongs to exactly one quiz.
type Question struct {
	ID       string
	QuizID   string
	Position int
	Content  string
	Type     QuestionType
	Key      AnswerKey
	Points   int
}

// questionJSON is the public wire shape: options and answer
// are sibling fields and only one of them is meaningful per type.
type questionJSON struct {
	ID       string       `json:"id"`
	QuizID   string       `json:"quizId,omitempty"`
	Position int          `json:"position"`
	Content  string       `json:"content"`
	Type     QuestionType `json:"type"`
	Options  []Option     `json:"options,omitempty"`
	Answer   *string      `json:"answer,omitempty"`
	Points   int          `json:"points"`
}

// MarshalJSON writes the key as an options array or an answer string, by type.
func (q Question) MarshalJSON() ([]byte, error) {
	out := questionJSON{
		ID:       q.ID,
		QuizID:   q.QuizID,
		Position: q.Position,
		Content:  q.Content,
		Type:     q.Type,
		Points:   q.Points,
	}
	switch key := q.Key.(type) {
	case MultipleChoiceOptions:
		out.Options = key.Options
	case FreeformAnswer:
		answer := key.Text
		out.Answer = &answer
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds the key variant from the options/answer fields.
func (q *Question) UnmarshalJSON(data []byte) error {
	var in questionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	key, err := NewAnswerKey(in.Type, in.Options, in.Answer)
	if err != nil {
		return err
	}
	*q = Question{
		ID:       in.ID,
		QuizID:   in.QuizID,
		Position: in.Position,
		Content:  in.Content,
		Type:     in.Type,
		Key:      key,
		Points:   in.Points,
	}
	return nil
}

// NewAnswerKey builds the key variant selected by the question type. A nil
// answer for a free-text type yields a nil key.
func NewAnswerKey(t QuestionType, options []Option, answer *string) (AnswerKey, error) {
	switch t {
	case MultipleChoice:
		return MultipleChoiceOptions{Options: options}, nil
	case ShortAnswer, LongAnswer:
		if answer == nil {
			return nil, nil
		}
		return FreeformAnswer{Text: *answer}, nil
	default:
		return nil, fmt.Errorf("unknown question type %q", t)
	}
}

// Quiz is immutable after creation.
type Quiz struct {
	ID              string     `json:"id"`
	SubjectID       string     `json:"subjectId"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         time.Time  `json:"endTime"`
	DurationMinutes int        `json:"duration"` // advisory only
	CreatedBy       string     `json:"createdBy,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	Questions       []Question `json:"questions"`
}

// ActiveAt reports whether t falls inside the inclusive [StartTime, EndTime] window.
func (q Quiz) ActiveAt(t time.Time) bool {
	return !t.Before(q.StartTime) && !t.After(q.EndTime)
}

// ResponseInput is a raw candidate response as submitted by a client. An empty
// QuestionID matches no question and is dropped like any unknown id.
type ResponseInput struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// QuestionResponse is a graded response owned by one attempt.
type QuestionResponse struct {
	ID         string `json:"id"`
	AttemptID  string `json:"attemptId"`
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
	IsCorrect  bool   `json:"isCorrect"`
	Points     int    `json:"points"`
}

// QuizAttempt is finalized once SubmittedAt is set; at most one finalized
// attempt exists per (QuizID, StudentID).
type QuizAttempt struct {
	ID          string             `json:"id"`
	QuizID      string             `json:"quizId"`
	StudentID   string             `json:"studentId"`
	StartedAt   time.Time          `json:"startedAt"`
	SubmittedAt *time.Time         `json:"submittedAt"`
	Score       *int               `json:"score"`
	Responses   []QuestionResponse `json:"responses,omitempty"`
}

// Submitted reports whether the attempt is finalized.
func (a QuizAttempt) Submitted() bool {
	return a.SubmittedAt != nil
}

// QuizSummary is the student-safe listing view of a quiz.
type QuizSummary struct {
	ID              string            `json:"id"`
	SubjectID       string            `json:"subjectId"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	StartTime       time.Time         `json:"startTime"`
	EndTime         time.Time         `json:"endTime"`
	DurationMinutes int               `json:"duration"`
	Questions       []QuestionSummary `json:"questions"`
	Attempts        []QuizAttempt     `json:"attempts"`
}

// QuestionSummary omits the answer key.
type QuestionSummary struct {
	ID      string       `json:"id"`
	Content string       `json:"content"`
	Type    QuestionType `json:"type"`
	Points  int          `json:"points"`
}

const EventAttemptSubmitted = "attemptSubmitted"

// AttemptEvent is emitted after an attempt has been durably recorded.
type AttemptEvent struct {
	Type        string    `json:"type"`
	QuizID      string    `json:"quizId"`
	AttemptID   string    `json:"attemptId"`
	StudentID   string    `json:"studentId"`
	Score       int       `json:"score"`
	MaxScore    int       `json:"maxScore"`
	SubmittedAt time.Time `json:"submittedAt"`
}

package app

import "classroom-quiz-service/internal/domain"

// Verdict is the grading outcome of a single response.
type Verdict struct {
	IsCorrect bool
	Points    int
}

// Strategy grades one response against its question.
type Strategy interface {
	Grade(q domain.Question, rawAnswer string) Verdict
}

// Grader routes a question to the strategy registered for its type.
// Comparisons are exact: no trimming, no case folding.
type Grader struct {
	strategies map[domain.QuestionType]Strategy
}

func NewGrader() Grader {
	return Grader{
		strategies: map[domain.QuestionType]Strategy{
			domain.MultipleChoice: multipleChoiceStrategy{},
			domain.ShortAnswer:    freeformStrategy{},
			domain.LongAnswer:     freeformStrategy{},
		},
	}
}

func (g Grader) Grade(q domain.Question, rawAnswer string) Verdict {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Verdict{}
	}
	return s.Grade(q, rawAnswer)
}

type multipleChoiceStrategy struct{}

func (multipleChoiceStrategy) Grade(q domain.Question, rawAnswer string) Verdict {
	key, ok := q.Key.(domain.MultipleChoiceOptions)
	if !ok {
		return Verdict{}
	}
	for _, opt := range key.Options {
		if opt.IsCorrect {
			return award(q, rawAnswer == opt.Text)
		}
	}
	return Verdict{}
}

type freeformStrategy struct{}

func (freeformStrategy) Grade(q domain.Question, rawAnswer string) Verdict {
	key, ok := q.Key.(domain.FreeformAnswer)
	if !ok {
		return Verdict{}
	}
	return award(q, rawAnswer == key.Text)
}

func award(q domain.Question, correct bool) Verdict {
	if !correct {
		return Verdict{}
	}
	return Verdict{IsCorrect: true, Points: q.Points}
}

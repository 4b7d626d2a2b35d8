package app

import "classroom-quiz-service/internal/domain"

// QuestionBank is a read-only index of one quiz's questions, scoped to a request.
type QuestionBank struct {
	byID     map[string]domain.Question
	maxScore int
}

func NewQuestionBank(quiz domain.Quiz) QuestionBank {
	bank := QuestionBank{byID: make(map[string]domain.Question, len(quiz.Questions))}
	for _, q := range quiz.Questions {
		bank.byID[q.ID] = q
		bank.maxScore += q.Points
	}
	return bank
}

func (b QuestionBank) Lookup(questionID string) (domain.Question, bool) {
	q, ok := b.byID[questionID]
	return q, ok
}

// MaxScore is the sum of all question points.
func (b QuestionBank) MaxScore() int {
	return b.maxScore
}

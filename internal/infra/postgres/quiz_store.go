package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"classroom-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuizStore reads and writes quizzes and their questions.
type QuizStore struct {
	pool *pgxpool.Pool
}

func NewQuizStore(pool *pgxpool.Pool) *QuizStore {
	return &QuizStore{pool: pool}
}

const quizColumns = `id, subject_id, title, description, start_time, end_time, duration_minutes, created_by, created_at`

// LoadQuiz returns the quiz with its questions and answer keys.
func (s *QuizStore) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id=$1`, quizID)
	quiz, err := scanQuiz(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	questions, err := s.loadQuestions(ctx, []string{quizID})
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.Questions = questions[quizID]
	return quiz, nil
}

// CreateQuiz inserts the quiz and all of its questions in one transaction.
func (s *QuizStore) CreateQuiz(ctx context.Context, quiz domain.Quiz) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO quizzes (`+quizColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		quiz.ID, quiz.SubjectID, quiz.Title, quiz.Description,
		quiz.StartTime, quiz.EndTime, quiz.DurationMinutes, quiz.CreatedBy, quiz.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}

	batch := &pgx.Batch{}
	for _, q := range quiz.Questions {
		options, answer, err := encodeKey(q.Key)
		if err != nil {
			return err
		}
		batch.Queue(
			`INSERT INTO questions (id, quiz_id, position, content, type, options, answer, points)
			 VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7,$8)`,
			q.ID, quiz.ID, q.Position, q.Content, string(q.Type), options, answer, q.Points)
	}
	if err := execBatch(ctx, tx, batch); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}
	return tx.Commit(ctx)
}

// ListQuizzes returns the subject's quizzes ordered by start time.
func (s *QuizStore) ListQuizzes(ctx context.Context, subjectID string) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE subject_id=$1 ORDER BY start_time ASC`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	var (
		quizzes []domain.Quiz
		ids     []string
	)
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		quizzes = append(quizzes, quiz)
		ids = append(ids, quiz.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return []domain.Quiz{}, nil
	}
	questions, err := s.loadQuestions(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range quizzes {
		quizzes[i].Questions = questions[quizzes[i].ID]
	}
	return quizzes, nil
}

func (s *QuizStore) loadQuestions(ctx context.Context, quizIDs []string) (map[string][]domain.Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, quiz_id, position, content, type, options, answer, points
		 FROM questions WHERE quiz_id = ANY($1) ORDER BY quiz_id, position`, quizIDs)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.Question, len(quizIDs))
	for rows.Next() {
		var (
			q       domain.Question
			typ     string
			options []byte
			answer  *string
		)
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Position, &q.Content, &typ, &options, &answer, &q.Points); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Type = domain.QuestionType(typ)
		if q.Key, err = decodeKey(q.Type, options, answer); err != nil {
			return nil, fmt.Errorf("question %s: %w", q.ID, err)
		}
		out[q.QuizID] = append(out[q.QuizID], q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return out, nil
}

func scanQuiz(row pgx.Row) (domain.Quiz, error) {
	var q domain.Quiz
	err := row.Scan(&q.ID, &q.SubjectID, &q.Title, &q.Description,
		&q.StartTime, &q.EndTime, &q.DurationMinutes, &q.CreatedBy, &q.CreatedAt)
	return q, err
}

// encodeKey maps the key variant onto the nullable options/answer columns.
func encodeKey(key domain.AnswerKey) (*string, *string, error) {
	switch k := key.(type) {
	case domain.MultipleChoiceOptions:
		raw, err := json.Marshal(k.Options)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal options: %w", err)
		}
		options := string(raw)
		return &options, nil, nil
	case domain.FreeformAnswer:
		answer := k.Text
		return nil, &answer, nil
	default:
		return nil, nil, nil
	}
}

func decodeKey(t domain.QuestionType, options []byte, answer *string) (domain.AnswerKey, error) {
	var opts []domain.Option
	if t == domain.MultipleChoice && len(options) > 0 {
		if err := json.Unmarshal(options, &opts); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	return domain.NewAnswerKey(t, opts, answer)
}

func execBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

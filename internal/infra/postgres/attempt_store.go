package postgres

import (
	"context"
	"errors"
	"fmt"

	"classroom-quiz-service/internal/domain"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const (
	uniqueViolation       = "23505"
	oneSubmittedPerPairIx = "quiz_attempts_one_submitted"
)

// AttemptStore persists attempts. The partial unique index
// quiz_attempts_one_submitted is what guarantees a single finalized attempt
// per (quiz, student) when submissions race.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

const attemptColumns = `id, quiz_id, student_id, started_at, submitted_at, score`

func (s *AttemptStore) HasSubmittedAttempt(ctx context.Context, quizID, studentID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM quiz_attempts
		 WHERE quiz_id=$1 AND student_id=$2 AND submitted_at IS NOT NULL)`, quizID, studentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check attempt: %w", err)
	}
	return exists, nil
}

// CreateAttemptWithResponses inserts the attempt row and its response rows in
// a single transaction; nothing is visible unless both succeed.
func (s *AttemptStore) CreateAttemptWithResponses(ctx context.Context, attempt domain.QuizAttempt) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO quiz_attempts (`+attemptColumns+`) VALUES ($1,$2,$3,$4,$5,$6)`,
		attempt.ID, attempt.QuizID, attempt.StudentID, attempt.StartedAt, attempt.SubmittedAt, attempt.Score)
	if err != nil {
		if isDuplicateSubmission(err) {
			return domain.ErrAlreadySubmitted
		}
		return fmt.Errorf("insert attempt: %w", err)
	}

	batch := &pgx.Batch{}
	for i, r := range attempt.Responses {
		batch.Queue(
			`INSERT INTO question_responses (id, attempt_id, question_id, position, answer, is_correct, points)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			r.ID, attempt.ID, r.QuestionID, i, r.Answer, r.IsCorrect, r.Points)
	}
	if err := execBatch(ctx, tx, batch); err != nil {
		return fmt.Errorf("insert responses: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isDuplicateSubmission(err) {
			return domain.ErrAlreadySubmitted
		}
		return fmt.Errorf("commit attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) ListStudentAttempts(ctx context.Context, studentID string, quizIDs []string) ([]domain.QuizAttempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM quiz_attempts
		 WHERE student_id=$1 AND quiz_id = ANY($2) ORDER BY started_at, id`, studentID, quizIDs)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.QuizAttempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return out, nil
}

func scanAttempt(row pgx.Row) (domain.QuizAttempt, error) {
	var a domain.QuizAttempt
	err := row.Scan(&a.ID, &a.QuizID, &a.StudentID, &a.StartedAt, &a.SubmittedAt, &a.Score)
	return a, err
}

func isDuplicateSubmission(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolation && pgErr.ConstraintName == oneSubmittedPerPairIx
}

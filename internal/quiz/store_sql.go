package quiz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

type scanner interface {
	Scan(dest ...any) error
}

const quizColumns = `q.id, q.title, q.description, q.subject, q.created_by, q.time_limit, q.total_marks,
	q.is_published, q.is_active, q.created_at, q.updated_at,
	(SELECT COUNT(1) FROM questions qs WHERE qs.quiz_id = q.id)`

func scanQuiz(row scanner) (Quiz, error) {
	var q Quiz
	var created, updated int64
	if err := row.Scan(&q.ID, &q.Title, &q.Description, &q.Subject, &q.CreatedBy, &q.TimeLimit, &q.TotalMarks,
		&q.IsPublished, &q.IsActive, &created, &updated, &q.QuestionCount); err != nil {
		return Quiz{}, err
	}
	q.CreatedAt = fromUnix(created)
	q.UpdatedAt = fromUnix(updated)
	return q, nil
}

// ---- quizzes ----

func (s *SQLStore) CreateQuiz(ctx context.Context, q Quiz, questions []Question) (Quiz, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Second)
	q.CreatedAt, q.UpdatedAt = now, now

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO quizzes
			(id,title,description,subject,created_by,time_limit,total_marks,is_published,is_active,created_at,updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			q.ID, q.Title, q.Description, q.Subject, q.CreatedBy, q.TimeLimit, q.TotalMarks,
			q.IsPublished, q.IsActive, now.Unix(), now.Unix()); err != nil {
			return err
		}
		_, err := insertQuestions(ctx, tx, q.ID, questions, 0)
		return err
	})
	if err != nil {
		return Quiz{}, err
	}
	q.QuestionCount = len(questions)
	return q, nil
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	q, err := scanQuiz(s.db.QueryRowContext(ctx, `SELECT `+quizColumns+` FROM quizzes q WHERE q.id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, ErrQuizNotFound
	}
	return q, err
}

func (s *SQLStore) ListQuizzes(ctx context.Context, opts ListOpts) ([]Quiz, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.PublishedOnly {
		where = append(where, "q.is_published="+arg(true), "q.is_active="+arg(true))
	}
	if opts.CreatedBy != "" {
		where = append(where, "q.created_by="+arg(opts.CreatedBy))
	}
	if opts.Subject != "" {
		where = append(where, "q.subject="+arg(opts.Subject))
	}

	query := `SELECT ` + quizColumns + ` FROM quizzes q`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY q.created_at DESC, q.id`
	query += ` LIMIT ` + arg(limitOr(opts.Limit, 100)) + ` OFFSET ` + arg(opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Quiz{}
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateQuiz(ctx context.Context, q Quiz) (Quiz, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE quizzes SET title=$1, description=$2, subject=$3, time_limit=$4,
		total_marks=$5, is_published=$6, is_active=$7, updated_at=$8 WHERE id=$9`,
		q.Title, q.Description, q.Subject, q.TimeLimit, q.TotalMarks, q.IsPublished, q.IsActive,
		time.Now().Unix(), q.ID)
	if err != nil {
		return Quiz{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Quiz{}, ErrQuizNotFound
	}
	return s.GetQuiz(ctx, q.ID)
}

func (s *SQLStore) DeleteQuiz(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM answers WHERE attempt_id IN (SELECT id FROM quiz_attempts WHERE quiz_id=$1)`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM quiz_attempts WHERE quiz_id=$1`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE quiz_id=$1`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM quizzes WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrQuizNotFound
		}
		return nil
	})
}

// ---- questions ----

const questionColumns = `id, quiz_id, question_text, option_a, option_b, option_c, option_d,
	correct_option, marks, explanation, question_order`

func scanQuestion(row scanner) (Question, error) {
	var q Question
	err := row.Scan(&q.ID, &q.QuizID, &q.Text, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD,
		&q.CorrectOption, &q.Marks, &q.Explanation, &q.Order)
	return q, err
}

// insertQuestions assigns ids and, for zero orders, positions after base.
func insertQuestions(ctx context.Context, tx *sql.Tx, quizID string, qs []Question, base int) ([]Question, error) {
	out := make([]Question, 0, len(qs))
	for i, q := range qs {
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		q.QuizID = quizID
		if q.Order == 0 {
			q.Order = base + i + 1
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO questions (`+questionColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			q.ID, q.QuizID, q.Text, q.OptionA, q.OptionB, q.OptionC, q.OptionD,
			q.CorrectOption, q.Marks, q.Explanation, q.Order); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (s *SQLStore) CreateQuestions(ctx context.Context, quizID string, qs []Question) ([]Question, error) {
	var out []Question
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM quizzes WHERE id=$1`, quizID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrQuizNotFound
			}
			return err
		}
		var maxOrder int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(question_order),0) FROM questions WHERE quiz_id=$1`, quizID).Scan(&maxOrder); err != nil {
			return err
		}
		var err error
		out, err = insertQuestions(ctx, tx, quizID, qs, maxOrder)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE quizzes SET updated_at=$1 WHERE id=$2`, time.Now().Unix(), quizID)
		return err
	})
	return out, err
}

func (s *SQLStore) ListQuestions(ctx context.Context, quizID string) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+questionColumns+` FROM questions
		WHERE quiz_id=$1 ORDER BY question_order ASC, id`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetQuestion(ctx context.Context, id string) (Question, error) {
	q, err := scanQuestion(s.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, ErrQuestionNotFound
	}
	return q, err
}

func (s *SQLStore) UpdateQuestion(ctx context.Context, q Question) (Question, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE questions SET question_text=$1, option_a=$2, option_b=$3, option_c=$4,
		option_d=$5, correct_option=$6, marks=$7, explanation=$8, question_order=$9 WHERE id=$10`,
		q.Text, q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.CorrectOption, q.Marks, q.Explanation, q.Order, q.ID)
	if err != nil {
		return Question{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Question{}, ErrQuestionNotFound
	}
	return s.GetQuestion(ctx, q.ID)
}

// DeleteQuestion also drops the answers recorded against it.
func (s *SQLStore) DeleteQuestion(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrQuestionNotFound
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM answers WHERE question_id=$1`, id)
		return err
	})
}

// ---- attempts ----

const attemptColumns = `a.id, a.student_id, a.quiz_id, a.score, a.percentage, a.status, a.started_at,
	a.completed_at, a.time_taken, q.title, q.subject, q.total_marks,
	COALESCE(u.name, ''), COALESCE(u.email, '')`

const attemptFrom = ` FROM quiz_attempts a
	JOIN quizzes q ON q.id = a.quiz_id
	LEFT JOIN user_profiles u ON u.id = a.student_id`

func scanAttempt(row scanner) (Attempt, error) {
	var a Attempt
	var started int64
	var completed sql.NullInt64
	if err := row.Scan(&a.ID, &a.StudentID, &a.QuizID, &a.Score, &a.Percentage, &a.Status, &started,
		&completed, &a.TimeTaken, &a.QuizTitle, &a.QuizSubject, &a.TotalMarks,
		&a.StudentName, &a.StudentEmail); err != nil {
		return Attempt{}, err
	}
	a.StartedAt = fromUnix(started)
	if completed.Valid {
		t := fromUnix(completed.Int64)
		a.CompletedAt = &t
	}
	return a, nil
}

func (s *SQLStore) StartAttempt(ctx context.Context, studentID, quizID string, at time.Time) (Attempt, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `INSERT INTO quiz_attempts (id,student_id,quiz_id,score,percentage,status,started_at,time_taken)
		VALUES ($1,$2,$3,0,0,$4,$5,0)`, id, studentID, quizID, StatusInProgress, at.Unix())
	if err != nil {
		return Attempt{}, err
	}
	return s.GetAttempt(ctx, id)
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+attemptFrom+` WHERE a.id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, err
}

func (s *SQLStore) FindOpenAttempt(ctx context.Context, studentID, quizID string) (Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+attemptFrom+`
		WHERE a.student_id=$1 AND a.quiz_id=$2 AND a.status=$3
		ORDER BY a.started_at DESC LIMIT 1`, studentID, quizID, StatusInProgress))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, err
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.QuizID != "" {
		where = append(where, "a.quiz_id="+arg(opts.QuizID))
	}
	if opts.StudentID != "" {
		where = append(where, "a.student_id="+arg(opts.StudentID))
	}
	if opts.Status != "" {
		where = append(where, "a.status="+arg(opts.Status))
	}
	query := `SELECT ` + attemptColumns + attemptFrom
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY COALESCE(a.completed_at, a.started_at) DESC, a.started_at DESC, a.id`
	query += ` LIMIT ` + arg(limitOr(opts.Limit, 100)) + ` OFFSET ` + arg(opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SummarizeCompleted aggregates every completed attempt matching the quiz
// and student filters, ignoring paging.
func (s *SQLStore) SummarizeCompleted(ctx context.Context, quizID, studentID string) (grading.Summary, error) {
	args := []any{StatusCompleted}
	query := `SELECT COUNT(1), AVG(percentage), MAX(percentage), MIN(percentage) FROM quiz_attempts WHERE status=$1`
	if quizID != "" {
		args = append(args, quizID)
		query += fmt.Sprintf(" AND quiz_id=$%d", len(args))
	}
	if studentID != "" {
		args = append(args, studentID)
		query += fmt.Sprintf(" AND student_id=$%d", len(args))
	}
	var sum grading.Summary
	var avg, hi, lo sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&sum.Attempts, &avg, &hi, &lo); err != nil {
		return grading.Summary{}, err
	}
	if sum.Attempts > 0 {
		sum.Average = math.Round(avg.Float64)
		sum.Highest = hi.Float64
		sum.Lowest = lo.Float64
	}
	return sum, nil
}

func (s *SQLStore) CompleteAttempt(ctx context.Context, a Attempt, graded []GradedAnswer) (bool, error) {
	if a.CompletedAt == nil {
		return false, errors.New("completed_at required")
	}
	done := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE quiz_attempts
			SET status=$1, score=$2, percentage=$3, completed_at=$4, time_taken=$5
			WHERE id=$6 AND status=$7`,
			StatusCompleted, a.Score, a.Percentage, a.CompletedAt.Unix(), a.TimeTaken, a.ID, StatusInProgress)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		now := a.CompletedAt.Unix()
		for _, g := range graded {
			if _, err := tx.ExecContext(ctx, `INSERT INTO answers
				(id,attempt_id,question_id,selected_option,is_correct,marks_obtained,answered_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
				ON CONFLICT (attempt_id, question_id) DO UPDATE SET
				  selected_option=EXCLUDED.selected_option,
				  is_correct=EXCLUDED.is_correct,
				  marks_obtained=EXCLUDED.marks_obtained`,
				uuid.NewString(), a.ID, g.QuestionID, g.SelectedOption, g.IsCorrect, g.MarksObtained, now); err != nil {
				return err
			}
		}
		done = true
		return nil
	})
	return done, err
}

func (s *SQLStore) OpenAttemptsStartedBefore(ctx context.Context, before time.Time) ([]OpenAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+attemptColumns+`, q.time_limit`+attemptFrom+`
		WHERE a.status=$1 AND a.started_at < $2 ORDER BY a.started_at`, StatusInProgress, before.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OpenAttempt
	for rows.Next() {
		var (
			oa        OpenAttempt
			started   int64
			completed sql.NullInt64
		)
		a := &oa.Attempt
		if err := rows.Scan(&a.ID, &a.StudentID, &a.QuizID, &a.Score, &a.Percentage, &a.Status, &started,
			&completed, &a.TimeTaken, &a.QuizTitle, &a.QuizSubject, &a.TotalMarks,
			&a.StudentName, &a.StudentEmail, &oa.TimeLimit); err != nil {
			return nil, err
		}
		a.StartedAt = fromUnix(started)
		out = append(out, oa)
	}
	return out, rows.Err()
}

// ---- answers ----

func (s *SQLStore) SaveAnswers(ctx context.Context, attemptID string, in []AnswerInput, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, ans := range in {
			if _, err := tx.ExecContext(ctx, `INSERT INTO answers
				(id,attempt_id,question_id,selected_option,is_correct,marks_obtained,answered_at)
				VALUES ($1,$2,$3,$4,$5,0,$6)
				ON CONFLICT (attempt_id, question_id) DO UPDATE SET
				  selected_option=EXCLUDED.selected_option,
				  answered_at=EXCLUDED.answered_at`,
				uuid.NewString(), attemptID, ans.QuestionID, ans.SelectedOption, false, at.Unix()); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) ListAnswers(ctx context.Context, attemptID string) ([]Answer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, attempt_id, question_id, selected_option, is_correct,
		marks_obtained, answered_at FROM answers WHERE attempt_id=$1 ORDER BY answered_at ASC, id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Answer{}
	for rows.Next() {
		var a Answer
		var answered int64
		if err := rows.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &a.SelectedOption, &a.IsCorrect,
			&a.MarksObtained, &answered); err != nil {
			return nil, err
		}
		a.AnsweredAt = fromUnix(answered)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ---- helpers ----

func (s *SQLStore) withTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	return fn(tx)
}

func fromUnix(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 500 {
		return 500
	}
	return limit
}

package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresLedger is a PostgreSQL-backed Ledger implementation.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger creates a PostgreSQL-backed enrollment ledger.
func NewPostgresLedger(pool *pgxpool.Pool) (*PostgresLedger, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresLedger{pool: pool}, nil
}

func (l *PostgresLedger) CourseEnrollment(ctx context.Context, courseID, userID int64) (CourseEnrollment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var e CourseEnrollment
	err := l.pool.QueryRow(ctx,
		`SELECT course_id, user_id, is_approved, created_at, updated_at
		 FROM course_enrollments
		 WHERE course_id = $1 AND user_id = $2`,
		courseID, userID,
	).Scan(&e.CourseID, &e.UserID, &e.IsApproved, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CourseEnrollment{}, fmt.Errorf("course %d user %d: %w", courseID, userID, ErrNotFound)
		}
		return CourseEnrollment{}, fmt.Errorf("get course enrollment: %w", err)
	}
	return e, nil
}

func (l *PostgresLedger) LessonEnrollment(ctx context.Context, lessonID, userID int64) (LessonEnrollment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	e, err := scanLessonEnrollment(l.pool.QueryRow(ctx,
		`SELECT lesson_id, user_id, is_approved, score, created_at, updated_at
		 FROM lesson_enrollments
		 WHERE lesson_id = $1 AND user_id = $2`,
		lessonID, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LessonEnrollment{}, fmt.Errorf("lesson %d user %d: %w", lessonID, userID, ErrNotFound)
		}
		return LessonEnrollment{}, fmt.Errorf("get lesson enrollment: %w", err)
	}
	return e, nil
}

func (l *PostgresLedger) EnrollCourse(ctx context.Context, courseID, userID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := l.pool.Exec(ctx,
		`INSERT INTO course_enrollments (course_id, user_id)
		 VALUES ($1, $2)
		 ON CONFLICT (course_id, user_id) DO NOTHING`,
		courseID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("insert course enrollment: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (l *PostgresLedger) EnrollLesson(ctx context.Context, lessonID, userID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := l.pool.Exec(ctx,
		`INSERT INTO lesson_enrollments (lesson_id, user_id)
		 VALUES ($1, $2)
		 ON CONFLICT (lesson_id, user_id) DO NOTHING`,
		lessonID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("insert lesson enrollment: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (l *PostgresLedger) CourseEnrollmentsByCourse(ctx context.Context, courseID int64) ([]CourseEnrollment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := l.pool.Query(ctx,
		`SELECT course_id, user_id, is_approved, created_at, updated_at
		 FROM course_enrollments
		 WHERE course_id = $1
		 ORDER BY user_id`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query course enrollments: %w", err)
	}
	defer rows.Close()

	var out []CourseEnrollment
	for rows.Next() {
		var e CourseEnrollment
		if err := rows.Scan(&e.CourseID, &e.UserID, &e.IsApproved, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan course enrollment: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate course enrollments: %w", err)
	}
	return out, nil
}

func (l *PostgresLedger) LessonEnrollmentsByLessons(ctx context.Context, lessonIDs []int64) ([]LessonEnrollment, error) {
	if len(lessonIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := l.pool.Query(ctx,
		`SELECT lesson_id, user_id, is_approved, score, created_at, updated_at
		 FROM lesson_enrollments
		 WHERE lesson_id = ANY($1)
		 ORDER BY user_id, lesson_id`,
		lessonIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query lesson enrollments: %w", err)
	}
	defer rows.Close()

	var out []LessonEnrollment
	for rows.Next() {
		e, err := scanLessonEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lesson enrollment: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lesson enrollments: %w", err)
	}
	return out, nil
}

func (l *PostgresLedger) UserAnswers(ctx context.Context, userID int64) ([]UserAnswer, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := l.pool.Query(ctx,
		`SELECT id, user_id, answer_id, created_at
		 FROM user_answers
		 WHERE user_id = $1
		 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query user answers: %w", err)
	}
	defer rows.Close()

	var out []UserAnswer
	for rows.Next() {
		var a UserAnswer
		if err := rows.Scan(&a.ID, &a.UserID, &a.AnswerID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user answer: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user answers: %w", err)
	}
	return out, nil
}

// InTx runs fn inside a database transaction bounded by dbTimeout.
func (l *PostgresLedger) InTx(ctx context.Context, fn func(Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		return fn(&postgresTx{tx: tx})
	})
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) LockLessonEnrollment(ctx context.Context, lessonID, userID int64) (LessonEnrollment, error) {
	e, err := scanLessonEnrollment(t.tx.QueryRow(ctx,
		`SELECT lesson_id, user_id, is_approved, score, created_at, updated_at
		 FROM lesson_enrollments
		 WHERE lesson_id = $1 AND user_id = $2
		 FOR UPDATE`,
		lessonID, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LessonEnrollment{}, fmt.Errorf("lesson %d user %d: %w", lessonID, userID, ErrNotFound)
		}
		return LessonEnrollment{}, fmt.Errorf("lock lesson enrollment: %w", err)
	}
	return e, nil
}

func (t *postgresTx) AppendUserAnswers(ctx context.Context, userID int64, answerIDs []int64) error {
	if len(answerIDs) == 0 {
		return nil
	}
	rows := make([][]any, len(answerIDs))
	for i, id := range answerIDs {
		rows[i] = []any{userID, id}
	}
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"user_answers"},
		[]string{"user_id", "answer_id"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("insert user answers: %w", err)
	}
	return nil
}

func (t *postgresTx) ApproveLesson(ctx context.Context, lessonID, userID int64, score int) error {
	cmd, err := t.tx.Exec(ctx,
		`UPDATE lesson_enrollments
		 SET is_approved = TRUE, score = $3, updated_at = NOW()
		 WHERE lesson_id = $1 AND user_id = $2 AND NOT is_approved`,
		lessonID, userID, score,
	)
	if err != nil {
		return fmt.Errorf("approve lesson: %w", err)
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}

	var approved bool
	err = t.tx.QueryRow(ctx,
		`SELECT is_approved FROM lesson_enrollments WHERE lesson_id = $1 AND user_id = $2`,
		lessonID, userID,
	).Scan(&approved)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("lesson %d user %d: %w", lessonID, userID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("approve lesson: %w", err)
	}
	return fmt.Errorf("lesson %d user %d: %w", lessonID, userID, ErrAlreadyApproved)
}

func (t *postgresTx) ApprovedLessonCount(ctx context.Context, userID int64, lessonIDs []int64) (int, error) {
	if len(lessonIDs) == 0 {
		return 0, nil
	}
	var n int
	err := t.tx.QueryRow(ctx,
		`SELECT count(*)
		 FROM lesson_enrollments
		 WHERE user_id = $1 AND lesson_id = ANY($2) AND is_approved`,
		userID, lessonIDs,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count approved lessons: %w", err)
	}
	return n, nil
}

func (t *postgresTx) ApproveCourse(ctx context.Context, courseID, userID int64) (bool, error) {
	cmd, err := t.tx.Exec(ctx,
		`UPDATE course_enrollments
		 SET is_approved = TRUE, updated_at = NOW()
		 WHERE course_id = $1 AND user_id = $2`,
		courseID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("approve course: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

func scanLessonEnrollment(row pgx.Row) (LessonEnrollment, error) {
	var e LessonEnrollment
	err := row.Scan(&e.LessonID, &e.UserID, &e.IsApproved, &e.Score, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

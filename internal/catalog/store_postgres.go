package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// prerequisiteLockKey serializes prerequisite edits so two concurrent writes
// cannot close a cycle that neither sees alone.
const prerequisiteLockKey = 74_201

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed catalog store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Course(ctx context.Context, id int64) (Course, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var c Course
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, dependent_id FROM courses WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Name, &c.Dependent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Course{}, fmt.Errorf("course %d: %w", id, ErrNotFound)
		}
		return Course{}, fmt.Errorf("get course: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Courses(ctx context.Context) ([]Course, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT id, name, dependent_id FROM courses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	var out []Course
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.Name, &c.Dependent); err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Lesson(ctx context.Context, id int64) (Lesson, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var l Lesson
	err := s.pool.QueryRow(ctx,
		`SELECT id, course_id, title, description, approval_score, dependent_id
		 FROM lessons
		 WHERE id = $1`,
		id,
	).Scan(&l.ID, &l.CourseID, &l.Title, &l.Description, &l.ApprovalScore, &l.Dependent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lesson{}, fmt.Errorf("lesson %d: %w", id, ErrNotFound)
		}
		return Lesson{}, fmt.Errorf("get lesson: %w", err)
	}
	return l, nil
}

func (s *PostgresStore) LessonsByCourse(ctx context.Context, courseID int64) ([]Lesson, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, course_id, title, description, approval_score, dependent_id
		 FROM lessons
		 WHERE course_id = $1
		 ORDER BY id`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query lessons: %w", err)
	}
	defer rows.Close()

	var out []Lesson
	for rows.Next() {
		var l Lesson
		if err := rows.Scan(&l.ID, &l.CourseID, &l.Title, &l.Description, &l.ApprovalScore, &l.Dependent); err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lessons: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountLessons(ctx context.Context, courseID int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM lessons WHERE course_id = $1`,
		courseID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count lessons: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) QuestionsByLesson(ctx context.Context, lessonID int64) ([]Question, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, lesson_id, description, score, question_type
		 FROM questions
		 WHERE lesson_id = $1
		 ORDER BY id`,
		lessonID,
	)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var out []Question
	index := map[int64]int{}
	for rows.Next() {
		var q Question
		var qtype string
		if err := rows.Scan(&q.ID, &q.LessonID, &q.Description, &q.Score, &qtype); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Type = QuestionType(qtype)
		index[q.ID] = len(out)
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}

	answers, err := s.pool.Query(ctx,
		`SELECT a.id, a.question_id, a.description, a.is_correct
		 FROM answers a
		 JOIN questions q ON q.id = a.question_id
		 WHERE q.lesson_id = $1
		 ORDER BY a.id`,
		lessonID,
	)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer answers.Close()

	for answers.Next() {
		var a Answer
		if err := answers.Scan(&a.ID, &a.QuestionID, &a.Description, &a.IsCorrect); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		if i, ok := index[a.QuestionID]; ok {
			out[i].Answers = append(out[i].Answers, a)
		}
	}
	if err := answers.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CorrectAnswersByLesson(ctx context.Context, lessonID int64) ([]CorrectAnswer, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT a.id, q.id, q.question_type, q.score
		 FROM answers a
		 JOIN questions q ON q.id = a.question_id
		 WHERE q.lesson_id = $1
		   AND a.is_correct
		 ORDER BY q.id, a.id`,
		lessonID,
	)
	if err != nil {
		return nil, fmt.Errorf("query correct answers: %w", err)
	}
	defer rows.Close()

	var out []CorrectAnswer
	for rows.Next() {
		var ca CorrectAnswer
		var qtype string
		if err := rows.Scan(&ca.AnswerID, &ca.QuestionID, &qtype, &ca.Score); err != nil {
			return nil, fmt.Errorf("scan correct answer: %w", err)
		}
		ca.QuestionType = QuestionType(qtype)
		out = append(out, ca)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate correct answers: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) PutCourse(ctx context.Context, c Course) (Course, error) {
	if err := ValidateCourse(c); err != nil {
		return Course{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := checkPrerequisites(ctx, tx, "courses", c.ID, c.Dependent); err != nil {
			return err
		}

		if c.ID == 0 {
			return tx.QueryRow(ctx,
				`INSERT INTO courses (name, dependent_id) VALUES ($1, $2) RETURNING id`,
				c.Name, c.Dependent,
			).Scan(&c.ID)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO courses (id, name, dependent_id) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE SET
			   name = EXCLUDED.name,
			   dependent_id = EXCLUDED.dependent_id,
			   updated_at = NOW()`,
			c.ID, c.Name, c.Dependent,
		); err != nil {
			return err
		}
		return syncSequence(ctx, tx, "courses")
	})
	if err != nil {
		return Course{}, fmt.Errorf("put course: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) PutLesson(ctx context.Context, l Lesson) (Lesson, error) {
	if err := ValidateLesson(l); err != nil {
		return Lesson{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM courses WHERE id = $1)`,
			l.CourseID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("course %d: %w", l.CourseID, ErrNotFound)
		}

		if err := checkPrerequisites(ctx, tx, "lessons", l.ID, l.Dependent); err != nil {
			return err
		}

		if l.ID == 0 {
			return tx.QueryRow(ctx,
				`INSERT INTO lessons (course_id, title, description, approval_score, dependent_id)
				 VALUES ($1, $2, $3, $4, $5)
				 RETURNING id`,
				l.CourseID, l.Title, l.Description, l.ApprovalScore, l.Dependent,
			).Scan(&l.ID)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO lessons (id, course_id, title, description, approval_score, dependent_id)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE SET
			   course_id = EXCLUDED.course_id,
			   title = EXCLUDED.title,
			   description = EXCLUDED.description,
			   approval_score = EXCLUDED.approval_score,
			   dependent_id = EXCLUDED.dependent_id,
			   updated_at = NOW()`,
			l.ID, l.CourseID, l.Title, l.Description, l.ApprovalScore, l.Dependent,
		); err != nil {
			return err
		}
		return syncSequence(ctx, tx, "lessons")
	})
	if err != nil {
		return Lesson{}, fmt.Errorf("put lesson: %w", err)
	}
	return l, nil
}

// PutQuestion creates or replaces a question together with its answer set.
// Answers without an ID are created, answers missing from q are deleted.
func (s *PostgresStore) PutQuestion(ctx context.Context, q Question) (Question, error) {
	if err := ValidateQuestion(q); err != nil {
		return Question{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM lessons WHERE id = $1)`,
			q.LessonID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("lesson %d: %w", q.LessonID, ErrNotFound)
		}

		if q.ID == 0 {
			if err := tx.QueryRow(ctx,
				`INSERT INTO questions (lesson_id, description, score, question_type)
				 VALUES ($1, $2, $3, $4)
				 RETURNING id`,
				q.LessonID, q.Description, q.Score, string(q.Type),
			).Scan(&q.ID); err != nil {
				return err
			}
		} else {
			if _, err := tx.Exec(ctx,
				`INSERT INTO questions (id, lesson_id, description, score, question_type)
				 VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (id) DO UPDATE SET
				   lesson_id = EXCLUDED.lesson_id,
				   description = EXCLUDED.description,
				   score = EXCLUDED.score,
				   question_type = EXCLUDED.question_type,
				   updated_at = NOW()`,
				q.ID, q.LessonID, q.Description, q.Score, string(q.Type),
			); err != nil {
				return err
			}
			if err := syncSequence(ctx, tx, "questions"); err != nil {
				return err
			}
		}

		return replaceAnswers(ctx, tx, &q)
	})
	if err != nil {
		return Question{}, fmt.Errorf("put question: %w", err)
	}
	return q, nil
}

func replaceAnswers(ctx context.Context, tx pgx.Tx, q *Question) error {
	keep := make([]int64, 0, len(q.Answers))
	for _, a := range q.Answers {
		if a.ID != 0 {
			keep = append(keep, a.ID)
		}
	}

	if len(keep) > 0 {
		var foreign int64
		err := tx.QueryRow(ctx,
			`SELECT id FROM answers WHERE id = ANY($1) AND question_id <> $2 LIMIT 1`,
			keep, q.ID,
		).Scan(&foreign)
		if err == nil {
			return fmt.Errorf("answer %d belongs to another question: %w", foreign, ErrConflict)
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM answers WHERE question_id = $1 AND NOT (id = ANY($2))`,
		q.ID, keep,
	); err != nil {
		return fmt.Errorf("delete dropped answers: %w", err)
	}

	explicitIDs := false
	for i := range q.Answers {
		a := &q.Answers[i]
		a.QuestionID = q.ID
		if a.ID == 0 {
			if err := tx.QueryRow(ctx,
				`INSERT INTO answers (question_id, description, is_correct)
				 VALUES ($1, $2, $3)
				 RETURNING id`,
				q.ID, a.Description, a.IsCorrect,
			).Scan(&a.ID); err != nil {
				return fmt.Errorf("insert answer: %w", err)
			}
			continue
		}
		explicitIDs = true
		if _, err := tx.Exec(ctx,
			`INSERT INTO answers (id, question_id, description, is_correct)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE SET
			   description = EXCLUDED.description,
			   is_correct = EXCLUDED.is_correct,
			   updated_at = NOW()`,
			a.ID, q.ID, a.Description, a.IsCorrect,
		); err != nil {
			return fmt.Errorf("upsert answer: %w", err)
		}
	}

	if explicitIDs {
		return syncSequence(ctx, tx, "answers")
	}
	return nil
}

// checkPrerequisites rejects a dependent reference that is missing or whose
// chain leads back to self. table is one of the fixed catalog table names.
func checkPrerequisites(ctx context.Context, tx pgx.Tx, table string, self int64, dependent *int64) error {
	if dependent == nil {
		return nil
	}
	if self != 0 && *dependent == self {
		return fmt.Errorf("entity %d: %w", self, ErrPrerequisiteCycle)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, prerequisiteLockKey); err != nil {
		return fmt.Errorf("lock prerequisites: %w", err)
	}

	var reached int
	var cycle bool
	err := tx.QueryRow(ctx, fmt.Sprintf(
		`WITH RECURSIVE chain (id, dependent_id) AS (
		   SELECT id, dependent_id FROM %[1]s WHERE id = $1
		   UNION
		   SELECT t.id, t.dependent_id FROM %[1]s t JOIN chain ON t.id = chain.dependent_id
		 )
		 SELECT count(*), COALESCE(bool_or(id = $2), false) FROM chain`, table),
		*dependent, self,
	).Scan(&reached, &cycle)
	if err != nil {
		return fmt.Errorf("walk prerequisites: %w", err)
	}
	if reached == 0 {
		return fmt.Errorf("prerequisite %d: %w", *dependent, ErrNotFound)
	}
	if cycle {
		return fmt.Errorf("entity %d: %w", self, ErrPrerequisiteCycle)
	}
	return nil
}

// syncSequence moves a serial sequence past rows inserted with explicit IDs.
func syncSequence(ctx context.Context, tx pgx.Tx, table string) error {
	_, err := tx.Exec(ctx, fmt.Sprintf(
		`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), GREATEST((SELECT max(id) FROM %[1]s), 1))`,
		table,
	))
	if err != nil {
		return fmt.Errorf("sync %s sequence: %w", table, err)
	}
	return nil
}

// Package enrollment records which users are subscribed to which courses and
// lessons, whether they passed, and the answers they gave.
package enrollment

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a user has no enrollment for an entity.
	ErrNotFound = errors.New("enrollment not found")
	// ErrAlreadyApproved is returned when approving a lesson enrollment twice.
	ErrAlreadyApproved = errors.New("lesson already approved")
)

// CourseEnrollment links a user to a course.
type CourseEnrollment struct {
	CourseID   int64     `json:"course_id"`
	UserID     int64     `json:"user_id"`
	IsApproved bool      `json:"is_approved"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// LessonEnrollment links a user to a lesson and holds the accepted test score.
// The lesson's course is not copied here: lessons can move between courses,
// so callers group enrollments through the catalog.
type LessonEnrollment struct {
	LessonID   int64     `json:"lesson_id"`
	UserID     int64     `json:"user_id"`
	IsApproved bool      `json:"is_approved"`
	Score      int       `json:"score"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UserAnswer is one audit record of an answer a user submitted in a passed test.
type UserAnswer struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	AnswerID  int64     `json:"answer_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Ledger stores enrollments and the answer audit log.
type Ledger interface {
	CourseEnrollment(ctx context.Context, courseID, userID int64) (CourseEnrollment, error)
	LessonEnrollment(ctx context.Context, lessonID, userID int64) (LessonEnrollment, error)

	// EnrollCourse creates an unapproved enrollment unless one exists and
	// reports whether it created one.
	EnrollCourse(ctx context.Context, courseID, userID int64) (bool, error)
	// EnrollLesson is EnrollCourse for lessons.
	EnrollLesson(ctx context.Context, lessonID, userID int64) (bool, error)

	CourseEnrollmentsByCourse(ctx context.Context, courseID int64) ([]CourseEnrollment, error)
	// LessonEnrollmentsByLessons returns the enrollments of the given lessons
	// ordered by user, then lesson.
	LessonEnrollmentsByLessons(ctx context.Context, lessonIDs []int64) ([]LessonEnrollment, error)
	UserAnswers(ctx context.Context, userID int64) ([]UserAnswer, error)

	// InTx runs fn in a transaction. Nothing fn wrote survives if it returns an error.
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of writes a passed test needs to commit together.
type Tx interface {
	// LockLessonEnrollment reads a lesson enrollment and holds it until commit.
	LockLessonEnrollment(ctx context.Context, lessonID, userID int64) (LessonEnrollment, error)
	AppendUserAnswers(ctx context.Context, userID int64, answerIDs []int64) error
	// ApproveLesson stores score and marks the enrollment approved.
	ApproveLesson(ctx context.Context, lessonID, userID int64, score int) error
	// ApprovedLessonCount counts the user's approved enrollments among lessonIDs.
	ApprovedLessonCount(ctx context.Context, userID int64, lessonIDs []int64) (int, error)
	// ApproveCourse marks the course enrollment approved and reports whether
	// an enrollment existed.
	ApproveCourse(ctx context.Context, courseID, userID int64) (bool, error)
}

type key struct {
	entity int64
	user   int64
}

type ledgerState struct {
	courses      map[key]CourseEnrollment
	lessons      map[key]LessonEnrollment
	answers      []UserAnswer
	nextAnswerID int64
}

func (s ledgerState) clone() ledgerState {
	return ledgerState{
		courses:      maps.Clone(s.courses),
		lessons:      maps.Clone(s.lessons),
		answers:      slices.Clip(s.answers),
		nextAnswerID: s.nextAnswerID,
	}
}

// MemoryLedger is an in-memory implementation of Ledger.
// Transactions run one at a time on a copy of the state that replaces the
// original on commit.
type MemoryLedger struct {
	state ledgerState
	now   func() time.Time
	mu    sync.RWMutex
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		state: ledgerState{
			courses: make(map[key]CourseEnrollment),
			lessons: make(map[key]LessonEnrollment),
		},
		now: time.Now,
	}
}

func (l *MemoryLedger) CourseEnrollment(_ context.Context, courseID, userID int64) (CourseEnrollment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.state.courses[key{courseID, userID}]
	if !ok {
		return CourseEnrollment{}, fmt.Errorf("course %d user %d: %w", courseID, userID, ErrNotFound)
	}
	return e, nil
}

func (l *MemoryLedger) LessonEnrollment(_ context.Context, lessonID, userID int64) (LessonEnrollment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.state.lessons[key{lessonID, userID}]
	if !ok {
		return LessonEnrollment{}, fmt.Errorf("lesson %d user %d: %w", lessonID, userID, ErrNotFound)
	}
	return e, nil
}

func (l *MemoryLedger) EnrollCourse(_ context.Context, courseID, userID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{courseID, userID}
	if _, ok := l.state.courses[k]; ok {
		return false, nil
	}
	now := l.now()
	l.state.courses[k] = CourseEnrollment{
		CourseID:  courseID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return true, nil
}

func (l *MemoryLedger) EnrollLesson(_ context.Context, lessonID, userID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{lessonID, userID}
	if _, ok := l.state.lessons[k]; ok {
		return false, nil
	}
	now := l.now()
	l.state.lessons[k] = LessonEnrollment{
		LessonID:  lessonID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return true, nil
}

func (l *MemoryLedger) CourseEnrollmentsByCourse(_ context.Context, courseID int64) ([]CourseEnrollment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []CourseEnrollment
	for k, e := range l.state.courses {
		if k.entity == courseID {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b CourseEnrollment) int { return cmp.Compare(a.UserID, b.UserID) })
	return out, nil
}

func (l *MemoryLedger) LessonEnrollmentsByLessons(_ context.Context, lessonIDs []int64) ([]LessonEnrollment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []LessonEnrollment
	for k, e := range l.state.lessons {
		if slices.Contains(lessonIDs, k.entity) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b LessonEnrollment) int {
		if c := cmp.Compare(a.UserID, b.UserID); c != 0 {
			return c
		}
		return cmp.Compare(a.LessonID, b.LessonID)
	})
	return out, nil
}

func (l *MemoryLedger) UserAnswers(_ context.Context, userID int64) ([]UserAnswer, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []UserAnswer
	for _, a := range l.state.answers {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (l *MemoryLedger) InTx(_ context.Context, fn func(Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &memoryTx{state: l.state.clone(), now: l.now}
	if err := fn(tx); err != nil {
		return err
	}
	l.state = tx.state
	return nil
}

type memoryTx struct {
	state ledgerState
	now   func() time.Time
}

func (tx *memoryTx) LockLessonEnrollment(_ context.Context, lessonID, userID int64) (LessonEnrollment, error) {
	e, ok := tx.state.lessons[key{lessonID, userID}]
	if !ok {
		return LessonEnrollment{}, fmt.Errorf("lesson %d user %d: %w", lessonID, userID, ErrNotFound)
	}
	return e, nil
}

func (tx *memoryTx) AppendUserAnswers(_ context.Context, userID int64, answerIDs []int64) error {
	now := tx.now()
	for _, id := range answerIDs {
		tx.state.nextAnswerID++
		tx.state.answers = append(tx.state.answers, UserAnswer{
			ID:        tx.state.nextAnswerID,
			UserID:    userID,
			AnswerID:  id,
			CreatedAt: now,
		})
	}
	return nil
}

func (tx *memoryTx) ApproveLesson(_ context.Context, lessonID, userID int64, score int) error {
	k := key{lessonID, userID}
	e, ok := tx.state.lessons[k]
	if !ok {
		return fmt.Errorf("lesson %d user %d: %w", lessonID, userID, ErrNotFound)
	}
	if e.IsApproved {
		return fmt.Errorf("lesson %d user %d: %w", lessonID, userID, ErrAlreadyApproved)
	}
	e.IsApproved = true
	e.Score = score
	e.UpdatedAt = tx.now()
	tx.state.lessons[k] = e
	return nil
}

func (tx *memoryTx) ApprovedLessonCount(_ context.Context, userID int64, lessonIDs []int64) (int, error) {
	n := 0
	for _, id := range lessonIDs {
		if tx.state.lessons[key{id, userID}].IsApproved {
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) ApproveCourse(_ context.Context, courseID, userID int64) (bool, error) {
	k := key{courseID, userID}
	e, ok := tx.state.courses[k]
	if !ok {
		return false, nil
	}
	if !e.IsApproved {
		e.IsApproved = true
		e.UpdatedAt = tx.now()
		tx.state.courses[k] = e
	}
	return true, nil
}

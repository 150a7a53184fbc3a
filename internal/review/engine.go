package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/p-n-ai/pai-learn/internal/catalog"
	"github.com/p-n-ai/pai-learn/internal/enrollment"
)

// ErrLessonNotFound is returned when the graded lesson does not exist.
var ErrLessonNotFound = errors.New("lesson not found")

// IntegrityError reports a submission that does not match the lesson's test:
// missing questions, foreign questions or answers filed under the wrong question.
type IntegrityError struct {
	Problems []string
}

func (e *IntegrityError) Error() string {
	return strings.Join(e.Problems, "\n")
}

// Result is the outcome of a graded test.
type Result struct {
	Approved       bool `json:"approved"`
	Score          int  `json:"score"`
	ApprovalScore  int  `json:"approval_score"`
	CourseApproved bool `json:"course_approved"`
}

// EngineConfig holds dependencies for the review engine.
type EngineConfig struct {
	Catalog catalog.Store
	Ledger  enrollment.Ledger
	Locker  Locker
	Events  enrollment.EventLogger
}

// Engine grades lesson tests.
type Engine struct {
	catalog catalog.Store
	ledger  enrollment.Ledger
	locker  Locker
	events  enrollment.EventLogger
}

// NewEngine creates a new review engine.
func NewEngine(cfg EngineConfig) *Engine {
	store := cfg.Catalog
	if store == nil {
		store = catalog.NewMemoryStore()
	}
	ledger := cfg.Ledger
	if ledger == nil {
		ledger = enrollment.NewMemoryLedger()
	}
	locker := cfg.Locker
	if locker == nil {
		locker = NewLocalLocker()
	}
	events := cfg.Events
	if events == nil {
		events = enrollment.NopEventLogger{}
	}
	return &Engine{
		catalog: store,
		ledger:  ledger,
		locker:  locker,
		events:  events,
	}
}

// Evaluate grades a lesson test for a user. A failed test is a Result with
// Approved false and a nil error; nothing is written for it. A passed test
// records the submitted answers, approves the lesson enrollment and approves
// the course enrollment once every lesson of the course is approved, all in
// one ledger transaction.
func (e *Engine) Evaluate(ctx context.Context, userID, lessonID int64, submitted []SubmittedQuestion) (Result, error) {
	lesson, err := e.catalog.Lesson(ctx, lessonID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Result{}, fmt.Errorf("lesson %d: %w", lessonID, ErrLessonNotFound)
		}
		return Result{}, fmt.Errorf("load lesson: %w", err)
	}

	questions, err := e.catalog.QuestionsByLesson(ctx, lessonID)
	if err != nil {
		return Result{}, fmt.Errorf("load questions: %w", err)
	}
	if err := checkIntegrity(lessonID, questions, submitted); err != nil {
		return Result{}, err
	}

	correct, err := e.catalog.CorrectAnswersByLesson(ctx, lessonID)
	if err != nil {
		return Result{}, fmt.Errorf("load answer key: %w", err)
	}

	res := Result{
		Score:         Grade(correct, submitted),
		ApprovalScore: lesson.ApprovalScore,
	}
	if res.Score < lesson.ApprovalScore {
		slog.Info("test failed",
			"user_id", userID,
			"lesson_id", lessonID,
			"score", res.Score,
			"approval_score", lesson.ApprovalScore,
		)
		enrollment.Record(ctx, e.events, enrollment.Event{
			UserID:    userID,
			EventType: enrollment.EventTestFailed,
			Data:      map[string]any{"lesson_id": lessonID, "score": res.Score, "approval_score": res.ApprovalScore},
		})
		return res, nil
	}

	courseLessons, err := e.catalog.LessonsByCourse(ctx, lesson.CourseID)
	if err != nil {
		return Result{}, fmt.Errorf("list course lessons: %w", err)
	}
	lessonIDs := make([]int64, len(courseLessons))
	for i, l := range courseLessons {
		lessonIDs[i] = l.ID
	}

	unlock, err := e.locker.Lock(ctx, fmt.Sprintf("review:%d:%d", userID, lessonID))
	if err != nil {
		return Result{}, fmt.Errorf("lock review: %w", err)
	}
	defer unlock()

	answerIDs := flattenAnswers(submitted)
	err = e.ledger.InTx(ctx, func(tx enrollment.Tx) error {
		le, err := tx.LockLessonEnrollment(ctx, lessonID, userID)
		if err != nil {
			return err
		}
		if le.IsApproved {
			return fmt.Errorf("lesson %d user %d: %w", lessonID, userID, enrollment.ErrAlreadyApproved)
		}

		if err := tx.AppendUserAnswers(ctx, userID, answerIDs); err != nil {
			return err
		}
		if err := tx.ApproveLesson(ctx, lessonID, userID, res.Score); err != nil {
			return err
		}

		approved, err := tx.ApprovedLessonCount(ctx, userID, lessonIDs)
		if err != nil {
			return err
		}
		if approved != len(lessonIDs) {
			return nil
		}

		found, err := tx.ApproveCourse(ctx, lesson.CourseID, userID)
		if err != nil {
			return err
		}
		if !found {
			slog.Warn("all lessons approved but user has no course enrollment",
				"user_id", userID,
				"course_id", lesson.CourseID,
			)
			return nil
		}
		res.CourseApproved = true
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("record passed test: %w", err)
	}
	res.Approved = true

	slog.Info("test passed",
		"user_id", userID,
		"lesson_id", lessonID,
		"score", res.Score,
		"course_approved", res.CourseApproved,
	)
	enrollment.Record(ctx, e.events, enrollment.Event{
		UserID:    userID,
		EventType: enrollment.EventTestPassed,
		Data:      map[string]any{"lesson_id": lessonID, "score": res.Score, "approval_score": res.ApprovalScore},
	})
	if res.CourseApproved {
		enrollment.Record(ctx, e.events, enrollment.Event{
			UserID:    userID,
			EventType: enrollment.EventCourseApproved,
			Data:      map[string]any{"course_id": lesson.CourseID},
		})
	}
	return res, nil
}

// checkIntegrity requires every question of the lesson to be answered, and
// every submitted answer to belong to the question it was filed under.
func checkIntegrity(lessonID int64, questions []catalog.Question, submitted []SubmittedQuestion) error {
	var problems []string

	owner := make(map[int64]int64)
	known := make(map[int64]bool, len(questions))
	for _, q := range questions {
		known[q.ID] = true
		for _, a := range q.Answers {
			owner[a.ID] = q.ID
		}
	}

	answered := make(map[int64]bool, len(submitted))
	for _, sq := range submitted {
		answered[sq.ID] = true
		if !known[sq.ID] {
			problems = append(problems, fmt.Sprintf("question %d is not part of lesson %d", sq.ID, lessonID))
			continue
		}
		for _, a := range sq.Answers {
			if owner[a.ID] != sq.ID {
				problems = append(problems, fmt.Sprintf("answer %d does not belong to question %d", a.ID, sq.ID))
			}
		}
	}

	for _, q := range questions {
		if !answered[q.ID] {
			problems = append(problems, fmt.Sprintf("question %q was not answered", q.Description))
		}
	}

	if len(problems) > 0 {
		return &IntegrityError{Problems: problems}
	}
	return nil
}

// flattenAnswers lists every distinct submitted answer in submission order.
func flattenAnswers(submitted []SubmittedQuestion) []int64 {
	grouped := submittedAnswers(submitted)
	var out []int64
	done := make(map[int64]bool, len(grouped))
	for _, q := range submitted {
		if done[q.ID] {
			continue
		}
		done[q.ID] = true
		out = append(out, grouped[q.ID]...)
	}
	return out
}

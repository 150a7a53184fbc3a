// Package learning implements the student-facing flows: browsing courses,
// subscribing, opening lessons and taking their tests.
package learning

import (
	"context"
	"errors"
	"fmt"

	"github.com/p-n-ai/pai-learn/internal/catalog"
	"github.com/p-n-ai/pai-learn/internal/enrollment"
	"github.com/p-n-ai/pai-learn/internal/review"
)

var (
	// ErrAlreadySubscribed is returned when subscribing to a course twice.
	ErrAlreadySubscribed = errors.New("user is already subscribed")
	// ErrNotEligible is returned when a course prerequisite is not approved.
	ErrNotEligible = errors.New("user cannot subscribe")
	// ErrNotEnrolled is returned when the user has no enrollment in the course.
	ErrNotEnrolled = errors.New("user is not enrolled in the course")
	// ErrNotAvailable is returned when a lesson cannot be opened yet.
	ErrNotAvailable = errors.New("lesson not available to user")
	// ErrTestUnavailable is returned when the user is not subscribed to the
	// lesson or already passed its test.
	ErrTestUnavailable = errors.New("the test is not available to the user")
)

// CourseView is a course as listed to a student.
type CourseView struct {
	catalog.Course
	IsSubscribed        bool `json:"is_subscribed"`
	IsApproved          bool `json:"is_approved"`
	DependentIsApproved bool `json:"dependent_is_approved"`
}

// LessonView is a lesson as listed to a student of its course.
type LessonView struct {
	catalog.Lesson
	IsApproved          bool `json:"is_approved"`
	DependentIsApproved bool `json:"dependent_is_approved"`
}

// Config holds dependencies for the learning service. Ledger is only used
// to build the engines left nil, so both share it.
type Config struct {
	Catalog     catalog.Store
	Ledger      enrollment.Ledger
	Eligibility *enrollment.Eligibility
	Review      *review.Engine
}

// Service runs student flows on top of the eligibility and review engines.
type Service struct {
	catalog catalog.Store
	elig    *enrollment.Eligibility
	review  *review.Engine
}

// NewService creates a learning service.
func NewService(cfg Config) *Service {
	store := cfg.Catalog
	if store == nil {
		store = catalog.NewMemoryStore()
	}
	ledger := cfg.Ledger
	if ledger == nil {
		ledger = enrollment.NewMemoryLedger()
	}
	elig := cfg.Eligibility
	if elig == nil {
		elig = enrollment.NewEligibility(enrollment.EligibilityConfig{Catalog: store, Ledger: ledger})
	}
	engine := cfg.Review
	if engine == nil {
		engine = review.NewEngine(review.EngineConfig{Catalog: store, Ledger: ledger})
	}
	return &Service{
		catalog: store,
		elig:    elig,
		review:  engine,
	}
}

// AvailableCourses lists every course with the user's standing in it.
func (s *Service) AvailableCourses(ctx context.Context, userID int64) ([]CourseView, error) {
	courses, err := s.catalog.Courses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}

	out := make([]CourseView, 0, len(courses))
	for _, c := range courses {
		v := CourseView{
			Course:       c,
			IsSubscribed: s.elig.IsSubscribed(ctx, enrollment.KindCourse, c.ID, userID),
			IsApproved:   s.elig.IsApproved(ctx, enrollment.KindCourse, c.ID, userID),
		}
		if c.Dependent != nil {
			v.DependentIsApproved = s.elig.IsApproved(ctx, enrollment.KindCourse, *c.Dependent, userID)
		}
		out = append(out, v)
	}
	return out, nil
}

// SubscribeCourse enrolls the user in a course.
func (s *Service) SubscribeCourse(ctx context.Context, courseID, userID int64) error {
	if s.elig.IsSubscribed(ctx, enrollment.KindCourse, courseID, userID) {
		return fmt.Errorf("course %d: %w", courseID, ErrAlreadySubscribed)
	}
	if !s.elig.Subscribe(ctx, enrollment.KindCourse, courseID, userID) {
		return fmt.Errorf("course %d: %w", courseID, ErrNotEligible)
	}
	return nil
}

// AvailableLessons lists the lessons of a course the user is enrolled in.
func (s *Service) AvailableLessons(ctx context.Context, courseID, userID int64) ([]LessonView, error) {
	if !s.elig.IsSubscribed(ctx, enrollment.KindCourse, courseID, userID) {
		return nil, fmt.Errorf("course %d: %w", courseID, ErrNotEnrolled)
	}

	lessons, err := s.catalog.LessonsByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}

	out := make([]LessonView, 0, len(lessons))
	for _, l := range lessons {
		v := LessonView{
			Lesson:     l,
			IsApproved: s.elig.IsApproved(ctx, enrollment.KindLesson, l.ID, userID),
		}
		if l.Dependent != nil {
			v.DependentIsApproved = s.elig.IsApproved(ctx, enrollment.KindLesson, *l.Dependent, userID)
		}
		out = append(out, v)
	}
	return out, nil
}

// OpenLesson returns a lesson's content and subscribes the user to it on
// first access.
func (s *Service) OpenLesson(ctx context.Context, courseID, lessonID, userID int64) (catalog.Lesson, error) {
	if !s.elig.IsSubscribed(ctx, enrollment.KindCourse, courseID, userID) {
		return catalog.Lesson{}, fmt.Errorf("course %d: %w", courseID, ErrNotEnrolled)
	}

	lesson, err := s.catalog.Lesson(ctx, lessonID)
	if err != nil {
		return catalog.Lesson{}, fmt.Errorf("open lesson: %w", err)
	}
	if lesson.CourseID != courseID {
		return catalog.Lesson{}, fmt.Errorf("lesson %d in course %d: %w", lessonID, courseID, catalog.ErrNotFound)
	}

	if !s.elig.IsSubscribed(ctx, enrollment.KindLesson, lessonID, userID) {
		if !s.elig.Subscribe(ctx, enrollment.KindLesson, lessonID, userID) {
			return catalog.Lesson{}, fmt.Errorf("lesson %d: %w", lessonID, ErrNotAvailable)
		}
	}
	return lesson, nil
}

// LessonTest returns the questions of a lesson's test without their answer key.
func (s *Service) LessonTest(ctx context.Context, lessonID, userID int64) ([]catalog.Question, error) {
	if _, err := s.catalog.Lesson(ctx, lessonID); err != nil {
		return nil, fmt.Errorf("lesson test: %w", err)
	}
	if err := s.testGate(ctx, lessonID, userID); err != nil {
		return nil, err
	}

	questions, err := s.catalog.QuestionsByLesson(ctx, lessonID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	out := make([]catalog.Question, len(questions))
	for i, q := range questions {
		out[i] = q.WithoutKey()
	}
	return out, nil
}

// SubmitTest grades a submission for a lesson the user is taking.
func (s *Service) SubmitTest(ctx context.Context, lessonID, userID int64, sub review.Submission) (review.Result, error) {
	if err := review.ValidateSubmission(sub.Questions); err != nil {
		return review.Result{}, err
	}
	if err := s.testGate(ctx, lessonID, userID); err != nil {
		return review.Result{}, err
	}
	return s.review.Evaluate(ctx, userID, lessonID, sub.Questions)
}

func (s *Service) testGate(ctx context.Context, lessonID, userID int64) error {
	if !s.elig.IsSubscribed(ctx, enrollment.KindLesson, lessonID, userID) ||
		s.elig.IsApproved(ctx, enrollment.KindLesson, lessonID, userID) {
		return fmt.Errorf("lesson %d: %w", lessonID, ErrTestUnavailable)
	}
	return nil
}

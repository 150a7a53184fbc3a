package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-learn/internal/catalog"
)

// Kind selects which enrollment table a question about eligibility is asked of.
type Kind string

const (
	KindCourse Kind = "course"
	KindLesson Kind = "lesson"
)

// EligibilityConfig holds dependencies for the eligibility engine.
type EligibilityConfig struct {
	Catalog catalog.Store
	Ledger  Ledger
	Events  EventLogger
}

// Eligibility answers whether a user may subscribe to or open a course or
// lesson, based on prerequisite approval. Every answer is a plain bool:
// lookup failures are logged and answered with false.
type Eligibility struct {
	catalog catalog.Store
	ledger  Ledger
	events  EventLogger
}

// NewEligibility creates an eligibility engine.
func NewEligibility(cfg EligibilityConfig) *Eligibility {
	store := cfg.Catalog
	if store == nil {
		store = catalog.NewMemoryStore()
	}
	ledger := cfg.Ledger
	if ledger == nil {
		ledger = NewMemoryLedger()
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	return &Eligibility{
		catalog: store,
		ledger:  ledger,
		events:  events,
	}
}

// IsSubscribed reports whether the user has an enrollment for the entity.
func (e *Eligibility) IsSubscribed(ctx context.Context, kind Kind, id, userID int64) bool {
	ok, err := e.subscribed(ctx, kind, id, userID)
	return e.failClosed("is_subscribed", kind, id, userID, ok, err)
}

// IsApproved reports whether the user has an approved enrollment for the entity.
func (e *Eligibility) IsApproved(ctx context.Context, kind Kind, id, userID int64) bool {
	ok, err := e.approved(ctx, kind, id, userID)
	return e.failClosed("is_approved", kind, id, userID, ok, err)
}

// CanSubscribe reports whether the user is not yet subscribed and has
// approved the entity's prerequisite. A lesson without a prerequisite
// inherits its course's prerequisite.
func (e *Eligibility) CanSubscribe(ctx context.Context, kind Kind, id, userID int64) bool {
	ok, err := e.canSubscribe(ctx, kind, id, userID)
	return e.failClosed("can_subscribe", kind, id, userID, ok, err)
}

// Subscribe enrolls the user when eligible. It reports true when the user
// ends up subscribed, whether by this call or an earlier one.
func (e *Eligibility) Subscribe(ctx context.Context, kind Kind, id, userID int64) bool {
	ok, err := e.subscribe(ctx, kind, id, userID)
	return e.failClosed("subscribe", kind, id, userID, ok, err)
}

// IsAvailableForUser reports whether the entity has no prerequisite, its
// prerequisite is approved, or the entity itself is approved.
func (e *Eligibility) IsAvailableForUser(ctx context.Context, kind Kind, id, userID int64) bool {
	ok, err := e.available(ctx, kind, id, userID)
	return e.failClosed("is_available_for_user", kind, id, userID, ok, err)
}

func (e *Eligibility) failClosed(op string, kind Kind, id, userID int64, ok bool, err error) bool {
	if err != nil {
		slog.Warn("eligibility check failed",
			"op", op,
			"kind", kind,
			"id", id,
			"user_id", userID,
			"error", err,
		)
		return false
	}
	return ok
}

func (e *Eligibility) subscribed(ctx context.Context, kind Kind, id, userID int64) (bool, error) {
	var err error
	switch kind {
	case KindCourse:
		_, err = e.ledger.CourseEnrollment(ctx, id, userID)
	case KindLesson:
		_, err = e.ledger.LessonEnrollment(ctx, id, userID)
	default:
		return false, fmt.Errorf("unknown kind %q", kind)
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e *Eligibility) approved(ctx context.Context, kind Kind, id, userID int64) (bool, error) {
	var approved bool
	var err error
	switch kind {
	case KindCourse:
		var ce CourseEnrollment
		ce, err = e.ledger.CourseEnrollment(ctx, id, userID)
		approved = ce.IsApproved
	case KindLesson:
		var le LessonEnrollment
		le, err = e.ledger.LessonEnrollment(ctx, id, userID)
		approved = le.IsApproved
	default:
		return false, fmt.Errorf("unknown kind %q", kind)
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return approved, nil
}

func (e *Eligibility) canSubscribe(ctx context.Context, kind Kind, id, userID int64) (bool, error) {
	subscribed, err := e.subscribed(ctx, kind, id, userID)
	if err != nil || subscribed {
		return false, err
	}

	switch kind {
	case KindCourse:
		course, err := e.catalog.Course(ctx, id)
		if err != nil {
			return false, err
		}
		if course.Dependent == nil {
			return true, nil
		}
		return e.approved(ctx, KindCourse, *course.Dependent, userID)

	case KindLesson:
		lesson, err := e.catalog.Lesson(ctx, id)
		if err != nil {
			return false, err
		}
		if lesson.Dependent != nil {
			return e.approved(ctx, KindLesson, *lesson.Dependent, userID)
		}
		course, err := e.catalog.Course(ctx, lesson.CourseID)
		if err != nil {
			return false, err
		}
		if course.Dependent == nil {
			return true, nil
		}
		return e.approved(ctx, KindCourse, *course.Dependent, userID)
	}
	return false, fmt.Errorf("unknown kind %q", kind)
}

func (e *Eligibility) subscribe(ctx context.Context, kind Kind, id, userID int64) (bool, error) {
	subscribed, err := e.subscribed(ctx, kind, id, userID)
	if err != nil {
		return false, err
	}
	if subscribed {
		return true, nil
	}

	eligible, err := e.canSubscribe(ctx, kind, id, userID)
	if err != nil || !eligible {
		return false, err
	}

	var created bool
	event := Event{UserID: userID}
	switch kind {
	case KindCourse:
		created, err = e.ledger.EnrollCourse(ctx, id, userID)
		event.EventType = EventCourseSubscribed
		event.Data = map[string]any{"course_id": id}
	case KindLesson:
		var lesson catalog.Lesson
		lesson, err = e.catalog.Lesson(ctx, id)
		if err != nil {
			return false, err
		}
		created, err = e.ledger.EnrollLesson(ctx, id, userID)
		event.EventType = EventLessonSubscribed
		event.Data = map[string]any{"lesson_id": id, "course_id": lesson.CourseID}
	}
	if err != nil {
		return false, err
	}

	if created {
		slog.Info("user subscribed", "kind", kind, "id", id, "user_id", userID)
		Record(ctx, e.events, event)
	}
	return true, nil
}

func (e *Eligibility) available(ctx context.Context, kind Kind, id, userID int64) (bool, error) {
	var dependent *int64
	switch kind {
	case KindCourse:
		course, err := e.catalog.Course(ctx, id)
		if err != nil {
			return false, err
		}
		dependent = course.Dependent
	case KindLesson:
		lesson, err := e.catalog.Lesson(ctx, id)
		if err != nil {
			return false, err
		}
		dependent = lesson.Dependent
	default:
		return false, fmt.Errorf("unknown kind %q", kind)
	}

	if dependent == nil {
		return true, nil
	}
	ok, err := e.approved(ctx, kind, *dependent, userID)
	if err != nil || ok {
		return ok, err
	}
	return e.approved(ctx, kind, id, userID)
}

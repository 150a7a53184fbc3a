package catalog

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a catalog entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPrerequisiteCycle is returned when a prerequisite edge would close a cycle.
	ErrPrerequisiteCycle = errors.New("prerequisite cycle")
	// ErrConflict is returned when a write would reassign an entity owned elsewhere.
	ErrConflict = errors.New("conflict")
)

// ValidationError lists every rule a catalog entity breaks.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid catalog entry: " + strings.Join(e.Problems, "; ")
}

// ValidateQuestion checks the answer rules for a question: at least two answers,
// at least one correct, exactly two for BOOLEAN, a known type and a non-negative score.
func ValidateQuestion(q Question) error {
	var problems []string

	if strings.TrimSpace(q.Description) == "" {
		problems = append(problems, "description is required")
	}
	if !q.Type.Valid() {
		problems = append(problems, fmt.Sprintf("unknown question type %q", q.Type))
	}
	if q.Score < 0 {
		problems = append(problems, fmt.Sprintf("score must be non-negative, got %d", q.Score))
	}
	if len(q.Answers) < 2 {
		problems = append(problems, "at least two possible answers are required")
	}

	correct := 0
	for _, a := range q.Answers {
		if a.IsCorrect {
			correct++
		}
	}
	if correct == 0 {
		problems = append(problems, "at least one correct answer was expected")
	}
	if q.Type == Boolean && len(q.Answers) != 2 {
		problems = append(problems, "two answers were expected for a BOOLEAN question")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ValidateLesson checks the scalar fields of a lesson.
func ValidateLesson(l Lesson) error {
	var problems []string
	if strings.TrimSpace(l.Title) == "" {
		problems = append(problems, "title is required")
	}
	if l.ApprovalScore < 0 {
		problems = append(problems, fmt.Sprintf("approval score must be non-negative, got %d", l.ApprovalScore))
	}
	if l.CourseID == 0 {
		problems = append(problems, "course is required")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ValidateCourse checks the scalar fields of a course.
func ValidateCourse(c Course) error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Problems: []string{"name is required"}}
	}
	return nil
}

// checkChain walks prerequisite edges starting at dependent and fails when the
// walk reaches self. next returns the prerequisite of an entity and whether the
// entity exists.
func checkChain(self int64, dependent *int64, next func(id int64) (*int64, bool)) error {
	if dependent == nil {
		return nil
	}

	seen := map[int64]bool{}
	cur := *dependent
	if self != 0 && cur == self {
		return fmt.Errorf("entity %d: %w", self, ErrPrerequisiteCycle)
	}
	if _, ok := next(cur); !ok {
		return fmt.Errorf("prerequisite %d: %w", cur, ErrNotFound)
	}

	for {
		if self != 0 && cur == self {
			return fmt.Errorf("entity %d: %w", self, ErrPrerequisiteCycle)
		}
		if seen[cur] {
			// a cycle that does not pass through self was already stored
			return fmt.Errorf("entity %d: %w", cur, ErrPrerequisiteCycle)
		}
		seen[cur] = true

		dep, ok := next(cur)
		if !ok || dep == nil {
			return nil
		}
		cur = *dep
	}
}

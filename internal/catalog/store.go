package catalog

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
)

// Store is the read-mostly catalog of courses, lessons and tests.
// Writes come from instructor-facing administration and seeding.
type Store interface {
	Course(ctx context.Context, id int64) (Course, error)
	Courses(ctx context.Context) ([]Course, error)
	Lesson(ctx context.Context, id int64) (Lesson, error)
	LessonsByCourse(ctx context.Context, courseID int64) ([]Lesson, error)
	CountLessons(ctx context.Context, courseID int64) (int, error)
	QuestionsByLesson(ctx context.Context, lessonID int64) ([]Question, error)
	CorrectAnswersByLesson(ctx context.Context, lessonID int64) ([]CorrectAnswer, error)

	PutCourse(ctx context.Context, c Course) (Course, error)
	PutLesson(ctx context.Context, l Lesson) (Lesson, error)
	PutQuestion(ctx context.Context, q Question) (Question, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	courses     map[int64]Course
	lessons     map[int64]Lesson
	questions   map[int64]Question
	// answer id -> question id
	answerOwner map[int64]int64
	nextID      int64
	mu          sync.RWMutex
}

// NewMemoryStore creates an empty in-memory catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		courses:     make(map[int64]Course),
		lessons:     make(map[int64]Lesson),
		questions:   make(map[int64]Question),
		answerOwner: make(map[int64]int64),
	}
}

func (s *MemoryStore) Course(_ context.Context, id int64) (Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.courses[id]
	if !ok {
		return Course{}, fmt.Errorf("course %d: %w", id, ErrNotFound)
	}
	return c, nil
}

func (s *MemoryStore) Courses(_ context.Context) ([]Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Course, 0, len(s.courses))
	for _, c := range s.courses {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Course) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) Lesson(_ context.Context, id int64) (Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lessons[id]
	if !ok {
		return Lesson{}, fmt.Errorf("lesson %d: %w", id, ErrNotFound)
	}
	return l, nil
}

func (s *MemoryStore) LessonsByCourse(_ context.Context, courseID int64) ([]Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Lesson
	for _, l := range s.lessons {
		if l.CourseID == courseID {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b Lesson) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) CountLessons(ctx context.Context, courseID int64) (int, error) {
	lessons, err := s.LessonsByCourse(ctx, courseID)
	if err != nil {
		return 0, err
	}
	return len(lessons), nil
}

func (s *MemoryStore) QuestionsByLesson(_ context.Context, lessonID int64) ([]Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Question
	for _, q := range s.questions {
		if q.LessonID == lessonID {
			q.Answers = slices.Clone(q.Answers)
			out = append(out, q)
		}
	}
	slices.SortFunc(out, func(a, b Question) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) CorrectAnswersByLesson(ctx context.Context, lessonID int64) ([]CorrectAnswer, error) {
	questions, err := s.QuestionsByLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}

	var out []CorrectAnswer
	for _, q := range questions {
		for _, a := range q.Answers {
			if !a.IsCorrect {
				continue
			}
			out = append(out, CorrectAnswer{
				AnswerID:     a.ID,
				QuestionID:   q.ID,
				QuestionType: q.Type,
				Score:        q.Score,
			})
		}
	}
	return out, nil
}

func (s *MemoryStore) PutCourse(_ context.Context, c Course) (Course, error) {
	if err := ValidateCourse(c); err != nil {
		return Course{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := checkChain(c.ID, c.Dependent, func(id int64) (*int64, bool) {
		dep, ok := s.courses[id]
		return dep.Dependent, ok
	})
	if err != nil {
		return Course{}, fmt.Errorf("put course: %w", err)
	}

	c.ID = s.assignID(c.ID)
	s.courses[c.ID] = c
	return c, nil
}

func (s *MemoryStore) PutLesson(_ context.Context, l Lesson) (Lesson, error) {
	if err := ValidateLesson(l); err != nil {
		return Lesson{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.courses[l.CourseID]; !ok {
		return Lesson{}, fmt.Errorf("course %d: %w", l.CourseID, ErrNotFound)
	}
	err := checkChain(l.ID, l.Dependent, func(id int64) (*int64, bool) {
		dep, ok := s.lessons[id]
		return dep.Dependent, ok
	})
	if err != nil {
		return Lesson{}, fmt.Errorf("put lesson: %w", err)
	}

	l.ID = s.assignID(l.ID)
	s.lessons[l.ID] = l
	return l, nil
}

// PutQuestion creates or replaces a question together with its answer set.
// Answers without an ID are created, answers missing from q are dropped.
func (s *MemoryStore) PutQuestion(_ context.Context, q Question) (Question, error) {
	if err := ValidateQuestion(q); err != nil {
		return Question{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lessons[q.LessonID]; !ok {
		return Question{}, fmt.Errorf("lesson %d: %w", q.LessonID, ErrNotFound)
	}
	for _, a := range q.Answers {
		if owner, ok := s.answerOwner[a.ID]; a.ID != 0 && ok && owner != q.ID {
			return Question{}, fmt.Errorf("answer %d belongs to question %d: %w", a.ID, owner, ErrConflict)
		}
	}

	q.ID = s.assignID(q.ID)
	if old, ok := s.questions[q.ID]; ok {
		for _, a := range old.Answers {
			delete(s.answerOwner, a.ID)
		}
	}

	answers := make([]Answer, len(q.Answers))
	for i, a := range q.Answers {
		a.ID = s.assignID(a.ID)
		a.QuestionID = q.ID
		s.answerOwner[a.ID] = q.ID
		answers[i] = a
	}
	q.Answers = answers

	s.questions[q.ID] = q
	return q, nil
}

// assignID keeps an explicit id and hands out a fresh one for zero.
// It must be called with mu held.
func (s *MemoryStore) assignID(id int64) int64 {
	if id == 0 {
		s.nextID++
		return s.nextID
	}
	if id > s.nextID {
		s.nextID = id
	}
	return id
}

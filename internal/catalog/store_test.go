package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/p-n-ai/pai-learn/internal/catalog"
)

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) catalog.Store {
		return catalog.NewMemoryStore()
	})
}

func TestMemoryStore_AssignsIDsAfterExplicitOnes(t *testing.T) {
	store := catalog.NewMemoryStore()
	ctx := t.Context()

	if _, err := store.PutCourse(ctx, catalog.Course{ID: 40, Name: "Seeded"}); err != nil {
		t.Fatalf("PutCourse() error = %v", err)
	}
	c, err := store.PutCourse(ctx, catalog.Course{Name: "Fresh"})
	if err != nil {
		t.Fatalf("PutCourse() error = %v", err)
	}
	if c.ID <= 40 {
		t.Errorf("fresh course ID = %d, want > 40", c.ID)
	}
}

// runStoreTests exercises behaviour shared by every Store implementation.
func runStoreTests(t *testing.T, newStore func(t *testing.T) catalog.Store) {
	t.Run("course roundtrip", func(t *testing.T) {
		store := newStore(t)
		ctx := t.Context()

		root := mustCourse(t, store, catalog.Course{Name: "Go Basics"})
		next := mustCourse(t, store, catalog.Course{Name: "Go Advanced", Dependent: catalog.Ref(root.ID)})

		got, err := store.Course(ctx, next.ID)
		if err != nil {
			t.Fatalf("Course() error = %v", err)
		}
		if got.Name != "Go Advanced" {
			t.Errorf("Name = %q, want Go Advanced", got.Name)
		}
		if got.Dependent == nil || *got.Dependent != root.ID {
			t.Errorf("Dependent = %v, want %d", got.Dependent, root.ID)
		}

		all, err := store.Courses(ctx)
		if err != nil {
			t.Fatalf("Courses() error = %v", err)
		}
		if len(all) != 2 || all[0].ID != root.ID {
			t.Errorf("Courses() = %+v, want root first of 2", all)
		}
	})

	t.Run("course not found", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Course(t.Context(), 9999)
		if !errors.Is(err, catalog.ErrNotFound) {
			t.Errorf("Course() error = %v, want ErrNotFound", err)
		}
		_, err = store.Lesson(t.Context(), 9999)
		if !errors.Is(err, catalog.ErrNotFound) {
			t.Errorf("Lesson() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("lessons by course", func(t *testing.T) {
		store := newStore(t)
		ctx := t.Context()

		c1 := mustCourse(t, store, catalog.Course{Name: "One"})
		c2 := mustCourse(t, store, catalog.Course{Name: "Two"})
		l1 := mustLesson(t, store, catalog.Lesson{CourseID: c1.ID, Title: "A", ApprovalScore: 1})
		mustLesson(t, store, catalog.Lesson{CourseID: c1.ID, Title: "B", ApprovalScore: 1, Dependent: catalog.Ref(l1.ID)})
		mustLesson(t, store, catalog.Lesson{CourseID: c2.ID, Title: "C", ApprovalScore: 1, Dependent: catalog.Ref(l1.ID)})

		lessons, err := store.LessonsByCourse(ctx, c1.ID)
		if err != nil {
			t.Fatalf("LessonsByCourse() error = %v", err)
		}
		if len(lessons) != 2 {
			t.Fatalf("LessonsByCourse() len = %d, want 2", len(lessons))
		}
		if lessons[0].Title != "A" || lessons[1].Title != "B" {
			t.Errorf("LessonsByCourse() order = %q, %q, want A, B", lessons[0].Title, lessons[1].Title)
		}

		n, err := store.CountLessons(ctx, c2.ID)
		if err != nil {
			t.Fatalf("CountLessons() error = %v", err)
		}
		if n != 1 {
			t.Errorf("CountLessons() = %d, want 1", n)
		}
	})

	t.Run("lesson requires course", func(t *testing.T) {
		store := newStore(t)

		_, err := store.PutLesson(t.Context(), catalog.Lesson{CourseID: 9999, Title: "Orphan"})
		if !errors.Is(err, catalog.ErrNotFound) {
			t.Errorf("PutLesson() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("missing prerequisite", func(t *testing.T) {
		store := newStore(t)

		_, err := store.PutCourse(t.Context(), catalog.Course{Name: "Dangling", Dependent: catalog.Ref(9999)})
		if !errors.Is(err, catalog.ErrNotFound) {
			t.Errorf("PutCourse() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("prerequisite cycle", func(t *testing.T) {
		store := newStore(t)
		ctx := t.Context()

		a := mustCourse(t, store, catalog.Course{Name: "A"})
		b := mustCourse(t, store, catalog.Course{Name: "B", Dependent: catalog.Ref(a.ID)})
		c := mustCourse(t, store, catalog.Course{Name: "C", Dependent: catalog.Ref(b.ID)})

		a.Dependent = catalog.Ref(c.ID)
		if _, err := store.PutCourse(ctx, a); !errors.Is(err, catalog.ErrPrerequisiteCycle) {
			t.Errorf("PutCourse(a -> c) error = %v, want ErrPrerequisiteCycle", err)
		}

		a.Dependent = catalog.Ref(a.ID)
		if _, err := store.PutCourse(ctx, a); !errors.Is(err, catalog.ErrPrerequisiteCycle) {
			t.Errorf("PutCourse(a -> a) error = %v, want ErrPrerequisiteCycle", err)
		}

		got, err := store.Course(ctx, a.ID)
		if err != nil {
			t.Fatalf("Course() error = %v", err)
		}
		if got.Dependent != nil {
			t.Errorf("rejected write changed Dependent to %d", *got.Dependent)
		}
	})

	t.Run("lesson prerequisite cycle", func(t *testing.T) {
		store := newStore(t)
		ctx := t.Context()

		c := mustCourse(t, store, catalog.Course{Name: "C"})
		l1 := mustLesson(t, store, catalog.Lesson{CourseID: c.ID, Title: "1"})
		l2 := mustLesson(t, store, catalog.Lesson{CourseID: c.ID, Title: "2", Dependent: catalog.Ref(l1.ID)})

		l1.Dependent = catalog.Ref(l2.ID)
		if _, err := store.PutLesson(ctx, l1); !errors.Is(err, catalog.ErrPrerequisiteCycle) {
			t.Errorf("PutLesson() error = %v, want ErrPrerequisiteCycle", err)
		}
	})

	t.Run("questions and correct answers", func(t *testing.T) {
		store := newStore(t)
		ctx := t.Context()

		c := mustCourse(t, store, catalog.Course{Name: "C"})
		l := mustLesson(t, store, catalog.Lesson{CourseID: c.ID, Title: "L", ApprovalScore: 5})
		q1 := mustQuestion(t, store, catalog.Question{
			LessonID:    l.ID,
			Description: "pick one",
			Score:       5,
			Type:        catalog.MultipleChooseACorrectOne,
			Answers: []catalog.Answer{
				{Description: "right", IsCorrect: true},
				{Description: "wrong"},
			},
		})
		q2 := mustQuestion(t, store, catalog.Question{
			LessonID:    l.ID,
			Description: "pick all",
			Score:       3,
			Type:        catalog.ChooseAllTheRight,
			Answers: []catalog.Answer{
				{Description: "yes", IsCorrect: true},
				{Description: "also yes", IsCorrect: true},
				{Description: "no"},
			},
		})

		questions, err := store.QuestionsByLesson(ctx, l.ID)
		if err != nil {
			t.Fatalf("QuestionsByLesson() error = %v", err)
		}
		if len(questions) != 2 {
			t.Fatalf("QuestionsByLesson() len = %d, want 2", len(questions))
		}
		if len(questions[1].Answers) != 3 {
			t.Errorf("question %d answers = %d, want 3", questions[1].ID, len(questions[1].Answers))
		}

		correct, err := store.CorrectAnswersByLesson(ctx, l.ID)
		if err != nil {
			t.Fatalf("CorrectAnswersByLesson() error = %v", err)
		}
		if len(correct) != 3 {
			t.Fatalf("CorrectAnswersByLesson() len = %d, want 3", len(correct))
		}
		if correct[0].QuestionID != q1.ID || correct[0].AnswerID != q1.Answers[0].ID || correct[0].Score != 5 {
			t.Errorf("correct[0] = %+v, want answer %d of question %d", correct[0], q1.Answers[0].ID, q1.ID)
		}
		for _, ca := range correct[1:] {
			if ca.QuestionID != q2.ID || ca.QuestionType != catalog.ChooseAllTheRight {
				t.Errorf("correct answer = %+v, want question %d of type CHOOSE_ALL_THE_RIGHT", ca, q2.ID)
			}
		}
	})

	t.Run("question upsert replaces answers", func(t *testing.T) {
		store := newStore(t)
		ctx := t.Context()

		c := mustCourse(t, store, catalog.Course{Name: "C"})
		l := mustLesson(t, store, catalog.Lesson{CourseID: c.ID, Title: "L"})
		q := mustQuestion(t, store, catalog.Question{
			LessonID:    l.ID,
			Description: "v1",
			Score:       1,
			Type:        catalog.MultipleChooseACorrectOne,
			Answers: []catalog.Answer{
				{Description: "a", IsCorrect: true},
				{Description: "b"},
				{Description: "c"},
			},
		})

		kept := q.Answers[0]
		kept.Description = "a (edited)"
		q.Description = "v2"
		q.Answers = []catalog.Answer{kept, {Description: "d"}}
		q = mustQuestion(t, store, q)

		questions, err := store.QuestionsByLesson(ctx, l.ID)
		if err != nil {
			t.Fatalf("QuestionsByLesson() error = %v", err)
		}
		if len(questions) != 1 {
			t.Fatalf("QuestionsByLesson() len = %d, want 1", len(questions))
		}
		got := questions[0]
		if got.Description != "v2" {
			t.Errorf("Description = %q, want v2", got.Description)
		}
		if len(got.Answers) != 2 {
			t.Fatalf("Answers len = %d, want 2", len(got.Answers))
		}
		if got.Answers[0].ID != kept.ID || got.Answers[0].Description != "a (edited)" {
			t.Errorf("Answers[0] = %+v, want edited answer %d", got.Answers[0], kept.ID)
		}
	})

	t.Run("answer owned by another question", func(t *testing.T) {
		store := newStore(t)
		ctx := t.Context()

		c := mustCourse(t, store, catalog.Course{Name: "C"})
		l := mustLesson(t, store, catalog.Lesson{CourseID: c.ID, Title: "L"})
		q1 := mustQuestion(t, store, catalog.Question{
			LessonID:    l.ID,
			Description: "first",
			Type:        catalog.Boolean,
			Answers:     []catalog.Answer{{Description: "t", IsCorrect: true}, {Description: "f"}},
		})

		_, err := store.PutQuestion(ctx, catalog.Question{
			LessonID:    l.ID,
			Description: "thief",
			Type:        catalog.Boolean,
			Answers:     []catalog.Answer{q1.Answers[0], {Description: "f"}},
		})
		if !errors.Is(err, catalog.ErrConflict) {
			t.Errorf("PutQuestion() error = %v, want ErrConflict", err)
		}
	})

	t.Run("invalid question rejected", func(t *testing.T) {
		store := newStore(t)

		c := mustCourse(t, store, catalog.Course{Name: "C"})
		l := mustLesson(t, store, catalog.Lesson{CourseID: c.ID, Title: "L"})
		_, err := store.PutQuestion(t.Context(), catalog.Question{
			LessonID:    l.ID,
			Description: "no answers",
			Type:        catalog.Boolean,
		})
		var verr *catalog.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("PutQuestion() error = %v, want *ValidationError", err)
		}
	})
}

func mustCourse(t *testing.T, store catalog.Store, c catalog.Course) catalog.Course {
	t.Helper()
	out, err := store.PutCourse(context.Background(), c)
	if err != nil {
		t.Fatalf("PutCourse(%q) error = %v", c.Name, err)
	}
	return out
}

func mustLesson(t *testing.T, store catalog.Store, l catalog.Lesson) catalog.Lesson {
	t.Helper()
	out, err := store.PutLesson(context.Background(), l)
	if err != nil {
		t.Fatalf("PutLesson(%q) error = %v", l.Title, err)
	}
	return out
}

func mustQuestion(t *testing.T, store catalog.Store, q catalog.Question) catalog.Question {
	t.Helper()
	out, err := store.PutQuestion(context.Background(), q)
	if err != nil {
		t.Fatalf("PutQuestion(%q) error = %v", q.Description, err)
	}
	return out
}

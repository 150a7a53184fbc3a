package catalog

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// CourseFile is the on-disk shape of one seeded course.
type CourseFile struct {
	Course  Course       `yaml:"course"`
	Lessons []LessonFile `yaml:"lessons"`
}

// LessonFile is a lesson together with its test.
type LessonFile struct {
	Lesson    `yaml:",inline"`
	Questions []Question `yaml:"questions"`
}

// Loader reads catalog seed files from a directory tree.
// Every entity in a seed file carries an explicit ID so seeding is repeatable
// and prerequisites can reference entities declared in other files.
type Loader struct {
	rootDir string
	courses map[int64]CourseFile
}

// NewLoader creates a loader and reads every course file under rootDir.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		courses: make(map[int64]CourseFile),
	}

	if _, err := os.Stat(rootDir); err != nil {
		slog.Warn("catalog directory not readable, nothing to seed", "path", rootDir, "error", err)
		return l, nil
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	slog.Info("catalog files loaded", "courses", len(l.courses))
	return l, nil
}

// Courses returns the loaded course files ordered by course ID.
func (l *Loader) Courses() []CourseFile {
	out := make([]CourseFile, 0, len(l.courses))
	for _, c := range l.courses {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b CourseFile) int { return cmp.Compare(a.Course.ID, b.Course.ID) })
	return out
}

// Seed writes the loaded catalog into store. Courses and lessons are written
// prerequisites first, then every question.
func (l *Loader) Seed(ctx context.Context, store Store) error {
	files := l.Courses()

	courses := make([]Course, 0, len(files))
	var lessons []Lesson
	var questions []Question
	for _, f := range files {
		courses = append(courses, f.Course)
		for _, lf := range f.Lessons {
			lessons = append(lessons, lf.Lesson)
			questions = append(questions, lf.Questions...)
		}
	}

	for _, c := range prerequisitesFirst(courses, func(c Course) (int64, *int64) { return c.ID, c.Dependent }) {
		if _, err := store.PutCourse(ctx, c); err != nil {
			return fmt.Errorf("seed course %d: %w", c.ID, err)
		}
	}
	for _, ls := range prerequisitesFirst(lessons, func(ls Lesson) (int64, *int64) { return ls.ID, ls.Dependent }) {
		if _, err := store.PutLesson(ctx, ls); err != nil {
			return fmt.Errorf("seed lesson %d: %w", ls.ID, err)
		}
	}
	for _, q := range questions {
		if _, err := store.PutQuestion(ctx, q); err != nil {
			return fmt.Errorf("seed question %d: %w", q.ID, err)
		}
	}

	slog.Info("catalog seeded",
		"courses", len(courses),
		"lessons", len(lessons),
		"questions", len(questions),
	)
	return nil
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadCourse(path)
		}
		return nil
	})
}

func (l *Loader) loadCourse(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var f CourseFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		slog.Warn("skipping invalid catalog YAML", "path", path, "error", err)
		return nil
	}

	if f.Course.ID == 0 {
		return nil // Not a course file
	}
	if err := f.resolve(); err != nil {
		slog.Warn("skipping incomplete catalog YAML", "path", path, "error", err)
		return nil
	}

	if prev, ok := l.courses[f.Course.ID]; ok {
		slog.Warn("duplicate course in catalog YAML, last file wins",
			"path", path,
			"course_id", f.Course.ID,
			"previous_name", prev.Course.Name,
		)
	}
	l.courses[f.Course.ID] = f
	return nil
}

// resolve fills parent references and checks that every entity has an ID.
func (f *CourseFile) resolve() error {
	for i := range f.Lessons {
		lf := &f.Lessons[i]
		if lf.ID == 0 {
			return fmt.Errorf("lesson %q has no id", lf.Title)
		}
		lf.CourseID = f.Course.ID
		for j := range lf.Questions {
			q := &lf.Questions[j]
			if q.ID == 0 {
				return fmt.Errorf("question %q of lesson %d has no id", q.Description, lf.ID)
			}
			q.LessonID = lf.ID
			for k := range q.Answers {
				a := &q.Answers[k]
				if a.ID == 0 {
					return fmt.Errorf("answer %q of question %d has no id", a.Description, q.ID)
				}
				a.QuestionID = q.ID
			}
		}
	}
	return nil
}

// prerequisitesFirst orders items so that each comes after the item it depends
// on. Items whose prerequisite is not among items keep their relative order;
// items caught in a cycle go last so the store reports the cycle.
func prerequisitesFirst[T any](items []T, edge func(T) (int64, *int64)) []T {
	present := make(map[int64]bool, len(items))
	for _, it := range items {
		id, _ := edge(it)
		present[id] = true
	}

	placed := make(map[int64]bool, len(items))
	out := make([]T, 0, len(items))
	pending := items
	for len(pending) > 0 {
		var next []T
		for _, it := range pending {
			id, dep := edge(it)
			if dep == nil || !present[*dep] || placed[*dep] {
				placed[id] = true
				out = append(out, it)
				continue
			}
			next = append(next, it)
		}
		if len(next) == len(pending) {
			return append(out, next...)
		}
		pending = next
	}
	return out
}

// Package gradebook exports a course's enrollments as an XLSX workbook.
package gradebook

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-learn/internal/catalog"
	"github.com/p-n-ai/pai-learn/internal/enrollment"
)

const (
	studentsSheet = "Students"
	lessonsSheet  = "Lessons"
)

// Exporter builds gradebooks from the catalog and the enrollment ledger.
type Exporter struct {
	catalog catalog.Store
	ledger  enrollment.Ledger
}

// NewExporter creates a gradebook exporter.
func NewExporter(store catalog.Store, ledger enrollment.Ledger) *Exporter {
	return &Exporter{catalog: store, ledger: ledger}
}

// Export writes the gradebook of a course to w. The Students sheet has one
// row per enrolled user with the score of every lesson; the Lessons sheet
// summarises each lesson.
func (e *Exporter) Export(ctx context.Context, courseID int64, w io.Writer) error {
	course, err := e.catalog.Course(ctx, courseID)
	if err != nil {
		return fmt.Errorf("export gradebook: %w", err)
	}
	lessons, err := e.catalog.LessonsByCourse(ctx, courseID)
	if err != nil {
		return fmt.Errorf("export gradebook: %w", err)
	}
	courseRows, err := e.ledger.CourseEnrollmentsByCourse(ctx, courseID)
	if err != nil {
		return fmt.Errorf("export gradebook: %w", err)
	}
	lessonIDs := make([]int64, len(lessons))
	for i, l := range lessons {
		lessonIDs[i] = l.ID
	}
	lessonRows, err := e.ledger.LessonEnrollmentsByLessons(ctx, lessonIDs)
	if err != nil {
		return fmt.Errorf("export gradebook: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", studentsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(lessonsSheet); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	if err := f.SetDocProps(&excelize.DocProperties{Title: course.Name + " gradebook"}); err != nil {
		return fmt.Errorf("set properties: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	if err := writeStudents(f, header, lessons, courseRows, lessonRows); err != nil {
		return err
	}
	if err := writeLessons(f, header, lessons, lessonRows); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

type student struct {
	userID         int64
	courseApproved bool
	enrolled       bool
	scores         map[int64]enrollment.LessonEnrollment
}

func writeStudents(f *excelize.File, header int, lessons []catalog.Lesson, courseRows []enrollment.CourseEnrollment, lessonRows []enrollment.LessonEnrollment) error {
	students := map[int64]*student{}
	get := func(userID int64) *student {
		s, ok := students[userID]
		if !ok {
			s = &student{userID: userID, scores: map[int64]enrollment.LessonEnrollment{}}
			students[userID] = s
		}
		return s
	}
	for _, ce := range courseRows {
		s := get(ce.UserID)
		s.enrolled = true
		s.courseApproved = ce.IsApproved
	}
	for _, le := range lessonRows {
		get(le.UserID).scores[le.LessonID] = le
	}

	row := []any{"User ID", "Course enrolled", "Course approved", "Lessons approved"}
	for _, l := range lessons {
		row = append(row, l.Title)
	}
	if err := setRow(f, studentsSheet, 1, row); err != nil {
		return err
	}
	if err := styleRow(f, studentsSheet, header, len(row)); err != nil {
		return err
	}

	ordered := make([]*student, 0, len(students))
	for _, s := range students {
		ordered = append(ordered, s)
	}
	slices.SortFunc(ordered, func(a, b *student) int { return cmp.Compare(a.userID, b.userID) })

	for i, s := range ordered {
		approved := 0
		cells := make([]any, 0, len(lessons))
		for _, l := range lessons {
			le, ok := s.scores[l.ID]
			switch {
			case !ok:
				cells = append(cells, "")
			case le.IsApproved:
				approved++
				cells = append(cells, le.Score)
			default:
				cells = append(cells, "in progress")
			}
		}
		row := append([]any{s.userID, yesNo(s.enrolled), yesNo(s.courseApproved), approved}, cells...)
		if err := setRow(f, studentsSheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeLessons(f *excelize.File, header int, lessons []catalog.Lesson, lessonRows []enrollment.LessonEnrollment) error {
	row := []any{"Lesson ID", "Title", "Approval score", "Enrolled", "Approved", "Average approved score"}
	if err := setRow(f, lessonsSheet, 1, row); err != nil {
		return err
	}
	if err := styleRow(f, lessonsSheet, header, len(row)); err != nil {
		return err
	}

	for i, l := range lessons {
		enrolled, approved, total := 0, 0, 0
		for _, le := range lessonRows {
			if le.LessonID != l.ID {
				continue
			}
			enrolled++
			if le.IsApproved {
				approved++
				total += le.Score
			}
		}
		var average any = ""
		if approved > 0 {
			average = float64(total) / float64(approved)
		}
		row := []any{l.ID, l.Title, l.ApprovalScore, enrolled, approved, average}
		if err := setRow(f, lessonsSheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func styleRow(f *excelize.File, sheet string, style, width int) error {
	last, err := excelize.CoordinatesToCellName(width, 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

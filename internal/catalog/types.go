// Package catalog holds courses, lessons, questions and answers together with
// the prerequisite edges between them.
package catalog

// QuestionType selects how a question's submitted answers are graded.
type QuestionType string

const (
	// MultipleChooseACorrectOne is correct when any submitted answer is correct.
	MultipleChooseACorrectOne QuestionType = "MULTIPLE_CHOOSE_A_CORRECT_ONE"
	// ChooseAllTheRight is correct only when the submitted set equals the correct set.
	ChooseAllTheRight QuestionType = "CHOOSE_ALL_THE_RIGHT"
	// Boolean is a two-answer question graded like MultipleChooseACorrectOne.
	Boolean QuestionType = "BOOLEAN"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChooseACorrectOne, ChooseAllTheRight, Boolean:
		return true
	}
	return false
}

// Course is a unit of study. A nil Dependent marks a root course.
type Course struct {
	ID        int64  `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Dependent *int64 `json:"dependent,omitempty" yaml:"dependent,omitempty"`
}

// Lesson belongs to exactly one course and may depend on a lesson of any course.
type Lesson struct {
	ID            int64  `json:"id" yaml:"id"`
	CourseID      int64  `json:"course_id" yaml:"course_id"`
	Title         string `json:"title" yaml:"title"`
	Description   string `json:"description" yaml:"description"`
	ApprovalScore int    `json:"approval_score" yaml:"approval_score"`
	Dependent     *int64 `json:"dependent,omitempty" yaml:"dependent,omitempty"`
}

// Question is one item of a lesson test worth Score points when answered correctly.
type Question struct {
	ID          int64        `json:"id" yaml:"id"`
	LessonID    int64        `json:"lesson_id" yaml:"lesson_id"`
	Description string       `json:"description" yaml:"description"`
	Score       int          `json:"score" yaml:"score"`
	Type        QuestionType `json:"question_type" yaml:"question_type"`
	Answers     []Answer     `json:"answers" yaml:"answers"`
}

// Answer is one selectable option of a question.
type Answer struct {
	ID          int64  `json:"id" yaml:"id"`
	QuestionID  int64  `json:"question_id" yaml:"question_id"`
	Description string `json:"description" yaml:"description"`
	IsCorrect   bool   `json:"is_correct" yaml:"is_correct"`
}

// CorrectAnswer is a correct answer joined to its parent question.
type CorrectAnswer struct {
	AnswerID     int64
	QuestionID   int64
	QuestionType QuestionType
	Score        int
}

// WithoutKey returns a copy of q whose answers carry no correctness flag,
// suitable for handing a test to a student.
func (q Question) WithoutKey() Question {
	out := q
	out.Answers = make([]Answer, len(q.Answers))
	for i, a := range q.Answers {
		a.IsCorrect = false
		out.Answers[i] = a
	}
	return out
}

// Ref returns a pointer to id, for building prerequisite references.
func Ref(id int64) *int64 {
	return &id
}

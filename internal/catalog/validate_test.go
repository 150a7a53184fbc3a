package catalog_test

import (
	"errors"
	"testing"

	"github.com/p-n-ai/pai-learn/internal/catalog"
)

func TestValidateQuestion(t *testing.T) {
	answer := func(correct bool) catalog.Answer {
		return catalog.Answer{Description: "option", IsCorrect: correct}
	}

	tests := []struct {
		name    string
		q       catalog.Question
		wantErr bool
	}{
		{
			name: "multiple choice with one correct",
			q: catalog.Question{
				Description: "2 + 2?",
				Score:       5,
				Type:        catalog.MultipleChooseACorrectOne,
				Answers:     []catalog.Answer{answer(true), answer(false), answer(false)},
			},
		},
		{
			name: "choose all with two correct",
			q: catalog.Question{
				Description: "pick primes",
				Score:       3,
				Type:        catalog.ChooseAllTheRight,
				Answers:     []catalog.Answer{answer(true), answer(true), answer(false)},
			},
		},
		{
			name: "boolean with two answers",
			q: catalog.Question{
				Description: "the sky is blue",
				Score:       1,
				Type:        catalog.Boolean,
				Answers:     []catalog.Answer{answer(true), answer(false)},
			},
		},
		{
			name: "single answer",
			q: catalog.Question{
				Description: "lonely",
				Type:        catalog.MultipleChooseACorrectOne,
				Answers:     []catalog.Answer{answer(true)},
			},
			wantErr: true,
		},
		{
			name: "no correct answer",
			q: catalog.Question{
				Description: "trick",
				Type:        catalog.MultipleChooseACorrectOne,
				Answers:     []catalog.Answer{answer(false), answer(false)},
			},
			wantErr: true,
		},
		{
			name: "boolean with three answers",
			q: catalog.Question{
				Description: "maybe",
				Type:        catalog.Boolean,
				Answers:     []catalog.Answer{answer(true), answer(false), answer(false)},
			},
			wantErr: true,
		},
		{
			name: "unknown type",
			q: catalog.Question{
				Description: "essay",
				Type:        "ESSAY",
				Answers:     []catalog.Answer{answer(true), answer(false)},
			},
			wantErr: true,
		},
		{
			name: "negative score",
			q: catalog.Question{
				Description: "penalty",
				Score:       -1,
				Type:        catalog.Boolean,
				Answers:     []catalog.Answer{answer(true), answer(false)},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := catalog.ValidateQuestion(tt.q)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateQuestion() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var verr *catalog.ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("ValidateQuestion() error type = %T, want *ValidationError", err)
				}
			}
		})
	}
}

func TestValidateQuestion_ReportsEveryProblem(t *testing.T) {
	err := catalog.ValidateQuestion(catalog.Question{Type: "ESSAY"})

	var verr *catalog.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("ValidateQuestion() error = %v, want *ValidationError", err)
	}
	// description, type, answer count, correct count
	if len(verr.Problems) != 4 {
		t.Errorf("Problems = %q, want 4 entries", verr.Problems)
	}
}

func TestValidateLesson(t *testing.T) {
	tests := []struct {
		name    string
		l       catalog.Lesson
		wantErr bool
	}{
		{"valid", catalog.Lesson{CourseID: 1, Title: "Intro", ApprovalScore: 5}, false},
		{"zero approval score", catalog.Lesson{CourseID: 1, Title: "Intro"}, false},
		{"missing title", catalog.Lesson{CourseID: 1, ApprovalScore: 5}, true},
		{"missing course", catalog.Lesson{Title: "Intro", ApprovalScore: 5}, true},
		{"negative approval score", catalog.Lesson{CourseID: 1, Title: "Intro", ApprovalScore: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := catalog.ValidateLesson(tt.l)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLesson() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestQuestion_WithoutKey(t *testing.T) {
	q := catalog.Question{
		ID:   1,
		Type: catalog.Boolean,
		Answers: []catalog.Answer{
			{ID: 1, IsCorrect: true},
			{ID: 2},
		},
	}

	got := q.WithoutKey()
	for _, a := range got.Answers {
		if a.IsCorrect {
			t.Errorf("answer %d still marked correct", a.ID)
		}
	}
	if !q.Answers[0].IsCorrect {
		t.Error("WithoutKey() modified the original question")
	}
}

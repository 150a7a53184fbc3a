// Package review grades lesson tests and records passed ones in the
// enrollment ledger.
package review

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// SubmittedAnswer is one answer a student selected.
type SubmittedAnswer struct {
	ID int64 `json:"id"`
}

// SubmittedQuestion is a question together with the answers selected for it.
type SubmittedQuestion struct {
	ID      int64             `json:"id"`
	Answers []SubmittedAnswer `json:"answers"`
}

// Submission is the body a student sends to have a lesson test graded.
type Submission struct {
	Questions []SubmittedQuestion `json:"questions"`
}

// ValidationError lists what is wrong with the shape of a submission.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid submission: " + strings.Join(e.Problems, "; ")
}

var submissionSchema = mustSchema(`{
  "type": "object",
  "required": ["questions"],
  "properties": {
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "answers"],
        "properties": {
          "id": {"type": "integer", "minimum": 1},
          "answers": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["id"],
              "properties": {
                "id": {"type": "integer", "minimum": 1}
              }
            }
          }
        }
      }
    }
  }
}`)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("review: invalid submission schema: %v", err))
	}
	return s
}

// ParseSubmission decodes and validates a raw JSON submission.
func ParseSubmission(data []byte) (Submission, error) {
	result, err := submissionSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Submission{}, fmt.Errorf("parse submission: %w", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return Submission{}, &ValidationError{Problems: problems}
	}

	var s Submission
	if err := json.Unmarshal(data, &s); err != nil {
		return Submission{}, fmt.Errorf("decode submission: %w", err)
	}
	if err := ValidateSubmission(s.Questions); err != nil {
		return Submission{}, err
	}
	return s, nil
}

// ValidateSubmission checks that at least one question was answered, that
// every question carries at least one answer and that no question repeats.
func ValidateSubmission(questions []SubmittedQuestion) error {
	var problems []string
	if len(questions) == 0 {
		problems = append(problems, "at least one question is required")
	}

	seen := make(map[int64]bool, len(questions))
	for _, q := range questions {
		if seen[q.ID] {
			problems = append(problems, fmt.Sprintf("question %d is submitted more than once", q.ID))
		}
		seen[q.ID] = true
		if len(q.Answers) == 0 {
			problems = append(problems, fmt.Sprintf("question %d has no answers", q.ID))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

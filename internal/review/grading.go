package review

import "github.com/p-n-ai/pai-learn/internal/catalog"

type keyEntry struct {
	qtype   catalog.QuestionType
	score   int
	correct map[int64]bool
}

// answerKey groups correct answers by question.
func answerKey(correct []catalog.CorrectAnswer) map[int64]*keyEntry {
	key := make(map[int64]*keyEntry)
	for _, ca := range correct {
		e, ok := key[ca.QuestionID]
		if !ok {
			e = &keyEntry{
				qtype:   ca.QuestionType,
				score:   ca.Score,
				correct: make(map[int64]bool),
			}
			key[ca.QuestionID] = e
		}
		e.correct[ca.AnswerID] = true
	}
	return key
}

// submittedAnswers groups submitted answer IDs by question, dropping repeats
// within a question and keeping first-seen order.
func submittedAnswers(questions []SubmittedQuestion) map[int64][]int64 {
	out := make(map[int64][]int64, len(questions))
	for _, q := range questions {
		seen := make(map[int64]bool, len(out[q.ID]))
		for _, id := range out[q.ID] {
			seen[id] = true
		}
		for _, a := range q.Answers {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			out[q.ID] = append(out[q.ID], a.ID)
		}
	}
	return out
}

// isCorrect grades one question.
func isCorrect(qtype catalog.QuestionType, correct map[int64]bool, submitted []int64) bool {
	switch qtype {
	case catalog.MultipleChooseACorrectOne, catalog.Boolean:
		for _, id := range submitted {
			if correct[id] {
				return true
			}
		}
		return false
	case catalog.ChooseAllTheRight:
		if len(submitted) != len(correct) {
			return false
		}
		for _, id := range submitted {
			if !correct[id] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Grade returns the points earned by submitted against the correct answers of
// a lesson. Questions with no correct answer are not graded.
func Grade(correct []catalog.CorrectAnswer, submitted []SubmittedQuestion) int {
	answers := submittedAnswers(submitted)
	score := 0
	for questionID, e := range answerKey(correct) {
		if isCorrect(e.qtype, e.correct, answers[questionID]) {
			score += e.score
		}
	}
	return score
}

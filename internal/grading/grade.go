package grading

import "quizsystem/internal/quiz"

type Result struct {
	TotalPoints  int
	EarnedPoints int
	// Score is a percentage in [0, 100]. It is 0 when TotalPoints is 0.
	Score  float64
	Passed bool
	// Answers mirrors the input order with correctness filled in for every
	// answer that matches a question of the test.
	Answers   []quiz.Answer
	Questions map[string]QuestionScore
}

// Grade scores answers against def. It never mutates its inputs, so
// grading the same pair twice yields the same result.
func Grade(def *quiz.TestDefinition, answers []quiz.Answer) Result {
	byQuestion := make(map[string]quiz.Response, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a.Response
	}

	res := Result{Questions: make(map[string]QuestionScore, len(def.Questions))}
	for _, q := range def.Questions {
		if q.Points > 0 {
			res.TotalPoints += q.Points
		}
		resp, answered := byQuestion[q.ID]
		if !answered {
			res.Questions[q.ID] = QuestionScore{Reason: ReasonUnanswered}
			continue
		}
		qs := ScoreQuestion(q, resp)
		if !qs.Answered {
			// An answer record exists, so it is graded even when empty.
			qs = wrong(ReasonWrong)
		}
		res.Questions[q.ID] = qs
		res.EarnedPoints += qs.Points
	}

	if res.TotalPoints > 0 {
		res.Score = float64(res.EarnedPoints) / float64(res.TotalPoints) * 100
	}
	res.Passed = res.Score >= def.PassingScore

	res.Answers = make([]quiz.Answer, len(answers))
	for i, a := range answers {
		graded := quiz.Answer{QuestionID: a.QuestionID, Response: a.Response}
		if qs, ok := res.Questions[a.QuestionID]; ok && qs.IsCorrect != nil {
			v := *qs.IsCorrect
			p := qs.Points
			graded.IsCorrect = &v
			graded.PointsAwarded = &p
		}
		res.Answers[i] = graded
	}
	return res
}

// Apply copies a result onto an attempt. Status and timestamps are left to
// the caller.
func Apply(a *quiz.Attempt, res Result) {
	total := res.TotalPoints
	earned := res.EarnedPoints
	score := res.Score
	passed := res.Passed
	a.TotalPoints = &total
	a.EarnedPoints = &earned
	a.Score = &score
	a.Passed = &passed
	a.Answers = res.Answers
}

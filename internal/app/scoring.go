package app

import (
	"time"

	"github.com/shopspring/decimal"

	"quizwhiz-service/internal/domain"
)

const (
	// BasePoints is awarded for any correct answer.
	BasePoints = 50
	// SpeedBonus is the extra awarded for answering the instant the question opens.
	SpeedBonus = 50
)

// ScoreResult is the outcome of scoring one submission.
type ScoreResult struct {
	Correct bool
	Delta   int
}

// Score maps a submission and its timing to a score delta. It is pure: the same
// inputs always yield the same result, so participants answering at the same
// instant receive identical deltas.
func Score(submitted, correct string, remaining, budget time.Duration) ScoreResult {
	if domain.NormalizeKey(submitted) != domain.NormalizeKey(correct) {
		return ScoreResult{}
	}
	if budget <= 0 {
		return ScoreResult{Correct: true, Delta: BasePoints}
	}
	if remaining < 0 {
		remaining = 0
	}
	if remaining > budget {
		remaining = budget
	}

	// Round half up; values are non-negative so half-away-from-zero is equivalent.
	bonus := decimal.NewFromInt(SpeedBonus).
		Mul(decimal.NewFromInt(int64(remaining))).
		Div(decimal.NewFromInt(int64(budget))).
		Round(0)

	return ScoreResult{Correct: true, Delta: BasePoints + int(bonus.IntPart())}
}

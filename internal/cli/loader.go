package cli

import (
	"context"
	"errors"
	"fmt"

	"quizwhiz-service/internal/domain"
	"quizwhiz-service/internal/infra/memory"
)

// chainLoader asks each loader in turn, moving on only when a quiz is unknown.
// Postgres holds curated quizzes; the sqlite bank holds generated ones.
type chainLoader []memory.QuizLoader

func (c chainLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	for _, loader := range c {
		quiz, err := loader.LoadQuiz(ctx, quizID)
		if err == nil {
			return quiz, nil
		}
		if !errors.Is(err, domain.ErrQuizNotFound) {
			return domain.Quiz{}, err
		}
	}
	return domain.Quiz{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizID)
}

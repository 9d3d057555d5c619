package memory

import (
	"context"
	"testing"

	"quizwhiz-service/internal/domain"
)

func TestStaticQuizLoaderCreatesSampledQuiz(t *testing.T) {
	bank := NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()}).WithQuestionsPerQuiz(1)

	quiz, err := bank.CreateQuiz(context.Background())
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	if len(quiz.ID) != 7 {
		t.Fatalf("expected 7 char quiz id, got %q", quiz.ID)
	}
	if len(quiz.Questions) != 1 {
		t.Fatalf("expected 1 sampled question, got %d", len(quiz.Questions))
	}

	loaded, err := bank.LoadQuiz(context.Background(), quiz.ID)
	if err != nil {
		t.Fatalf("load created quiz: %v", err)
	}
	if loaded.Questions[0].ID != quiz.Questions[0].ID {
		t.Fatalf("expected created quiz to be loadable, got %+v", loaded)
	}
}

func TestStaticQuizLoaderRejectsEmptyBank(t *testing.T) {
	bank := NewStaticQuizLoader(nil)
	if _, err := bank.CreateQuiz(context.Background()); err == nil {
		t.Fatalf("expected error creating from empty bank")
	}
}

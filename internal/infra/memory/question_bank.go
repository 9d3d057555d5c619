package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"quizwhiz-service/internal/domain"
)

// StaticQuizLoader is a bank backed by an in-memory map (useful for tests/demos).
// Besides serving its fixed quizzes it can assemble new ones by sampling
// questions from all of them.
type StaticQuizLoader struct {
	perQuiz int

	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
	rnd     *rand.Rand
}

func NewStaticQuizLoader(quizzes map[string]domain.Quiz) *StaticQuizLoader {
	copied := make(map[string]domain.Quiz, len(quizzes))
	for id, quiz := range quizzes {
		copied[id] = quiz
	}
	return &StaticQuizLoader{
		perQuiz: 8,
		quizzes: copied,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithQuestionsPerQuiz sets how many questions CreateQuiz samples.
func (l *StaticQuizLoader) WithQuestionsPerQuiz(n int) *StaticQuizLoader {
	if n > 0 {
		l.perQuiz = n
	}
	return l
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizID)
}

// CreateQuiz samples up to perQuiz questions and registers them under a new ID.
func (l *StaticQuizLoader) CreateQuiz(_ context.Context) (domain.Quiz, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var pool []domain.Question
	for _, quiz := range l.quizzes {
		pool = append(pool, quiz.Questions...)
	}
	if len(pool) == 0 {
		return domain.Quiz{}, fmt.Errorf("%w: question bank is empty", domain.ErrInvalidQuiz)
	}

	l.rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > l.perQuiz {
		pool = pool[:l.perQuiz]
	}

	quiz := domain.Quiz{ID: domain.NewQuizID(), Questions: pool}
	l.quizzes[quiz.ID] = quiz
	return quiz, nil
}

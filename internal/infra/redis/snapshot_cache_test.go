package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"quizwhiz-service/internal/domain"
)

func TestSnapshotCacheStoresLatest(t *testing.T) {
	_, client := newMiniredis(t)
	cache := NewSnapshotCache(client, time.Minute)
	ctx := context.Background()

	deadline := 1791968430.5
	first := domain.Snapshot{QuizID: "quiz-1", Leaderboard: []domain.LeaderboardEntry{}}
	second := domain.Snapshot{
		QuizID:    "quiz-1",
		Started:   true,
		Deadline:  &deadline,
		TimeLimit: 20,
		Question:  &domain.QuestionView{Index: 0, Total: 1, ID: "q1", Text: "What is 2 + 2?", Options: map[string]string{"A": "3", "B": "4"}},
		Leaderboard: []domain.LeaderboardEntry{
			{Name: "Ann", Score: 92, Correct: 1, Answered: 1},
		},
	}
	for _, snap := range []domain.Snapshot{first, second} {
		if err := cache.Publish(ctx, snap); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	got, err := cache.Latest(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !got.Started || got.Deadline == nil || *got.Deadline != deadline || got.Leaderboard[0].Score != 92 {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}

func TestSnapshotCacheMissingSession(t *testing.T) {
	_, client := newMiniredis(t)
	cache := NewSnapshotCache(client, time.Minute)

	if _, err := cache.Latest(context.Background(), "nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

package redis

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"quizwhiz-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions live in process so broadcasts stay local; Redis carries a
// liveness marker per session that other instances and operators can see.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(quizID string, create func() *app.Session) (*app.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[quizID]; ok {
		return session, false
	}
	session := create()
	s.sessions[quizID] = session
	if err := s.client.Set(context.Background(), sessionKey(quizID), "1", s.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("quiz_id", quizID).Msg("set session marker")
	}
	return session, true
}

func (s *SessionStore) Get(quizID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[quizID]
	return session, ok
}

func (s *SessionStore) Delete(quizID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[quizID]; !ok {
		return
	}
	delete(s.sessions, quizID)
	if err := s.client.Del(context.Background(), sessionKey(quizID)).Err(); err != nil {
		log.Warn().Err(err).Str("quiz_id", quizID).Msg("clear session marker")
	}
}

// List returns the live sessions ordered by quiz ID and refreshes their markers.
func (s *SessionStore) List() []*app.Session {
	s.mu.RLock()
	out := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })

	if s.ttl > 0 && len(out) > 0 {
		ctx := context.Background()
		pipe := s.client.Pipeline()
		for _, session := range out {
			pipe.Expire(ctx, sessionKey(session.ID()), s.ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			log.Debug().Err(err).Msg("refresh session markers")
		}
	}
	return out
}

// Live reports whether any instance holds a session for quizID.
func (s *SessionStore) Live(ctx context.Context, quizID string) (bool, error) {
	n, err := s.client.Exists(ctx, sessionKey(quizID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func sessionKey(quizID string) string {
	return "quiz:session:" + quizID
}

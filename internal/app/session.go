package app

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"quizwhiz-service/internal/domain"
)

// subscriberBuffer bounds how many snapshots may queue for a slow subscriber.
const subscriberBuffer = 8

// Session is the authoritative, single-writer state of one live quiz.
// Every mutation happens under mu, so intents from different connections and
// the scheduler's deadline checks are serialized per session.
type Session struct {
	id      string
	hostKey string
	quiz    domain.Quiz
	clock   clockwork.Clock

	mu           sync.RWMutex
	current      int
	started      bool
	finished     bool
	deadline     time.Time
	participants map[string]*domain.Participant
	joinSeq      int
	subscribers  map[chan domain.Snapshot]struct{}
	lastActivity time.Time
	closed       bool
}

// NewSession is exported for infrastructure layers and tests that seed sessions.
func NewSession(quiz domain.Quiz, hostKey string) *Session {
	return NewSessionWithClock(quiz, hostKey, clockwork.NewRealClock())
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(quiz domain.Quiz, hostKey string, clock clockwork.Clock) *Session {
	return &Session{
		id:           quiz.ID,
		hostKey:      hostKey,
		quiz:         quiz,
		clock:        clock,
		current:      -1,
		participants: make(map[string]*domain.Participant),
		subscribers:  make(map[chan domain.Snapshot]struct{}),
		lastActivity: clock.Now(),
	}
}

// ID returns the quiz identifier the session serves.
func (s *Session) ID() string { return s.id }

// IsHost reports whether key is this session's host key.
func (s *Session) IsHost(key string) bool {
	return key != "" && key == s.hostKey
}

func (s *Session) join(clientID, name string) (domain.Snapshot, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Snapshot{}, false, domain.ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	s.lastActivity = now

	if _, ok := s.participants[clientID]; ok {
		// Rejoin from a reconnecting client: already accepted, nothing to change.
		return s.snapshotLocked(), false, nil
	}
	if s.started {
		return domain.Snapshot{}, false, domain.ErrQuizStarted
	}
	for _, p := range s.participants {
		if strings.EqualFold(p.Name, name) {
			return domain.Snapshot{}, false, domain.ErrDuplicateName
		}
	}

	s.joinSeq++
	s.participants[clientID] = domain.NewParticipant(clientID, name, s.joinSeq)
	return s.broadcastLocked(), true, nil
}

func (s *Session) start(hostKey string) (domain.Snapshot, bool, error) {
	if !s.IsHost(hostKey) {
		return domain.Snapshot{}, false, domain.ErrUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActivity = s.clock.Now()
	if s.started {
		return s.snapshotLocked(), false, nil
	}
	s.started = true
	s.openQuestionLocked(0)
	return s.broadcastLocked(), true, nil
}

func (s *Session) submit(clientID, key string) (domain.Snapshot, ScoreResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	participant, ok := s.participants[clientID]
	if !ok {
		return domain.Snapshot{}, ScoreResult{}, domain.ErrParticipantNotFound
	}
	if !s.activeLocked() {
		return domain.Snapshot{}, ScoreResult{}, domain.ErrNoActiveQuestion
	}
	if participant.HasAnswered(s.current) {
		return domain.Snapshot{}, ScoreResult{}, domain.ErrAlreadyAnswered
	}
	question := s.quiz.Questions[s.current]
	if !question.HasOption(key) {
		return domain.Snapshot{}, ScoreResult{}, domain.ErrInvalidOption
	}

	s.lastActivity = now
	result := Score(key, question.Answer, s.deadline.Sub(now), question.TimeLimit())
	participant.RecordAnswer(s.current, result.Correct, result.Delta)
	return s.broadcastLocked(), result, nil
}

// advanceIfDue moves past the current question once its deadline has passed.
func (s *Session) advanceIfDue() (domain.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.activeLocked() || s.clock.Now().Before(s.deadline) {
		return domain.Snapshot{}, false
	}
	next := s.current + 1
	if next >= len(s.quiz.Questions) {
		s.finishLocked()
	} else {
		s.openQuestionLocked(next)
	}
	return s.broadcastLocked(), true
}

// end tears the session down: final snapshot out, subscriber channels closed.
func (s *Session) end(hostKey string) (domain.Snapshot, error) {
	if !s.IsHost(hostKey) {
		return domain.Snapshot{}, domain.ErrUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.finished {
		s.started = true
		s.finishLocked()
	}
	snap := s.broadcastLocked()
	s.closeLocked()
	return snap, nil
}

func (s *Session) openQuestionLocked(index int) {
	s.current = index
	s.deadline = s.clock.Now().Add(s.quiz.Questions[index].TimeLimit())
}

func (s *Session) finishLocked() {
	s.finished = true
	s.deadline = time.Time{}
}

// activeLocked mirrors the deadline invariant: a deadline exists iff a question is active.
func (s *Session) activeLocked() bool {
	return s.started && !s.finished && s.current >= 0 && s.current < len(s.quiz.Questions)
}

func (s *Session) snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Participant returns a copy of the participant joined under clientID.
func (s *Session) Participant(clientID string) (domain.Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[clientID]
	if !ok {
		return domain.Participant{}, false
	}
	return *p, true
}

func (s *Session) subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, subscriberBuffer)

	s.mu.Lock()
	initial := s.snapshotLocked()
	if s.closed {
		s.mu.Unlock()
		ch <- initial
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	s.lastActivity = s.clock.Now()
	ch <- initial
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
			s.lastActivity = s.clock.Now()
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// closeIfIdle closes the session when nobody is connected and nothing
// happened for ttl. It reports whether the session was closed.
func (s *Session) closeIfIdle(ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.subscribers) > 0 || s.clock.Since(s.lastActivity) < ttl {
		return false
	}
	s.closeLocked()
	return true
}

func (s *Session) closeLocked() {
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.closed = true
}

func (s *Session) broadcastLocked() domain.Snapshot {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Latest snapshot is canonical; drop the oldest queued one.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	return snap
}

func (s *Session) snapshotLocked() domain.Snapshot {
	snap := domain.Snapshot{
		QuizID:      s.id,
		Started:     s.started,
		Finished:    s.finished,
		TimeLimit:   domain.DefaultTimeLimitSeconds,
		Leaderboard: s.leaderboardLocked(),
	}
	if s.activeLocked() {
		q := s.quiz.Questions[s.current]
		snap.Question = &domain.QuestionView{
			Index:   s.current,
			Total:   len(s.quiz.Questions),
			ID:      q.ID,
			Text:    q.Prompt,
			Options: q.OptionMap(),
		}
		deadline := domain.EpochSeconds(s.deadline)
		snap.Deadline = &deadline
		snap.TimeLimit = q.TimeLimitSeconds
	} else if len(s.quiz.Questions) > 0 {
		snap.TimeLimit = s.quiz.Questions[0].TimeLimitSeconds
	}
	return snap
}

func (s *Session) leaderboardLocked() []domain.LeaderboardEntry {
	ranked := make([]*domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		ranked = append(ranked, p)
	}
	// Score desc, then join order: join order is unique so the order is total.
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].JoinOrder < ranked[j].JoinOrder
	})

	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for _, p := range ranked {
		entries = append(entries, domain.LeaderboardEntry{
			Name:     p.Name,
			Score:    p.Score,
			Correct:  p.Correct,
			Answered: p.Answered,
		})
	}
	return entries
}

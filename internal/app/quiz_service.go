package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"quizwhiz-service/internal/domain"
)

// SessionRepository abstracts where live sessions are kept (in-memory, Redis-marked, etc).
type SessionRepository interface {
	// GetOrCreate returns the live session for quizID, building it with create
	// when absent. The bool reports whether create was used.
	GetOrCreate(quizID string, create func() *Session) (*Session, bool)
	Get(quizID string) (*Session, bool)
	Delete(quizID string)
	List() []*Session
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizCreator assembles a fresh quiz from a question bank.
type QuizCreator interface {
	CreateQuiz(ctx context.Context) (domain.Quiz, error)
}

// SnapshotPublisher mirrors broadcast snapshots to an external channel.
type SnapshotPublisher interface {
	Publish(ctx context.Context, snap domain.Snapshot) error
}

// Publishers fans a snapshot out to several mirrors.
type Publishers []SnapshotPublisher

func (p Publishers) Publish(ctx context.Context, snap domain.Snapshot) error {
	var errs []error
	for _, pub := range p {
		if err := pub.Publish(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenedSession is returned to whoever opens a session; only they learn the host key.
type OpenedSession struct {
	QuizID  string
	HostKey string
}

// QuizService contains the core quiz use cases.
type QuizService struct {
	sessions  SessionRepository
	quizzes   QuizRepository
	creator   QuizCreator
	publisher SnapshotPublisher
	clock     clockwork.Clock
}

// Option customizes a QuizService.
type Option func(*QuizService)

// WithClock swaps the clock used for deadlines (tests use a fake clock).
func WithClock(clock clockwork.Clock) Option {
	return func(s *QuizService) { s.clock = clock }
}

// WithCreator enables Create with the given question bank.
func WithCreator(creator QuizCreator) Option {
	return func(s *QuizService) { s.creator = creator }
}

// WithPublisher mirrors every state change to publisher.
func WithPublisher(publisher SnapshotPublisher) Option {
	return func(s *QuizService) { s.publisher = publisher }
}

func NewQuizService(store SessionRepository, quizzes QuizRepository, opts ...Option) *QuizService {
	s := &QuizService{
		sessions: store,
		quizzes:  quizzes,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create builds a new quiz from the question bank and opens a session for it.
func (s *QuizService) Create(ctx context.Context) (OpenedSession, error) {
	if s.creator == nil {
		return OpenedSession{}, domain.ErrQuizCreationUnsupported
	}
	quiz, err := s.creator.CreateQuiz(ctx)
	if err != nil {
		return OpenedSession{}, fmt.Errorf("create quiz: %w", err)
	}
	return s.Open(ctx, quiz.ID)
}

// Open loads quiz content and starts a lobby for it.
func (s *QuizService) Open(ctx context.Context, quizID string) (OpenedSession, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return OpenedSession{}, err
	}
	quiz.ID = quizID
	if err := quiz.Validate(); err != nil {
		return OpenedSession{}, err
	}

	hostKey := uuid.NewString()
	_, created := s.sessions.GetOrCreate(quizID, func() *Session {
		return NewSessionWithClock(quiz, hostKey, s.clock)
	})
	if !created {
		return OpenedSession{}, domain.ErrSessionExists
	}
	log.Info().Str("quiz_id", quizID).Int("questions", len(quiz.Questions)).Msg("session opened")
	return OpenedSession{QuizID: quizID, HostKey: hostKey}, nil
}

// Join registers a participant, or acknowledges a reconnecting one.
func (s *QuizService) Join(ctx context.Context, quizID, clientID, name string) (domain.Snapshot, error) {
	session, err := s.session(quizID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap, changed, err := session.join(clientID, name)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if changed {
		s.publish(ctx, snap)
	}
	return snap, nil
}

// Start opens the first question. Repeated calls are no-ops.
func (s *QuizService) Start(ctx context.Context, quizID, hostKey string) (domain.Snapshot, error) {
	session, err := s.session(quizID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap, changed, err := session.start(hostKey)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if changed {
		log.Info().Str("quiz_id", quizID).Msg("quiz started")
		s.publish(ctx, snap)
	}
	return snap, nil
}

// SubmitAnswer records an answer for the active question and updates the leaderboard.
func (s *QuizService) SubmitAnswer(ctx context.Context, quizID, clientID, key string) (ScoreResult, error) {
	session, err := s.session(quizID)
	if err != nil {
		return ScoreResult{}, err
	}
	snap, result, err := session.submit(clientID, key)
	if err != nil {
		return ScoreResult{}, err
	}
	s.publish(ctx, snap)
	return result, nil
}

// End tears down a session at the host's request.
func (s *QuizService) End(ctx context.Context, quizID, hostKey string) error {
	session, err := s.session(quizID)
	if err != nil {
		return err
	}
	snap, err := session.end(hostKey)
	if err != nil {
		return err
	}
	s.sessions.Delete(quizID)
	s.publish(ctx, snap)
	log.Info().Str("quiz_id", quizID).Msg("session ended")
	return nil
}

// Subscribe returns a channel that receives snapshots for a quiz.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(_ context.Context, quizID string) (<-chan domain.Snapshot, func(), error) {
	session, err := s.session(quizID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.subscribe()
	return ch, cancel, nil
}

// Snapshot returns the current redacted state of a quiz.
func (s *QuizService) Snapshot(_ context.Context, quizID string) (domain.Snapshot, error) {
	session, err := s.session(quizID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return session.snapshot(), nil
}

// AdvanceDue moves every session whose deadline has passed; it returns how many moved.
func (s *QuizService) AdvanceDue(ctx context.Context) int {
	advanced := 0
	for _, session := range s.sessions.List() {
		snap, ok := session.advanceIfDue()
		if !ok {
			continue
		}
		advanced++
		ev := log.Debug().Str("quiz_id", session.ID())
		if snap.Finished {
			ev.Msg("quiz finished")
		} else {
			ev.Int("question", snap.Question.Index).Msg("question advanced")
		}
		s.publish(ctx, snap)
	}
	return advanced
}

// EvictIdle drops sessions nobody has touched for ttl and returns how many went.
func (s *QuizService) EvictIdle(_ context.Context, ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	evicted := 0
	for _, session := range s.sessions.List() {
		if !session.closeIfIdle(ttl) {
			continue
		}
		s.sessions.Delete(session.ID())
		evicted++
		log.Info().Str("quiz_id", session.ID()).Msg("idle session evicted")
	}
	return evicted
}

func (s *QuizService) session(quizID string) (*Session, error) {
	session, ok := s.sessions.Get(quizID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *QuizService) publish(ctx context.Context, snap domain.Snapshot) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, snap); err != nil {
		log.Warn().Err(err).Str("quiz_id", snap.QuizID).Msg("snapshot mirror publish failed")
	}
}

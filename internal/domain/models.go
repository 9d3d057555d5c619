package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeLimitSeconds is applied to questions loaded without a time budget.
const DefaultTimeLimitSeconds = 15

// Option is one selectable answer of a question, keyed "A".."D" or similar.
type Option struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Question models an MCQ question with exactly one correct option key.
type Question struct {
	ID               string   `json:"id"`
	Prompt           string   `json:"prompt"`
	Options          []Option `json:"options"`
	Answer           string   `json:"answer"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
}

// TimeLimit returns the question's time budget.
func (q Question) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitSeconds) * time.Second
}

// HasOption reports whether key names one of the question's options.
func (q Question) HasOption(key string) bool {
	key = NormalizeKey(key)
	for _, opt := range q.Options {
		if NormalizeKey(opt.Key) == key {
			return true
		}
	}
	return false
}

// OptionMap is the wire form of the options: key -> text.
func (q Question) OptionMap() map[string]string {
	out := make(map[string]string, len(q.Options))
	for _, opt := range q.Options {
		out[opt.Key] = opt.Text
	}
	return out
}

// NormalizeKey canonicalizes an option key for comparison.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// WithDefaults returns a copy of the quiz with zero time budgets replaced.
func (q Quiz) WithDefaults(limitSeconds int) Quiz {
	if limitSeconds <= 0 {
		limitSeconds = DefaultTimeLimitSeconds
	}
	out := Quiz{ID: q.ID, Questions: make([]Question, len(q.Questions))}
	copy(out.Questions, q.Questions)
	for i := range out.Questions {
		if out.Questions[i].TimeLimitSeconds <= 0 {
			out.Questions[i].TimeLimitSeconds = limitSeconds
		}
	}
	return out
}

// Validate checks the quiz is playable.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return fmt.Errorf("%w: quiz %q has no questions", ErrInvalidQuiz, q.ID)
	}
	for i, question := range q.Questions {
		if question.TimeLimitSeconds <= 0 {
			return fmt.Errorf("%w: question %d has no time limit", ErrInvalidQuiz, i)
		}
		seen := make(map[string]struct{}, len(question.Options))
		for _, opt := range question.Options {
			key := NormalizeKey(opt.Key)
			if key == "" {
				return fmt.Errorf("%w: question %d has an empty option key", ErrInvalidQuiz, i)
			}
			if _, dup := seen[key]; dup {
				return fmt.Errorf("%w: question %d repeats option %q", ErrInvalidQuiz, i, opt.Key)
			}
			seen[key] = struct{}{}
		}
		if !question.HasOption(question.Answer) {
			return fmt.Errorf("%w: question %d answer %q is not an option", ErrInvalidQuiz, i, question.Answer)
		}
	}
	return nil
}

// Participant represents a quiz participant and their accumulated score.
type Participant struct {
	ID        string
	Name      string
	Score     int
	Correct   int
	Answered  int
	JoinOrder int

	answered map[int]struct{}
}

// NewParticipant creates a participant with an empty answer record.
func NewParticipant(id, name string, order int) *Participant {
	return &Participant{
		ID:        id,
		Name:      name,
		JoinOrder: order,
		answered:  make(map[int]struct{}),
	}
}

// HasAnswered reports whether the participant already answered question index.
func (p *Participant) HasAnswered(index int) bool {
	_, ok := p.answered[index]
	return ok
}

// RecordAnswer marks index answered and applies the scoring outcome.
func (p *Participant) RecordAnswer(index int, correct bool, delta int) {
	if p.answered == nil {
		p.answered = make(map[int]struct{})
	}
	p.answered[index] = struct{}{}
	p.Answered++
	if correct {
		p.Correct++
		p.Score += delta
	}
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Correct  int    `json:"correct"`
	Answered int    `json:"answered"`
}

// QuestionView is the redacted question sent to clients; it never carries the answer.
type QuestionView struct {
	Index   int               `json:"index"`
	Total   int               `json:"total"`
	ID      string            `json:"id,omitempty"`
	Text    string            `json:"question"`
	Options map[string]string `json:"options"`
}

// Snapshot is the full authoritative state broadcast to every session member.
type Snapshot struct {
	QuizID      string             `json:"quiz_id"`
	Started     bool               `json:"started"`
	Finished    bool               `json:"finished"`
	Question    *QuestionView      `json:"question"`
	Deadline    *float64           `json:"deadline"`
	TimeLimit   int                `json:"time_limit"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

// DeadlineTime converts the wire deadline back into a time value.
func (s Snapshot) DeadlineTime() (time.Time, bool) {
	if s.Deadline == nil {
		return time.Time{}, false
	}
	return FromEpochSeconds(*s.Deadline), true
}

// EpochSeconds renders t as fractional seconds since the Unix epoch.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromEpochSeconds is the inverse of EpochSeconds.
func FromEpochSeconds(sec float64) time.Time {
	return time.Unix(0, int64(sec*float64(time.Second)))
}

// NewQuizID returns a short random quiz identifier suitable for join links.
func NewQuizID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:7]
}

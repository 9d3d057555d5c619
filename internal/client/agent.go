// Package client implements the participant side of the quiz protocol:
// a per-connection agent that turns server snapshots into rendering calls
// and user input into intents.
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"quizwhiz-service/internal/domain"
	"quizwhiz-service/internal/protocol"
)

var (
	ErrAlreadyJoined   = errors.New("already joined")
	ErrNotJoined       = errors.New("join the quiz first")
	ErrNotHost         = errors.New("only the host can start the quiz")
	ErrNoQuestion      = errors.New("no question is shown")
	ErrAlreadySelected = errors.New("an option is already selected for this question")
	ErrUnknownOption   = errors.New("unknown option")
	ErrDisconnected    = errors.New("connection lost")
)

// Renderer draws the agent's view. Implementations must not block.
type Renderer interface {
	Status(message string)
	Leaderboard(entries []domain.LeaderboardEntry)
	Question(question domain.QuestionView)
	HideQuestion()
	Selected(key string)
	// Timer shows secondsLeft, or a placeholder when active is false.
	Timer(secondsLeft int, active bool)
}

// Sender delivers intents to the server.
type Sender interface {
	Send(env protocol.Envelope) error
}

// IntentKind enumerates user actions fed into Run.
type IntentKind int

const (
	IntentJoin IntentKind = iota
	IntentStart
	IntentSelect
	IntentEnd
)

type Intent struct {
	Kind  IntentKind
	Value string
}

// Agent holds the client view of one quiz. It is not safe for concurrent
// use; Run serializes inbound messages, intents and countdown ticks.
type Agent struct {
	quizID    string
	isHost    bool
	sender    Sender
	render    Renderer
	countdown *Countdown

	joined       bool
	joinedName   string
	pendingName  string
	selected     bool
	currentIndex int
	question     *domain.QuestionView
	finished     bool
}

func NewAgent(quizID string, isHost bool, sender Sender, render Renderer, clock clockwork.Clock) *Agent {
	return &Agent{
		quizID:       quizID,
		isHost:       isHost,
		sender:       sender,
		render:       render,
		countdown:    NewCountdown(clock, DefaultRefresh),
		currentIndex: -1,
	}
}

// SetSender swaps the transport after a reconnect.
func (a *Agent) SetSender(sender Sender) {
	a.sender = sender
}

func (a *Agent) Joined() bool       { return a.joined }
func (a *Agent) JoinedName() string { return a.joinedName }
func (a *Agent) Finished() bool     { return a.finished }

func (a *Agent) Join(name string) error {
	if a.joined {
		return ErrAlreadyJoined
	}
	a.pendingName = strings.TrimSpace(name)
	return a.send(protocol.EventJoinQuiz, protocol.JoinPayload{QuizID: a.quizID, Name: a.pendingName})
}

// Resume re-announces a previously joined participant after a reconnect.
func (a *Agent) Resume() error {
	if !a.joined {
		return nil
	}
	a.pendingName = a.joinedName
	return a.send(protocol.EventJoinQuiz, protocol.JoinPayload{QuizID: a.quizID, Name: a.joinedName})
}

func (a *Agent) Start() error {
	if !a.isHost {
		return ErrNotHost
	}
	return a.send(protocol.EventStartQuiz, protocol.StartPayload{QuizID: a.quizID})
}

// End asks the server to tear the session down. Host only.
func (a *Agent) End() error {
	if !a.isHost {
		return ErrNotHost
	}
	return a.send(protocol.EventEndQuiz, protocol.EndPayload{QuizID: a.quizID})
}

// Select submits key for the current question. At most one selection per question.
func (a *Agent) Select(key string) error {
	if !a.joined {
		return ErrNotJoined
	}
	if a.question == nil || a.finished {
		return ErrNoQuestion
	}
	if a.selected {
		return ErrAlreadySelected
	}
	key, ok := a.optionKey(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOption, key)
	}
	if err := a.send(protocol.EventSubmitAnswer, protocol.AnswerPayload{QuizID: a.quizID, Answer: key}); err != nil {
		return err
	}
	a.selected = true
	a.render.Selected(key)
	return nil
}

func (a *Agent) HandleJoinSuccess() {
	a.joined = true
	a.joinedName = a.pendingName
	a.render.Status(fmt.Sprintf("Joined as %s. Waiting for host...", a.joinedName))
}

func (a *Agent) HandleJoinError(message string) {
	a.render.Status(message)
}

// HandleSnapshot applies an authoritative server snapshot.
func (a *Agent) HandleSnapshot(snap domain.Snapshot) {
	if a.finished {
		return
	}
	a.render.Leaderboard(snap.Leaderboard)

	if snap.Finished {
		a.finished = true
		a.question = nil
		a.countdown.Stop()
		a.render.Status("Quiz finished! Final leaderboard is shown.")
		a.render.HideQuestion()
		a.render.Timer(0, false)
		return
	}

	if !snap.Started {
		if a.joined {
			a.render.Status("Waiting for host to start the quiz.")
		} else {
			a.render.Status("Join to enter the quiz.")
		}
		a.render.HideQuestion()
		return
	}

	if snap.Question == nil {
		a.question = nil
		a.countdown.Stop()
		a.render.HideQuestion()
		return
	}

	if snap.Question.Index != a.currentIndex {
		a.currentIndex = snap.Question.Index
		a.selected = false
		q := *snap.Question
		a.question = &q
		a.render.Question(q)
	}

	deadline, ok := snap.DeadlineTime()
	if !ok {
		a.countdown.Stop()
		a.render.Timer(0, false)
		return
	}
	if !a.countdown.Active() || !a.countdown.Deadline().Equal(deadline) {
		a.countdown.Reset(deadline)
	}
	a.render.Timer(a.countdown.Remaining(), true)
}

// HandleDisconnect stops local timing; join state survives for Resume.
func (a *Agent) HandleDisconnect() {
	a.countdown.Stop()
	a.render.Timer(0, false)
	if !a.finished {
		a.render.Status("Connection lost. Reconnecting...")
	}
}

// Handle routes one inbound envelope.
func (a *Agent) Handle(env protocol.Envelope) error {
	switch env.Type {
	case protocol.EventJoinSuccess:
		a.HandleJoinSuccess()
	case protocol.EventJoinError:
		payload, err := protocol.DecodePayload[protocol.JoinErrorPayload](env)
		if err != nil {
			return err
		}
		a.HandleJoinError(payload.Message)
	case protocol.EventStateUpdate:
		snap, err := protocol.DecodePayload[domain.Snapshot](env)
		if err != nil {
			return err
		}
		a.HandleSnapshot(snap)
	default:
		log.Debug().Str("event", string(env.Type)).Msg("ignoring unknown event")
	}
	return nil
}

// Apply executes a user intent.
func (a *Agent) Apply(intent Intent) error {
	switch intent.Kind {
	case IntentJoin:
		return a.Join(intent.Value)
	case IntentStart:
		return a.Start()
	case IntentSelect:
		return a.Select(intent.Value)
	case IntentEnd:
		return a.End()
	default:
		return fmt.Errorf("unknown intent %d", intent.Kind)
	}
}

// Run drives the agent until ctx is done, the inbound channel closes
// (ErrDisconnected) or a finished snapshot arrives.
func (a *Agent) Run(ctx context.Context, inbound <-chan protocol.Envelope, intents <-chan Intent) error {
	for {
		select {
		case <-ctx.Done():
			a.countdown.Stop()
			return ctx.Err()
		case env, ok := <-inbound:
			if !ok {
				a.HandleDisconnect()
				if a.finished {
					return nil
				}
				return ErrDisconnected
			}
			if err := a.Handle(env); err != nil {
				log.Debug().Err(err).Str("quiz_id", a.quizID).Msg("dropping malformed message")
			}
			if a.finished {
				return nil
			}
		case intent := <-intents:
			if err := a.Apply(intent); err != nil {
				a.render.Status(err.Error())
			}
		case <-a.countdown.C():
			a.render.Timer(a.countdown.Remaining(), true)
		}
	}
}

// optionKey resolves user input to the option key the server sent.
func (a *Agent) optionKey(input string) (string, bool) {
	want := domain.NormalizeKey(input)
	for key := range a.question.Options {
		if domain.NormalizeKey(key) == want {
			return key, true
		}
	}
	return want, false
}

func (a *Agent) send(typ protocol.EventType, payload any) error {
	env, err := protocol.NewEnvelope(typ, payload)
	if err != nil {
		return err
	}
	if a.sender == nil {
		return ErrDisconnected
	}
	return a.sender.Send(env)
}

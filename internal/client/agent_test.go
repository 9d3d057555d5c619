package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"quizwhiz-service/internal/domain"
	"quizwhiz-service/internal/protocol"
)

func TestJoinFlow(t *testing.T) {
	agent, sender, render, _ := newTestAgent(false)

	if err := agent.Join("  Ann "); err != nil {
		t.Fatalf("join: %v", err)
	}
	payload := lastPayload[protocol.JoinPayload](t, sender, protocol.EventJoinQuiz)
	if payload.Name != "Ann" || payload.QuizID != "abc1234" {
		t.Fatalf("unexpected join payload %+v", payload)
	}

	agent.HandleJoinError("Name already taken in this quiz.")
	if agent.Joined() || render.status != "Name already taken in this quiz." {
		t.Fatalf("join error must surface and leave agent unjoined")
	}

	_ = agent.Join("Ann")
	agent.HandleJoinSuccess()
	if !agent.Joined() || agent.JoinedName() != "Ann" {
		t.Fatalf("expected joined as Ann")
	}
	if err := agent.Join("Ann"); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("expected already joined, got %v", err)
	}
}

func TestOnlyHostStarts(t *testing.T) {
	player, _, _, _ := newTestAgent(false)
	if err := player.Start(); !errors.Is(err, ErrNotHost) {
		t.Fatalf("expected not host, got %v", err)
	}

	host, sender, _, _ := newTestAgent(true)
	if err := host.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	lastPayload[protocol.StartPayload](t, sender, protocol.EventStartQuiz)
}

func TestSelectOncePerQuestion(t *testing.T) {
	agent, sender, render, clock := newTestAgent(false)

	if err := agent.Select("A"); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("expected not joined, got %v", err)
	}
	joinAs(t, agent, "Ann")
	if err := agent.Select("A"); !errors.Is(err, ErrNoQuestion) {
		t.Fatalf("expected no question, got %v", err)
	}

	agent.HandleSnapshot(questionSnapshot(clock, 0, 15*time.Second))
	if err := agent.Select("z"); !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("expected unknown option, got %v", err)
	}
	if err := agent.Select("b"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if payload := lastPayload[protocol.AnswerPayload](t, sender, protocol.EventSubmitAnswer); payload.Answer != "B" {
		t.Fatalf("expected normalized key B, got %q", payload.Answer)
	}
	if render.selected != "B" {
		t.Fatalf("expected option B marked, got %q", render.selected)
	}
	if err := agent.Select("C"); !errors.Is(err, ErrAlreadySelected) {
		t.Fatalf("expected already selected, got %v", err)
	}

	// A repeated snapshot for the same question keeps the selection.
	agent.HandleSnapshot(questionSnapshot(clock, 0, 15*time.Second))
	if err := agent.Select("C"); !errors.Is(err, ErrAlreadySelected) {
		t.Fatalf("duplicate snapshot must not reset selection, got %v", err)
	}

	agent.HandleSnapshot(questionSnapshot(clock, 1, 15*time.Second))
	if render.questions != 2 {
		t.Fatalf("expected second question rendered, got %d renders", render.questions)
	}
	if err := agent.Select("A"); err != nil {
		t.Fatalf("new question must accept a selection: %v", err)
	}
}

func TestSnapshotDrivesCountdown(t *testing.T) {
	agent, _, render, clock := newTestAgent(false)
	joinAs(t, agent, "Ann")

	agent.HandleSnapshot(questionSnapshot(clock, 0, 14200*time.Millisecond))
	if !render.timerActive || render.timer != 15 {
		t.Fatalf("expected 15s shown, got %d active=%v", render.timer, render.timerActive)
	}

	clock.Advance(5 * time.Second)
	agent.HandleSnapshot(questionSnapshot(clock, 1, 14500*time.Millisecond))
	if render.timer != 15 {
		t.Fatalf("expected countdown restarted from new deadline, got %d", render.timer)
	}
	if agent.countdown.C() == nil {
		t.Fatalf("expected countdown running")
	}
}

func TestFinishedSnapshotIsTerminal(t *testing.T) {
	agent, _, render, clock := newTestAgent(false)
	joinAs(t, agent, "Ann")
	agent.HandleSnapshot(questionSnapshot(clock, 0, 15*time.Second))

	agent.HandleSnapshot(domain.Snapshot{
		Started:     true,
		Finished:    true,
		Leaderboard: []domain.LeaderboardEntry{{Name: "Ann", Score: 92, Correct: 1, Answered: 1}},
	})
	if !agent.Finished() || render.status != "Quiz finished! Final leaderboard is shown." {
		t.Fatalf("expected final status, got %q", render.status)
	}
	if render.questionShown || render.timerActive || agent.countdown.C() != nil {
		t.Fatalf("finished view must hide question and stop the countdown")
	}

	agent.HandleSnapshot(questionSnapshot(clock, 1, 15*time.Second))
	if render.questionShown || len(render.leaderboard) != 1 || render.leaderboard[0].Score != 92 {
		t.Fatalf("snapshots after finish must be ignored")
	}
	if err := agent.Select("A"); !errors.Is(err, ErrNoQuestion) {
		t.Fatalf("expected no question after finish, got %v", err)
	}
}

func TestLobbyStatus(t *testing.T) {
	agent, _, render, _ := newTestAgent(false)

	agent.HandleSnapshot(domain.Snapshot{Leaderboard: []domain.LeaderboardEntry{}})
	if render.status != "Join to enter the quiz." {
		t.Fatalf("unexpected status %q", render.status)
	}
	joinAs(t, agent, "Ann")
	agent.HandleSnapshot(domain.Snapshot{Leaderboard: []domain.LeaderboardEntry{{Name: "Ann"}}})
	if render.status != "Waiting for host to start the quiz." {
		t.Fatalf("unexpected status %q", render.status)
	}
}

func TestDisconnectKeepsJoinForResume(t *testing.T) {
	agent, sender, render, clock := newTestAgent(false)
	joinAs(t, agent, "Ann")
	agent.HandleSnapshot(questionSnapshot(clock, 0, 15*time.Second))
	_ = agent.Select("A")

	agent.HandleDisconnect()
	if !agent.Joined() || agent.countdown.C() != nil || render.timerActive {
		t.Fatalf("disconnect must keep join state and stop the countdown")
	}

	fresh := &recordingSender{}
	agent.SetSender(fresh)
	if err := agent.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if payload := lastPayload[protocol.JoinPayload](t, fresh, protocol.EventJoinQuiz); payload.Name != "Ann" {
		t.Fatalf("expected rejoin as Ann, got %+v", payload)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("old sender must not be used after swap")
	}

	// Same question after reconnect: selection stays locked.
	agent.HandleSnapshot(questionSnapshot(clock, 0, 15*time.Second))
	if err := agent.Select("B"); !errors.Is(err, ErrAlreadySelected) {
		t.Fatalf("expected selection to survive reconnect, got %v", err)
	}
}

func TestRunProcessesInboundAndIntents(t *testing.T) {
	agent, sender, render, _ := newTestAgent(false)

	inbound := make(chan protocol.Envelope, 4)
	intents := make(chan Intent)

	done := make(chan error, 1)
	go func() { done <- agent.Run(context.Background(), inbound, intents) }()
	intents <- Intent{Kind: IntentJoin, Value: "Ann"}

	success, _ := protocol.NewEnvelope(protocol.EventJoinSuccess, protocol.JoinSuccessPayload{QuizID: "abc1234"})
	inbound <- success
	close(inbound)

	select {
	case err := <-done:
		if !errors.Is(err, ErrDisconnected) {
			t.Fatalf("expected disconnect, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return after inbound closed")
	}
	if !agent.Joined() {
		t.Fatalf("expected join success to be applied")
	}
	if render.status != "Connection lost. Reconnecting..." {
		t.Fatalf("unexpected status %q", render.status)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected join intent to be sent, got %d frames", len(sender.sent))
	}
}

func newTestAgent(isHost bool) (*Agent, *recordingSender, *recordingRenderer, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC))
	sender := &recordingSender{}
	render := &recordingRenderer{}
	return NewAgent("abc1234", isHost, sender, render, clock), sender, render, clock
}

func joinAs(t *testing.T, agent *Agent, name string) {
	t.Helper()
	if err := agent.Join(name); err != nil {
		t.Fatalf("join: %v", err)
	}
	agent.HandleJoinSuccess()
}

func questionSnapshot(clock clockwork.Clock, index int, left time.Duration) domain.Snapshot {
	deadline := domain.EpochSeconds(clock.Now().Add(left))
	return domain.Snapshot{
		QuizID:  "abc1234",
		Started: true,
		Question: &domain.QuestionView{
			Index:   index,
			Total:   2,
			Text:    "Pick one",
			Options: map[string]string{"A": "one", "B": "two", "C": "three"},
		},
		Deadline:    &deadline,
		TimeLimit:   15,
		Leaderboard: []domain.LeaderboardEntry{{Name: "Ann"}},
	}
}

func lastPayload[T any](t *testing.T, sender *recordingSender, want protocol.EventType) T {
	t.Helper()
	if len(sender.sent) == 0 {
		t.Fatalf("nothing sent")
	}
	env := sender.sent[len(sender.sent)-1]
	if env.Type != want {
		t.Fatalf("expected %s, got %s", want, env.Type)
	}
	payload, err := protocol.DecodePayload[T](env)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return payload
}

type recordingSender struct {
	sent []protocol.Envelope
}

func (s *recordingSender) Send(env protocol.Envelope) error {
	s.sent = append(s.sent, env)
	return nil
}

type recordingRenderer struct {
	status        string
	leaderboard   []domain.LeaderboardEntry
	questions     int
	questionShown bool
	selected      string
	timer         int
	timerActive   bool
}

func (r *recordingRenderer) Status(message string) { r.status = message }
func (r *recordingRenderer) Leaderboard(entries []domain.LeaderboardEntry) {
	r.leaderboard = entries
}
func (r *recordingRenderer) Question(domain.QuestionView) {
	r.questions++
	r.questionShown = true
	r.selected = ""
}
func (r *recordingRenderer) HideQuestion() {
	r.questionShown = false
}
func (r *recordingRenderer) Selected(key string) { r.selected = key }
func (r *recordingRenderer) Timer(secondsLeft int, active bool) {
	r.timer = secondsLeft
	r.timerActive = active
}

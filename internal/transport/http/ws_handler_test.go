package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quizwhiz-service/internal/app"
	"quizwhiz-service/internal/domain"
	"quizwhiz-service/internal/infra/memory"
	"quizwhiz-service/internal/protocol"
)

func TestWebSocketQuizFlow(t *testing.T) {
	server, hostKey := newTestServer(t)

	host := dial(t, server, "/ws/quiz-1?client=host&host="+hostKey)
	player := dial(t, server, "/ws/quiz-1?client=c1")

	// Every connection opens with the current lobby snapshot.
	lobby := readSnapshot(t, player, func(s domain.Snapshot) bool { return true })
	if lobby.Started || lobby.Deadline != nil || lobby.Question != nil {
		t.Fatalf("expected lobby snapshot, got %+v", lobby)
	}

	send(t, player, protocol.EventJoinQuiz, protocol.JoinPayload{QuizID: "quiz-1", Name: "Ann"})
	readUntil(t, player, protocol.EventJoinSuccess)
	readSnapshot(t, player, func(s domain.Snapshot) bool { return len(s.Leaderboard) == 1 })

	send(t, host, protocol.EventStartQuiz, protocol.StartPayload{QuizID: "quiz-1"})
	started := readSnapshot(t, player, func(s domain.Snapshot) bool { return s.Started })
	if started.Question == nil || started.Question.Index != 0 || started.Deadline == nil {
		t.Fatalf("expected first question with deadline, got %+v", started)
	}
	if started.Question.Options["B"] != "4" {
		t.Fatalf("unexpected options %+v", started.Question.Options)
	}

	send(t, player, protocol.EventSubmitAnswer, protocol.AnswerPayload{QuizID: "quiz-1", Answer: "B"})
	scored := readSnapshot(t, player, func(s domain.Snapshot) bool {
		return len(s.Leaderboard) == 1 && s.Leaderboard[0].Answered == 1
	})
	entry := scored.Leaderboard[0]
	if entry.Correct != 1 || entry.Score <= 50 || entry.Score > 100 {
		t.Fatalf("unexpected score entry %+v", entry)
	}

	late := dial(t, server, "/ws/quiz-1?client=c2")
	send(t, late, protocol.EventJoinQuiz, protocol.JoinPayload{QuizID: "quiz-1", Name: "Bob"})
	env := readUntil(t, late, protocol.EventJoinError)
	payload, err := protocol.DecodePayload[protocol.JoinErrorPayload](env)
	if err != nil {
		t.Fatalf("decode join error: %v", err)
	}
	if payload.Message != "Quiz already started." {
		t.Fatalf("unexpected join error %q", payload.Message)
	}
}

func TestWebSocketRejoinKeepsScore(t *testing.T) {
	server, hostKey := newTestServer(t)

	host := dial(t, server, "/ws/quiz-1?client=host&host="+hostKey)
	first := dial(t, server, "/ws/quiz-1?client=c1")
	send(t, first, protocol.EventJoinQuiz, protocol.JoinPayload{Name: "Ann"})
	readUntil(t, first, protocol.EventJoinSuccess)
	send(t, host, protocol.EventStartQuiz, nil)
	readSnapshot(t, first, func(s domain.Snapshot) bool { return s.Started })
	send(t, first, protocol.EventSubmitAnswer, protocol.AnswerPayload{Answer: "B"})
	readSnapshot(t, first, func(s domain.Snapshot) bool {
		return len(s.Leaderboard) == 1 && s.Leaderboard[0].Answered == 1
	})
	first.Close()

	again := dial(t, server, "/ws/quiz-1?client=c1")
	send(t, again, protocol.EventJoinQuiz, protocol.JoinPayload{Name: "Ann"})
	readUntil(t, again, protocol.EventJoinSuccess)
	snap := readSnapshot(t, again, func(s domain.Snapshot) bool { return len(s.Leaderboard) == 1 })
	if snap.Leaderboard[0].Score <= 50 {
		t.Fatalf("expected score to survive reconnect, got %+v", snap.Leaderboard[0])
	}
}

func TestWebSocketJoinRejectsEmptyName(t *testing.T) {
	server, _ := newTestServer(t)

	conn := dial(t, server, "/ws/quiz-1?client=c1")
	send(t, conn, protocol.EventJoinQuiz, protocol.JoinPayload{QuizID: "quiz-1", Name: "   "})
	env := readUntil(t, conn, protocol.EventJoinError)
	payload, _ := protocol.DecodePayload[protocol.JoinErrorPayload](env)
	if payload.Message != "Please enter your name." {
		t.Fatalf("unexpected message %q", payload.Message)
	}
}

func TestWebSocketUnknownQuiz(t *testing.T) {
	server, _ := newTestServer(t)

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/nope"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %+v", resp)
	}
}

func TestEndQuizClosesConnections(t *testing.T) {
	server, hostKey := newTestServer(t)

	host := dial(t, server, "/ws/quiz-1?client=host&host="+hostKey)
	player := dial(t, server, "/ws/quiz-1?client=c1")
	readSnapshot(t, player, func(s domain.Snapshot) bool { return true })

	send(t, host, protocol.EventEndQuiz, protocol.EndPayload{QuizID: "quiz-1"})
	finished := readSnapshot(t, player, func(s domain.Snapshot) bool { return s.Finished })
	if finished.Deadline != nil {
		t.Fatalf("finished snapshot must not carry a deadline")
	}

	_ = player.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := player.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("expected normal closure, got %v", err)
			}
			return
		}
	}
}

func TestCreatedSocketLinksAreServed(t *testing.T) {
	bank := memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})
	service := app.NewQuizService(memory.NewSessionStore(), memory.NewQuizRepository(bank, time.Minute))
	server := httptest.NewServer(NewRouter(service, NewWSHandler(service, DefaultConnectionConfig()), RouterConfig{}))
	t.Cleanup(server.Close)

	res, err := http.Post(server.URL+"/create", "application/json", strings.NewReader(`{"quiz_id":"quiz-1"}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer res.Body.Close()
	var created createResponse
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	host, _, err := websocket.DefaultDialer.Dial(created.HostWSLink+"&client=host", nil)
	if err != nil {
		t.Fatalf("dial host link %s: %v", created.HostWSLink, err)
	}
	t.Cleanup(func() { host.Close() })
	player, _, err := websocket.DefaultDialer.Dial(created.WSLink+"?client=c1", nil)
	if err != nil {
		t.Fatalf("dial join link %s: %v", created.WSLink, err)
	}
	t.Cleanup(func() { player.Close() })

	send(t, player, protocol.EventJoinQuiz, protocol.JoinPayload{Name: "Ann"})
	readUntil(t, player, protocol.EventJoinSuccess)
	send(t, host, protocol.EventStartQuiz, nil)
	readSnapshot(t, player, func(s domain.Snapshot) bool { return s.Started })
}

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	bank := memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})
	service := app.NewQuizService(memory.NewSessionStore(), memory.NewQuizRepository(bank, time.Minute))
	opened, err := service.Open(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	router := NewRouter(service, NewWSHandler(service, DefaultConnectionConfig()), RouterConfig{})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, opened.HostKey
}

func dial(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ protocol.EventType, payload any) {
	t.Helper()
	env, err := protocol.NewEnvelope(typ, payload)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil discards frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want protocol.EventType) protocol.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if env.Type == want {
			return env
		}
	}
}

func readSnapshot(t *testing.T, conn *websocket.Conn, match func(domain.Snapshot) bool) domain.Snapshot {
	t.Helper()
	for {
		env := readUntil(t, conn, protocol.EventStateUpdate)
		var snap domain.Snapshot
		if err := json.Unmarshal(env.Payload, &snap); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		if match(snap) {
			return snap
		}
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{Key: "A", Text: "3"},
					{Key: "B", Text: "4"},
					{Key: "C", Text: "5"},
				},
				Answer:           "B",
				TimeLimitSeconds: 30,
			},
		},
	}
}

// Package protocol defines the event envelope exchanged between quiz clients
// and the server over the WebSocket channel.
package protocol

import (
	"encoding/json"
	"fmt"
)

type EventType string

const (
	// Client -> Server
	EventJoinQuiz     EventType = "join_quiz"
	EventStartQuiz    EventType = "start_quiz"
	EventSubmitAnswer EventType = "submit_answer"
	EventEndQuiz      EventType = "end_quiz"

	// Server -> Client
	EventJoinError   EventType = "join_error"
	EventJoinSuccess EventType = "join_success"
	EventStateUpdate EventType = "state_update"
)

// Envelope wraps every message on the channel.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinPayload struct {
	QuizID string `json:"quiz_id"`
	Name   string `json:"name"`
}

type StartPayload struct {
	QuizID string `json:"quiz_id"`
}

type AnswerPayload struct {
	QuizID string `json:"quiz_id"`
	Answer string `json:"answer"`
}

type EndPayload struct {
	QuizID string `json:"quiz_id"`
}

type JoinErrorPayload struct {
	Message string `json:"message"`
}

type JoinSuccessPayload struct {
	QuizID string `json:"quiz_id"`
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(typ EventType, payload any) (Envelope, error) {
	env := Envelope{Type: typ}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	env.Payload = raw
	return env, nil
}

// Decode parses a raw frame into an envelope.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into T. An absent payload yields T's zero value.
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.Payload) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(env.Payload, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return out, nil
}

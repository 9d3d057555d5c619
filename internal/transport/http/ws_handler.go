package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"quizwhiz-service/internal/app"
	"quizwhiz-service/internal/domain"
	"quizwhiz-service/internal/protocol"
)

// ConnectionConfig holds keepalive and sizing settings for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout   time.Duration
	PongWait       time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:   10 * time.Second,
		PongWait:       60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     32,
	}
}

type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
	config   ConnectionConfig
}

func NewWSHandler(service *app.QuizService, config ConnectionConfig) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		config: config,
	}
}

// clientConn is one participant or host connection bound to a quiz.
type clientConn struct {
	id       string
	quizID   string
	clientID string
	hostKey  string
	send     chan outbound
	done     chan struct{}
}

// outbound is a queued frame; closing asks the writer to send a close frame and stop.
type outbound struct {
	env     protocol.Envelope
	closing bool
}

// enqueue hands env to the writer; it gives up once the writer has stopped.
func (c *clientConn) enqueue(typ protocol.EventType, payload any) {
	env, err := protocol.NewEnvelope(typ, payload)
	if err != nil {
		log.Error().Err(err).Str("conn_id", c.id).Msg("encode outbound message")
		return
	}
	c.push(outbound{env: env})
}

func (c *clientConn) push(frame outbound) {
	select {
	case c.send <- frame:
	case <-c.done:
	}
}

// ServeWS upgrades HTTP requests to websockets and wires them into the quiz use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := mux.Vars(r)["quizID"]
	clientID := r.URL.Query().Get("client")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	// Subscribing first both validates the quiz and guarantees the first frame
	// the client sees is the current snapshot.
	updates, cancel, err := h.service.Subscribe(r.Context(), quizID)
	if err != nil {
		http.Error(w, "unknown quiz", http.StatusNotFound)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("quiz_id", quizID).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	c := &clientConn{
		id:       uuid.NewString(),
		quizID:   quizID,
		clientID: clientID,
		hostKey:  r.URL.Query().Get("host"),
		send:     make(chan outbound, h.config.SendBuffer),
		done:     make(chan struct{}),
	}
	logger := log.With().Str("conn_id", c.id).Str("quiz_id", quizID).Str("client_id", clientID).Logger()
	logger.Info().Msg("ws connection established")

	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})
	closeSignals := make(chan struct{})

	go func() {
		defer close(writerDone)
		defer close(c.done)
		// Closing unblocks the read loop when the writer fails first.
		defer conn.Close()
		h.writePump(conn, c)
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					// Session ended; close after the final snapshot is flushed.
					c.push(outbound{closing: true})
					return
				}
				c.enqueue(protocol.EventStateUpdate, snap)
			case <-closeSignals:
				return
			}
		}
	}()

	conn.SetReadLimit(h.config.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("ws read ended")
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.config.PongWait))

		env, err := protocol.Decode(raw)
		if err != nil {
			logger.Debug().Err(err).Msg("dropping malformed frame")
			continue
		}
		h.dispatch(r.Context(), c, env)
	}

	// Participants stay in the session so a reconnect with the same client id resumes.
	close(closeSignals)
	<-updatesDone
	close(c.send)
	<-writerDone
	logger.Info().Msg("ws connection closed")
}

func (h *WSHandler) writePump(conn *websocket.Conn, c *clientConn) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			if frame.closing {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "quiz ended"),
					time.Now().Add(h.config.WriteTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.WriteJSON(frame.env); err != nil {
				log.Debug().Err(err).Str("conn_id", c.id).Msg("ws write error")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.config.WriteTimeout)); err != nil {
				log.Debug().Err(err).Str("conn_id", c.id).Msg("ws ping failed")
				return
			}
		}
	}
}

// dispatch applies one client intent. Only join failures are reported back;
// rejected answers, starts and ends are dropped since well-behaved clients
// never produce them.
func (h *WSHandler) dispatch(ctx context.Context, c *clientConn, env protocol.Envelope) {
	logger := log.With().Str("conn_id", c.id).Str("quiz_id", c.quizID).Str("event", string(env.Type)).Logger()

	switch env.Type {
	case protocol.EventJoinQuiz:
		payload, err := protocol.DecodePayload[protocol.JoinPayload](env)
		if err != nil {
			c.enqueue(protocol.EventJoinError, protocol.JoinErrorPayload{Message: "Invalid join request."})
			return
		}
		if payload.QuizID != "" && payload.QuizID != c.quizID {
			c.enqueue(protocol.EventJoinError, protocol.JoinErrorPayload{Message: joinErrorMessage(domain.ErrSessionNotFound)})
			return
		}
		if _, err := h.service.Join(ctx, c.quizID, c.clientID, payload.Name); err != nil {
			logger.Debug().Err(err).Msg("join rejected")
			c.enqueue(protocol.EventJoinError, protocol.JoinErrorPayload{Message: joinErrorMessage(err)})
			return
		}
		c.enqueue(protocol.EventJoinSuccess, protocol.JoinSuccessPayload{QuizID: c.quizID})

	case protocol.EventStartQuiz:
		if _, err := h.service.Start(ctx, c.quizID, c.hostKey); err != nil {
			logger.Debug().Err(err).Msg("start ignored")
		}

	case protocol.EventSubmitAnswer:
		payload, err := protocol.DecodePayload[protocol.AnswerPayload](env)
		if err != nil {
			logger.Debug().Err(err).Msg("answer dropped")
			return
		}
		if payload.QuizID != "" && payload.QuizID != c.quizID {
			return
		}
		result, err := h.service.SubmitAnswer(ctx, c.quizID, c.clientID, payload.Answer)
		if err != nil {
			logger.Debug().Err(err).Msg("answer dropped")
			return
		}
		logger.Debug().Bool("correct", result.Correct).Int("delta", result.Delta).Msg("answer recorded")

	case protocol.EventEndQuiz:
		if err := h.service.End(ctx, c.quizID, c.hostKey); err != nil {
			logger.Debug().Err(err).Msg("end ignored")
		}

	default:
		logger.Debug().Msg("unsupported event")
	}
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyName):
		return "Please enter your name."
	case errors.Is(err, domain.ErrDuplicateName):
		return "Name already taken in this quiz."
	case errors.Is(err, domain.ErrQuizStarted):
		return "Quiz already started."
	case errors.Is(err, domain.ErrSessionNotFound):
		return "Invalid quiz link."
	default:
		return "Could not join the quiz."
	}
}

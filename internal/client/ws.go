package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"quizwhiz-service/internal/protocol"
)

const writeTimeout = 10 * time.Second

// Conn is a client WebSocket connection speaking the envelope protocol.
type Conn struct {
	ws      *websocket.Conn
	mu      sync.Mutex
	inbound chan protocol.Envelope
	done    chan struct{}
	once    sync.Once
}

// SocketURL builds the WebSocket endpoint for quizID from the server base URL.
func SocketURL(baseURL, quizID, clientID, hostKey string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = u.Path + "/ws/" + url.PathEscape(quizID)
	q := url.Values{}
	q.Set("client", clientID)
	if hostKey != "" {
		q.Set("host", hostKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial connects and starts the read pump.
func Dial(ctx context.Context, rawURL string) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, resp, err := dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", rawURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	c := &Conn{ws: ws, inbound: make(chan protocol.Envelope, 16), done: make(chan struct{})}
	go c.readPump()
	return c, nil
}

// Inbound yields decoded envelopes; it is closed when the connection drops.
func (c *Conn) Inbound() <-chan protocol.Envelope {
	return c.inbound
}

func (c *Conn) Send(env protocol.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(env)
}

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.done) })
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.ws.Close()
}

func (c *Conn) readPump() {
	defer close(c.inbound)
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("ws read ended")
			}
			return
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			log.Debug().Err(err).Msg("dropping malformed frame")
			continue
		}
		select {
		case c.inbound <- env:
		case <-c.done:
			return
		}
	}
}

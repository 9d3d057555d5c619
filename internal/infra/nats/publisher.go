// Package nats mirrors session snapshots onto NATS subjects so other
// services (dashboards, recorders) can follow a quiz without a socket.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"quizwhiz-service/internal/domain"
)

type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "quizwhiz",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Publisher publishes every snapshot to <prefix>.<quizID>.state.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

func NewPublisher(cfg Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("quizwhiz-service"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &Publisher{nc: nc, prefix: cfg.SubjectPrefix}, nil
}

func (p *Publisher) Publish(_ context.Context, snap domain.Snapshot) error {
	msg, err := stateMessage(p.prefix, snap)
	if err != nil {
		return err
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish to NATS: %w", err)
	}
	return nil
}

// Watch delivers snapshots of one quiz to fn until ctx is done.
func (p *Publisher) Watch(ctx context.Context, quizID string, fn func(domain.Snapshot)) error {
	sub, err := p.nc.Subscribe(StateSubject(p.prefix, quizID), func(msg *nats.Msg) {
		var snap domain.Snapshot
		if err := json.Unmarshal(msg.Data, &snap); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping undecodable snapshot")
			return
		}
		fn(snap)
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()
	<-ctx.Done()
	return nil
}

func (p *Publisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

// StateSubject is the subject carrying snapshots for quizID.
func StateSubject(prefix, quizID string) string {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		return quizID + ".state"
	}
	return prefix + "." + quizID + ".state"
}

func stateMessage(prefix string, snap domain.Snapshot) (*nats.Msg, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return &nats.Msg{
		Subject: StateSubject(prefix, snap.QuizID),
		Data:    data,
		Header: nats.Header{
			"Quiz-ID":  []string{snap.QuizID},
			"Started":  []string{strconv.FormatBool(snap.Started)},
			"Finished": []string{strconv.FormatBool(snap.Finished)},
		},
	}, nil
}

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"quizwhiz-service/internal/client"
	"quizwhiz-service/internal/domain"
)

type playOptions struct {
	server   string
	quizID   string
	hostKey  string
	name     string
	clientID string
	retries  int
}

// NewPlayCmd runs an interactive terminal participant.
func NewPlayCmd() *cobra.Command {
	opts := playOptions{}
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join a quiz from the terminal",
		Long: "Type a name to join, an option key (A-D) to answer,\n" +
			"/start or /end as host, /join NAME to join with a short name.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.quizID == "" {
				return errors.New("--quiz is required")
			}
			if opts.clientID == "" {
				opts.clientID = uuid.NewString()
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runPlay(ctx, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "quiz server base URL")
	cmd.Flags().StringVar(&opts.quizID, "quiz", "", "quiz id to join")
	cmd.Flags().StringVar(&opts.hostKey, "host", "", "host key from the host link")
	cmd.Flags().StringVar(&opts.name, "name", "", "join immediately with this name")
	cmd.Flags().StringVar(&opts.clientID, "client", "", "stable client id (random when empty)")
	cmd.Flags().IntVar(&opts.retries, "retries", 5, "reconnect attempts before giving up")
	return cmd
}

func runPlay(ctx context.Context, opts playOptions, in io.Reader, out io.Writer) error {
	socketURL, err := client.SocketURL(opts.server, opts.quizID, opts.clientID, opts.hostKey)
	if err != nil {
		return err
	}

	render := newTerminalRenderer(out)
	agent := client.NewAgent(opts.quizID, opts.hostKey != "", nil, render, clockwork.NewRealClock())

	intents := make(chan client.Intent)
	go readIntents(ctx, in, intents)

	failures := 0
	first := true
	for {
		conn, err := client.Dial(ctx, socketURL)
		if err != nil {
			failures++
			if failures > opts.retries || ctx.Err() != nil {
				return err
			}
			log.Debug().Err(err).Int("attempt", failures).Msg("redialing")
			if !sleepCtx(ctx, backoff(failures)) {
				return nil
			}
			continue
		}
		failures = 0

		agent.SetSender(conn)
		switch {
		case agent.Joined():
			err = agent.Resume()
		case first && opts.name != "":
			err = agent.Join(opts.name)
		}
		first = false
		if err != nil {
			render.Status(err.Error())
		}

		err = agent.Run(ctx, conn.Inbound(), intents)
		conn.Close()
		switch {
		case errors.Is(err, client.ErrDisconnected):
			continue
		case errors.Is(err, context.Canceled):
			return nil
		default:
			return err
		}
	}
}

func backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * 500 * time.Millisecond
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func readIntents(ctx context.Context, in io.Reader, intents chan<- client.Intent) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		intent, ok := parseIntent(scanner.Text())
		if !ok {
			continue
		}
		select {
		case intents <- intent:
		case <-ctx.Done():
			return
		}
	}
}

// parseIntent maps one line of input to an intent. Short tokens are option keys.
func parseIntent(line string) (client.Intent, bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return client.Intent{}, false
	case line == "/start":
		return client.Intent{Kind: client.IntentStart}, true
	case line == "/end":
		return client.Intent{Kind: client.IntentEnd}, true
	case strings.HasPrefix(line, "/join "):
		return client.Intent{Kind: client.IntentJoin, Value: strings.TrimSpace(strings.TrimPrefix(line, "/join "))}, true
	case len(line) <= 2:
		return client.Intent{Kind: client.IntentSelect, Value: line}, true
	default:
		return client.Intent{Kind: client.IntentJoin, Value: line}, true
	}
}

// terminalRenderer prints the agent's view as plain lines.
type terminalRenderer struct {
	out      io.Writer
	lastTick int
}

func newTerminalRenderer(out io.Writer) *terminalRenderer {
	return &terminalRenderer{out: out, lastTick: -1}
}

func (r *terminalRenderer) Status(message string) {
	fmt.Fprintf(r.out, "* %s\n", message)
}

func (r *terminalRenderer) Leaderboard(entries []domain.LeaderboardEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(r.out, "  (no players yet)")
		return
	}
	fmt.Fprintln(r.out, "  #  name              score  correct  answered")
	for i, e := range entries {
		fmt.Fprintf(r.out, "  %-2d %-17s %5d  %7d  %8d\n", i+1, e.Name, e.Score, e.Correct, e.Answered)
	}
}

func (r *terminalRenderer) Question(q domain.QuestionView) {
	r.lastTick = -1
	fmt.Fprintf(r.out, "\nQ%d/%d: %s\n", q.Index+1, q.Total, q.Text)
	keys := make([]string, 0, len(q.Options))
	for k := range q.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(r.out, "  %s. %s\n", k, q.Options[k])
	}
}

func (r *terminalRenderer) HideQuestion() {}

func (r *terminalRenderer) Selected(key string) {
	fmt.Fprintf(r.out, "  -> you picked %s\n", key)
}

func (r *terminalRenderer) Timer(secondsLeft int, active bool) {
	if !active {
		r.lastTick = -1
		return
	}
	if secondsLeft == r.lastTick {
		return
	}
	r.lastTick = secondsLeft
	fmt.Fprintf(r.out, "  Time left: %ds\n", secondsLeft)
}

package cli

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"quizwhiz-service/internal/domain"
	infranats "quizwhiz-service/internal/infra/nats"
)

// NewWatchCmd follows a quiz through the NATS snapshot mirror.
func NewWatchCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch QUIZ_ID",
		Short: "Print live leaderboards for a quiz from NATS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.NATS.URL == "" {
				return errors.New("nats url not configured")
			}
			natsCfg := infranats.DefaultConfig()
			natsCfg.URL = cfg.NATS.URL
			natsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
			conn, err := infranats.NewPublisher(natsCfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			render := newTerminalRenderer(cmd.OutOrStdout())
			return conn.Watch(ctx, args[0], func(snap domain.Snapshot) {
				switch {
				case snap.Finished:
					render.Status("finished")
				case snap.Question != nil:
					render.Status(fmt.Sprintf("question %d/%d", snap.Question.Index+1, snap.Question.Total))
				default:
					render.Status("lobby")
				}
				render.Leaderboard(snap.Leaderboard)
			})
		},
	}
}

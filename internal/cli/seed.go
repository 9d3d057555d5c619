package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"quizwhiz-service/internal/config"
	"quizwhiz-service/internal/domain"
	pgloader "quizwhiz-service/internal/infra/postgres"
	"quizwhiz-service/internal/infra/sqlite"
)

// NewSeedCmd imports questions into the sqlite bank, or a curated quiz into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var (
		csvPath  string
		force    bool
		quizFile string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import questions from CSV into the question bank",
		Long: "Without flags, imports sqlite.csv into the sqlite bank when it is empty.\n" +
			"With --quiz, upserts a quiz JSON document into Postgres.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if quizFile != "" {
				return seedPostgres(cmd.Context(), cfg, quizFile)
			}
			if csvPath == "" {
				csvPath = cfg.SQLite.CSV
			}
			return seedBank(cmd.Context(), cfg, csvPath, force)
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file to import (defaults to sqlite.csv)")
	cmd.Flags().BoolVar(&force, "force", false, "import even when the bank already has questions")
	cmd.Flags().StringVar(&quizFile, "quiz", "", "quiz JSON file to upsert into Postgres")
	return cmd
}

func seedBank(ctx context.Context, cfg config.Config, csvPath string, force bool) error {
	bank, err := sqlite.Open(cfg.SQLite.Path, cfg.Quiz.QuestionsPerQuiz, cfg.QuestionTimeSeconds())
	if err != nil {
		return err
	}
	defer bank.Close()

	count, err := bank.CountQuestions(ctx)
	if err != nil {
		return err
	}
	if count > 0 && !force {
		log.Info().Int("questions", count).Msg("question bank already seeded; use --force to import again")
		return nil
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	n, err := bank.SeedCSV(ctx, f)
	if err != nil {
		return err
	}
	log.Info().Int("imported", n).Str("path", cfg.SQLite.Path).Msg("seed complete")
	return nil
}

func seedPostgres(ctx context.Context, cfg config.Config, quizFile string) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	raw, err := os.ReadFile(quizFile)
	if err != nil {
		return err
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return fmt.Errorf("decode %s: %w", quizFile, err)
	}
	if quiz.ID == "" {
		quiz.ID = domain.NewQuizID()
	}
	quiz = quiz.WithDefaults(cfg.QuestionTimeSeconds())

	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := pgloader.NewQuizLoader(pool, cfg.QuestionTimeSeconds()).SaveQuiz(ctx, quiz); err != nil {
		return err
	}
	log.Info().Str("quiz_id", quiz.ID).Int("questions", len(quiz.Questions)).Msg("quiz stored in postgres")
	return nil
}

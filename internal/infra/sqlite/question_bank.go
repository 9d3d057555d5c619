// Package sqlite keeps the question bank in a local SQLite file and
// assembles quizzes from it.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"quizwhiz-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS questions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	question TEXT NOT NULL,
	option_a TEXT NOT NULL,
	option_b TEXT NOT NULL,
	option_c TEXT NOT NULL,
	option_d TEXT NOT NULL,
	correct_option TEXT NOT NULL,
	time_limit INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS quizzes (
	quiz_id TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS quiz_questions (
	quiz_id TEXT NOT NULL REFERENCES quizzes(quiz_id),
	question_id INTEGER NOT NULL REFERENCES questions(id),
	position INTEGER NOT NULL,
	PRIMARY KEY (quiz_id, question_id)
);`

var optionKeys = []string{"A", "B", "C", "D"}

// QuestionBank implements quiz loading and creation on top of SQLite.
type QuestionBank struct {
	db               *sql.DB
	perQuiz          int
	defaultTimeLimit int
}

// Open creates the database file if needed and ensures the schema exists.
func Open(path string, perQuiz, defaultTimeLimit int) (*QuestionBank, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers anyway; one connection avoids "database is locked".
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	if perQuiz <= 0 {
		perQuiz = 8
	}
	return &QuestionBank{db: db, perQuiz: perQuiz, defaultTimeLimit: defaultTimeLimit}, nil
}

func (b *QuestionBank) Close() error {
	return b.db.Close()
}

// CountQuestions returns the size of the bank.
func (b *QuestionBank) CountQuestions(ctx context.Context) (int, error) {
	var n int
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return n, nil
}

// SeedCSV imports questions from CSV with the header
// question,option_a,option_b,option_c,option_d,correct_option[,time_limit].
func (b *QuestionBank) SeedCSV(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"question", "option_a", "option_b", "option_c", "option_d", "correct_option"} {
		if _, ok := cols[required]; !ok {
			return 0, fmt.Errorf("csv missing column %q", required)
		}
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO questions (question, option_a, option_b, option_c, option_d, correct_option, time_limit)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare seed: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read csv line %d: %w", line, err)
		}
		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		answer := domain.NormalizeKey(field("correct_option"))
		if !isOptionKey(answer) {
			return 0, fmt.Errorf("%w: csv line %d has correct option %q", domain.ErrInvalidQuiz, line, field("correct_option"))
		}
		timeLimit := 0
		if raw := field("time_limit"); raw != "" {
			if timeLimit, err = strconv.Atoi(raw); err != nil {
				return 0, fmt.Errorf("csv line %d time_limit: %w", line, err)
			}
		}

		if _, err := stmt.ExecContext(ctx, field("question"),
			field("option_a"), field("option_b"), field("option_c"), field("option_d"),
			answer, timeLimit); err != nil {
			return 0, fmt.Errorf("insert csv line %d: %w", line, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	log.Info().Int("questions", inserted).Msg("question bank seeded")
	return inserted, nil
}

// CreateQuiz draws a random selection of questions and records it under a new quiz ID.
func (b *QuestionBank) CreateQuiz(ctx context.Context) (domain.Quiz, error) {
	quizID := domain.NewQuizID()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("begin create quiz: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM questions ORDER BY RANDOM() LIMIT ?`, b.perQuiz)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("select questions: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return domain.Quiz{}, fmt.Errorf("scan question id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("select questions: %w", err)
	}
	if len(ids) == 0 {
		return domain.Quiz{}, fmt.Errorf("%w: question bank is empty", domain.ErrInvalidQuiz)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO quizzes (quiz_id) VALUES (?)`, quizID); err != nil {
		return domain.Quiz{}, fmt.Errorf("insert quiz: %w", err)
	}
	for position, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO quiz_questions (quiz_id, question_id, position) VALUES (?, ?, ?)`,
			quizID, id, position); err != nil {
			return domain.Quiz{}, fmt.Errorf("insert quiz question: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Quiz{}, fmt.Errorf("commit quiz: %w", err)
	}

	return b.LoadQuiz(ctx, quizID)
}

// LoadQuiz returns the ordered questions of a previously created quiz.
func (b *QuestionBank) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var exists int
	err := b.db.QueryRowContext(ctx, `SELECT 1 FROM quizzes WHERE quiz_id = ?`, quizID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizID)
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("lookup quiz: %w", err)
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT q.id, q.question, q.option_a, q.option_b, q.option_c, q.option_d, q.correct_option, q.time_limit
		FROM quiz_questions qq
		JOIN questions q ON q.id = qq.question_id
		WHERE qq.quiz_id = ?
		ORDER BY qq.position ASC`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz questions: %w", err)
	}
	defer rows.Close()

	quiz := domain.Quiz{ID: quizID}
	for rows.Next() {
		var (
			id        int64
			prompt    string
			texts     [4]string
			answer    string
			timeLimit int
		)
		if err := rows.Scan(&id, &prompt, &texts[0], &texts[1], &texts[2], &texts[3], &answer, &timeLimit); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan question: %w", err)
		}
		question := domain.Question{
			ID:               strconv.FormatInt(id, 10),
			Prompt:           prompt,
			Answer:           answer,
			TimeLimitSeconds: timeLimit,
		}
		for i, key := range optionKeys {
			question.Options = append(question.Options, domain.Option{Key: key, Text: texts[i]})
		}
		quiz.Questions = append(quiz.Questions, question)
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz questions: %w", err)
	}

	quiz = quiz.WithDefaults(b.defaultTimeLimit)
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

func isOptionKey(key string) bool {
	for _, k := range optionKeys {
		if k == key {
			return true
		}
	}
	return false
}

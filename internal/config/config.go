package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port    string `yaml:"port"`
		BaseURL string `yaml:"baseURL"`
		// AllowedOrigins for CORS; empty allows any origin.
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
		CSV  string `yaml:"csv"`
	} `yaml:"sqlite"`
	Quiz struct {
		TTL              string `yaml:"ttl"`
		QuestionsPerQuiz int    `yaml:"questionsPerQuiz"`
		QuestionTime     string `yaml:"questionTime"`
	} `yaml:"quiz"`
	Session struct {
		TickInterval string `yaml:"tickInterval"`
		IdleTTL      string `yaml:"idleTTL"`
	} `yaml:"session"`
	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subjectPrefix"`
	} `yaml:"nats"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.SQLite.Path = "data/quizwhiz.db"
	cfg.SQLite.CSV = "questions.csv"
	cfg.Quiz.TTL = "10m"
	cfg.Quiz.QuestionsPerQuiz = 8
	cfg.Quiz.QuestionTime = "15s"
	cfg.Session.TickInterval = "500ms"
	cfg.Session.IdleTTL = "30m"
	cfg.NATS.SubjectPrefix = "quizwhiz"
	cfg.Log.Level = "info"
	return cfg
}

// Load reads YAML config from path over the defaults. A missing file is not
// an error. Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		"PORT":         &cfg.Server.Port,
		"BASE_URL":     &cfg.Server.BaseURL,
		"REDIS_ADDR":   &cfg.Redis.Addr,
		"POSTGRES_URL": &cfg.Postgres.URL,
		"SQLITE_PATH":  &cfg.SQLite.Path,
		"NATS_URL":     &cfg.NATS.URL,
		"LOG_LEVEL":    &cfg.Log.Level,
	}
	for key, dst := range overrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	if v, err := strconv.ParseBool(os.Getenv("LOG_PRETTY")); err == nil {
		cfg.Log.Pretty = v
	}
}

// QuestionTimeSeconds is the default per-question budget in whole seconds.
func (c Config) QuestionTimeSeconds() int {
	return int(TTLDuration(c.Quiz.QuestionTime, 15*time.Second) / time.Second)
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

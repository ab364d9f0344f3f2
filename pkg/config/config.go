package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	RocketChat RocketChatConfig `mapstructure:"rocketchat"`
	Completion CompletionConfig `mapstructure:"completion"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Email      EmailConfig      `mapstructure:"email"`
	Advisor    AdvisorConfig    `mapstructure:"advisor"`
	Server     ServerConfig     `mapstructure:"server"`
	Sentry     SentryConfig     `mapstructure:"sentry"`
}

type RocketChatConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	UserID  string        `mapstructure:"user_id"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CompletionConfig selects and tunes the LLM backend. Provider is "proxy"
// for the RAG proxy or "openai".
type CompletionConfig struct {
	Provider      string        `mapstructure:"provider"`
	Endpoint      string        `mapstructure:"endpoint"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	Temperature   float64       `mapstructure:"temperature"`
	PromptVersion string        `mapstructure:"prompt_version"`
	PromptDir     string        `mapstructure:"prompt_dir"`
	SessionPrefix string        `mapstructure:"session_prefix"`
	MaxHistory    int           `mapstructure:"max_history"`
	RAG           RAGConfig     `mapstructure:"rag"`
	Retry         RetryConfig   `mapstructure:"retry"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type RAGConfig struct {
	Usage     bool    `mapstructure:"usage"`
	Threshold float64 `mapstructure:"threshold"`
	K         int     `mapstructure:"k"`
}

type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

type OpenAIConfig struct {
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

type AdvisorConfig struct {
	// Channel receives escalations, e.g. "@advisor.username"
	Channel        string `mapstructure:"channel"`
	LoadingMessage bool   `mapstructure:"loading_message"`
	PublicURL      string `mapstructure:"public_url"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	WebhookTimeout  time.Duration `mapstructure:"webhook_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel        string        `mapstructure:"log_level"`
}

type SentryConfig struct {
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// envBindings maps config keys to the environment variables the deployment
// already uses.
var envBindings = map[string]string{
	"rocketchat.token":    "RC_token",
	"rocketchat.user_id":  "RC_userId",
	"rocketchat.base_url": "RC_BASE_URL",
	"completion.endpoint": "endPoint",
	"completion.api_key":  "apiKey",
	"openai.api_key":      "OPENAI_API_KEY",
	"email.host":          "SMTP_SERVER",
	"email.port":          "SMTP_PORT",
	"email.username":      "EMAIL_USER",
	"email.password":      "EMAIL_PASSWORD",
	"email.to":            "ADVISOR_EMAIL",
	"email.enabled":       "EMAIL_NOTIFICATIONS",
	"advisor.channel":     "HUMAN_OPERATOR",
	"advisor.public_url":  "PUBLIC_URL",
	"sentry.dsn":          "SENTRY_DSN",
	"server.port":         "PORT",
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return DatabaseConfig{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	password, _ := u.User.Password()
	port := 5432
	if u.Port() != "" {
		port, err = strconv.Atoi(u.Port())
		if err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q: %w", u.Port(), err)
		}
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rocketchat.timeout", 10*time.Second)

	v.SetDefault("completion.provider", "proxy")
	v.SetDefault("completion.model", "4o-mini")
	v.SetDefault("completion.temperature", 0.0)
	v.SetDefault("completion.prompt_version", "v7")
	v.SetDefault("completion.session_prefix", "advising")
	v.SetDefault("completion.max_history", 5)
	v.SetDefault("completion.rag.usage", true)
	v.SetDefault("completion.rag.threshold", 0.3)
	v.SetDefault("completion.rag.k", 5)
	v.SetDefault("completion.retry.max_attempts", 3)
	v.SetDefault("completion.retry.initial_backoff", 500*time.Millisecond)
	v.SetDefault("completion.retry.max_backoff", 5*time.Second)
	v.SetDefault("completion.timeout", 60*time.Second)

	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 1024)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "advising")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.host", "smtp.gmail.com")
	v.SetDefault("email.port", 587)

	v.SetDefault("advisor.loading_message", true)

	v.SetDefault("server.port", "5000")
	v.SetDefault("server.webhook_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("sentry.environment", "production")
	v.SetDefault("sentry.sample_rate", 1.0)
}

// LoadConfig reads the optional config file at path, then applies .env and
// environment overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = dbConfig
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate reports every missing required setting at once
func (c *Config) Validate() error {
	var errs []error

	if c.RocketChat.BaseURL == "" {
		errs = append(errs, errors.New("rocketchat.base_url (RC_BASE_URL) is required"))
	}
	if c.RocketChat.Token == "" || c.RocketChat.UserID == "" {
		errs = append(errs, errors.New("rocketchat.token and rocketchat.user_id (RC_token, RC_userId) are required"))
	}
	if c.Advisor.Channel == "" {
		errs = append(errs, errors.New("advisor.channel (HUMAN_OPERATOR) is required"))
	}

	switch c.Completion.Provider {
	case "proxy":
		if c.Completion.Endpoint == "" || c.Completion.APIKey == "" {
			errs = append(errs, errors.New("completion.endpoint and completion.api_key (endPoint, apiKey) are required"))
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("openai.api_key (OPENAI_API_KEY) is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown completion.provider %q", c.Completion.Provider))
	}

	if c.Completion.MaxHistory < 0 {
		errs = append(errs, errors.New("completion.max_history must not be negative"))
	}

	return errors.Join(errs...)
}

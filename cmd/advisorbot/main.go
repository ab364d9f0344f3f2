package main

import (
	"context"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/xaenox/advising-bot/internal/advisor"
	"github.com/xaenox/advising-bot/internal/bot"
	"github.com/xaenox/advising-bot/internal/completion"
	"github.com/xaenox/advising-bot/internal/metrics"
	"github.com/xaenox/advising-bot/internal/notify"
	"github.com/xaenox/advising-bot/internal/rocketchat"
	"github.com/xaenox/advising-bot/internal/server"
	"github.com/xaenox/advising-bot/internal/storage"
	"github.com/xaenox/advising-bot/pkg/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", "", "path to an optional config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// The logger level depends on config, so fall back to a default one
		fallback, _ := zap.NewProduction()
		fallback.Fatal("Failed to load config", zap.Error(err), zap.String("path", *configPath))
	}

	// Initialize logger
	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Advisor bot stopped", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zcfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Error reporting is optional
	if cfg.Sentry.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			SampleRate:       cfg.Sentry.SampleRate,
			AttachStacktrace: true,
		})
		if err != nil {
			logger.Warn("Failed to initialize Sentry", zap.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Initialize storage
	store, err := newStorage(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	prompts, err := advisor.LoadPromptSet(promptFS(cfg.Completion.PromptDir), cfg.Completion.PromptVersion)
	if err != nil {
		return err
	}

	completer := completion.NewRetrying(newCompleter(cfg, logger), completion.RetryConfig{
		MaxAttempts:    cfg.Completion.Retry.MaxAttempts,
		InitialBackoff: cfg.Completion.Retry.InitialBackoff,
		MaxBackoff:     cfg.Completion.Retry.MaxBackoff,
		AttemptTimeout: cfg.Completion.Timeout,
	}, logger)

	adv := advisor.New(completer, prompts, advisor.Config{
		SessionPrefix: cfg.Completion.SessionPrefix,
		MaxHistory:    cfg.Completion.MaxHistory,
		RAG: completion.RAGOptions{
			Usage:     cfg.Completion.RAG.Usage,
			Threshold: cfg.Completion.RAG.Threshold,
			K:         cfg.Completion.RAG.K,
		},
	}, m, logger)

	chat := rocketchat.NewClient(rocketchat.Config{
		BaseURL: cfg.RocketChat.BaseURL,
		Token:   cfg.RocketChat.Token,
		UserID:  cfg.RocketChat.UserID,
		Timeout: cfg.RocketChat.Timeout,
	}, logger)

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Email.Enabled {
		notifier = notify.NewEmailNotifier(notify.EmailConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
		}, logger)
	}

	linker := bot.NewLinker(store, chat, notifier, bot.LinkerConfig{AdvisorChannel: cfg.Advisor.Channel}, m, logger)
	defer linker.Wait()

	b := bot.New(store, adv, chat, linker, bot.Config{
		LoadingMessage: cfg.Advisor.LoadingMessage,
		PublicURL:      cfg.Advisor.PublicURL,
	}, m, logger)

	srv := server.New(server.Config{
		Port:            cfg.Server.Port,
		WebhookTimeout:  cfg.Server.WebhookTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, b, store, m, registry, logger)

	logger.Info("Advisor bot started",
		zap.String("completion_provider", cfg.Completion.Provider),
		zap.String("prompt_version", prompts.Version),
		zap.Bool("email_notifications", cfg.Email.Enabled))

	return srv.Run(ctx)
}

func newStorage(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (storage.Storage, error) {
	if cfg.UseInMemory {
		logger.Info("Using in-memory storage")
		return storage.NewMemoryStorage(), nil
	}

	logger.Info("Using PostgreSQL storage", zap.String("host", cfg.Host), zap.String("dbname", cfg.DBName))
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return storage.NewPostgresStorage(connectCtx, storage.DatabaseConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		DBName:   cfg.DBName,
		SSLMode:  cfg.SSLMode,
	}, logger)
}

func newCompleter(cfg *config.Config, logger *zap.Logger) completion.Completer {
	if cfg.Completion.Provider == "openai" {
		return completion.NewOpenAIClient(completion.OpenAIConfig{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Temperature: cfg.Completion.Temperature,
		}, logger)
	}
	return completion.NewProxyClient(completion.ProxyConfig{
		Endpoint:    cfg.Completion.Endpoint,
		APIKey:      cfg.Completion.APIKey,
		Model:       cfg.Completion.Model,
		Temperature: cfg.Completion.Temperature,
	}, logger)
}

// promptFS returns nil, meaning the built-in prompts, unless dir is set
func promptFS(dir string) fs.FS {
	if dir == "" {
		return nil
	}
	return os.DirFS(dir)
}

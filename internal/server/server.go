// Package server exposes the chat webhook, the admin pages and the
// operational endpoints over HTTP.
package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xaenox/advising-bot/internal/bot"
	"github.com/xaenox/advising-bot/internal/metrics"
	"github.com/xaenox/advising-bot/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

//go:embed templates/*.html
var templatesFS embed.FS

const readinessTimeout = 3 * time.Second

type Config struct {
	Port            string
	WebhookTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Responder answers one inbound chat message
type Responder interface {
	Respond(ctx context.Context, in bot.Inbound) (*bot.Outbound, error)
}

type Server struct {
	cfg       Config
	responder Responder
	store     storage.Storage
	metrics   *metrics.Metrics
	logger    *zap.Logger

	router *gin.Engine
	http   *http.Server
}

func New(cfg Config, responder Responder, store storage.Storage, m *metrics.Metrics, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if cfg.WebhookTimeout <= 0 {
		cfg.WebhookTimeout = 120 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware(logger))
	router.Use(loggingMiddleware())
	router.SetHTMLTemplate(template.Must(template.New("").ParseFS(templatesFS, "templates/*.html")))

	s := &Server{
		cfg:       cfg,
		responder: responder,
		store:     store,
		metrics:   m,
		logger:    logger,
		router:    router,
	}

	router.GET("/", s.hello)
	router.GET("/healthz", s.liveness)
	router.GET("/ready", s.readiness)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.POST("/query", s.handleQuery)

	admin := router.Group("/", securityHeadersMiddleware())
	admin.GET("/faqs", s.listFAQs)
	admin.POST("/faqs", s.editFAQs)
	admin.GET("/student-info", s.showStudent)
	admin.POST("/student-info", s.updateStudent)

	s.http = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WebhookTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed engine
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("HTTP server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.logger.Info("Shutting down HTTP server")
		return s.http.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) hello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"text": "Hello from the CS advising bot!"})
}

func (s *Server) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		requestLogger(c).Warn("Readiness check failed: database unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "database unavailable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

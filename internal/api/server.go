// Package api serves the backend HTTP surface: platform webhooks, account
// linking endpoints, the operator inbox, health and metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgard/nexa/internal/config"
	"github.com/edgard/nexa/internal/database"
	"github.com/edgard/nexa/internal/inbox"
	"github.com/edgard/nexa/internal/ingest"
	"github.com/edgard/nexa/internal/linking"
	"github.com/edgard/nexa/internal/logger"
)

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Ingester interface {
	Handle(ctx context.Context, platform string, update map[string]any) (ingest.Result, error)
}

type Linker interface {
	Issue(ctx context.Context, userID int64, platform string) (linking.Issued, error)
	SendToUser(ctx context.Context, userID int64, platform, text string) error
	Unlink(ctx context.Context, userID int64, platform string) error
}

type Inbox interface {
	ListPending(ctx context.Context, limit int) ([]inbox.Item, error)
	Reply(ctx context.Context, id int64, text string) (inbox.ReplyResult, error)
}

// Deps are the services behind the routes.
type Deps struct {
	Store    Pinger
	Ingest   Ingester
	Linking  Linker
	Inbox    Inbox
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Server is the backend API.
type Server struct {
	cfg      config.HTTPConfig
	deps     Deps
	engine   *gin.Engine
	log      *slog.Logger
	tgSecret string
	plSecret string
}

// NewServer builds the router. telegramSecret and listenerSecret, when set,
// must match the corresponding webhook header.
func NewServer(cfg config.HTTPConfig, telegramSecret, listenerSecret string, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		cfg:      cfg,
		deps:     deps,
		log:      log.With("component", "api"),
		tgSecret: telegramSecret,
		plSecret: listenerSecret,
	}
	s.engine = s.routes(log)
	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes(log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.Middleware(log))
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(corsMiddleware(s.cfg.CORSOrigins))
	}

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))

	connectors := r.Group("/connectors")
	connectors.POST("/telegram/webhook", requireHeader(telegramSecretHeader, s.tgSecret), s.webhook(database.PlatformTelegram))
	connectors.POST("/personal/webhook", requireHeader(listenerSecretHeader, s.plSecret), s.webhook(database.PlatformPersonal))

	platforms := r.Group("/platforms/:platform", requireBearer(s.cfg.AdminToken), validPlatform())
	platforms.POST("/request_link", s.requestLink)
	platforms.POST("/send", s.send)
	platforms.POST("/unlink", s.unlink)

	admin := r.Group("/admin", requireBearer(s.cfg.AdminToken))
	admin.GET("/messages", s.listMessages)
	admin.POST("/messages/:id/reply", s.replyMessage)

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	if slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	return cors.New(cfg)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	return ListenAndServe(ctx, srv, s.cfg.ShutdownTimeout, s.log)
}

// ListenAndServe runs srv until ctx is cancelled and then gives in-flight
// requests up to shutdownTimeout to finish.
func ListenAndServe(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server on %s failed: %w", srv.Addr, err)
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server", "addr", srv.Addr)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}
